// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/facebookincubator/go-belt/beltctx"
	"github.com/facebookincubator/go-belt/tool/logger/types"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/kernelci/logparser/pkg/config"
	"github.com/kernelci/logparser/pkg/lock"
	"github.com/kernelci/logparser/pkg/logging"
	"github.com/kernelci/logparser/pkg/logparser"
	"github.com/kernelci/logparser/pkg/metrics"
	"github.com/kernelci/logparser/pkg/storage"
	"github.com/kernelci/logparser/pkg/taskqueue"
	"github.com/kernelci/logparser/plugins/locker/dblocker"
	"github.com/kernelci/logparser/plugins/locker/inmemory"
	"github.com/kernelci/logparser/plugins/locker/noop"
	"github.com/kernelci/logparser/plugins/storage/memory"
	"github.com/kernelci/logparser/plugins/storage/mongo"
	"github.com/kernelci/logparser/plugins/taskqueue/kafka"
)

// Roles a process can take.
const (
	RoleAll    = "all"
	RoleAPI    = "api"
	RoleWorker = "worker"
)

var (
	flagSet          *flag.FlagSet
	flagConfig       *string
	flagListen       *string
	flagLogLevel     *string
	flagRole         *string
	flagStorage      *string
	flagMongoURI     *string
	flagMongoDB      *string
	flagLocker       *string
	flagBasePath     *string
	flagWorkers      *int
	flagKafkaBrokers *[]string
	flagTLSCert      *string
	flagTLSKey       *string
)

func initFlags(cmd string) {
	flagSet = flag.NewFlagSet(cmd, flag.ContinueOnError)
	flagConfig = flagSet.String("config", "", "Path to a YAML configuration file")
	flagListen = flagSet.String("listen", "", "Address to serve the HTTP API on")
	flagLogLevel = flagSet.String("log-level", "", "A log level, possible values: debug, info, warning, error, panic, fatal")
	flagRole = flagSet.String("role", RoleAll, "Process role: all, api (enqueue only, needs kafka) or worker (consume only, needs kafka)")
	flagStorage = flagSet.String("storage", "", "Storage engine: mongo or memory")
	flagMongoURI = flagSet.String("mongo-uri", "", "MongoDB URI")
	flagMongoDB = flagSet.String("mongo-db", "", "MongoDB database name")
	flagLocker = flagSet.String("locker", "", "Summary locker: dblocker, inmemory or noop")
	flagBasePath = flagSet.String("base-path", "", "Root directory of the build logs tree")
	flagWorkers = flagSet.Int("workers", 0, "Number of parsing workers")
	flagKafkaBrokers = flagSet.StringSlice("kafka-brokers", nil, "Kafka brokers; tasks go through Kafka when set")
	flagTLSCert = flagSet.String("tls-cert", "", "Path to the tls cert file")
	flagTLSKey = flagSet.String("tls-key", "", "Path to the tls key file")
}

// loadConfig reads the configuration file and applies the flags that
// were explicitly set.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*flagConfig)
	if err != nil {
		return cfg, err
	}
	set := func(name string, apply func()) {
		if flagSet.Changed(name) {
			apply()
		}
	}
	set("listen", func() { cfg.ListenAddr = *flagListen })
	set("log-level", func() { cfg.LogLevel = *flagLogLevel })
	set("storage", func() { cfg.Storage = *flagStorage })
	set("mongo-uri", func() { cfg.MongoURI = *flagMongoURI })
	set("mongo-db", func() { cfg.MongoDB = *flagMongoDB })
	set("locker", func() { cfg.Locker = *flagLocker })
	set("base-path", func() { cfg.BasePath = *flagBasePath })
	set("workers", func() { cfg.Workers = *flagWorkers })
	set("kafka-brokers", func() { cfg.KafkaBrokers = *flagKafkaBrokers })
	return cfg, cfg.Validate()
}

func newStorage(ctx context.Context, cfg config.Config) (storage.Store, *mongo.Storage, error) {
	if cfg.Storage == config.StorageMemory {
		logging.Warnf(ctx, "Using in-memory storage, results are lost on exit")
		return memory.New(), nil, nil
	}
	stor, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to %s: %w", cfg.MongoURI, err)
	}
	if err := stor.EnsureIndexes(ctx, indexes()); err != nil {
		logging.Warnf(ctx, "%v", err)
	}
	return stor, stor, nil
}

func newLocker(cfg config.Config, db *mongo.Storage) lock.Locker {
	switch cfg.Locker {
	case config.LockerDB:
		return dblocker.New(db.Database(), cfg.LockTTL)
	case config.LockerNoop:
		return noop.New()
	default:
		return inmemory.New(cfg.LockTTL)
	}
}

// Main runs the service until a signal is received.
func Main(cmd string, args []string, sigs <-chan os.Signal) error {
	initFlags(cmd)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	role := *flagRole
	switch role {
	case RoleAll:
	case RoleAPI, RoleWorker:
		if len(cfg.KafkaBrokers) == 0 {
			return fmt.Errorf("role %s requires kafka brokers", role)
		}
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	logLevel, err := types.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(logging.WithBelt(context.Background(), logLevel))
	defer beltctx.Flush(ctx)
	defer cancel()
	go func() {
		select {
		case sig, ok := <-sigs:
			if ok {
				logging.Infof(ctx, "Received %v, shutting down", sig)
			}
		case <-ctx.Done():
		}
		cancel()
	}()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	storageCtx, storageCancel := context.WithTimeout(ctx, 10*time.Second)
	stor, db, err := newStorage(storageCtx, cfg)
	storageCancel()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := stor.Close(closeCtx); err != nil {
			logging.Warnf(ctx, "Error closing storage: %v", err)
		}
	}()

	opts, err := cfg.ParserOptions()
	if err != nil {
		return err
	}
	locker := newLocker(cfg, db)
	defer locker.Close()
	parser := logparser.New(stor, locker, append(opts, logparser.OptionMetrics(m))...)

	var queue taskqueue.Queue
	var pool *taskqueue.Pool
	if role != RoleAPI {
		pool = taskqueue.NewPool(cfg.Workers, cfg.QueueSize, taskqueue.PoolMetrics(m))
		taskqueue.RegisterParserTasks(pool, parser)
		pool.Start(ctx)
		defer pool.Close()
		queue = pool
	}

	errCh := make(chan error, 2)
	if len(cfg.KafkaBrokers) > 0 {
		if role != RoleWorker {
			producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
			if err != nil {
				return err
			}
			defer producer.Close()
			queue = producer
		}
		if role != RoleAPI {
			consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup)
			if err != nil {
				return err
			}
			defer consumer.Close()
			go func() {
				errCh <- consumer.Consume(ctx, func(ctx context.Context, t taskqueue.Task) error {
					return taskqueue.EnqueueWait(ctx, pool, t, 100*time.Millisecond)
				})
			}()
		}
	}
	if role == RoleWorker {
		// workers expose status and metrics only
		queue = nil
	}

	tlsConfig, err := loadTLS(*flagTLSCert, *flagTLSKey)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	rh := RouteHandler{queue: queue, reader: parser}
	router := initRouter(ctx, rh, reg)
	go func() {
		errCh <- Serve(ctx, cfg.ListenAddr, router, tlsConfig)
	}()

	err = <-errCh
	cancel()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func loadTLS(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// Serve runs the HTTP server until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, tlsConfig *tls.Config) error {
	server := &http.Server{
		Addr:      addr,
		Handler:   handler,
		TLSConfig: tlsConfig,
	}

	go func() {
		<-ctx.Done()
		// on cancel close the server
		logging.Debugf(ctx, "Closing the server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Errorf(ctx, "Error closing the server: %v", err)
		}
	}()

	logging.Infof(ctx, "Serving on %s", addr)
	var err error
	if tlsConfig != nil {
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
