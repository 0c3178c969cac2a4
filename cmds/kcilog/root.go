// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger/types"
	"github.com/spf13/cobra"

	"github.com/kernelci/logparser/pkg/config"
	"github.com/kernelci/logparser/pkg/lock"
	"github.com/kernelci/logparser/pkg/logging"
	"github.com/kernelci/logparser/pkg/logparser"
	"github.com/kernelci/logparser/pkg/storage"
	"github.com/kernelci/logparser/plugins/locker/dblocker"
	"github.com/kernelci/logparser/plugins/locker/inmemory"
	"github.com/kernelci/logparser/plugins/storage/memory"
	"github.com/kernelci/logparser/plugins/storage/mongo"
)

type globalFlags struct {
	config   string
	logLevel string
	storage  string
	mongoURI string
	mongoDB  string
	basePath string
}

// env holds what a command needs to run against the configured backend.
type env struct {
	cfg    config.Config
	store  storage.Store
	locker lock.Locker
	parser *logparser.Parser
}

func (e *env) Close(ctx context.Context) {
	_ = e.locker.Close()
	if err := e.store.Close(ctx); err != nil {
		logging.Warnf(ctx, "Error closing storage: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "kcilog",
		Short:         "Extract errors, warnings and mismatches from kernel build logs",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := types.ParseLogLevel(g.logLevel)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(logging.WithBeltWriter(ctx, cmd.ErrOrStderr(), level))
			return nil
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&g.config, "config", "", "Path to a YAML configuration file")
	f.StringVar(&g.logLevel, "log-level", "warning", "Log level")
	f.StringVar(&g.storage, "storage", config.StorageMemory, "Storage engine: mongo or memory")
	f.StringVar(&g.mongoURI, "mongo-uri", "", "MongoDB URI")
	f.StringVar(&g.mongoDB, "mongo-db", "", "MongoDB database name")
	f.StringVar(&g.basePath, "base-path", "", "Root directory of the build logs tree")

	root.AddCommand(newClassifyCmd(&g))
	root.AddCommand(newParseCmd(&g))
	root.AddCommand(newParseBuildCmd(&g))
	root.AddCommand(newSummaryCmd(&g))
	return root
}

func loadConfig(cmd *cobra.Command, g *globalFlags) (config.Config, error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if g.config == "" || flags.Changed("storage") {
		cfg.Storage = g.storage
	}
	if flags.Changed("mongo-uri") {
		cfg.MongoURI = g.mongoURI
	}
	if flags.Changed("mongo-db") {
		cfg.MongoDB = g.mongoDB
	}
	if flags.Changed("base-path") {
		cfg.BasePath = g.basePath
	}
	if cfg.Storage == config.StorageMemory && cfg.Locker == config.LockerDB {
		cfg.Locker = config.LockerInMemory
	}
	return cfg, cfg.Validate()
}

func newEnv(cmd *cobra.Command, g *globalFlags) (*env, error) {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	e := &env{cfg: cfg}
	switch cfg.Storage {
	case config.StorageMongo:
		stor, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("could not connect to %s: %w", cfg.MongoURI, err)
		}
		e.store = stor
		if cfg.Locker == config.LockerDB {
			e.locker = dblocker.New(stor.Database(), cfg.LockTTL)
		}
	default:
		e.store = memory.New()
	}
	if e.locker == nil {
		e.locker = inmemory.New(cfg.LockTTL)
	}
	opts, err := cfg.ParserOptions()
	if err != nil {
		e.Close(ctx)
		return nil, err
	}
	e.parser = logparser.New(e.store, e.locker, opts...)
	return e, nil
}

// printSummary writes the stored summary of job/kernel to w.
func printSummary(ctx context.Context, w io.Writer, p *logparser.Parser, job, kernel string) error {
	s, err := p.FindSummary(ctx, job, kernel)
	if err != nil {
		return fmt.Errorf("no summary for %s/%s: %w", job, kernel, err)
	}
	return logparser.WriteSummary(w, s)
}

func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(args[0])
}
