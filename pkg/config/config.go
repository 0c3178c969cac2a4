// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package config holds the service configuration. Values come from
// Default, optionally overlaid by a YAML file, then by command line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kernelci/logparser/pkg/logparser"
	"github.com/kernelci/logparser/pkg/patterns"
)

// Locker engines.
const (
	LockerInMemory = "inmemory"
	LockerDB       = "dblocker"
	LockerNoop     = "noop"
)

// Storage engines.
const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	Storage  string `yaml:"storage"`
	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`

	Locker   string        `yaml:"locker"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	LockWait time.Duration `yaml:"lock_wait"`

	BasePath       string `yaml:"base_path"`
	BuildLogFile   string `yaml:"build_log_file"`
	ErrorsFile     string `yaml:"errors_file"`
	WarningsFile   string `yaml:"warnings_file"`
	MismatchesFile string `yaml:"mismatches_file"`
	SummaryFile    string `yaml:"summary_file"`

	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroup   string   `yaml:"kafka_group"`

	Patterns patterns.Set `yaml:"patterns"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddr:     ":8080",
		LogLevel:       "info",
		Storage:        StorageMongo,
		MongoURI:       "mongodb://localhost:27017",
		MongoDB:        "kernel-ci",
		Locker:         LockerDB,
		LockTTL:        5 * time.Second,
		LockWait:       logparser.DefaultLockWait,
		BasePath:       logparser.DefaultBasePath,
		BuildLogFile:   logparser.DefaultBuildLogFile,
		ErrorsFile:     logparser.DefaultErrorsFile,
		WarningsFile:   logparser.DefaultWarningsFile,
		MismatchesFile: logparser.DefaultMismatchesFile,
		SummaryFile:    logparser.DefaultSummaryFile,
		Workers:        4,
		QueueSize:      256,
		KafkaTopic:     "kernelci.build-logs",
		KafkaGroup:     "logparser",
		Patterns:       patterns.DefaultSet(),
	}
}

// Load returns Default overlaid with the YAML file at path. An empty path
// returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative, got %d", c.QueueSize)
	}
	if c.LockWait < 0 || c.LockTTL <= 0 {
		return fmt.Errorf("invalid lock timings: ttl %v, wait %v", c.LockTTL, c.LockWait)
	}
	switch c.Locker {
	case LockerInMemory, LockerDB, LockerNoop:
	default:
		return fmt.Errorf("unknown locker %q", c.Locker)
	}
	switch c.Storage {
	case StorageMongo, StorageMemory:
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	if c.Locker == LockerDB && c.Storage != StorageMongo {
		return fmt.Errorf("locker %s requires storage %s", LockerDB, StorageMongo)
	}
	if _, err := patterns.New(c.Patterns); err != nil {
		return err
	}
	return nil
}

// ParserOptions translates the configuration into logparser options.
func (c Config) ParserOptions() ([]logparser.Option, error) {
	cl, err := patterns.New(c.Patterns)
	if err != nil {
		return nil, err
	}
	return []logparser.Option{
		logparser.OptionClassifier(cl),
		logparser.OptionBasePath(c.BasePath),
		logparser.OptionBuildLogFile(c.BuildLogFile),
		logparser.OptionSideFiles(logparser.SideFiles{
			Errors:     c.ErrorsFile,
			Warnings:   c.WarningsFile,
			Mismatches: c.MismatchesFile,
		}),
		logparser.OptionSummaryFile(c.SummaryFile),
		logparser.OptionLockWait(c.LockWait),
	}, nil
}
