// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joystream/colossus/pkg/logging"
	"github.com/joystream/colossus/pkg/node"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	optionNameWorkerID           = "worker-id"
	optionNameUploadsDir         = "uploads-dir"
	optionNameTempDirName        = "temp-dir-name"
	optionNameQueryNodeEndpoint  = "query-node-endpoint"
	optionNameQueryPageSize      = "query-page-size"
	optionNameSync               = "sync"
	optionNameSyncInterval       = "sync-interval"
	optionNameSyncWorkers        = "sync-workers"
	optionNameOperatorURL        = "operator-url"
	optionNameAPIAddr            = "api-addr"
	optionNameDebugAPIEnable     = "debug-api-enable"
	optionNameDebugAPIAddr       = "debug-api-addr"
	optionNameVerbosity          = "verbosity"
	optionNameProbeTimeout       = "probe-timeout"
	optionNameDownloadTimeout    = "download-timeout"
	optionNameAvailabilityTTL    = "availability-ttl"
	optionNameTracingEnabled     = "tracing-enable"
	optionNameTracingEndpoint    = "tracing-endpoint"
	optionNameTracingServiceName = "tracing-service-name"
)

var errWorkerIDRequired = errors.New("worker-id is required to sync")

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root    *cobra.Command
	config  *viper.Viper
	cfgFile string
	homeDir string
}

type option func(*command)

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "colossus",
			Short:         "Joystream storage node",
			SilenceErrors: true,
			SilenceUsage:  true,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return c.initConfig()
			},
		},
	}

	for _, o := range opts {
		o(c)
	}

	// Find home directory.
	if err := c.setHomeDir(); err != nil {
		return nil, err
	}

	c.initGlobalFlags()

	if err := c.initStartCmd(); err != nil {
		return nil, err
	}

	if err := c.initSyncCmd(); err != nil {
		return nil, err
	}

	c.initVersionCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

func (c *command) initGlobalFlags() {
	globalFlags := c.root.PersistentFlags()
	globalFlags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.colossus.yaml)")
}

func (c *command) initConfig() (err error) {
	config := viper.New()
	configName := ".colossus"
	if c.cfgFile != "" {
		// Use config file from the flag.
		config.SetConfigFile(c.cfgFile)
	} else {
		// Search config in home directory with name ".colossus" (without extension).
		config.AddConfigPath(c.homeDir)
		config.SetConfigName(configName)
	}

	// Environment
	config.SetEnvPrefix("colossus")
	config.AutomaticEnv() // read in environment variables that match
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if c.homeDir != "" && c.cfgFile == "" {
		c.cfgFile = filepath.Join(c.homeDir, configName+".yaml")
	}

	// If a config file is found, read it in.
	if err := config.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return err
		}
	}
	c.config = config
	return nil
}

func (c *command) setHomeDir() (err error) {
	if c.homeDir != "" {
		return
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	c.homeDir = dir
	return nil
}

// setSyncFlags defines the flags shared by the commands that synchronize.
func (c *command) setSyncFlags(cmd *cobra.Command) {
	cmd.Flags().Int(optionNameWorkerID, -1, "storage provider worker id")
	cmd.Flags().String(optionNameUploadsDir, filepath.Join(c.homeDir, ".colossus", "uploads"), "directory that holds the data objects")
	cmd.Flags().String(optionNameTempDirName, "temp", "name of the directory for incomplete files inside the uploads directory")
	cmd.Flags().String(optionNameQueryNodeEndpoint, "http://localhost:8081/graphql", "query node GraphQL endpoint")
	cmd.Flags().Int(optionNameQueryPageSize, 1000, "number of entities requested per query node page")
	cmd.Flags().Int(optionNameSyncWorkers, 20, "number of concurrent sync tasks")
	cmd.Flags().String(optionNameOperatorURL, "", "fetch every missing data object from this operator instead of the bucket operators")
	cmd.Flags().Duration(optionNameProbeTimeout, 2*time.Minute, "timeout of an operator availability request")
	cmd.Flags().Duration(optionNameDownloadTimeout, 30*time.Minute, "timeout of a data object download")
	cmd.Flags().Duration(optionNameAvailabilityTTL, 5*time.Minute, "how long operator listings and failures are cached")
	cmd.Flags().Bool(optionNameTracingEnabled, false, "enable tracing")
	cmd.Flags().String(optionNameTracingEndpoint, "127.0.0.1:6831", "endpoint to send tracing data")
	cmd.Flags().String(optionNameTracingServiceName, "colossus", "service name identifier for tracing")
	cmd.Flags().String(optionNameVerbosity, "info", "log verbosity level 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
}

func (c *command) nodeOptions() node.Options {
	return node.Options{
		WorkerID:           c.config.GetInt(optionNameWorkerID),
		UploadDir:          c.config.GetString(optionNameUploadsDir),
		TempDirName:        c.config.GetString(optionNameTempDirName),
		QueryNodeEndpoint:  c.config.GetString(optionNameQueryNodeEndpoint),
		QueryPageSize:      c.config.GetInt(optionNameQueryPageSize),
		SyncWorkers:        c.config.GetInt(optionNameSyncWorkers),
		OperatorURL:        c.config.GetString(optionNameOperatorURL),
		ProbeTimeout:       c.config.GetDuration(optionNameProbeTimeout),
		DownloadTimeout:    c.config.GetDuration(optionNameDownloadTimeout),
		AvailabilityTTL:    c.config.GetDuration(optionNameAvailabilityTTL),
		TracingEnabled:     c.config.GetBool(optionNameTracingEnabled),
		TracingEndpoint:    c.config.GetString(optionNameTracingEndpoint),
		TracingServiceName: c.config.GetString(optionNameTracingServiceName),
	}
}

func newLogger(cmd *cobra.Command, verbosity string) (logging.Logger, error) {
	level, silent, err := logging.ParseVerbosity(verbosity)
	if err != nil {
		return nil, err
	}
	if silent {
		return logging.New(ioutil.Discard, level), nil
	}
	return logging.New(cmd.OutOrStdout(), level), nil
}
