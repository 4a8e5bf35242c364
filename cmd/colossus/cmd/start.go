// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joystream/colossus"
	"github.com/joystream/colossus/pkg/node"
	"github.com/spf13/cobra"
)

func (c *command) initStartCmd() (err error) {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a storage node",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := newLogger(cmd, c.config.GetString(optionNameVerbosity))
			if err != nil {
				return err
			}

			o := c.nodeOptions()
			o.SyncEnabled = c.config.GetBool(optionNameSync)
			o.SyncInterval = time.Duration(c.config.GetInt(optionNameSyncInterval)) * time.Minute
			o.APIAddr = c.config.GetString(optionNameAPIAddr)
			if c.config.GetBool(optionNameDebugAPIEnable) {
				o.DebugAPIAddr = c.config.GetString(optionNameDebugAPIAddr)
			}
			if o.SyncEnabled && o.WorkerID < 0 {
				return errWorkerIDRequired
			}

			logger.Infof("version: %v", colossus.Version)

			b, err := node.NewColossus(o, logger)
			if err != nil {
				return err
			}

			// Wait for termination or interrupt signals.
			// We want to clean up things at the end.
			interruptChannel := make(chan os.Signal, 1)
			signal.Notify(interruptChannel, syscall.SIGINT, syscall.SIGTERM)

			// Block main goroutine until it is interrupted
			sig := <-interruptChannel

			logger.Debugf("received signal: %v", sig)
			logger.Info("shutting down")

			// Shutdown
			done := make(chan struct{})
			go func() {
				defer close(done)

				if err := b.Shutdown(); err != nil {
					logger.Errorf("shutdown: %v", err)
				}
			}()

			// If shutdown function is blocking too long,
			// allow process termination by receiving another signal.
			select {
			case sig := <-interruptChannel:
				logger.Debugf("received signal: %v", sig)
			case <-done:
			}

			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	c.setSyncFlags(cmd)
	cmd.Flags().Bool(optionNameSync, true, "periodically synchronize data objects with the storage obligations")
	cmd.Flags().Int(optionNameSyncInterval, 1, "interval between sync cycles in minutes")
	cmd.Flags().String(optionNameAPIAddr, ":3333", "HTTP API listen address")
	cmd.Flags().Bool(optionNameDebugAPIEnable, false, "enable debug HTTP API")
	cmd.Flags().String(optionNameDebugAPIAddr, ":3334", "debug HTTP API listen address")

	c.root.AddCommand(cmd)
	return nil
}
