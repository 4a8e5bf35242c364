// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joystream/colossus/pkg/node"
	"github.com/spf13/cobra"
)

func (c *command) initSyncCmd() (err error) {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := newLogger(cmd, c.config.GetString(optionNameVerbosity))
			if err != nil {
				return err
			}

			o := c.nodeOptions()
			if o.WorkerID < 0 {
				return errWorkerIDRequired
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := node.RunSyncCycle(ctx, o, logger)
			if err != nil {
				return err
			}

			cmd.Printf("added %d, deleted %d in %s\n", res.Added, res.Deleted, res.Duration)
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	c.setSyncFlags(cmd)

	c.root.AddCommand(cmd)
	return nil
}
