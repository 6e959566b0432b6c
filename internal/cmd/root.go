/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package cmd wires the antengine binary's cobra CLI (spec §6: the core exposes no CLI
// of its own; an external loader populates a config.Config and starts the engine — this
// package is that external loader).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// workerFDEnv is the contract between a supervisor process and the worker it execs: its
// own binary, re-invoked with this variable set to an inherited command-channel fd
// (supervisor.childFDEnv names the same variable on the spawning side).
const workerFDEnv = "ANTENGINE_WORKER_FD"

var configPathFlag string

// NewRootCmd builds the antengine root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "antengine",
		Short:         "AntEngine: a single-threaded event-loop application server runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPathFlag, "config", "", "path to the engine config file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute is the antengine binary's single entry point. Before any cobra flag parsing
// happens, it checks workerFDEnv: a process spawned by supervisor.Supervisor carries no
// CLI arguments of its own, only that inherited environment variable, so the worker path
// short-circuits here rather than going through a cobra subcommand.
func Execute() error {
	if fd := os.Getenv(workerFDEnv); fd != "" {
		return runWorker(fd)
	}
	return NewRootCmd().Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the antengine version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

// version is overridden at build time via -ldflags "-X ...cmd.version=...".
var version = "dev"
