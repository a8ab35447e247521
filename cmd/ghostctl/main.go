// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/GhostControl/cmd/ghostctl/config"
	"github.com/AleutianAI/GhostControl/pkg/logging"
)

// logger is the process-wide structured logger, initialized from config
// in the persistent pre-run.
var logger = logging.Default()

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	preRun := rootCmd.PersistentPreRun
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := config.Load(); err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
		logger = logging.New(logging.Config{
			Level:   logging.ParseLevel(config.Global.LogLevel),
			LogDir:  config.Global.LogDir,
			Service: "ghostctl",
		})
		if traceEnabled {
			if err := initTracing(); err != nil {
				logger.Warn("tracing disabled", "error", err)
			}
		}
		if preRun != nil {
			preRun(cmd, args)
		}
	}
}

// exit closes the logger before terminating with the given code.
func exit(code int) {
	shutdownTracing()
	logger.Close()
	os.Exit(code)
}
