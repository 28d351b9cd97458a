// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"github.com/spf13/cobra"

	"github.com/rapidaai/recorder/api/recorder-api/config"
	"github.com/rapidaai/recorder/pkg/commons"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "recorder",
		Short:         "Synchronized audio and video recording service",
		Long:          "Records a video track and an audio track against one session clock, so both files line up on playback.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewSimulateCmd())
	return rootCmd
}

// loadConfig reads the environment file and variables into the application config.
func loadConfig() (*config.AppConfig, error) {
	v, err := config.InitConfig()
	if err != nil {
		return nil, err
	}
	return config.GetApplicationConfig(v)
}

func newLogger(cfg *config.AppConfig) (commons.Logger, error) {
	return commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Path(cfg.LogPath),
		commons.Level(cfg.LogLevel),
		commons.Console(true),
	)
}
