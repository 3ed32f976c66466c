package main

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/vpower/pkg/daemon"
	"github.com/charlie0129/vpower/pkg/shutdown"
	"github.com/charlie0129/vpower/pkg/version"
)

var envFile = daemon.DefaultEnvFile

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run vpower daemon in the foreground",
		GroupID: gAdvanced,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("vpower daemon starting")
			err := daemon.Run(configPath, daemon.Options{
				PowerSupplyRoot: powerSupplyRoot,
				HwmonRoot:       hwmonRoot,
				EnvFile:         envFile,
			})
			if errors.Is(err, shutdown.ErrShutdownCommandFailed) {
				logrus.Fatal(err)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", envFile, "file with VPOWER_MQTT_USERNAME and VPOWER_MQTT_PASSWORD")

	return cmd
}

// NewVersionCommand .
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}
