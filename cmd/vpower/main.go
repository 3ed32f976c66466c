package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/vpower/pkg/pd"
	"github.com/charlie0129/vpower/pkg/telemetry"
)

var (
	logLevel        = "info"
	configPath      = "/etc/vpower.toml"
	powerSupplyRoot = telemetry.DefaultPowerSupplyRoot
	hwmonRoot       = pd.DefaultHwmonRoot
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
		gInstallation,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vpower",
		Short: "vpower publishes battery and charger status and shuts down on critical battery",
		Long: `vpower publishes battery and charger status and shuts down on critical battery.

The daemon reads the kernel power supply nodes and the USB-PD sensor once per
second, writes the derived values to a state directory, and powers the
machine off when the battery drops below the configured threshold while no
charger is connected.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&powerSupplyRoot, "power-supply-root", powerSupplyRoot, "directory listing the kernel power supplies")
	globalFlags.StringVar(&hwmonRoot, "hwmon-root", hwmonRoot, "directory listing the hwmon sensors")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewProbeCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
