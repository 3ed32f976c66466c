package main

import (
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/vpower/pkg/config"
	"github.com/charlie0129/vpower/pkg/publish"
)

var statusLabels = map[string]string{
	publish.KeyACStatus:          "AC",
	publish.KeyBatteryPercent:    "Battery",
	publish.KeyBatteryStatus:     "State",
	publish.KeySecsUntilFull:     "Seconds until full",
	publish.KeySecsUntilShutdown: "Seconds until shutdown request",
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Print the values published by the daemon",
		Long: `Print the values the daemon last published to its state directory, and the
shutdown configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := config.NewFile(configPath)
			dir := publish.NewDir(conf.StateDir())

			cmd.Println(bold("Power status:"))
			found := false
			for _, key := range publish.Keys {
				v, ok, err := dir.Read(key)
				if err != nil {
					return err
				}
				if !ok {
					cmd.Printf("  %s: %s\n", statusLabels[key], color.YellowString("unknown"))
					continue
				}
				found = true
				cmd.Printf("  %s: %s\n", statusLabels[key], colorize(key, strings.TrimSpace(v)))
			}
			if !found {
				cmd.Printf("    Nothing published in %s. Is the daemon running?\n", dir.Path())
			}

			cmd.Println()

			cmd.Println(bold("Shutdown configuration:"))
			cmd.Printf("  Threshold: %s\n", bold("%g%%", conf.ShutdownBatteryPercent()))
			cmd.Printf("  Grace period: %s\n", bold("%s", conf.ShutdownGracePeriod()))
			cmd.Printf("  Command: %s\n", bold("%s", strings.Join(conf.ShutdownCommand(), " ")))
			cmd.Printf("  MQTT mirror: %s\n", bool2Text(conf.MQTT().Enabled()))
			return nil
		},
	}
}

func colorize(key, value string) string {
	switch key {
	case publish.KeyACStatus:
		switch value {
		case "Connected":
			return color.New(color.Bold, color.FgGreen).Sprint(value)
		case "Connected slow":
			return color.New(color.Bold, color.FgYellow).Sprint(value)
		case "Disconnected":
			return color.New(color.Bold, color.FgRed).Sprint(value)
		}
	case publish.KeyBatteryStatus:
		switch value {
		case "Charging":
			return color.GreenString(value)
		case "Discharging":
			return color.RedString(value)
		}
	case publish.KeyBatteryPercent:
		return bold("%s%%", value)
	}
	return bold("%s", value)
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
