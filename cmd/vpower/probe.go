package main

import (
	"strconv"

	"github.com/distatus/battery"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/vpower/pkg/config"
	"github.com/charlie0129/vpower/pkg/daemon"
	"github.com/charlie0129/vpower/pkg/pd"
	"github.com/charlie0129/vpower/pkg/powerstate"
	"github.com/charlie0129/vpower/pkg/publish"
	"github.com/charlie0129/vpower/pkg/telemetry"
)

// NewProbeCommand .
func NewProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "probe",
		GroupID: gAdvanced,
		Short:   "Read the hardware once and print what the daemon would publish",
		Long: `Read the battery, AC adapter and PD sensor once, print the raw readings and
the values the daemon would derive from them, without publishing anything or
shutting down.

The kernel's own view of the batteries is printed for comparison.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := config.NewFile(configPath)

			batteryDir, err := telemetry.FindBattery(powerSupplyRoot)
			if err != nil {
				return err
			}
			acDir, err := telemetry.FindAC(powerSupplyRoot)
			if err != nil {
				logrus.Warn(err)
				acDir = ""
			}
			telemetry.CheckLayout(batteryDir)

			var probe pd.Probe = pd.None{}
			h := pd.NewHwmon(hwmonRoot)
			if err := h.Open(); err != nil {
				logrus.Info(err)
			} else {
				probe = h
			}
			defer func() { _ = probe.Close() }()

			raw := telemetry.NewReader(batteryDir, acDir, probe).Read()
			d := powerstate.Infer(raw, powerstate.Previous{}, powerstate.Params{
				ShutdownBatteryPercent: conf.ShutdownBatteryPercent(),
			})

			if info, err := host.Info(); err == nil {
				cmd.Printf("%s %s (%s %s)\n\n", bold("Host:"), info.Hostname, info.Platform, info.PlatformVersion)
			}

			cmd.Println(bold("Raw readings:"))
			cmd.Printf("  Battery: %s\n", batteryDir)
			cmd.Printf("  AC adapter: %s\n", optString(&acDir))
			cmd.Printf("  charge_full: %s\n", optFloat(raw.ChargeFull))
			cmd.Printf("  charge_now: %s\n", optFloat(raw.ChargeNow))
			cmd.Printf("  current_now: %s\n", optFloat(raw.CurrentNow))
			cmd.Printf("  power_now: %s\n", optFloat(raw.PowerNow))
			cmd.Printf("  voltage_now: %s\n", optFloat(raw.VoltageNow))
			cmd.Printf("  voltage_min_design: %s\n", optFloat(raw.VoltageMinDesign))
			cmd.Printf("  status: %s\n", optString(raw.Status))
			cmd.Printf("  online: %s\n", optString(raw.ACOnline))
			if raw.PDContractStatus != nil {
				cmd.Printf("  PD contract status: %#02x\n", *raw.PDContractStatus)
			} else {
				cmd.Println("  PD contract status: -")
			}
			cmd.Printf("  PD voltage: %s V\n", optFloat(raw.PDVoltage))
			cmd.Printf("  PD current: %s A\n", optFloat(raw.PDCurrent))

			cmd.Println()

			cmd.Println(bold("Derived values:"))
			values := daemon.Format(d)
			for _, key := range publish.Keys {
				v, ok := values[key]
				if !ok {
					v = "-"
				}
				cmd.Printf("  %s: %s\n", key, bold("%s", v))
			}
			cmd.Printf("  shutdown due: %s\n", bool2Text(d.ShutdownDue))

			cmd.Println()

			cmd.Println(bold("Kernel battery view:"))
			batteries, err := battery.GetAll()
			if err != nil {
				cmd.Printf("  %v\n", err)
			}
			for i, bat := range batteries {
				if bat == nil {
					continue
				}
				cmd.Printf("  #%d: %v, %.0f/%.0f mWh, %.0f mW, %.2f V\n",
					i, bat.State, bat.Current, bat.Full, bat.ChargeRate, bat.Voltage)
			}

			return nil
		},
	}
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optString(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}
