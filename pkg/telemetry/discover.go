package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultPowerSupplyRoot is where the kernel lists power supplies.
const DefaultPowerSupplyRoot = "/sys/class/power_supply"

// maxBatteryIndex bounds the BATn names probed by FindBattery.
const maxBatteryIndex = 8

// FindAC returns the first power supply under root whose type is Mains.
func FindAC(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to list %s", root)
	}

	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		if supplyTypeContains(dir, "Mains") {
			return dir, nil
		}
	}

	return "", pkgerrors.Wrapf(ErrNotFound, "no Mains power supply in %s", root)
}

// FindBattery returns the first of BAT0..BAT8 under root whose type is
// Battery.
func FindBattery(root string) (string, error) {
	for i := 0; i <= maxBatteryIndex; i++ {
		dir := filepath.Join(root, fmt.Sprintf("BAT%d", i))
		if supplyTypeContains(dir, "Battery") {
			return dir, nil
		}
	}

	return "", pkgerrors.Wrapf(ErrNotFound, "no battery in %s", root)
}

func supplyTypeContains(dir, want string) bool {
	b, err := os.ReadFile(filepath.Join(dir, "type"))
	if err != nil {
		return false
	}
	return strings.Contains(string(b), want)
}

// CheckLayout logs which files of a battery node are missing and which
// naming scheme will be used. It does not change how Reader behaves.
func CheckLayout(batteryDir string) {
	for _, name := range []string{"status", "voltage_min_design", "voltage_now"} {
		p := filepath.Join(batteryDir, name)
		if _, err := os.Stat(p); err != nil {
			logrus.WithField("path", p).Warn("missing expected file")
		}
	}

	checkAlternates(batteryDir, [][2]string{
		{"charge_full", "energy_full"},
		{"charge_now", "energy_now"},
		{"current_now", "power_now"},
	})
}

func checkAlternates(batteryDir string, pairs [][2]string) {
	for _, pair := range pairs {
		primary := filepath.Join(batteryDir, pair[0])
		alternate := filepath.Join(batteryDir, pair[1])

		if _, err := os.Stat(primary); err == nil {
			continue
		}
		if _, err := os.Stat(alternate); err != nil {
			logrus.WithFields(logrus.Fields{
				"path":      primary,
				"alternate": alternate,
			}).Warn("missing expected files")
			continue
		}
		logrus.Infof("using %s instead of %s", alternate, pair[0])
	}
}
