package telemetry

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vpower/pkg/pd"
)

// Reader reads Raw telemetry from a sysfs battery node, an optional AC node
// and a PD probe.
//
// A Reader is not safe for concurrent use. It remembers which paths it
// already reported as missing so each one is logged only once.
type Reader struct {
	batteryDir string
	acDir      string
	probe      pd.Probe

	warned map[string]struct{}
}

// NewReader returns a Reader. acDir may be empty when the system has no AC
// node, and probe may be nil when there is no PD controller.
func NewReader(batteryDir, acDir string, probe pd.Probe) *Reader {
	if probe == nil {
		probe = pd.None{}
	}
	return &Reader{
		batteryDir: batteryDir,
		acDir:      acDir,
		probe:      probe,
		warned:     make(map[string]struct{}),
	}
}

// Read takes one snapshot. It never fails; whatever cannot be read is left
// nil.
func (r *Reader) Read() Raw {
	var raw Raw

	full, now := "charge_full", "charge_now"
	if !r.exists(r.batteryDir, "charge_full") && r.exists(r.batteryDir, "energy_full") {
		full, now = "energy_full", "energy_now"
	}
	raw.ChargeFull = r.readFloat(r.batteryDir, full)
	raw.ChargeNow = r.readFloat(r.batteryDir, now)

	if !r.exists(r.batteryDir, "current_now") && r.exists(r.batteryDir, "power_now") {
		raw.PowerNow = r.readFloat(r.batteryDir, "power_now")
	} else {
		raw.CurrentNow = r.readFloat(r.batteryDir, "current_now")
	}

	raw.VoltageNow = r.readFloat(r.batteryDir, "voltage_now")
	raw.VoltageMinDesign = r.readFloat(r.batteryDir, "voltage_min_design")
	raw.Status = r.readString(r.batteryDir, "status")

	if r.acDir != "" {
		raw.ACOnline = r.readString(r.acDir, "online")
	}

	if v, ok := r.probe.ContractStatus(); ok {
		raw.PDContractStatus = &v
	}
	raw.PDVoltage = finite(r.probe.Voltage())
	raw.PDCurrent = finite(r.probe.Current())

	return raw
}

func (r *Reader) exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func (r *Reader) readString(dir, name string) *string {
	s, err := readString(filepath.Join(dir, name))
	if err != nil {
		r.report(err)
		return nil
	}
	return &s
}

func (r *Reader) readFloat(dir, name string) *float64 {
	v, err := readFloat(filepath.Join(dir, name))
	if err != nil {
		r.report(err)
		return nil
	}
	return &v
}

// report logs a failed read. Missing paths are logged once per Reader,
// malformed values every time.
func (r *Reader) report(err error) {
	var rerr *ReadError
	if !errors.As(err, &rerr) {
		logrus.WithError(err).Warn("telemetry read failed")
		return
	}

	if errors.Is(err, ErrMissing) {
		if _, ok := r.warned[rerr.Path]; ok {
			logrus.WithError(err).Trace("telemetry still missing")
			return
		}
		r.warned[rerr.Path] = struct{}{}
	}

	logrus.WithError(rerr.Err).WithFields(logrus.Fields{
		"path": rerr.Path,
		"kind": rerr.Kind.Error(),
	}).Warn("telemetry unavailable")
}

func readString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", &ReadError{Path: path, Kind: ErrMissing, Err: err}
	}
	return strings.TrimSpace(string(b)), nil
}

func readFloat(path string) (float64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ReadError{Path: path, Kind: ErrMalformed, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ReadError{Path: path, Kind: ErrMalformed, Err: pkgerrors.Errorf("%s is not finite", s)}
	}

	return v, nil
}

func finite(v float64, ok bool) *float64 {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
