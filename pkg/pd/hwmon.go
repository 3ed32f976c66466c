package pd

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultHwmonRoot is where the kernel lists hwmon chips.
	DefaultHwmonRoot = "/sys/class/hwmon"
	// ChipName is the hwmon chip of the embedded controller that exposes
	// the PD contract.
	ChipName = "jupiter"

	// Firmware up to and including this version reports a bogus contract
	// voltage.
	lastBadVoltageFirmware = 45096
)

// ErrChipNotFound is returned by Open when no hwmon chip with the expected
// name exists.
var ErrChipNotFound = pkgerrors.New("pd hwmon chip not found")

var _ Probe = &Hwmon{}

// Hwmon is a Probe backed by the hwmon sysfs interface of the embedded
// controller. The voltage and current inputs are held open between Open
// and Close.
type Hwmon struct {
	root string
	name string

	dir     string
	voltage *os.File
	current *os.File
}

// NewHwmon returns a Hwmon looking for ChipName under root. Call Open
// before reading.
func NewHwmon(root string) *Hwmon {
	if root == "" {
		root = DefaultHwmonRoot
	}
	return &Hwmon{
		root: root,
		name: ChipName,
	}
}

// Open locates the chip and opens its inputs. A chip without voltage or
// current inputs is not an error, those reads simply report unavailable.
// Nothing stays open when Open fails.
func (h *Hwmon) Open() error {
	dir, err := findChip(h.root, h.name)
	if err != nil {
		return err
	}
	h.dir = dir

	logrus.WithFields(logrus.Fields{
		"chip": h.name,
		"path": dir,
	}).Debug("found pd hwmon chip")

	h.voltage, err = openFirstInput(dir, "in")
	if err != nil {
		return err
	}

	h.current, err = openFirstInput(dir, "curr")
	if err != nil {
		_ = h.Close()
		return err
	}

	return nil
}

// Close closes the inputs opened by Open. It is safe to call more than once.
func (h *Hwmon) Close() error {
	var firstErr error
	for _, f := range []**os.File{&h.voltage, &h.current} {
		if *f == nil {
			continue
		}
		if err := (*f).Close(); err != nil && firstErr == nil {
			firstErr = pkgerrors.Wrapf(err, "failed to close %s", (*f).Name())
		}
		*f = nil
	}
	return firstErr
}

// ContractStatus reads the pdcs attribute.
func (h *Hwmon) ContractStatus() (uint8, bool) {
	s, ok := h.readAttr("pdcs")
	if !ok {
		return 0, false
	}

	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		logrus.WithError(err).Trace("failed to parse pdcs")
		return 0, false
	}

	logrus.Tracef("ContractStatus returned %#x", v)
	return uint8(v), true
}

// Voltage reads the contract voltage. It is unavailable on firmware known to
// report it wrongly, or when the firmware version is unknown.
func (h *Hwmon) Voltage() (float64, bool) {
	fw, ok := h.firmwareVersion()
	if !ok || fw <= lastBadVoltageFirmware {
		return 0, false
	}

	// in*_input is in millivolts.
	mv, ok := readInput(h.voltage)
	if !ok {
		return 0, false
	}

	logrus.Tracef("Voltage returned %vmV", mv)
	return mv / 1000, true
}

// Current reads the contract current.
func (h *Hwmon) Current() (float64, bool) {
	// curr*_input is in milliamperes.
	ma, ok := readInput(h.current)
	if !ok {
		return 0, false
	}

	logrus.Tracef("Current returned %vmA", ma)
	return ma / 1000, true
}

func (h *Hwmon) firmwareVersion() (uint64, bool) {
	s, ok := h.readAttr("firmware_version")
	if !ok {
		return 0, false
	}

	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}

	return v, true
}

// readAttr reads a driver attribute, which lives either on the hwmon device
// itself or on its parent device depending on the kernel.
func (h *Hwmon) readAttr(name string) (string, bool) {
	if h.dir == "" {
		return "", false
	}

	for _, p := range []string{
		filepath.Join(h.dir, name),
		filepath.Join(h.dir, "device", name),
	} {
		b, err := os.ReadFile(p)
		if err == nil {
			return strings.TrimSpace(string(b)), true
		}
	}

	return "", false
}

func findChip(root, name string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to list %s", root)
	}

	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		b, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(b)) == name {
			return dir, nil
		}
	}

	return "", pkgerrors.Wrapf(ErrChipNotFound, "no chip named %q in %s", name, root)
}

// openFirstInput opens the <prefix>N_input file with the lowest N, or
// returns nil if the chip has none.
func openFirstInput(dir, prefix string) (*os.File, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*_input"))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to glob %s inputs", prefix)
	}

	type input struct {
		index int
		path  string
	}
	var inputs []input
	for _, m := range matches {
		base := filepath.Base(m)
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, prefix), "_input"))
		if err != nil {
			// e.g. "intrusion0_input" matching "in*"
			continue
		}
		inputs = append(inputs, input{index: idx, path: m})
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].index < inputs[j].index })

	f, err := os.Open(inputs[0].path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open %s", inputs[0].path)
	}
	return f, nil
}

// readInput re-reads a held-open sysfs attribute from the start.
func readInput(f *os.File) (float64, bool) {
	if f == nil {
		return 0, false
	}

	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		logrus.WithError(err).WithField("path", f.Name()).Trace("failed to read hwmon input")
		return 0, false
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(buf[:n])), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return v, true
}
