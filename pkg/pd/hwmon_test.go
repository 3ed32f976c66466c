package pd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

// fakeHwmon builds a hwmon root with an unrelated chip and a jupiter chip.
func fakeHwmon(t *testing.T, chip map[string]string) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "hwmon0"), map[string]string{
		"name":        "acpitz\n",
		"in0_input":   "1\n",
		"temp1_input": "45000\n",
	})
	writeFiles(t, filepath.Join(root, "hwmon3"), chip)
	return root
}

func TestHwmonReadsContract(t *testing.T) {
	root := fakeHwmon(t, map[string]string{
		"name":             "jupiter\n",
		"in0_input":        "20000\n",
		"in1_input":        "5000\n",
		"curr1_input":      "2250\n",
		"pdcs":             "1\n",
		"firmware_version": "45100\n",
	})

	h := NewHwmon(root)
	require.NoError(t, h.Open())
	defer h.Close()

	status, ok := h.ContractStatus()
	require.True(t, ok)
	assert.Equal(t, StatusConnected, status)

	v, ok := h.Voltage()
	require.True(t, ok)
	assert.InDelta(t, 20.0, v, 1e-9)

	a, ok := h.Current()
	require.True(t, ok)
	assert.InDelta(t, 2.25, a, 1e-9)
}

func TestHwmonRereadsInputs(t *testing.T) {
	root := fakeHwmon(t, map[string]string{
		"name":        "jupiter\n",
		"curr1_input": "1000\n",
	})

	h := NewHwmon(root)
	require.NoError(t, h.Open())
	defer h.Close()

	a, ok := h.Current()
	require.True(t, ok)
	assert.InDelta(t, 1.0, a, 1e-9)

	require.NoError(t, os.WriteFile(filepath.Join(root, "hwmon3", "curr1_input"), []byte("3000\n"), 0644))

	a, ok = h.Current()
	require.True(t, ok)
	assert.InDelta(t, 3.0, a, 1e-9)
}

func TestHwmonAttributesOnParentDevice(t *testing.T) {
	root := fakeHwmon(t, map[string]string{
		"name":                    "jupiter\n",
		"in0_input":               "9000\n",
		"device/pdcs":             "17\n",
		"device/firmware_version": "50000\n",
	})

	h := NewHwmon(root)
	require.NoError(t, h.Open())
	defer h.Close()

	status, ok := h.ContractStatus()
	require.True(t, ok)
	assert.Equal(t, StatusConnected|StatusSource, status)

	v, ok := h.Voltage()
	require.True(t, ok)
	assert.InDelta(t, 9.0, v, 1e-9)
}

func TestHwmonVoltageFirmwareGate(t *testing.T) {
	tests := []struct {
		name     string
		firmware string
		wantOK   bool
	}{
		{name: "old firmware", firmware: "45096\n", wantOK: false},
		{name: "fixed firmware", firmware: "45097\n", wantOK: true},
		{name: "garbage firmware", firmware: "v1\n", wantOK: false},
		{name: "no firmware file", firmware: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := map[string]string{
				"name":      "jupiter\n",
				"in0_input": "15000\n",
			}
			if tt.firmware != "" {
				files["firmware_version"] = tt.firmware
			}
			h := NewHwmon(fakeHwmon(t, files))
			require.NoError(t, h.Open())
			defer h.Close()

			_, ok := h.Voltage()
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestHwmonMissingInputs(t *testing.T) {
	h := NewHwmon(fakeHwmon(t, map[string]string{
		"name":             "jupiter\n",
		"pdcs":             "not-a-number\n",
		"firmware_version": "60000\n",
	}))
	require.NoError(t, h.Open())
	defer h.Close()

	_, ok := h.ContractStatus()
	assert.False(t, ok)
	_, ok = h.Voltage()
	assert.False(t, ok)
	_, ok = h.Current()
	assert.False(t, ok)
}

func TestHwmonChipNotFound(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "hwmon0"), map[string]string{"name": "coretemp\n"})

	h := NewHwmon(root)
	err := h.Open()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChipNotFound)

	_, ok := h.ContractStatus()
	assert.False(t, ok)
	assert.NoError(t, h.Close())
}

func TestHwmonCloseTwice(t *testing.T) {
	h := NewHwmon(fakeHwmon(t, map[string]string{
		"name":        "jupiter\n",
		"in0_input":   "5000\n",
		"curr1_input": "500\n",
	}))
	require.NoError(t, h.Open())

	assert.NoError(t, h.Close())
	assert.NoError(t, h.Close())

	_, ok := h.Current()
	assert.False(t, ok)
}

func TestMock(t *testing.T) {
	m := NewMock(StatusConnected, 5, 1)

	s, ok := m.ContractStatus()
	assert.True(t, ok)
	assert.Equal(t, StatusConnected, s)

	m.Volts = nil
	_, ok = m.Voltage()
	assert.False(t, ok)

	require.NoError(t, m.Close())
	assert.True(t, m.Closed)

	var none None
	_, ok = none.ContractStatus()
	assert.False(t, ok)
}
