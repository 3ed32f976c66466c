package pd

var _ Probe = &Mock{}

// Mock is a deterministic Probe. A nil field reads as unavailable.
type Mock struct {
	Status *uint8
	Volts  *float64
	Amps   *float64

	Closed bool
}

// NewMock returns a Mock reporting the given contract.
func NewMock(status uint8, volts, amps float64) *Mock {
	return &Mock{
		Status: &status,
		Volts:  &volts,
		Amps:   &amps,
	}
}

func (m *Mock) ContractStatus() (uint8, bool) {
	if m.Status == nil {
		return 0, false
	}
	return *m.Status, true
}

func (m *Mock) Voltage() (float64, bool) {
	if m.Volts == nil {
		return 0, false
	}
	return *m.Volts, true
}

func (m *Mock) Current() (float64, bool) {
	if m.Amps == nil {
		return 0, false
	}
	return *m.Amps, true
}

func (m *Mock) Close() error {
	m.Closed = true
	return nil
}
