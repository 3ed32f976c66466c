// Package pd reads the negotiated USB Power-Delivery contract of the
// charger: whether one is connected, and its voltage and current.
package pd

// Contract status bits.
const (
	// StatusConnected is set while a PD partner is attached.
	StatusConnected uint8 = 1 << 0
	// StatusSource is set when this device supplies power to the partner.
	// Cleared means the device is the sink, i.e. it is being charged.
	StatusSource uint8 = 1 << 4
)

// Probe reports the PD contract. Every read is optional: ok is false when
// the value is not available on this hardware or could not be read.
type Probe interface {
	// ContractStatus returns the raw contract status bitfield.
	ContractStatus() (status uint8, ok bool)
	// Voltage returns the contract voltage in volts.
	Voltage() (volts float64, ok bool)
	// Current returns the contract current in amperes.
	Current() (amps float64, ok bool)
	// Close releases the underlying handles.
	Close() error
}

// None is a Probe for hardware without a PD controller.
type None struct{}

var _ Probe = None{}

func (None) ContractStatus() (uint8, bool) { return 0, false }
func (None) Voltage() (float64, bool)      { return 0, false }
func (None) Current() (float64, bool)      { return 0, false }
func (None) Close() error                  { return nil }
