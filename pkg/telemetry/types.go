package telemetry

// Raw is one tick of hardware readings. Every field is optional: nil means
// the value was missing, unreadable or not a finite number this tick.
//
// ChargeFull and ChargeNow come from either charge_* or energy_* files.
// Their units differ between the two schemes but are consistent within a
// tick, which is enough for ratios. Only one of CurrentNow and PowerNow is
// set, depending on which file the battery exposes.
type Raw struct {
	ChargeFull       *float64
	ChargeNow        *float64
	CurrentNow       *float64
	PowerNow         *float64
	VoltageNow       *float64
	VoltageMinDesign *float64
	// Status is the kernel status string, e.g. "Charging" or "Not charging".
	Status *string
	// ACOnline is the content of the AC node's online file ("0" or "1").
	ACOnline *string

	PDContractStatus *uint8
	PDVoltage        *float64
	PDCurrent        *float64
}
