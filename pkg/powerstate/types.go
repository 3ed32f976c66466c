package powerstate

// ACStatus is whether external power is delivering power, regardless of
// whether the battery is charging.
type ACStatus int

const (
	// ACUnknown means there was not enough information to tell.
	ACUnknown ACStatus = iota
	// ACDisconnected means no external power.
	ACDisconnected
	// ACConnected means external power is connected.
	ACConnected
	// ACConnectedSlow means a charger was just plugged in and reports less
	// than slowChargerWatts.
	ACConnectedSlow
)

func (s ACStatus) String() string {
	switch s {
	case ACDisconnected:
		return "Disconnected"
	case ACConnected:
		return "Connected"
	case ACConnectedSlow:
		return "Connected slow"
	default:
		return "Unknown"
	}
}

// BatteryStatus is the derived charge state of the battery.
type BatteryStatus int

const (
	// Discharging indicates the battery is discharging.
	Discharging BatteryStatus = iota
	// Charging indicates the battery is charging.
	Charging
	// Full indicates the battery is full, or near full and no longer charging.
	Full
)

func (s BatteryStatus) String() string {
	switch s {
	case Charging:
		return "Charging"
	case Full:
		return "Full"
	default:
		return "Discharging"
	}
}

// Derived is the state computed for one tick. A nil field means the value
// could not be determined and must not be published.
type Derived struct {
	AC             ACStatus
	BatteryPercent *float64
	BatteryStatus  *BatteryStatus
	SecsUntilFull  *float64
	// SecsUntilShutdown is 0 when a shutdown must be requested now and
	// positive otherwise.
	SecsUntilShutdown *float64
	// ShutdownDue is set when the charge is at or below the shutdown
	// threshold and AC is not Connected. It is the trigger condition.
	ShutdownDue bool
}

// Previous is what a tick remembers from the tick before it.
type Previous struct {
	// AC is nil before the first tick.
	AC             *ACStatus
	BatteryPercent *float64
}

// Next returns the Previous for the tick after d.
func (d Derived) Next() Previous {
	ac := d.AC
	return Previous{
		AC:             &ac,
		BatteryPercent: d.BatteryPercent,
	}
}

// Params are the configured inputs of the inference.
type Params struct {
	// ShutdownBatteryPercent is the charge percentage at or below which a
	// shutdown is requested.
	ShutdownBatteryPercent float64
}
