// Package powerstate derives the published power state from one tick of raw
// telemetry and the state of the tick before it.
package powerstate

import (
	"math"

	"github.com/charlie0129/vpower/pkg/pd"
	"github.com/charlie0129/vpower/pkg/telemetry"
	"github.com/charlie0129/vpower/pkg/utils/ptr"
)

const (
	// Newly negotiated PD contracts report less than this for about half a
	// second after plug-in.
	slowChargerWatts = 30.0
	// Many batteries stop charging somewhere above 90% while plugged in.
	nearFullPercent = 89.5
	// Published as seconds until shutdown while the charge is below the
	// threshold but AC is connected.
	chargingSentinelSecs = 1.0
)

// Infer computes the Derived state of a tick.
func Infer(raw telemetry.Raw, prev Previous, params Params) Derived {
	d := Derived{
		AC:             InferAC(raw, prev),
		BatteryPercent: BatteryPercent(raw),
		SecsUntilFull:  SecsUntilFull(raw),
	}
	d.BatteryStatus = InferBatteryStatus(raw.Status, d.AC, d.BatteryPercent, prev.BatteryPercent)
	d.SecsUntilShutdown, d.ShutdownDue = SecsUntilShutdown(raw, d.AC, params)

	return d
}

// InferAC decides the AC status, preferring the PD contract, then the AC
// node's online file, then the battery status string.
func InferAC(raw telemetry.Raw, prev Previous) ACStatus {
	if raw.PDContractStatus != nil {
		status := *raw.PDContractStatus
		connected := status&pd.StatusConnected != 0
		sink := status&pd.StatusSource == 0
		if !connected || !sink {
			return ACDisconnected
		}

		watts := 0.0
		if raw.PDVoltage != nil && raw.PDCurrent != nil {
			watts = *raw.PDVoltage * *raw.PDCurrent
		}

		justPluggedIn := prev.AC != nil && *prev.AC == ACDisconnected
		if justPluggedIn && watts > 0 && watts < slowChargerWatts {
			return ACConnectedSlow
		}
		return ACConnected
	}

	if raw.ACOnline != nil {
		if *raw.ACOnline == "1" {
			return ACConnected
		}
		return ACDisconnected
	}

	if raw.Status != nil {
		switch *raw.Status {
		case "Full", "Charging":
			return ACConnected
		case "Discharging":
			return ACDisconnected
		}
	}

	return ACUnknown
}

// BatteryPercent returns charge_now / charge_full in percent, clamped to
// [0, 100].
func BatteryPercent(raw telemetry.Raw) *float64 {
	if raw.ChargeNow == nil || raw.ChargeFull == nil || *raw.ChargeFull == 0 || !isFinite(*raw.ChargeFull) {
		return nil
	}

	percent := *raw.ChargeNow / *raw.ChargeFull * 100
	if !isFinite(percent) {
		return nil
	}

	return ptr.To(math.Max(0, math.Min(100, percent)))
}

// InferBatteryStatus trusts the kernel for Full and Discharging, and for
// Charging only while AC is Connected. Otherwise the percentage trend since
// the previous tick decides, and a high but unchanged percentage counts as
// Full. It returns nil when none of these apply.
func InferBatteryStatus(status *string, ac ACStatus, percent, prevPercent *float64) *BatteryStatus {
	if status != nil {
		switch {
		case *status == "Full":
			return ptr.To(Full)
		case *status == "Discharging":
			return ptr.To(Discharging)
		case *status == "Charging" && ac == ACConnected:
			return ptr.To(Charging)
		}
	}

	// Probably "Unknown" or "Not charging".
	if percent != nil && prevPercent != nil {
		switch {
		case *percent > *prevPercent:
			return ptr.To(Charging)
		case *percent < *prevPercent:
			return ptr.To(Discharging)
		}
	}

	if percent != nil && *percent >= nearFullPercent {
		return ptr.To(Full)
	}

	return nil
}

// SecsUntilFull projects the time until charge_now reaches charge_full at
// the current power draw.
func SecsUntilFull(raw telemetry.Raw) *float64 {
	if raw.ChargeFull == nil || raw.ChargeNow == nil {
		return nil
	}

	return project(math.Max(0, *raw.ChargeFull-*raw.ChargeNow), raw)
}

// SecsUntilShutdown projects the time until the charge drops to the shutdown
// threshold. At or below the threshold it returns 0 and due=true, unless AC
// is Connected, in which case it returns a positive placeholder so no
// shutdown is requested while charging.
func SecsUntilShutdown(raw telemetry.Raw, ac ACStatus, params Params) (secs *float64, due bool) {
	// A zero capacity is a broken reading, not an empty battery.
	if raw.ChargeFull == nil || raw.ChargeNow == nil || *raw.ChargeFull <= 0 {
		return nil, false
	}

	threshold := *raw.ChargeFull * params.ShutdownBatteryPercent / 100
	if *raw.ChargeNow <= threshold {
		if ac == ACConnected {
			return ptr.To(chargingSentinelSecs), false
		}
		return ptr.To(0.0), true
	}

	return project(*raw.ChargeNow-threshold, raw), false
}

// PowerNow is voltage_now times current_now, or times power_now on batteries
// that expose power instead of current.
func PowerNow(raw telemetry.Raw) *float64 {
	if raw.VoltageNow == nil {
		return nil
	}

	switch {
	case raw.CurrentNow != nil:
		return ptr.To(*raw.VoltageNow * *raw.CurrentNow)
	case raw.PowerNow != nil:
		return ptr.To(*raw.VoltageNow * *raw.PowerNow)
	default:
		return nil
	}
}

// project converts a charge delta into seconds at the current power draw.
// The sign of the power reading is ignored since drivers disagree on it.
func project(chargeDelta float64, raw telemetry.Raw) *float64 {
	power := PowerNow(raw)
	if raw.VoltageMinDesign == nil || power == nil || *power == 0 {
		return nil
	}

	hours := chargeDelta * *raw.VoltageMinDesign / math.Abs(*power)
	secs := hours * 3600
	if !isFinite(secs) {
		return nil
	}

	return &secs
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
