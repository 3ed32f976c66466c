// Package publish exposes derived values to other processes, one key at a
// time.
package publish

import (
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Keys written by the daemon.
const (
	KeyACStatus          = "ac_status"
	KeyBatteryPercent    = "battery_percent"
	KeyBatteryStatus     = "battery_status"
	KeySecsUntilFull     = "secs_until_battery_full"
	KeySecsUntilShutdown = "secs_until_shutdown_request"
)

// Keys lists every key in the order the daemon publishes them.
var Keys = []string{
	KeyACStatus,
	KeyBatteryPercent,
	KeyBatteryStatus,
	KeySecsUntilFull,
	KeySecsUntilShutdown,
}

// ErrInvalidKey is returned for keys that are empty or contain a path
// separator.
var ErrInvalidKey = pkgerrors.New("invalid key")

// Publisher makes a single key/value pair visible to readers. A reader must
// never observe a partially written value.
type Publisher interface {
	Publish(key, value string) error
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, "/\x00") || key == "." || key == ".." {
		return pkgerrors.Wrapf(ErrInvalidKey, "%q", key)
	}
	return nil
}

// Multi publishes to every Publisher in order. A failing Publisher does not
// stop the ones after it; all errors are returned joined.
type Multi []Publisher

func (m Multi) Publish(key, value string) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(key, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
