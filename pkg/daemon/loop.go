package daemon

import (
	"context"
	"reflect"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vpower/pkg/powerstate"
	"github.com/charlie0129/vpower/pkg/publish"
	"github.com/charlie0129/vpower/pkg/shutdown"
	"github.com/charlie0129/vpower/pkg/telemetry"
)

const defaultLoopInterval = time.Second

// Loop runs one tick per interval: read telemetry, infer the state, publish
// it and let the shutdown controller act on it.
type Loop struct {
	reader     *telemetry.Reader
	publisher  publish.Publisher
	controller *shutdown.Controller
	params     powerstate.Params
	interval   time.Duration

	prev       powerstate.Previous
	lastStatus map[string]string
	lastPrint  time.Time
}

// NewLoop returns a Loop ticking once per second.
func NewLoop(
	reader *telemetry.Reader,
	publisher publish.Publisher,
	controller *shutdown.Controller,
	params powerstate.Params,
) *Loop {
	return &Loop{
		reader:     reader,
		publisher:  publisher,
		controller: controller,
		params:     params,
		interval:   defaultLoopInterval,
	}
}

// Run ticks until ctx is done or a shutdown has been requested. The delay
// is measured from the end of one tick to the start of the next. A tick in
// progress, including the shutdown grace period, always completes.
func (l *Loop) Run(ctx context.Context) error {
	logrus.Debugln("main loop starts")

	for {
		done, err := l.Tick()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			logrus.Debugln("main loop stopped")
			return nil
		case <-time.After(l.interval):
		}
	}
}

// Tick runs a single iteration. It returns true once the power-off command
// has been run successfully.
func (l *Loop) Tick() (bool, error) {
	raw := l.reader.Read()
	d := powerstate.Infer(raw, l.prev, l.params)

	values := Format(d)
	for _, key := range publish.Keys {
		v, ok := values[key]
		if !ok {
			continue
		}
		if err := l.publisher.Publish(key, v+"\n"); err != nil {
			logrus.WithError(err).WithField("key", key).Error("failed to publish")
		}
	}

	l.printStatus(values)
	l.prev = d.Next()

	return l.controller.Observe(d)
}

// Format renders the publishable values of d. Values that could not be
// determined are left out.
func Format(d powerstate.Derived) map[string]string {
	values := map[string]string{
		publish.KeyACStatus: d.AC.String(),
	}

	if d.BatteryPercent != nil {
		values[publish.KeyBatteryPercent] = formatFloat(*d.BatteryPercent)
	}
	if d.BatteryStatus != nil {
		values[publish.KeyBatteryStatus] = d.BatteryStatus.String()
	}
	if d.SecsUntilFull != nil {
		values[publish.KeySecsUntilFull] = formatFloat(*d.SecsUntilFull)
	}
	if d.SecsUntilShutdown != nil {
		values[publish.KeySecsUntilShutdown] = formatFloat(*d.SecsUntilShutdown)
	}

	return values
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// printStatus logs the tick at Debug when something changed, or once a
// minute otherwise, and at Trace in between.
func (l *Loop) printStatus(values map[string]string) {
	fields := logrus.Fields{}
	for k, v := range values {
		fields[k] = v
	}

	if time.Since(l.lastPrint) < time.Minute && reflect.DeepEqual(l.lastStatus, values) {
		logrus.WithFields(fields).Trace("power status")
		return
	}

	logrus.WithFields(fields).Debug("power status")
	l.lastStatus = values
	l.lastPrint = time.Now()
}
