// Copyright 2024 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

// Package pwm drives the PWM outputs through the pwm_test helper driver.
package pwm

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/backend"
	"github.com/binkynet/BoneIO/pkg/device"
	"github.com/binkynet/BoneIO/pkg/overlay"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/registry"
)

const (
	// MaxFrequency in Hz
	MaxFrequency = 1000000000
	// MaxPeriodNS is the longest supported period
	MaxPeriodNS = 1000000000

	nsPerSecond = 1000000000
)

var (
	maskAny = errors.WithStack
)

// Polarity of the PWM output.
type Polarity int

const (
	PolarityNormal   Polarity = 0
	PolarityInverted Polarity = 1
)

func (p Polarity) String() string {
	switch p {
	case PolarityNormal:
		return "normal"
	case PolarityInverted:
		return "inverted"
	default:
		return fmt.Sprintf("Polarity(%d)", int(p))
	}
}

// Valid returns true for known polarities.
func (p Polarity) Valid() bool {
	return p == PolarityNormal || p == PolarityInverted
}

type startOptions struct {
	duty        float64
	hasDuty     bool
	frequency   int
	polarity    Polarity
	hasPolarity bool
	run         bool
}

// StartOption configures Start.
type StartOption func(*startOptions)

// WithDutyCycle sets the duty cycle in percent (0..100).
func WithDutyCycle(pct float64) StartOption {
	return func(o *startOptions) {
		o.duty = pct
		o.hasDuty = true
	}
}

// WithFrequency sets the frequency in Hz.
func WithFrequency(hz int) StartOption {
	return func(o *startOptions) { o.frequency = hz }
}

// WithPolarity sets the polarity.
func WithPolarity(p Polarity) StartOption {
	return func(o *startOptions) {
		o.polarity = p
		o.hasPolarity = true
	}
}

// Stopped configures the output without running it.
func Stopped() StartOption {
	return func(o *startOptions) { o.run = false }
}

func (o startOptions) validate() error {
	if o.hasDuty {
		if err := checkPercentage(o.duty); err != nil {
			return err
		}
	}
	if o.frequency != 0 {
		if err := checkFrequency(o.frequency); err != nil {
			return err
		}
	}
	if o.hasPolarity && !o.polarity.Valid() {
		return model.InvalidArgument("invalid polarity %s", o.polarity)
	}
	return nil
}

func checkPercentage(pct float64) error {
	if pct < 0 || pct > 100 {
		return model.InvalidArgument("duty cycle must be >= 0 and <= 100, got %v", pct)
	}
	return nil
}

func checkFrequency(hz int) error {
	if hz < 1 || hz > MaxFrequency {
		return model.InvalidArgument("frequency must be > 0 and <= %d, got %d", MaxFrequency, hz)
	}
	return nil
}

// pinOverlay returns the name of the overlay that routes the pin to its PWM channel.
func pinOverlay(p pins.Pin) string {
	return overlay.PWMPinPrefix + p.String()
}

// PWM implements the PWM outputs.
type PWM struct {
	log      zerolog.Logger
	mgr      *device.Manager
	reg      *registry.Registry
	be       backend.Backend
	overlays overlay.Loader
}

// New creates the PWM subsystem and registers it with the device manager.
func New(mgr *device.Manager, be backend.Backend, overlays overlay.Loader, log zerolog.Logger) *PWM {
	w := &PWM{
		log:      log.With().Str("component", "pwm").Logger(),
		mgr:      mgr,
		reg:      mgr.Registry(),
		be:       be,
		overlays: overlays,
	}
	mgr.Register(model.PinTypePWM, w)
	return w
}

// Start configures the pin as PWM output and (unless Stopped is given) runs it.
// A pin owned by another subsystem is disabled first.
func (w *PWM) Start(ctx context.Context, p pins.Pin, opts ...StartOption) error {
	if err := pins.Check(p, pins.CapabilityPWM); err != nil {
		return maskAny(err)
	}
	o := startOptions{run: true}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return maskAny(err)
	}

	if err := w.overlays.Load(overlay.PWM); err != nil {
		return maskAny(err)
	}
	wasPWM := w.reg.TypeOf(p) == model.PinTypePWM
	if !wasPWM {
		if err := w.mgr.Claim(ctx, p, model.PinTypePWM); err != nil {
			return maskAny(err)
		}
		if err := w.overlays.Load(pinOverlay(p)); err != nil {
			w.forget(p)
			return maskAny(err)
		}
	}
	if err := w.configure(p, o); err != nil {
		if !wasPWM {
			w.forget(p)
			if _, uerr := w.overlays.Unload(pinOverlay(p)); uerr != nil {
				w.log.Debug().Err(uerr).Str("pin", p.String()).Msg("Failed to unload overlay of unconfigured pin")
			}
		}
		return maskAny(err)
	}
	startsTotal.Inc()
	s, _ := w.reg.Get(p)
	w.log.Debug().
		Str("pin", p.String()).
		Str("frequency", frequencyString(s.PWM.PeriodNS)).
		Int("duty_ns", s.PWM.DutyNS).
		Str("polarity", Polarity(s.PWM.Polarity).String()).
		Bool("running", s.PWM.Running).
		Msg("Started PWM")
	return nil
}

func (w *PWM) configure(p pins.Pin, o startOptions) error {
	// Load the current settings of the kernel
	if _, err := w.readPeriod(p); err != nil {
		return maskAny(err)
	}
	if _, err := w.readDuty(p); err != nil {
		return maskAny(err)
	}
	if _, err := w.readPolarity(p); err != nil {
		return maskAny(err)
	}
	if err := w.setRun(p, false); err != nil {
		return maskAny(err)
	}
	if o.hasPolarity {
		if err := w.SetPolarity(p, o.polarity); err != nil {
			return maskAny(err)
		}
	}
	if o.frequency != 0 {
		if _, err := w.SetFrequency(p, o.frequency); err != nil {
			return maskAny(err)
		}
	}
	if o.hasDuty {
		if _, err := w.SetDutyCycle(p, o.duty); err != nil {
			return maskAny(err)
		}
	}
	if o.run {
		return maskAny(w.setRun(p, true))
	}
	return nil
}

// forget drops the record of a pin whose start failed.
func (w *PWM) forget(p pins.Pin) {
	if err := w.reg.Delete(p).Close(); err != nil {
		w.log.Debug().Err(err).Str("pin", p.String()).Msg("Failed to close handles of unconfigured pin")
	}
}

// handle returns the cached kernel file of the pin, opening it when needed.
func (w *PWM) handle(p pins.Pin, attr backend.Attribute) (backend.Handle, error) {
	if h, found := w.reg.Handle(p, attr); found {
		return h, nil
	}
	h, err := w.be.Open(p, attr)
	if err != nil {
		return nil, maskAny(err)
	}
	cached, stored := w.reg.StoreHandle(p, attr, h)
	if !stored {
		if err := h.Close(); err != nil {
			w.log.Debug().Err(err).Str("pin", p.String()).Msg("Failed to close duplicate handle")
		}
	}
	return cached, nil
}

func (w *PWM) readAttr(p pins.Pin, attr backend.Attribute) (int, error) {
	h, err := w.handle(p, attr)
	if err != nil {
		return 0, maskAny(err)
	}
	v, err := backend.ReadInt(h)
	if err != nil {
		return 0, maskAny(err)
	}
	return v, nil
}

// writeAttr writes the value and verifies that the kernel accepted it.
func (w *PWM) writeAttr(p pins.Pin, attr backend.Attribute, value int) error {
	h, err := w.handle(p, attr)
	if err != nil {
		return maskAny(err)
	}
	if err := backend.WriteInt(h, value); err != nil {
		return maskAny(err)
	}
	actual, err := backend.ReadInt(h)
	if err != nil {
		return maskAny(err)
	}
	if actual != value {
		return errors.Errorf("unable to set %s of pin %s to %d (got %d)", attr, p, value, actual)
	}
	return nil
}

func (w *PWM) readPeriod(p pins.Pin) (int, error) {
	v, err := w.readAttr(p, backend.AttributePeriod)
	if err != nil {
		return 0, maskAny(err)
	}
	w.reg.Modify(p, func(s *registry.Status) { s.PWM.PeriodNS = v })
	return v, nil
}

func (w *PWM) readDuty(p pins.Pin) (int, error) {
	v, err := w.readAttr(p, backend.AttributeDuty)
	if err != nil {
		return 0, maskAny(err)
	}
	w.reg.Modify(p, func(s *registry.Status) { s.PWM.DutyNS = v })
	return v, nil
}

func (w *PWM) readPolarity(p pins.Pin) (Polarity, error) {
	v, err := w.readAttr(p, backend.AttributePolarity)
	if err != nil {
		return PolarityNormal, maskAny(err)
	}
	w.reg.Modify(p, func(s *registry.Status) { s.PWM.Polarity = v })
	return Polarity(v), nil
}

func (w *PWM) setRun(p pins.Pin, run bool) error {
	value := 0
	if run {
		value = 1
	}
	if err := w.writeAttr(p, backend.AttributeRun, value); err != nil {
		if run {
			return errors.Wrapf(err, "could not start PWM on %s", p)
		}
		return errors.Wrapf(err, "could not stop PWM on %s", p)
	}
	w.reg.Modify(p, func(s *registry.Status) { s.PWM.Running = run })
	return nil
}

// status returns the registry status of a PWM pin.
func (w *PWM) status(p pins.Pin) (registry.Status, error) {
	if err := pins.Check(p, pins.CapabilityPWM); err != nil {
		return registry.Status{}, maskAny(err)
	}
	s, found := w.reg.Get(p)
	if !found || s.Type != model.PinTypePWM {
		return registry.Status{}, model.NotEnabled("pin %s is not PWM enabled", p)
	}
	return s, nil
}

// Enabled returns true when the pin is configured as PWM output.
func (w *PWM) Enabled(p pins.Pin) bool {
	_, err := w.status(p)
	return err == nil
}

// Settings returns the cached PWM settings of the pin.
func (w *PWM) Settings(p pins.Pin) (registry.PWMStatus, error) {
	s, err := w.status(p)
	if err != nil {
		return registry.PWMStatus{}, maskAny(err)
	}
	return s.PWM, nil
}

// Stop the output, keeping its settings.
func (w *PWM) Stop(p pins.Pin) error {
	if _, err := w.status(p); err != nil {
		return maskAny(err)
	}
	return maskAny(w.setRun(p, false))
}

// Run the output with its current settings.
func (w *PWM) Run(p pins.Pin) error {
	if _, err := w.status(p); err != nil {
		return maskAny(err)
	}
	return maskAny(w.setRun(p, true))
}

// SetPolarity sets the polarity of the output.
func (w *PWM) SetPolarity(p pins.Pin, pol Polarity) error {
	if !pol.Valid() {
		return model.InvalidArgument("invalid polarity %s", pol)
	}
	if _, err := w.status(p); err != nil {
		return maskAny(err)
	}
	if err := w.writeAttr(p, backend.AttributePolarity, int(pol)); err != nil {
		return maskAny(err)
	}
	w.reg.Modify(p, func(s *registry.Status) { s.PWM.Polarity = int(pol) })
	return nil
}

// SetDutyCycle sets the duty cycle as a percentage of the current period.
// Returns the duty cycle in ns.
func (w *PWM) SetDutyCycle(p pins.Pin, pct float64) (int, error) {
	if err := checkPercentage(pct); err != nil {
		return 0, maskAny(err)
	}
	s, err := w.status(p)
	if err != nil {
		return 0, maskAny(err)
	}
	ns := int(pct * float64(s.PWM.PeriodNS) / 100)
	if err := w.setDuty(p, ns); err != nil {
		return 0, maskAny(err)
	}
	return ns, nil
}

// SetDutyCycleNS sets the duty cycle in ns. It cannot exceed the current period.
func (w *PWM) SetDutyCycleNS(p pins.Pin, ns int) error {
	s, err := w.status(p)
	if err != nil {
		return maskAny(err)
	}
	if ns < 0 || ns > s.PWM.PeriodNS {
		return model.InvalidArgument("duty cycle must be >= 0 and <= %d ns (current period), got %d", s.PWM.PeriodNS, ns)
	}
	return maskAny(w.setDuty(p, ns))
}

func (w *PWM) setDuty(p pins.Pin, ns int) error {
	if err := w.writeAttr(p, backend.AttributeDuty, ns); err != nil {
		return errors.Wrapf(err, "could not set duty cycle of %s", p)
	}
	w.reg.Modify(p, func(s *registry.Status) { s.PWM.DutyNS = ns })
	dutyRatio.WithLabelValues(p.String()).Set(ratio(w.reg, p))
	return nil
}

// SetFrequency sets the period to match the given frequency in Hz,
// keeping the duty cycle percentage. Returns the period in ns.
func (w *PWM) SetFrequency(p pins.Pin, hz int) (int, error) {
	if err := checkFrequency(hz); err != nil {
		return 0, maskAny(err)
	}
	period := nsPerSecond / hz
	if err := w.setPeriod(p, period); err != nil {
		return 0, maskAny(err)
	}
	w.log.Debug().
		Str("pin", p.String()).
		Str("frequency", humanize.SIWithDigits(float64(hz), 2, "Hz")).
		Msg("Changed frequency")
	return period, nil
}

// SetPeriodNS sets the period in ns, keeping the duty cycle percentage.
func (w *PWM) SetPeriodNS(p pins.Pin, ns int) error {
	if ns < 1 || ns > MaxPeriodNS {
		return model.InvalidArgument("period must be > 0 and <= %d, got %d", MaxPeriodNS, ns)
	}
	return maskAny(w.setPeriod(p, ns))
}

// setPeriod changes the period and scales the duty cycle along.
// The kernel rejects a duty cycle longer than the period, so the
// duty cycle is written first when it shrinks below the new period.
func (w *PWM) setPeriod(p pins.Pin, period int) error {
	s, err := w.status(p)
	if err != nil {
		return maskAny(err)
	}
	duty := scaleDuty(s.PWM.DutyNS, s.PWM.PeriodNS, period)
	if s.PWM.DutyNS > period {
		if err := w.setDuty(p, duty); err != nil {
			return maskAny(err)
		}
	}
	if err := w.writeAttr(p, backend.AttributePeriod, period); err != nil {
		return errors.Wrapf(err, "could not set period of %s", p)
	}
	w.reg.Modify(p, func(s *registry.Status) { s.PWM.PeriodNS = period })
	frequency.WithLabelValues(p.String()).Set(float64(nsPerSecond) / float64(period))
	if s.PWM.DutyNS <= period {
		if err := w.setDuty(p, duty); err != nil {
			return maskAny(err)
		}
	}
	return nil
}

// scaleDuty returns the duty cycle with the same percentage of newPeriod
// as duty has of period.
func scaleDuty(duty, period, newPeriod int) int {
	if period <= 0 {
		return 0
	}
	return int(int64(duty) * int64(newPeriod) / int64(period))
}

func ratio(reg *registry.Registry, p pins.Pin) float64 {
	s, _ := reg.Get(p)
	if s.PWM.PeriodNS <= 0 {
		return 0
	}
	return float64(s.PWM.DutyNS) / float64(s.PWM.PeriodNS)
}

// frequencyString formats the frequency of the given period for logging.
func frequencyString(periodNS int) string {
	if periodNS <= 0 {
		return "-"
	}
	return humanize.SIWithDigits(float64(nsPerSecond)/float64(periodNS), 2, "Hz")
}

// Pins returns all pins configured as PWM output.
func (w *PWM) Pins() []pins.Pin {
	return w.reg.Pins(model.PinTypePWM)
}

// DisablePin is called by the device manager.
func (w *PWM) DisablePin(ctx context.Context, p pins.Pin) error {
	return w.Disable(p)
}

// Disable closes the files of the pin and unloads its overlay.
// The record of the pin is removed even when unloading fails.
func (w *PWM) Disable(p pins.Pin) error {
	if err := pins.Check(p, pins.CapabilityPWM); err != nil {
		return maskAny(err)
	}
	switch w.reg.TypeOf(p) {
	case model.PinTypeUnclaimed:
		if !w.reg.Enabled(p) {
			return nil
		}
	case model.PinTypePWM:
	default:
		return model.NotEnabled("pin %s is not PWM enabled", p)
	}
	var ae aerr.AggregateError
	ae.Add(w.reg.Delete(p).Close())
	if _, err := w.overlays.Unload(pinOverlay(p)); err != nil {
		ae.Add(err)
	}
	dutyRatio.DeleteLabelValues(p.String())
	frequency.DeleteLabelValues(p.String())
	w.log.Debug().Str("pin", p.String()).Msg("Disabled PWM")
	return ae.AsError()
}
