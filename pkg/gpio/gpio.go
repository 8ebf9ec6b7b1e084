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

package gpio

import (
	"context"
	"fmt"
	"strconv"

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

var (
	maskAny = errors.WithStack
)

// Pull selects the internal pull resistor of a pin.
type Pull int

const (
	PullUp Pull = iota
	PullDown
	PullNone
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "pullup"
	case PullDown:
		return "pulldown"
	case PullNone:
		return "none"
	default:
		return fmt.Sprintf("Pull(%d)", int(p))
	}
}

// Slew selects the slew rate of a pin.
type Slew int

const (
	SlewFast Slew = iota
	SlewSlow
)

func (s Slew) String() string {
	switch s {
	case SlewFast:
		return "fast"
	case SlewSlow:
		return "slow"
	default:
		return fmt.Sprintf("Slew(%d)", int(s))
	}
}

type modeOptions struct {
	pull Pull
	slew Slew
}

// ModeOption configures PinMode.
type ModeOption func(*modeOptions)

// WithPull selects the pull resistor (default PullUp).
func WithPull(p Pull) ModeOption {
	return func(o *modeOptions) { o.pull = p }
}

// WithSlew selects the slew rate (default SlewFast).
func WithSlew(s Slew) ModeOption {
	return func(o *modeOptions) { o.slew = s }
}

// muxMode returns the pinmux register value for a GPIO pin.
func muxMode(dir model.Direction, pull Pull, slew Slew) int {
	result := 7
	if slew == SlewSlow {
		result |= 0x40
	}
	if dir == model.DirectionIn {
		result |= 0x20
	}
	switch pull {
	case PullUp:
		result |= 0x10
	case PullNone:
		result |= 0x08
	}
	return result
}

// overlayName returns the name of the pinmux overlay of a GPIO pin.
func overlayName(p pins.Pin, mux int) string {
	return fmt.Sprintf("%s%s_0x%x", overlay.GPIOPinPrefix, p, mux)
}

// overlayPattern matches all pinmux overlays of a GPIO pin.
func overlayPattern(p pins.Pin) string {
	return fmt.Sprintf("%s%s_.*", overlay.GPIOPinPrefix, p)
}

// GPIO implements digital I/O and edge waits on header pins and onboard LEDs.
type GPIO struct {
	log      zerolog.Logger
	mgr      *device.Manager
	reg      *registry.Registry
	be       backend.Backend
	overlays overlay.Loader
}

// New creates the GPIO subsystem and registers it with the device manager.
func New(mgr *device.Manager, be backend.Backend, overlays overlay.Loader, log zerolog.Logger) *GPIO {
	g := &GPIO{
		log:      log.With().Str("component", "gpio").Logger(),
		mgr:      mgr,
		reg:      mgr.Registry(),
		be:       be,
		overlays: overlays,
	}
	mgr.Register(model.PinTypeGPIO, g)
	return g
}

// PinMode configures the pin as GPIO input or output.
// A pin owned by another subsystem is disabled first.
// Onboard LEDs only support output.
func (g *GPIO) PinMode(ctx context.Context, p pins.Pin, dir model.Direction, opts ...ModeOption) error {
	if err := pins.Check(p, pins.CapabilityGPIO); err != nil {
		return maskAny(err)
	}
	o := modeOptions{pull: PullUp, slew: SlewFast}
	for _, opt := range opts {
		opt(&o)
	}
	if dir != model.DirectionIn && dir != model.DirectionOut {
		return model.InvalidArgument("invalid direction %s for pin %s", dir, p)
	}
	if o.pull < PullUp || o.pull > PullNone {
		return model.InvalidArgument("invalid pull mode %s for pin %s", o.pull, p)
	}
	if o.slew < SlewFast || o.slew > SlewSlow {
		return model.InvalidArgument("invalid slew rate %s for pin %s", o.slew, p)
	}
	if dir == model.DirectionIn && o.pull != PullUp && (p.IsMMC() || p == pins.P9_15) {
		return model.InvalidArgument("pin %s requires pullup in input mode", p)
	}
	if p.IsLED() && dir != model.DirectionOut {
		return model.InvalidArgument("LED %s only supports output mode", p)
	}

	wasGPIO := g.reg.TypeOf(p) == model.PinTypeGPIO
	if err := g.mgr.Claim(ctx, p, model.PinTypeGPIO); err != nil {
		return maskAny(err)
	}
	if err := g.configure(p, dir, o, wasGPIO); err != nil {
		if !wasGPIO {
			if cerr := g.reg.Delete(p).Close(); cerr != nil {
				g.log.Debug().Err(cerr).Str("pin", p.String()).Msg("Failed to close handles of unconfigured pin")
			}
		}
		return maskAny(err)
	}
	g.reg.Update(p, func(s *registry.Status) {
		if s.Direction != dir {
			s.StateKnown = false
		}
		s.Direction = dir
		s.Pull = o.pull.String()
		s.Slew = o.slew.String()
	})
	pinModesTotal.WithLabelValues(dir.String()).Inc()
	g.log.Debug().
		Str("pin", p.String()).
		Str("direction", dir.String()).
		Str("pull", o.pull.String()).
		Str("slew", o.slew.String()).
		Msg("Configured pin")
	return nil
}

func (g *GPIO) configure(p pins.Pin, dir model.Direction, o modeOptions, wasGPIO bool) error {
	if p.IsLED() {
		h, err := g.handle(p, backend.AttributeTrigger)
		if err != nil {
			return maskAny(err)
		}
		return maskAny(h.Write("gpio"))
	}
	if !wasGPIO {
		if _, err := g.overlays.Unload(overlayPattern(p)); err != nil {
			g.log.Debug().Err(err).Str("pin", p.String()).Msg("Failed to unload previous pinmux overlay")
		}
		if err := g.overlays.Load(overlayName(p, muxMode(dir, o.pull, o.slew))); err != nil {
			return maskAny(err)
		}
		if err := g.be.ConfigureGPIO(p, dir); err != nil {
			return maskAny(err)
		}
		if !g.be.GPIOExported(p) {
			return errors.Errorf("unable to export pin %s", p)
		}
	} else {
		h, err := g.handle(p, backend.AttributeDirection)
		if err != nil {
			return maskAny(err)
		}
		if err := h.Write(dir.String()); err != nil {
			return maskAny(err)
		}
	}
	actual, err := g.readDirection(p)
	if err != nil {
		return maskAny(err)
	}
	if actual != dir {
		return errors.Errorf("unable to set mode of pin %s to %s (got %s)", p, dir, actual)
	}
	return nil
}

// handle returns the cached kernel file of the pin, opening it when needed.
func (g *GPIO) handle(p pins.Pin, attr backend.Attribute) (backend.Handle, error) {
	if h, found := g.reg.Handle(p, attr); found {
		return h, nil
	}
	h, err := g.be.Open(p, attr)
	if err != nil {
		return nil, maskAny(err)
	}
	cached, stored := g.reg.StoreHandle(p, attr, h)
	if !stored {
		if err := h.Close(); err != nil {
			g.log.Debug().Err(err).Str("pin", p.String()).Msg("Failed to close duplicate handle")
		}
	}
	return cached, nil
}

func (g *GPIO) readDirection(p pins.Pin) (model.Direction, error) {
	h, err := g.handle(p, backend.AttributeDirection)
	if err != nil {
		return model.DirectionUnknown, maskAny(err)
	}
	s, err := h.Read()
	if err != nil {
		return model.DirectionUnknown, maskAny(err)
	}
	return model.ParseDirection(s)
}

// status returns the registry status of an enabled GPIO pin.
func (g *GPIO) status(p pins.Pin) (registry.Status, error) {
	if err := pins.Check(p, pins.CapabilityGPIO); err != nil {
		return registry.Status{}, maskAny(err)
	}
	s, found := g.reg.Get(p)
	if !found || s.Type != model.PinTypeGPIO {
		return registry.Status{}, model.NotEnabled("pin %s is not GPIO enabled", p)
	}
	return s, nil
}

// Enabled returns true when the pin is configured as GPIO.
func (g *GPIO) Enabled(p pins.Pin) bool {
	_, err := g.status(p)
	return err == nil
}

// Mode returns the direction of the pin.
func (g *GPIO) Mode(p pins.Pin) (model.Direction, error) {
	s, err := g.status(p)
	if err != nil {
		return model.DirectionUnknown, maskAny(err)
	}
	if s.Direction != model.DirectionUnknown {
		return s.Direction, nil
	}
	dir, err := g.readDirection(p)
	if err != nil {
		return model.DirectionUnknown, maskAny(err)
	}
	g.reg.Modify(p, func(s *registry.Status) { s.Direction = dir })
	return dir, nil
}

func (g *GPIO) requireMode(p pins.Pin, dir model.Direction) error {
	actual, err := g.Mode(p)
	if err != nil {
		return maskAny(err)
	}
	if actual != dir {
		return model.ModeMismatch("pin %s is not in %s mode", p, dir)
	}
	return nil
}

// DigitalWrite sets the state of an output pin.
func (g *GPIO) DigitalWrite(p pins.Pin, state model.State) error {
	if state != model.Low && state != model.High {
		return model.InvalidArgument("invalid state %d", int(state))
	}
	if err := g.requireMode(p, model.DirectionOut); err != nil {
		return maskAny(err)
	}
	h, err := g.handle(p, backend.AttributeValue)
	if err != nil {
		return maskAny(err)
	}
	if err := backend.WriteInt(h, int(state)); err != nil {
		return maskAny(err)
	}
	g.reg.Modify(p, func(s *registry.Status) {
		s.State = int(state)
		s.StateKnown = true
	})
	return nil
}

// DigitalRead returns the state of an input pin.
func (g *GPIO) DigitalRead(p pins.Pin) (model.State, error) {
	if err := g.requireMode(p, model.DirectionIn); err != nil {
		return model.Low, maskAny(err)
	}
	return g.read(p)
}

func (g *GPIO) read(p pins.Pin) (model.State, error) {
	h, err := g.handle(p, backend.AttributeValue)
	if err != nil {
		return model.Low, maskAny(err)
	}
	raw, err := h.Read()
	if err != nil {
		return model.Low, maskAny(err)
	}
	state, err := model.ParseState(raw)
	if err != nil {
		return model.Low, maskAny(err)
	}
	g.reg.Modify(p, func(s *registry.Status) {
		s.State = int(state)
		s.StateKnown = true
	})
	return state, nil
}

// State returns the last known state of the pin.
// When no state is known, the pin is read.
func (g *GPIO) State(p pins.Pin) (model.State, error) {
	s, err := g.status(p)
	if err != nil {
		return model.Low, maskAny(err)
	}
	if s.StateKnown {
		return model.State(s.State), nil
	}
	return g.DigitalRead(p)
}

// ShiftOut writes value into a shift register, one bit per clock pulse,
// most significant bit first unless lsbFirst is set.
// The number of bits sent is a multiple of 8.
func (g *GPIO) ShiftOut(latch, clock, data pins.Pin, value int, lsbFirst bool) error {
	if value < 0 {
		return model.InvalidArgument("value must be >= 0, got %d", value)
	}
	bits := strconv.FormatInt(int64(value), 2)
	if rem := len(bits) % 8; rem != 0 {
		bits = zeros[:8-rem] + bits
	}
	if err := g.DigitalWrite(latch, model.Low); err != nil {
		return maskAny(err)
	}
	for i := range bits {
		bit := bits[i]
		if lsbFirst {
			bit = bits[len(bits)-1-i]
		}
		state := model.Low
		if bit == '1' {
			state = model.High
		}
		if err := g.DigitalWrite(clock, model.Low); err != nil {
			return maskAny(err)
		}
		if err := g.DigitalWrite(data, state); err != nil {
			return maskAny(err)
		}
		if err := g.DigitalWrite(clock, model.High); err != nil {
			return maskAny(err)
		}
	}
	return maskAny(g.DigitalWrite(latch, model.High))
}

const zeros = "00000000"

// Pins returns all pins configured as GPIO.
func (g *GPIO) Pins() []pins.Pin {
	return g.reg.Pins(model.PinTypeGPIO)
}

// DisablePin is called by the device manager.
func (g *GPIO) DisablePin(ctx context.Context, p pins.Pin) error {
	return g.Disable(p)
}

// Disable stops any edge wait on the pin, closes its files, unexports
// it and unloads its pinmux overlay.
// Disabling a pin that is not configured is a no-op.
func (g *GPIO) Disable(p pins.Pin) error {
	if err := pins.Check(p, pins.CapabilityGPIO); err != nil {
		return maskAny(err)
	}
	switch g.reg.TypeOf(p) {
	case model.PinTypeUnclaimed:
		if !g.reg.Enabled(p) {
			return nil
		}
	case model.PinTypeGPIO:
	default:
		return model.NotEnabled("pin %s is not GPIO enabled", p)
	}
	g.StopEdgeWait(p)
	var ae aerr.AggregateError
	ae.Add(g.reg.Delete(p).Close())
	if !p.IsLED() {
		ae.Add(g.be.UnexportGPIO(p))
		if _, err := g.overlays.Unload(overlayPattern(p)); err != nil {
			ae.Add(err)
		}
		if g.be.GPIOExported(p) {
			ae.Add(errors.Errorf("unable to unexport pin %s", p))
		}
	}
	g.log.Debug().Str("pin", p.String()).Msg("Disabled pin")
	return ae.AsError()
}
