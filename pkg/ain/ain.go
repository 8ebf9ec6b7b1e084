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

// Package ain reads the analog inputs of the board and polls them for
// changes and threshold crossings.
package ain

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/backend"
	"github.com/binkynet/BoneIO/pkg/device"
	"github.com/binkynet/BoneIO/pkg/overlay"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/registry"
)

// MaxMillivolts is the highest value reported by the ADC (1.8V rail).
const MaxMillivolts = 1799

var (
	maskAny = errors.WithStack
)

// AIN implements the analog inputs.
type AIN struct {
	log      zerolog.Logger
	mgr      *device.Manager
	reg      *registry.Registry
	be       backend.Backend
	overlays overlay.Loader
}

// New creates the analog subsystem and registers it with the device manager.
func New(mgr *device.Manager, be backend.Backend, overlays overlay.Loader, log zerolog.Logger) *AIN {
	a := &AIN{
		log:      log.With().Str("component", "ain").Logger(),
		mgr:      mgr,
		reg:      mgr.Registry(),
		be:       be,
		overlays: overlays,
	}
	mgr.Register(model.PinTypeAnalog, a)
	return a
}

func checkMillivolts(name string, value int) error {
	if value < 0 || value > MaxMillivolts {
		return model.InvalidArgument("%s must be between 0 and %d, got %d", name, MaxMillivolts, value)
	}
	return nil
}

func checkInterval(interval time.Duration) error {
	if interval < 0 {
		return model.InvalidArgument("interval must be >= 0, got %s", interval)
	}
	return nil
}

// Read returns the current value of the analog pin in millivolts.
// The ADC overlay is loaded on first use.
func (a *AIN) Read(p pins.Pin) (int, error) {
	if err := pins.Check(p, pins.CapabilityAnalog); err != nil {
		return 0, maskAny(err)
	}
	wasEnabled := a.Enabled(p)
	if err := a.enable(p); err != nil {
		return 0, maskAny(err)
	}
	h, found := a.reg.Handle(p, backend.AttributeAnalog)
	if !found {
		var err error
		if h, err = a.open(p); err != nil {
			if !wasEnabled {
				a.disableUnread(p)
			}
			return 0, maskAny(err)
		}
	}
	mv, err := backend.ReadInt(h)
	if err != nil {
		return 0, maskAny(err)
	}
	readsTotal.WithLabelValues(p.String()).Inc()
	a.reg.Modify(p, func(s *registry.Status) {
		s.State = mv
		s.StateKnown = true
	})
	return mv, nil
}

// open the analog value file of the pin and cache it.
func (a *AIN) open(p pins.Pin) (backend.Handle, error) {
	if err := a.overlays.Load(overlay.ADC); err != nil {
		return nil, maskAny(err)
	}
	opened, err := a.be.Open(p, backend.AttributeAnalog)
	if err != nil {
		return nil, maskAny(err)
	}
	h, stored := a.reg.StoreHandle(p, backend.AttributeAnalog, opened)
	if !stored {
		if err := opened.Close(); err != nil {
			a.log.Debug().Err(err).Str("pin", p.String()).Msg("Failed to close duplicate handle")
		}
	}
	return h, nil
}

// disableUnread removes the record of a pin that was enabled for a call
// that failed before the pin was ever read.
func (a *AIN) disableUnread(p pins.Pin) {
	s, found := a.reg.Get(p)
	if !found || s.Type != model.PinTypeAnalog || s.StateKnown || s.Waiting || s.Background {
		return
	}
	if err := a.reg.Delete(p).Close(); err != nil {
		a.log.Debug().Err(err).Str("pin", p.String()).Msg("Failed to close handles of unread pin")
	}
}

// enable claims the pin for analog input.
func (a *AIN) enable(p pins.Pin) error {
	if a.reg.TypeOf(p) == model.PinTypeAnalog {
		return nil
	}
	return maskAny(a.mgr.Claim(context.Background(), p, model.PinTypeAnalog))
}

// Enabled returns true when the pin has been used as analog input.
func (a *AIN) Enabled(p pins.Pin) bool {
	return a.reg.TypeOf(p) == model.PinTypeAnalog
}

// Pins returns all pins used as analog input.
func (a *AIN) Pins() []pins.Pin {
	return a.reg.Pins(model.PinTypeAnalog)
}

// StopWait stops the background task of the pin and waits for it to end.
// It is a no-op when no task is running.
func (a *AIN) StopWait(p pins.Pin) {
	if t := a.reg.Task(p); t != nil {
		t.Stop()
	}
}

// DisablePin is called by the device manager during cleanup.
func (a *AIN) DisablePin(ctx context.Context, p pins.Pin) error {
	return a.Disable(p)
}

// Disable stops any wait on the pin and removes it from the registry.
// The ADC overlay stays loaded.
func (a *AIN) Disable(p pins.Pin) error {
	if err := pins.Check(p, pins.CapabilityAnalog); err != nil {
		return maskAny(err)
	}
	a.StopWait(p)
	if err := a.reg.Delete(p).Close(); err != nil {
		return maskAny(err)
	}
	return nil
}

// sleep waits for the given duration or until the context is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
