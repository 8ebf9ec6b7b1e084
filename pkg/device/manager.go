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

// Package device resolves ownership conflicts between the pin subsystems.
// Every subsystem registers a Disabler for its pin type. Before a subsystem
// takes a pin, it calls Claim which disables any other prior owner.
package device

import (
	"context"
	"sync"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/registry"
)

var (
	maskAny = errors.WithStack
)

// Disabler releases a pin owned by a subsystem.
type Disabler interface {
	DisablePin(ctx context.Context, p pins.Pin) error
}

// DisablerFunc adapts a function to a Disabler.
type DisablerFunc func(ctx context.Context, p pins.Pin) error

// DisablePin calls f(ctx, p).
func (f DisablerFunc) DisablePin(ctx context.Context, p pins.Pin) error {
	return f(ctx, p)
}

// Manager dispatches disable requests to the subsystem owning a pin.
type Manager struct {
	log       zerolog.Logger
	reg       *registry.Registry
	mutex     sync.RWMutex
	disablers map[model.PinType]Disabler
}

// NewManager creates a manager for the given registry.
func NewManager(reg *registry.Registry, log zerolog.Logger) *Manager {
	return &Manager{
		log:       log.With().Str("component", "device-manager").Logger(),
		reg:       reg,
		disablers: make(map[model.PinType]Disabler),
	}
}

// Registry returns the registry managed by this manager.
func (m *Manager) Registry() *registry.Registry {
	return m.reg
}

// Register the disabler for pins of the given type.
func (m *Manager) Register(t model.PinType, d Disabler) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.disablers[t] = d
}

func (m *Manager) disabler(t model.PinType) (Disabler, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	d, found := m.disablers[t]
	return d, found
}

// Disable the pin by calling the disabler of its owner.
// Disabling an unclaimed pin is a no-op.
// Analog pins cannot be disabled this way (see ain.Disable).
func (m *Manager) Disable(ctx context.Context, p pins.Pin) error {
	t := m.reg.TypeOf(p)
	switch t {
	case model.PinTypeUnclaimed:
		if removed := m.reg.Delete(p); removed != nil {
			return maskAny(removed.Close())
		}
		return nil
	case model.PinTypeAnalog:
		return model.UnsupportedOperation("cannot disable analog pin %s", p)
	}
	d, found := m.disabler(t)
	if !found {
		return model.UnsupportedOperation("cannot disable %s pin %s", t, p)
	}
	m.log.Debug().Str("pin", p.String()).Str("type", t.String()).Msg("Disabling pin")
	if err := d.DisablePin(ctx, p); err != nil {
		return maskAny(err)
	}
	return nil
}

// Claim the pin for the given type.
// When the pin is owned by another type, that owner is disabled first.
func (m *Manager) Claim(ctx context.Context, p pins.Pin, t model.PinType) error {
	if !p.Valid() {
		return model.InvalidArgument("invalid pin %d", int(p))
	}
	if prior := m.reg.TypeOf(p); prior != model.PinTypeUnclaimed && prior != t {
		m.log.Info().
			Str("pin", p.String()).
			Str("prior", prior.String()).
			Str("type", t.String()).
			Msg("Pin owned by other subsystem, disabling it first")
		d, found := m.disabler(prior)
		if !found {
			return model.UnsupportedOperation("cannot take %s pin %s for %s", prior, p, t)
		}
		if err := d.DisablePin(ctx, p); err != nil {
			return maskAny(err)
		}
		conflictsResolvedTotal.WithLabelValues(prior.String(), t.String()).Inc()
	}
	m.reg.SetType(p, t)
	return nil
}

// Cleanup disables all claimed pins (of all types), collecting all errors.
func (m *Manager) Cleanup(ctx context.Context) error {
	var ae aerr.AggregateError
	for _, s := range m.reg.All() {
		if s.Type == model.PinTypeUnclaimed {
			if removed := m.reg.Delete(s.Pin); removed != nil {
				ae.Add(removed.Close())
			}
			continue
		}
		d, found := m.disabler(s.Type)
		if !found {
			ae.Add(model.UnsupportedOperation("no disabler for %s pin %s", s.Type, s.Pin))
			continue
		}
		if err := d.DisablePin(ctx, s.Pin); err != nil {
			m.log.Warn().Err(err).Str("pin", s.Pin.String()).Msg("Failed to disable pin")
			ae.Add(err)
		}
	}
	return ae.AsError()
}
