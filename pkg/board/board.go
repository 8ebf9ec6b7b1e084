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

// Package board wires all pin subsystems of a BeagleBone around a
// single pin registry.
package board

import (
	"context"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/ain"
	"github.com/binkynet/BoneIO/pkg/backend"
	"github.com/binkynet/BoneIO/pkg/backend/sysfs"
	"github.com/binkynet/BoneIO/pkg/device"
	"github.com/binkynet/BoneIO/pkg/gpio"
	"github.com/binkynet/BoneIO/pkg/i2c"
	"github.com/binkynet/BoneIO/pkg/overlay"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/pwm"
	"github.com/binkynet/BoneIO/pkg/registry"
	"github.com/binkynet/BoneIO/pkg/spi"
	"github.com/binkynet/BoneIO/pkg/uart"
)

var (
	maskAny = errors.WithStack
)

// Config of a board on real hardware.
type Config struct {
	Sysfs   sysfs.Config
	Overlay overlay.Config
}

// Board holds all pin subsystems.
type Board struct {
	log      zerolog.Logger
	Registry *registry.Registry
	Manager  *device.Manager
	GPIO     *gpio.GPIO
	AIN      *ain.AIN
	PWM      *pwm.PWM
	I2C      *i2c.I2C
	SPI      *spi.SPI
	UART     *uart.Ports
}

// New creates a board on top of the given backend & overlay loader.
func New(be backend.Backend, overlays overlay.Loader, log zerolog.Logger) *Board {
	reg := registry.New()
	mgr := device.NewManager(reg, log)
	return &Board{
		log:      log.With().Str("component", "board").Logger(),
		Registry: reg,
		Manager:  mgr,
		GPIO:     gpio.New(mgr, be, overlays, log),
		AIN:      ain.New(mgr, be, overlays, log),
		PWM:      pwm.New(mgr, be, overlays, log),
		I2C:      i2c.New(mgr, be, overlays, log),
		SPI:      spi.New(mgr, be, overlays, log),
		UART:     uart.New(mgr, be, overlays, log),
	}
}

// NewSysfs creates a board that accesses the hardware through sysfs
// and the cape manager.
func NewSysfs(cfg Config, log zerolog.Logger) *Board {
	return New(sysfs.New(cfg.Sysfs, log), overlay.NewCapeManager(cfg.Overlay, log), log)
}

// Disable releases the pin from whatever subsystem owns it.
func (b *Board) Disable(ctx context.Context, p pins.Pin) error {
	if b.Registry.TypeOf(p) == model.PinTypeAnalog {
		return maskAny(b.AIN.Disable(p))
	}
	return maskAny(b.Manager.Disable(ctx, p))
}

// Cleanup disables all pins and buses, stopping all background tasks.
// All errors are collected.
func (b *Board) Cleanup(ctx context.Context) error {
	var ae aerr.AggregateError
	ae.Add(b.Manager.Cleanup(ctx))
	// Buses without header pins are not known to the registry
	ae.Add(b.I2C.Cleanup())
	ae.Add(b.SPI.Cleanup())
	ae.Add(b.UART.Cleanup())
	if err := ae.AsError(); err != nil {
		b.log.Warn().Err(err).Msg("Cleanup finished with errors")
		return err
	}
	b.log.Debug().Msg("Cleanup finished")
	return nil
}

// Status returns a snapshot of all claimed pins, in header order.
func (b *Board) Status() []registry.Status {
	return b.Registry.All()
}
