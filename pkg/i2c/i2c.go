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

// Package i2c gives access to the I2C buses of the board.
package i2c

import (
	"context"
	"fmt"
	"io"
	"sync"

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

// Bus identifies an I2C bus.
type Bus int

const (
	I2C0 Bus = iota
	I2C1
	I2C2
	// I2C1 routed to alternate pins
	I2C1A
)

type busInfo struct {
	Name    string
	Device  string
	SCL     pins.Pin
	SDA     pins.Pin
	Overlay string
}

// The kernel numbers the buses in order of activation, I2C2 is active
// at boot and takes /dev/i2c-1.
var buses = map[Bus]busInfo{
	I2C0:  {Name: "I2C0", Device: "/dev/i2c-0"},
	I2C1:  {Name: "I2C1", Device: "/dev/i2c-2", SCL: pins.P9_17, SDA: pins.P9_18, Overlay: "BB-I2C1"},
	I2C2:  {Name: "I2C2", Device: "/dev/i2c-1", SCL: pins.P9_19, SDA: pins.P9_20},
	I2C1A: {Name: "I2C1A", Device: "/dev/i2c-2", SCL: pins.P9_24, SDA: pins.P9_26, Overlay: "BB-I2C1A1"},
}

func (b Bus) String() string {
	if info, found := buses[b]; found {
		return info.Name
	}
	return fmt.Sprintf("Bus(%d)", int(b))
}

// ParseBus converts a bus name such as "I2C2" into a Bus.
func ParseBus(name string) (Bus, error) {
	for b, info := range buses {
		if info.Name == name {
			return b, nil
		}
	}
	return 0, model.InvalidArgument("unknown i2c bus '%s'", name)
}

func (b Bus) info() (busInfo, error) {
	info, found := buses[b]
	if !found {
		return busInfo{}, model.InvalidArgument("invalid i2c bus %s", b)
	}
	return info, nil
}

// headerPins returns the header pins of the bus (none for the internal bus).
func (info busInfo) headerPins() []pins.Pin {
	if info.SCL == 0 {
		return nil
	}
	return []pins.Pin{info.SCL, info.SDA}
}

type openBus struct {
	// Serializes transactions on the bus
	mutex sync.Mutex
	dev   backend.I2CDevice
}

// I2C implements the I2C buses.
type I2C struct {
	log      zerolog.Logger
	mgr      *device.Manager
	reg      *registry.Registry
	be       backend.Backend
	overlays overlay.Loader

	mutex sync.Mutex
	open  map[Bus]*openBus
}

// New creates the I2C subsystem and registers it with the device manager.
func New(mgr *device.Manager, be backend.Backend, overlays overlay.Loader, log zerolog.Logger) *I2C {
	i := &I2C{
		log:      log.With().Str("component", "i2c").Logger(),
		mgr:      mgr,
		reg:      mgr.Registry(),
		be:       be,
		overlays: overlays,
		open:     make(map[Bus]*openBus),
	}
	mgr.Register(model.PinTypeI2C, i)
	return i
}

// Setup activates the bus. Pins owned by another subsystem are disabled first.
// Setting up an active bus is a no-op.
func (i *I2C) Setup(ctx context.Context, bus Bus) error {
	info, err := bus.info()
	if err != nil {
		return maskAny(err)
	}
	if i.Enabled(bus) {
		return nil
	}
	// No lock is held while claiming, since claiming may disable
	// a bus of another subsystem.
	if info.Overlay != "" {
		if err := i.overlays.Load(info.Overlay); err != nil {
			return maskAny(err)
		}
	}
	for _, p := range info.headerPins() {
		if err := i.mgr.Claim(ctx, p, model.PinTypeI2C); err != nil {
			i.releasePins(info)
			return maskAny(err)
		}
		i.reg.Update(p, func(s *registry.Status) { s.Bus = info.Name })
	}
	dev, err := i.be.OpenI2C(info.Device)
	if err != nil {
		i.releasePins(info)
		return maskAny(err)
	}
	i.mutex.Lock()
	if _, found := i.open[bus]; found {
		// Lost a race with a concurrent setup of the same bus
		i.mutex.Unlock()
		return maskAny(dev.Close())
	}
	i.open[bus] = &openBus{dev: dev}
	i.mutex.Unlock()
	i.log.Debug().Str("bus", info.Name).Str("device", info.Device).Msg("Setup bus")
	return nil
}

// releasePins removes the records of the bus pins.
func (i *I2C) releasePins(info busInfo) error {
	var ae aerr.AggregateError
	for _, p := range info.headerPins() {
		if i.reg.TypeOf(p) == model.PinTypeI2C {
			ae.Add(i.reg.Delete(p).Close())
		}
	}
	return ae.AsError()
}

// get returns the open bus.
func (i *I2C) get(bus Bus) (*openBus, error) {
	if _, err := bus.info(); err != nil {
		return nil, maskAny(err)
	}
	i.mutex.Lock()
	defer i.mutex.Unlock()
	ob, found := i.open[bus]
	if !found {
		return nil, model.NotEnabled("i2c bus %s is not enabled", bus)
	}
	return ob, nil
}

// Enabled returns true when the bus has been setup.
func (i *I2C) Enabled(bus Bus) bool {
	_, err := i.get(bus)
	return err == nil
}

func checkAddress(address int) error {
	if address < 0 || address > 0x7f {
		return model.InvalidArgument("i2c address must be between 0x00 and 0x7f, got 0x%x", address)
	}
	return nil
}

// Write sends data to the device with given address.
// Returns the number of bytes written.
func (i *I2C) Write(bus Bus, address int, data []byte) (int, error) {
	if err := checkAddress(address); err != nil {
		return 0, maskAny(err)
	}
	ob, err := i.get(bus)
	if err != nil {
		return 0, maskAny(err)
	}
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if err := ob.dev.SetAddress(uint8(address)); err != nil {
		return 0, maskAny(err)
	}
	n, err := ob.dev.Write(data)
	if err != nil {
		return n, maskAny(err)
	}
	transfersTotal.WithLabelValues(bus.String(), "write").Inc()
	bytesTotal.WithLabelValues(bus.String(), "write").Add(float64(n))
	return n, nil
}

// Read reads n bytes from the device with given address.
// When register is not empty, it is written first to select
// the register to read from.
func (i *I2C) Read(bus Bus, address int, n int, register []byte) ([]byte, error) {
	if err := checkAddress(address); err != nil {
		return nil, maskAny(err)
	}
	if n < 1 {
		return nil, model.InvalidArgument("number of bytes must be > 0, got %d", n)
	}
	ob, err := i.get(bus)
	if err != nil {
		return nil, maskAny(err)
	}
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if err := ob.dev.SetAddress(uint8(address)); err != nil {
		return nil, maskAny(err)
	}
	if len(register) > 0 {
		if _, err := ob.dev.Write(register); err != nil {
			return nil, maskAny(err)
		}
	}
	buf := make([]byte, n)
	read, err := ob.dev.Read(buf)
	if err != nil && err != io.EOF {
		return nil, maskAny(err)
	}
	transfersTotal.WithLabelValues(bus.String(), "read").Inc()
	bytesTotal.WithLabelValues(bus.String(), "read").Add(float64(read))
	return buf[:read], nil
}

// Disable closes the bus and removes its pins from the registry.
// The bus overlay stays loaded.
func (i *I2C) Disable(bus Bus) error {
	info, err := bus.info()
	if err != nil {
		return maskAny(err)
	}
	i.mutex.Lock()
	ob, found := i.open[bus]
	delete(i.open, bus)
	i.mutex.Unlock()
	if !found {
		return model.NotEnabled("i2c bus %s is not enabled", bus)
	}

	// Wait for a running transaction
	ob.mutex.Lock()
	defer ob.mutex.Unlock()
	var ae aerr.AggregateError
	ae.Add(ob.dev.Close())
	ae.Add(i.releasePins(info))
	i.log.Debug().Str("bus", info.Name).Msg("Disabled bus")
	return ae.AsError()
}

// Buses returns all active buses.
func (i *I2C) Buses() []Bus {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	var result []Bus
	for b := I2C0; b <= I2C1A; b++ {
		if _, found := i.open[b]; found {
			result = append(result, b)
		}
	}
	return result
}

// Cleanup disables all active buses.
func (i *I2C) Cleanup() error {
	var ae aerr.AggregateError
	for _, b := range i.Buses() {
		ae.Add(i.Disable(b))
	}
	return ae.AsError()
}

// DisablePin is called by the device manager when another subsystem
// takes a pin of an active bus. The whole bus is disabled.
func (i *I2C) DisablePin(ctx context.Context, p pins.Pin) error {
	s, found := i.reg.Get(p)
	if !found {
		return nil
	}
	if bus, err := ParseBus(s.Bus); err == nil && i.Enabled(bus) {
		return maskAny(i.Disable(bus))
	}
	return maskAny(i.reg.Delete(p).Close())
}
