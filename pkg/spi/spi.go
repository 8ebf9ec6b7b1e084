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

// Package spi gives access to the SPI buses of the board through spidev.
package spi

import (
	"context"
	"fmt"
	"sync"

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
	DefaultSpeed       = 1000000
	DefaultBitsPerWord = 8
	maxBitsPerWord     = 32
)

var (
	maskAny = errors.WithStack
)

// Bus identifies an SPI bus.
type Bus int

const (
	SPI0 Bus = iota
	SPI1
	// SPI1 with CS0 on P9_20
	SPI1A
)

type busInfo struct {
	Name    string
	CS0     pins.Pin
	SCLK    pins.Pin
	D0      pins.Pin
	D1      pins.Pin
	Overlay string
}

var buses = map[Bus]busInfo{
	SPI0:  {Name: "SPI0", CS0: pins.P9_17, SCLK: pins.P9_22, D0: pins.P9_21, D1: pins.P9_18, Overlay: "BB-SPIDEV0"},
	SPI1:  {Name: "SPI1", CS0: pins.P9_28, SCLK: pins.P9_31, D0: pins.P9_29, D1: pins.P9_30, Overlay: "BB-SPIDEV1"},
	SPI1A: {Name: "SPI1A", CS0: pins.P9_20, SCLK: pins.P9_42, D0: pins.P9_29, D1: pins.P9_30, Overlay: "BB-SPIDEV1A1"},
}

func (b Bus) String() string {
	if info, found := buses[b]; found {
		return info.Name
	}
	return fmt.Sprintf("Bus(%d)", int(b))
}

// ParseBus converts a bus name such as "SPI0" into a Bus.
func ParseBus(name string) (Bus, error) {
	for b, info := range buses {
		if info.Name == name {
			return b, nil
		}
	}
	return 0, model.InvalidArgument("unknown spi bus '%s'", name)
}

func (b Bus) info() (busInfo, error) {
	info, found := buses[b]
	if !found {
		return busInfo{}, model.InvalidArgument("invalid spi bus %s", b)
	}
	return info, nil
}

func (info busInfo) headerPins() []pins.Pin {
	return []pins.Pin{info.CS0, info.SCLK, info.D0, info.D1}
}

// Mode is the SPI clock mode (CPOL/CPHA).
type Mode uint8

const (
	Mode0 Mode = 0
	Mode1 Mode = 1
	Mode2 Mode = 2
	Mode3 Mode = 3
)

func checkMode(m Mode) error {
	if m > Mode3 {
		return model.InvalidArgument("spi mode must be 0..3, got %d", m)
	}
	return nil
}

func checkSpeed(hz int) error {
	if hz <= 0 {
		return model.InvalidArgument("speed must be > 0, got %d", hz)
	}
	return nil
}

func checkBitsPerWord(bpw int) error {
	if bpw < 1 || bpw > maxBitsPerWord {
		return model.InvalidArgument("bits per word must be between 1 and %d, got %d", maxBitsPerWord, bpw)
	}
	return nil
}

type settings struct {
	mode  Mode
	speed int
	bpw   int
	delay int
}

// Option configures Setup or Xfer.
type Option func(*settings)

// WithMode sets the clock mode (Setup only).
func WithMode(m Mode) Option {
	return func(s *settings) { s.mode = m }
}

// WithSpeed sets the clock speed in Hz.
func WithSpeed(hz int) Option {
	return func(s *settings) { s.speed = hz }
}

// WithBitsPerWord sets the word size.
func WithBitsPerWord(bpw int) Option {
	return func(s *settings) { s.bpw = bpw }
}

// WithDelay sets the delay after a transfer in microseconds (Xfer only).
func WithDelay(usecs int) Option {
	return func(s *settings) { s.delay = usecs }
}

func (s settings) validate() error {
	if err := checkMode(s.mode); err != nil {
		return err
	}
	if err := checkSpeed(s.speed); err != nil {
		return err
	}
	if err := checkBitsPerWord(s.bpw); err != nil {
		return err
	}
	if s.delay < 0 || s.delay > 0xffff {
		return model.InvalidArgument("delay must be between 0 and 65535 usecs, got %d", s.delay)
	}
	return nil
}

type openBus struct {
	// Serializes transfers & settings changes on the bus
	mutex    sync.Mutex
	dev      backend.SPIDevice
	device   string
	settings settings
}

// SPI implements the SPI buses.
type SPI struct {
	log      zerolog.Logger
	mgr      *device.Manager
	reg      *registry.Registry
	be       backend.Backend
	overlays overlay.Loader

	mutex sync.Mutex
	open  map[Bus]*openBus
	// spidev device of every bus that has been set up
	devices map[Bus]string
	counter int
}

// New creates the SPI subsystem and registers it with the device manager.
func New(mgr *device.Manager, be backend.Backend, overlays overlay.Loader, log zerolog.Logger) *SPI {
	s := &SPI{
		log:      log.With().Str("component", "spi").Logger(),
		mgr:      mgr,
		reg:      mgr.Registry(),
		be:       be,
		overlays: overlays,
		open:     make(map[Bus]*openBus),
		devices:  make(map[Bus]string),
		counter:  1,
	}
	mgr.Register(model.PinTypeSPI, s)
	return s
}

// deviceFor returns the spidev device of the bus.
// The kernel numbers spidev devices in order of overlay activation.
// Overlays are never unloaded, so a bus keeps its device.
func (s *SPI) deviceFor(bus Bus) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if dev, found := s.devices[bus]; found {
		return dev
	}
	dev := fmt.Sprintf("/dev/spidev%d.0", s.counter)
	s.counter++
	s.devices[bus] = dev
	return dev
}

// Setup activates the bus. Pins owned by another subsystem are disabled first.
// Setting up an active bus is a no-op.
func (s *SPI) Setup(ctx context.Context, bus Bus, opts ...Option) error {
	info, err := bus.info()
	if err != nil {
		return maskAny(err)
	}
	cfg := settings{mode: Mode0, speed: DefaultSpeed, bpw: DefaultBitsPerWord}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return maskAny(err)
	}
	if s.Enabled(bus) {
		return nil
	}

	if err := s.overlays.Load(info.Overlay); err != nil {
		return maskAny(err)
	}
	for _, p := range info.headerPins() {
		// SPI1 and SPI1A share their data pins
		if st, found := s.reg.Get(p); found && st.Type == model.PinTypeSPI && st.Bus != info.Name {
			if other, err := ParseBus(st.Bus); err == nil && s.Enabled(other) {
				if err := s.Disable(other); err != nil {
					return maskAny(err)
				}
			}
		}
		if err := s.mgr.Claim(ctx, p, model.PinTypeSPI); err != nil {
			s.releasePins(info)
			return maskAny(err)
		}
		s.reg.Update(p, func(st *registry.Status) { st.Bus = info.Name })
	}
	name := s.deviceFor(bus)
	dev, err := s.be.OpenSPI(name)
	if err != nil {
		s.releasePins(info)
		return maskAny(err)
	}
	ob := &openBus{dev: dev, device: name}
	if err := configure(ob, cfg); err != nil {
		dev.Close()
		s.releasePins(info)
		return maskAny(err)
	}

	s.mutex.Lock()
	if _, found := s.open[bus]; found {
		s.mutex.Unlock()
		return maskAny(dev.Close())
	}
	s.open[bus] = ob
	s.mutex.Unlock()
	s.log.Debug().
		Str("bus", info.Name).
		Str("device", name).
		Uint8("mode", uint8(cfg.mode)).
		Str("speed", humanize.SIWithDigits(float64(cfg.speed), 2, "Hz")).
		Int("bpw", cfg.bpw).
		Msg("Setup bus")
	return nil
}

func configure(ob *openBus, cfg settings) error {
	if err := ob.dev.SetMode(uint8(cfg.mode)); err != nil {
		return maskAny(err)
	}
	if err := ob.dev.SetBitsPerWord(uint8(cfg.bpw)); err != nil {
		return maskAny(err)
	}
	if err := ob.dev.SetMaxSpeed(uint32(cfg.speed)); err != nil {
		return maskAny(err)
	}
	ob.settings = cfg
	return nil
}

// releasePins removes the records of the bus pins.
func (s *SPI) releasePins(info busInfo) error {
	var ae aerr.AggregateError
	for _, p := range info.headerPins() {
		if s.reg.TypeOf(p) == model.PinTypeSPI {
			ae.Add(s.reg.Delete(p).Close())
		}
	}
	return ae.AsError()
}

func (s *SPI) get(bus Bus) (*openBus, error) {
	if _, err := bus.info(); err != nil {
		return nil, maskAny(err)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ob, found := s.open[bus]
	if !found {
		return nil, model.NotEnabled("spi bus %s is not enabled", bus)
	}
	return ob, nil
}

// Enabled returns true when the bus has been setup.
func (s *SPI) Enabled(bus Bus) bool {
	_, err := s.get(bus)
	return err == nil
}

// Device returns the spidev device of an active bus.
func (s *SPI) Device(bus Bus) (string, error) {
	ob, err := s.get(bus)
	if err != nil {
		return "", maskAny(err)
	}
	return ob.device, nil
}

// Xfer does a full duplex transfer of tx and returns the received bytes.
// The transfer is max(len(tx), readBytes) long, tx is padded with zeros.
// Speed and word size default to the bus settings.
func (s *SPI) Xfer(bus Bus, tx []byte, readBytes int, opts ...Option) ([]byte, error) {
	if readBytes < 0 {
		return nil, model.InvalidArgument("read bytes must be >= 0, got %d", readBytes)
	}
	ob, err := s.get(bus)
	if err != nil {
		return nil, maskAny(err)
	}
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	cfg := ob.settings
	cfg.delay = 0
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, maskAny(err)
	}
	n := max(len(tx), readBytes)
	buf := make([]byte, n)
	copy(buf, tx)
	rx := make([]byte, n)
	if err := ob.dev.Transfer(backend.SPITransfer{
		TX:          buf,
		RX:          rx,
		SpeedHz:     uint32(cfg.speed),
		DelayUSecs:  uint16(cfg.delay),
		BitsPerWord: uint8(cfg.bpw),
	}); err != nil {
		return nil, maskAny(err)
	}
	transfersTotal.WithLabelValues(bus.String()).Inc()
	bytesTotal.WithLabelValues(bus.String()).Add(float64(n))
	return rx, nil
}

// SetMode changes the clock mode of the bus.
func (s *SPI) SetMode(bus Bus, m Mode) error {
	if err := checkMode(m); err != nil {
		return maskAny(err)
	}
	return s.update(bus, func(cfg *settings) { cfg.mode = m })
}

// SetBitsPerWord changes the word size of the bus.
func (s *SPI) SetBitsPerWord(bus Bus, bpw int) error {
	if err := checkBitsPerWord(bpw); err != nil {
		return maskAny(err)
	}
	return s.update(bus, func(cfg *settings) { cfg.bpw = bpw })
}

// SetSpeed changes the maximum clock speed of the bus in Hz.
func (s *SPI) SetSpeed(bus Bus, hz int) error {
	if err := checkSpeed(hz); err != nil {
		return maskAny(err)
	}
	return s.update(bus, func(cfg *settings) { cfg.speed = hz })
}

func (s *SPI) update(bus Bus, fn func(*settings)) error {
	ob, err := s.get(bus)
	if err != nil {
		return maskAny(err)
	}
	ob.mutex.Lock()
	defer ob.mutex.Unlock()
	cfg := ob.settings
	fn(&cfg)
	return maskAny(configure(ob, cfg))
}

// Disable closes the bus and removes its pins from the registry.
// The bus overlay stays loaded.
func (s *SPI) Disable(bus Bus) error {
	info, err := bus.info()
	if err != nil {
		return maskAny(err)
	}
	s.mutex.Lock()
	ob, found := s.open[bus]
	delete(s.open, bus)
	s.mutex.Unlock()
	if !found {
		return model.NotEnabled("spi bus %s is not enabled", bus)
	}

	ob.mutex.Lock()
	defer ob.mutex.Unlock()
	var ae aerr.AggregateError
	ae.Add(ob.dev.Close())
	ae.Add(s.releasePins(info))
	s.log.Debug().Str("bus", info.Name).Msg("Disabled bus")
	return ae.AsError()
}

// Buses returns all active buses.
func (s *SPI) Buses() []Bus {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var result []Bus
	for b := SPI0; b <= SPI1A; b++ {
		if _, found := s.open[b]; found {
			result = append(result, b)
		}
	}
	return result
}

// Cleanup disables all active buses.
func (s *SPI) Cleanup() error {
	var ae aerr.AggregateError
	for _, b := range s.Buses() {
		ae.Add(s.Disable(b))
	}
	return ae.AsError()
}

// DisablePin is called by the device manager when another subsystem
// takes a pin of an active bus. The whole bus is disabled.
func (s *SPI) DisablePin(ctx context.Context, p pins.Pin) error {
	st, found := s.reg.Get(p)
	if !found {
		return nil
	}
	if bus, err := ParseBus(st.Bus); err == nil && s.Enabled(bus) {
		return maskAny(s.Disable(bus))
	}
	return maskAny(s.reg.Delete(p).Close())
}
