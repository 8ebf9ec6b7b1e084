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

// Package uart gives access to the serial ports on the expansion headers.
package uart

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

// DefaultSpeed of a port in baud.
const DefaultSpeed = 9600

// Speeds lists the supported baud rates.
var Speeds = []int{110, 300, 600, 1200, 2400, 4800, 9600, 14400, 19200, 28800, 38400, 56000, 57600, 115200}

var (
	maskAny = errors.WithStack
)

// UART identifies a serial port.
type UART int

const (
	UART1 UART = iota + 1
	UART2
	// Transmit only
	UART3
	UART4
	UART5
)

type portInfo struct {
	RX     pins.Pin
	TX     pins.Pin
	Device string
}

var ports = map[UART]portInfo{
	UART1: {RX: pins.P9_26, TX: pins.P9_24, Device: "/dev/ttyO1"},
	UART2: {RX: pins.P9_22, TX: pins.P9_21, Device: "/dev/ttyO2"},
	UART3: {TX: pins.P9_42, Device: "/dev/ttyO3"},
	UART4: {RX: pins.P9_11, TX: pins.P9_13, Device: "/dev/ttyO4"},
	UART5: {RX: pins.P8_38, TX: pins.P8_37, Device: "/dev/ttyO5"},
}

func (u UART) String() string {
	if _, found := ports[u]; found {
		return fmt.Sprintf("UART%d", int(u))
	}
	return fmt.Sprintf("UART(%d)", int(u))
}

// ParseUART converts a name such as "UART4" into a UART.
func ParseUART(name string) (UART, error) {
	for u := range ports {
		if u.String() == name {
			return u, nil
		}
	}
	return 0, model.InvalidArgument("unknown uart '%s'", name)
}

func (u UART) info() (portInfo, error) {
	info, found := ports[u]
	if !found {
		return portInfo{}, model.InvalidArgument("invalid uart %s", u)
	}
	return info, nil
}

func (u UART) overlay() string {
	return fmt.Sprintf("%s%d", overlay.UARTPrefix, int(u))
}

func (info portInfo) headerPins() []pins.Pin {
	if info.RX == 0 {
		return []pins.Pin{info.TX}
	}
	return []pins.Pin{info.RX, info.TX}
}

func checkSpeed(speed int) error {
	for _, s := range Speeds {
		if s == speed {
			return nil
		}
	}
	return model.InvalidArgument("unsupported speed %d", speed)
}

type openPort struct {
	// Guards port & speed, serializes writes
	mutex sync.Mutex
	port  backend.SerialPort
	speed int
	// Bytes received but not yet consumed.
	// Only accessed by the owner of the rx claim.
	pending []byte
}

func (op *openPort) current() backend.SerialPort {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	return op.port
}

// Ports implements the serial ports.
type Ports struct {
	log      zerolog.Logger
	mgr      *device.Manager
	reg      *registry.Registry
	be       backend.Backend
	overlays overlay.Loader

	mutex sync.Mutex
	open  map[UART]*openPort
}

// New creates the UART subsystem and registers it with the device manager.
func New(mgr *device.Manager, be backend.Backend, overlays overlay.Loader, log zerolog.Logger) *Ports {
	u := &Ports{
		log:      log.With().Str("component", "uart").Logger(),
		mgr:      mgr,
		reg:      mgr.Registry(),
		be:       be,
		overlays: overlays,
		open:     make(map[UART]*openPort),
	}
	mgr.Register(model.PinTypeUART, u)
	return u
}

// Setup activates the port at the given speed.
// Pins owned by another subsystem are disabled first.
// Setting up an active port is a no-op.
func (u *Ports) Setup(ctx context.Context, uart UART, speed int) error {
	info, err := uart.info()
	if err != nil {
		return maskAny(err)
	}
	if err := checkSpeed(speed); err != nil {
		return maskAny(err)
	}
	if u.Enabled(uart) {
		return nil
	}
	if err := u.overlays.Load(uart.overlay()); err != nil {
		return maskAny(err)
	}
	for _, p := range info.headerPins() {
		if err := u.mgr.Claim(ctx, p, model.PinTypeUART); err != nil {
			u.releasePins(info)
			return maskAny(err)
		}
		u.reg.Update(p, func(s *registry.Status) { s.Bus = uart.String() })
	}
	port, err := u.be.OpenSerial(info.Device, speed)
	if err != nil {
		u.releasePins(info)
		return maskAny(err)
	}
	u.mutex.Lock()
	if _, found := u.open[uart]; found {
		u.mutex.Unlock()
		return maskAny(port.Close())
	}
	u.open[uart] = &openPort{port: port, speed: speed}
	u.mutex.Unlock()
	u.log.Debug().Str("uart", uart.String()).Str("device", info.Device).Int("speed", speed).Msg("Setup port")
	return nil
}

func (u *Ports) releasePins(info portInfo) error {
	var ae aerr.AggregateError
	for _, p := range info.headerPins() {
		if u.reg.TypeOf(p) == model.PinTypeUART {
			ae.Add(u.reg.Delete(p).Close())
		}
	}
	return ae.AsError()
}

func (u *Ports) get(uart UART) (*openPort, portInfo, error) {
	info, err := uart.info()
	if err != nil {
		return nil, portInfo{}, maskAny(err)
	}
	u.mutex.Lock()
	defer u.mutex.Unlock()
	op, found := u.open[uart]
	if !found {
		return nil, portInfo{}, model.NotEnabled("uart %s is not enabled", uart)
	}
	return op, info, nil
}

// Enabled returns true when the port has been setup.
func (u *Ports) Enabled(uart UART) bool {
	_, _, err := u.get(uart)
	return err == nil
}

// Speed returns the current speed of the port.
func (u *Ports) Speed(uart UART) (int, error) {
	op, _, err := u.get(uart)
	if err != nil {
		return 0, maskAny(err)
	}
	op.mutex.Lock()
	defer op.mutex.Unlock()
	return op.speed, nil
}

// SetSpeed reopens the port at the given speed.
// Fails with AlreadyWaiting while a read is in progress.
func (u *Ports) SetSpeed(uart UART, speed int) error {
	if err := checkSpeed(speed); err != nil {
		return maskAny(err)
	}
	op, info, err := u.get(uart)
	if err != nil {
		return maskAny(err)
	}
	if info.RX != 0 {
		if s, _ := u.reg.Get(info.RX); s.Waiting || s.Background {
			return model.AlreadyWaiting("cannot change speed of %s while reading", uart)
		}
	}
	op.mutex.Lock()
	defer op.mutex.Unlock()
	if op.speed == speed {
		return nil
	}
	if err := op.port.Close(); err != nil {
		u.log.Debug().Err(err).Str("uart", uart.String()).Msg("Failed to close port")
	}
	port, err := u.be.OpenSerial(info.Device, speed)
	if err != nil {
		return maskAny(err)
	}
	op.port = port
	op.speed = speed
	op.pending = nil
	return nil
}

// Write sends data to the port. Returns the number of bytes written.
func (u *Ports) Write(uart UART, data []byte) (int, error) {
	op, _, err := u.get(uart)
	if err != nil {
		return 0, maskAny(err)
	}
	op.mutex.Lock()
	defer op.mutex.Unlock()
	n, err := op.port.Write(data)
	if err != nil {
		return n, maskAny(err)
	}
	if err := op.port.Flush(); err != nil {
		return n, maskAny(err)
	}
	bytesTotal.WithLabelValues(uart.String(), "tx").Add(float64(n))
	return n, nil
}

// WriteLine sends the line followed by a newline.
func (u *Ports) WriteLine(uart UART, line string) (int, error) {
	return u.Write(uart, []byte(line+"\n"))
}

// Pins returns the pins claimed by active ports.
func (u *Ports) Pins() []pins.Pin {
	return u.reg.Pins(model.PinTypeUART)
}

// UARTs returns all active ports.
func (u *Ports) UARTs() []UART {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	var result []UART
	for x := UART1; x <= UART5; x++ {
		if _, found := u.open[x]; found {
			result = append(result, x)
		}
	}
	return result
}

// Disable stops any read, closes the port and removes its pins from
// the registry. The overlay stays loaded.
func (u *Ports) Disable(uart UART) error {
	info, err := uart.info()
	if err != nil {
		return maskAny(err)
	}
	if !u.Enabled(uart) {
		return model.NotEnabled("uart %s is not enabled", uart)
	}
	u.StopRead(uart)

	u.mutex.Lock()
	op, found := u.open[uart]
	delete(u.open, uart)
	u.mutex.Unlock()
	if !found {
		return nil
	}
	var ae aerr.AggregateError
	ae.Add(op.current().Close())
	ae.Add(u.releasePins(info))
	u.log.Debug().Str("uart", uart.String()).Msg("Disabled port")
	return ae.AsError()
}

// Cleanup disables all active ports.
func (u *Ports) Cleanup() error {
	var ae aerr.AggregateError
	for _, x := range u.UARTs() {
		ae.Add(u.Disable(x))
	}
	return ae.AsError()
}

// DisablePin is called by the device manager when another subsystem
// takes a pin of an active port. The whole port is disabled.
func (u *Ports) DisablePin(ctx context.Context, p pins.Pin) error {
	s, found := u.reg.Get(p)
	if !found {
		return nil
	}
	if x, err := ParseUART(s.Bus); err == nil && u.Enabled(x) {
		return maskAny(u.Disable(x))
	}
	return maskAny(u.reg.Delete(p).Close())
}

// readByte returns the next received byte, blocking until one is
// available or the context is canceled.
func readByte(ctx context.Context, op *openPort) (byte, error) {
	var buf [64]byte
	for {
		if len(op.pending) > 0 {
			b := op.pending[0]
			op.pending = op.pending[1:]
			return b, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := op.current().Read(buf[:])
		if n > 0 {
			op.pending = append(op.pending, buf[:n]...)
			continue
		}
		// A read timeout shows up as EOF
		if err != nil && err != io.EOF {
			return 0, maskAny(err)
		}
	}
}
