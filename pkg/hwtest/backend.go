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

// Package hwtest provides in-memory backends for tests of the pin subsystems.
package hwtest

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/backend"
	"github.com/binkynet/BoneIO/pkg/pins"
)

// Attr is the shared state of a single kernel file.
type Attr struct {
	mutex  sync.Mutex
	value  string
	script []string
	writes []string
	reads  int
	frozen bool
	ready  chan struct{}
}

func newAttr() *Attr {
	return &Attr{ready: make(chan struct{}, 1)}
}

// Script sets the values returned by subsequent reads.
// The last value is repeated once the script is exhausted.
func (a *Attr) Script(values ...string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.script = append([]string(nil), values...)
}

// Set the current value.
func (a *Attr) Set(value string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.value = value
	a.script = nil
}

// Value returns the current value.
func (a *Attr) Value() string {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.value
}

// Writes returns all values written so far.
func (a *Attr) Writes() []string {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return append([]string(nil), a.writes...)
}

// Reads returns the number of reads so far.
func (a *Attr) Reads() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.reads
}

// Freeze makes the file ignore writes (they are still recorded),
// like a kernel attribute that rejects a value.
func (a *Attr) Freeze() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.frozen = true
}

// Signal makes a pending (or the next) Wait return true.
func (a *Attr) Signal() {
	select {
	case a.ready <- struct{}{}:
	default:
	}
}

func (a *Attr) read() string {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.reads++
	if len(a.script) > 0 {
		a.value = a.script[0]
		if len(a.script) > 1 {
			a.script = a.script[1:]
		}
	}
	return a.value
}

func (a *Attr) write(value string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.writes = append(a.writes, value)
	if a.frozen {
		return
	}
	a.value = value
	a.script = nil
}

// handle is an open view on an Attr.
type handle struct {
	attr   *Attr
	mutex  sync.Mutex
	closed bool
}

func (h *handle) isClosed() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.closed
}

func (h *handle) Read() (string, error) {
	if h.isClosed() {
		return "", errors.Wrap(os.ErrClosed, "read")
	}
	return h.attr.read(), nil
}

func (h *handle) Write(value string) error {
	if h.isClosed() {
		return errors.Wrap(os.ErrClosed, "write")
	}
	h.attr.write(value)
	return nil
}

func (h *handle) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	if h.isClosed() {
		return false, errors.Wrap(os.ErrClosed, "wait")
	}
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case <-h.attr.ready:
		return true, nil
	case <-timeoutCh:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (h *handle) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.closed = true
	return nil
}

type attrKey struct {
	pin  pins.Pin
	attr backend.Attribute
}

// Backend is an in-memory backend.Backend.
type Backend struct {
	mutex    sync.Mutex
	attrs    map[attrKey]*Attr
	exported map[pins.Pin]model.Direction
	opens    map[attrKey]int
	i2c      map[string]*I2CDevice
	spi      map[string]*SPIDevice
	serial   map[string]*SerialPort
}

var _ backend.Backend = &Backend{}

// NewBackend creates an empty in-memory backend.
func NewBackend() *Backend {
	return &Backend{
		attrs:    make(map[attrKey]*Attr),
		exported: make(map[pins.Pin]model.Direction),
		opens:    make(map[attrKey]int),
		i2c:      make(map[string]*I2CDevice),
		spi:      make(map[string]*SPIDevice),
		serial:   make(map[string]*SerialPort),
	}
}

// Attr returns the state of the given kernel file, creating it when needed.
func (b *Backend) Attr(p pins.Pin, attr backend.Attribute) *Attr {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.getAttr(p, attr)
}

func (b *Backend) getAttr(p pins.Pin, attr backend.Attribute) *Attr {
	key := attrKey{p, attr}
	a, found := b.attrs[key]
	if !found {
		a = newAttr()
		if attr == backend.AttributeEdge {
			a.value = "none"
		}
		b.attrs[key] = a
	}
	return a
}

// Opens returns the number of times the given kernel file was opened.
func (b *Backend) Opens(p pins.Pin, attr backend.Attribute) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.opens[attrKey{p, attr}]
}

// ConfigureGPIO marks the pin exported with given direction.
func (b *Backend) ConfigureGPIO(p pins.Pin, dir model.Direction) error {
	if p.Info().GPIO == nil {
		return model.InvalidArgument("pin %s has no gpio", p)
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.exported[p] = dir
	b.getAttr(p, backend.AttributeDirection).Set(dir.String())
	return nil
}

// UnexportGPIO marks the pin unexported.
func (b *Backend) UnexportGPIO(p pins.Pin) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.exported, p)
	return nil
}

// GPIOExported returns true if the pin is exported.
func (b *Backend) GPIOExported(p pins.Pin) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	_, found := b.exported[p]
	return found
}

// Open a view on the given kernel file.
func (b *Backend) Open(p pins.Pin, attr backend.Attribute) (backend.Handle, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.opens[attrKey{p, attr}]++
	return &handle{attr: b.getAttr(p, attr)}, nil
}

// OpenI2C returns the in-memory I2C device of the given name.
func (b *Backend) OpenI2C(device string) (backend.I2CDevice, error) {
	d := b.I2C(device)
	d.mutex.Lock()
	d.closed = false
	d.mutex.Unlock()
	return d, nil
}

// I2C returns the in-memory I2C device of the given name, creating it when needed.
func (b *Backend) I2C(device string) *I2CDevice {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	d, found := b.i2c[device]
	if !found {
		d = &I2CDevice{Name: device, data: make(map[uint8][]byte)}
		b.i2c[device] = d
	}
	return d
}

// OpenSPI returns the in-memory SPI device of the given name.
func (b *Backend) OpenSPI(device string) (backend.SPIDevice, error) {
	d := b.SPI(device)
	d.mutex.Lock()
	d.closed = false
	d.mutex.Unlock()
	return d, nil
}

// SPI returns the in-memory SPI device of the given name, creating it when needed.
func (b *Backend) SPI(device string) *SPIDevice {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	d, found := b.spi[device]
	if !found {
		d = &SPIDevice{Name: device}
		b.spi[device] = d
	}
	return d
}

// OpenSerial returns the in-memory serial port of the given name.
func (b *Backend) OpenSerial(device string, baud int) (backend.SerialPort, error) {
	port := b.Serial(device)
	port.mutex.Lock()
	port.Baud = baud
	port.closed = false
	port.mutex.Unlock()
	return port, nil
}

// Serial returns the in-memory serial port of the given name, creating it when needed.
func (b *Backend) Serial(device string) *SerialPort {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	p, found := b.serial[device]
	if !found {
		p = &SerialPort{Name: device}
		b.serial[device] = p
	}
	return p
}
