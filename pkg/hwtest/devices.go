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

package hwtest

import (
	"bytes"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/binkynet/BoneIO/pkg/backend"
)

// I2CDevice is an in-memory I2C bus.
// Writes are recorded per address, reads return the data set with SetData.
type I2CDevice struct {
	Name    string
	mutex   sync.Mutex
	address uint8
	data    map[uint8][]byte
	written []I2CWrite
	closed  bool
}

// I2CWrite is a single recorded write.
type I2CWrite struct {
	Address uint8
	Data    []byte
}

// SetData sets the bytes returned by reads from the given address.
func (d *I2CDevice) SetData(address uint8, data []byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.data[address] = append([]byte(nil), data...)
}

// Written returns all recorded writes.
func (d *I2CDevice) Written() []I2CWrite {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]I2CWrite(nil), d.written...)
}

// Closed returns true once the device has been closed.
func (d *I2CDevice) Closed() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.closed
}

func (d *I2CDevice) SetAddress(address uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.address = address
	return nil
}

func (d *I2CDevice) Read(b []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return 0, errors.Wrap(os.ErrClosed, "read")
	}
	return copy(b, d.data[d.address]), nil
}

func (d *I2CDevice) Write(b []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return 0, errors.Wrap(os.ErrClosed, "write")
	}
	d.written = append(d.written, I2CWrite{Address: d.address, Data: append([]byte(nil), b...)})
	return len(b), nil
}

func (d *I2CDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.closed = true
	return nil
}

// SPIDevice is an in-memory spidev device that echoes transmitted bytes
// (loopback) unless a response is set.
type SPIDevice struct {
	Name        string
	mutex       sync.Mutex
	Mode        uint8
	BitsPerWord uint8
	MaxSpeed    uint32
	response    []byte
	transfers   []backend.SPITransfer
	closed      bool
}

// SetResponse sets the bytes received during the next transfers.
func (d *SPIDevice) SetResponse(rx []byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.response = append([]byte(nil), rx...)
}

// Transfers returns all recorded transfers.
func (d *SPIDevice) Transfers() []backend.SPITransfer {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]backend.SPITransfer(nil), d.transfers...)
}

// Closed returns true once the device has been closed.
func (d *SPIDevice) Closed() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.closed
}

func (d *SPIDevice) SetMode(mode uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.Mode = mode
	return nil
}

func (d *SPIDevice) SetBitsPerWord(bpw uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.BitsPerWord = bpw
	return nil
}

func (d *SPIDevice) SetMaxSpeed(hz uint32) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.MaxSpeed = hz
	return nil
}

func (d *SPIDevice) Transfer(xfer backend.SPITransfer) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return errors.Wrap(os.ErrClosed, "transfer")
	}
	if xfer.RX != nil {
		if d.response != nil {
			copy(xfer.RX, d.response)
		} else {
			copy(xfer.RX, xfer.TX)
		}
	}
	d.transfers = append(d.transfers, xfer)
	return nil
}

func (d *SPIDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.closed = true
	return nil
}

// SerialPort is an in-memory UART.
// Data added with Feed is returned by Read, written data is kept for Output.
type SerialPort struct {
	Name   string
	Baud   int
	mutex  sync.Mutex
	input  bytes.Buffer
	output bytes.Buffer
	closed bool
}

// Feed adds data to be read from the port.
func (p *SerialPort) Feed(data string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.input.WriteString(data)
}

// Output returns all data written to the port.
func (p *SerialPort) Output() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.output.String()
}

// Read returns fed data, or nothing after a short delay (like a read timeout).
func (p *SerialPort) Read(b []byte) (int, error) {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return 0, errors.Wrap(os.ErrClosed, "read")
	}
	if p.input.Len() > 0 {
		defer p.mutex.Unlock()
		return p.input.Read(b)
	}
	p.mutex.Unlock()
	time.Sleep(5 * time.Millisecond)
	return 0, nil
}

func (p *SerialPort) Write(b []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return 0, errors.Wrap(os.ErrClosed, "write")
	}
	return p.output.Write(b)
}

func (p *SerialPort) Flush() error {
	return nil
}

func (p *SerialPort) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.closed = true
	return nil
}

// Overlays is an in-memory overlay.Loader.
type Overlays struct {
	mutex    sync.Mutex
	loaded   map[string]struct{}
	loads    []string
	unloads  []string
	FailLoad map[string]error
}

// NewOverlays creates an empty in-memory overlay loader.
func NewOverlays() *Overlays {
	return &Overlays{
		loaded:   make(map[string]struct{}),
		FailLoad: make(map[string]error),
	}
}

func (o *Overlays) Load(name string) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if err, found := o.FailLoad[name]; found {
		return err
	}
	if _, found := o.loaded[name]; found {
		return nil
	}
	o.loaded[name] = struct{}{}
	o.loads = append(o.loads, name)
	return nil
}

func (o *Overlays) Unload(pattern string) (bool, error) {
	expr, err := regexp.Compile(`^` + pattern + `$`)
	if err != nil {
		return false, errors.WithStack(err)
	}
	o.mutex.Lock()
	defer o.mutex.Unlock()
	for name := range o.loaded {
		if expr.MatchString(name) {
			delete(o.loaded, name)
			o.unloads = append(o.unloads, name)
			return true, nil
		}
	}
	return false, nil
}

func (o *Overlays) IsLoaded(name string) (bool, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	_, found := o.loaded[name]
	return found, nil
}

// Loads returns the names of all overlays loaded so far (in order).
func (o *Overlays) Loads() []string {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return append([]string(nil), o.loads...)
}

// Unloads returns the names of all overlays unloaded so far (in order).
func (o *Overlays) Unloads() []string {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return append([]string(nil), o.unloads...)
}
