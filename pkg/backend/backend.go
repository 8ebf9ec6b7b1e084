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

package backend

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/pins"
)

// Attribute selects a kernel file of a pin.
type Attribute int

const (
	// Digital value of a GPIO pin
	AttributeValue Attribute = iota
	// Direction (in/out) of a GPIO pin
	AttributeDirection
	// Edge trigger of a GPIO pin
	AttributeEdge
	// Millivolt reading of an analog pin
	AttributeAnalog
	// Trigger of an onboard LED
	AttributeTrigger
	// Brightness (value) of an onboard LED
	AttributeBrightness
	// PWM duty cycle in ns
	AttributeDuty
	// PWM period in ns
	AttributePeriod
	// PWM polarity
	AttributePolarity
	// PWM run state
	AttributeRun
)

func (a Attribute) String() string {
	switch a {
	case AttributeValue:
		return "value"
	case AttributeDirection:
		return "direction"
	case AttributeEdge:
		return "edge"
	case AttributeAnalog:
		return "analog"
	case AttributeTrigger:
		return "trigger"
	case AttributeBrightness:
		return "brightness"
	case AttributeDuty:
		return "duty"
	case AttributePeriod:
		return "period"
	case AttributePolarity:
		return "polarity"
	case AttributeRun:
		return "run"
	default:
		return fmt.Sprintf("Attribute(%d)", int(a))
	}
}

// Handle is an open kernel file of a pin.
type Handle interface {
	// Read rewinds the file and returns its trimmed content.
	Read() (string, error)
	// Write rewinds the file and writes the given value.
	Write(value string) error
	// Wait blocks until the kernel signals a change on the file,
	// the timeout elapses or the context is canceled.
	// Returns false when the timeout elapsed.
	// A timeout <= 0 waits without timeout.
	Wait(ctx context.Context, timeout time.Duration) (bool, error)
	// Close the file.
	Close() error
}

// I2CDevice is an open I2C bus device.
type I2CDevice interface {
	io.ReadWriteCloser
	// SetAddress selects the slave address used by Read & Write.
	SetAddress(address uint8) error
}

// SPITransfer describes a single full duplex SPI transfer.
type SPITransfer struct {
	TX          []byte
	RX          []byte
	SpeedHz     uint32
	DelayUSecs  uint16
	BitsPerWord uint8
}

// SPIDevice is an open spidev device.
type SPIDevice interface {
	io.Closer
	SetMode(mode uint8) error
	SetBitsPerWord(bpw uint8) error
	SetMaxSpeed(hz uint32) error
	Transfer(xfer SPITransfer) error
}

// SerialPort is an open UART.
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// Backend translates pins into kernel files.
type Backend interface {
	// ConfigureGPIO exports the GPIO of the pin and sets its direction.
	ConfigureGPIO(p pins.Pin, dir model.Direction) error
	// UnexportGPIO releases the GPIO of the pin.
	UnexportGPIO(p pins.Pin) error
	// GPIOExported returns true when the GPIO of the pin is exported.
	GPIOExported(p pins.Pin) bool
	// Open a kernel file of the pin.
	Open(p pins.Pin, attr Attribute) (Handle, error)
	// OpenI2C opens an I2C bus device (e.g. /dev/i2c-2).
	OpenI2C(device string) (I2CDevice, error)
	// OpenSPI opens a spidev device (e.g. /dev/spidev1.0).
	OpenSPI(device string) (SPIDevice, error)
	// OpenSerial opens a UART device at the given baud rate.
	OpenSerial(device string, baud int) (SerialPort, error)
}

// ReadInt reads the handle and parses its content as an integer.
func ReadInt(h Handle) (int, error) {
	s, err := h.Read()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer '%s'", s)
	}
	return v, nil
}

// WriteInt writes an integer to the handle.
func WriteInt(h Handle, v int) error {
	return h.Write(strconv.Itoa(v))
}
