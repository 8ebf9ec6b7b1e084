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

package pins

import (
	"fmt"
	"strings"

	"github.com/binkynet/BoneIO/model"
)

// Pin identifies a single physical header pin (or onboard LED).
// The zero value is not a valid pin.
type Pin uint8

// GPIOInfo holds the GPIO addressing of a pin.
type GPIOInfo struct {
	// Kernel GPIO number (as used in /sys/class/gpio/export)
	Number int
	// Name of the GPIO function in the pinmux
	Func string
	// Offset of the pinmux register
	MuxOffset int
}

// AnalogInfo holds the ADC channel of an analog input pin.
type AnalogInfo struct {
	Channel int
}

// PWMInfo holds the PWM channel of a pin.
type PWMInfo struct {
	Name string
	ID   int
	Mux  int
}

// BusFunction describes the membership of a pin in a serial bus.
type BusFunction struct {
	Name string
	ID   int
}

// Info describes the capabilities of a pin.
// A nil capability means the pin does not support it.
type Info struct {
	GPIO   *GPIOInfo
	Analog *AnalogInfo
	PWM    *PWMInfo
	I2C    *BusFunction
	SPI    *BusFunction
	UART   *BusFunction
	MMC    string
	LCD    string
	Timer  string
	MCASP  string
	LED    string
	Supply string
}

// Valid returns true if p is a known pin.
func (p Pin) Valid() bool {
	return p > 0 && int(p) < len(pinNames)
}

// String returns the header name of the pin (e.g. "P9_14").
func (p Pin) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Pin(%d)", uint8(p))
	}
	return pinNames[p]
}

// Info returns the capabilities of the pin.
func (p Pin) Info() Info {
	if !p.Valid() {
		return Info{}
	}
	return capabilities[p]
}

// IsLED returns true for the onboard user LEDs.
func (p Pin) IsLED() bool {
	return p.Info().LED != ""
}

// IsMMC returns true when the pin is shared with the eMMC.
func (p Pin) IsMMC() bool {
	return p.Info().MMC != ""
}

// Parse converts a pin name such as "P9_14", "p9_14" or "usr0" into a Pin.
func Parse(name string) (Pin, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range pinNames {
		if i > 0 && n == normalized {
			return Pin(i), nil
		}
	}
	return 0, model.InvalidArgument("unknown pin '%s'", name)
}

// MustParse is like Parse but panics on an unknown pin name.
func MustParse(name string) Pin {
	p, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return p
}

// All returns all known pins in table order.
func All() []Pin {
	result := make([]Pin, 0, len(pinNames)-1)
	for i := 1; i < len(pinNames); i++ {
		result = append(result, Pin(i))
	}
	return result
}

// Capability selects a pin capability for validation.
type Capability int

const (
	CapabilityGPIO Capability = iota
	CapabilityAnalog
	CapabilityPWM
	CapabilityI2C
	CapabilitySPI
	CapabilityUART
)

func (c Capability) String() string {
	switch c {
	case CapabilityGPIO:
		return "gpio"
	case CapabilityAnalog:
		return "analog"
	case CapabilityPWM:
		return "pwm"
	case CapabilityI2C:
		return "i2c"
	case CapabilitySPI:
		return "spi"
	case CapabilityUART:
		return "uart"
	default:
		return fmt.Sprintf("Capability(%d)", int(c))
	}
}

// Has returns true if the pin supports the given capability.
func (p Pin) Has(c Capability) bool {
	info := p.Info()
	switch c {
	case CapabilityGPIO:
		return info.GPIO != nil
	case CapabilityAnalog:
		return info.Analog != nil
	case CapabilityPWM:
		return info.PWM != nil
	case CapabilityI2C:
		return info.I2C != nil
	case CapabilitySPI:
		return info.SPI != nil
	case CapabilityUART:
		return info.UART != nil
	}
	return false
}

// Check returns an InvalidArgument error if p is unknown or
// does not support the given capability.
func Check(p Pin, c Capability) error {
	if !p.Valid() {
		return model.InvalidArgument("invalid pin %s", p)
	}
	if !p.Has(c) {
		return model.InvalidArgument("pin %s does not support %s", p, c)
	}
	return nil
}
