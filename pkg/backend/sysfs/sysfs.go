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

package sysfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/backend"
	"github.com/binkynet/BoneIO/pkg/pins"
)

const (
	defaultGPIODir    = "/sys/class/gpio"
	defaultLEDDir     = "/sys/class/leds"
	defaultDevicesDir = "/sys/devices"
	ledNamePrefix     = "beaglebone:green:"
)

var (
	maskAny = errors.WithStack
)

// Config of the sysfs backend.
// Empty fields are set to the kernel defaults.
type Config struct {
	// Directory of the GPIO class (/sys/class/gpio)
	GPIODir string
	// Directory of the LED class (/sys/class/leds)
	LEDDir string
	// Root of the device tree (/sys/devices)
	DevicesDir string
}

func (c *Config) setDefaults() {
	if c.GPIODir == "" {
		c.GPIODir = defaultGPIODir
	}
	if c.LEDDir == "" {
		c.LEDDir = defaultLEDDir
	}
	if c.DevicesDir == "" {
		c.DevicesDir = defaultDevicesDir
	}
}

type sysfsBackend struct {
	Config
	log zerolog.Logger
}

// New creates a backend that accesses pins through sysfs and /dev.
func New(cfg Config, log zerolog.Logger) backend.Backend {
	cfg.setDefaults()
	return &sysfsBackend{
		Config: cfg,
		log:    log.With().Str("component", "sysfs").Logger(),
	}
}

func gpioNumber(p pins.Pin) (int, error) {
	info := p.Info()
	if info.GPIO == nil {
		return 0, model.InvalidArgument("pin %s has no gpio", p)
	}
	return info.GPIO.Number, nil
}

// ConfigureGPIO exports the GPIO of the pin and sets its direction.
func (b *sysfsBackend) ConfigureGPIO(p pins.Pin, dir model.Direction) error {
	n, err := gpioNumber(p)
	if err != nil {
		return maskAny(err)
	}
	const activeLow = false
	var pin interface{}
	switch dir {
	case model.DirectionIn:
		pin, err = gpio.Input(n, activeLow)
	case model.DirectionOut:
		pin, err = gpio.Output(n, activeLow, false)
	default:
		return model.InvalidArgument("invalid direction %s", dir)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to configure gpio%d as %s", n, dir)
	}
	// The value file is opened again through Open
	if c, ok := pin.(io.Closer); ok {
		c.Close()
	}
	b.log.Debug().
		Int("gpio", n).
		Str("pin", p.String()).
		Str("direction", dir.String()).
		Msg("Configured GPIO")
	return nil
}

// UnexportGPIO releases the GPIO of the pin.
func (b *sysfsBackend) UnexportGPIO(p pins.Pin) error {
	n, err := gpioNumber(p)
	if err != nil {
		return maskAny(err)
	}
	if !b.GPIOExported(p) {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(b.GPIODir, "unexport"), os.O_WRONLY, 0)
	if err != nil {
		return maskAny(err)
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(n)); err != nil {
		return errors.Wrapf(err, "failed to unexport gpio%d", n)
	}
	return nil
}

// GPIOExported returns true when the GPIO of the pin is exported.
func (b *sysfsBackend) GPIOExported(p pins.Pin) bool {
	n, err := gpioNumber(p)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(b.GPIODir, fmt.Sprintf("gpio%d", n)))
	return err == nil
}

// Open a kernel file of the pin.
func (b *sysfsBackend) Open(p pins.Pin, attr backend.Attribute) (backend.Handle, error) {
	path, flag, err := b.path(p, attr)
	if err != nil {
		return nil, maskAny(err)
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s of pin %s", attr, p)
	}
	return newFileHandle(f), nil
}

// path returns the kernel file (and open flags) for the given attribute.
func (b *sysfsBackend) path(p pins.Pin, attr backend.Attribute) (string, int, error) {
	info := p.Info()
	switch attr {
	case backend.AttributeValue, backend.AttributeDirection, backend.AttributeEdge:
		if info.LED != "" {
			if attr == backend.AttributeValue {
				return b.ledPath(info.LED, "brightness"), os.O_RDWR, nil
			}
			return "", 0, model.UnsupportedOperation("%s of LED %s", attr, p)
		}
		n, err := gpioNumber(p)
		if err != nil {
			return "", 0, maskAny(err)
		}
		return filepath.Join(b.GPIODir, fmt.Sprintf("gpio%d", n), attr.String()), os.O_RDWR, nil
	case backend.AttributeTrigger, backend.AttributeBrightness:
		if info.LED == "" {
			return "", 0, model.InvalidArgument("pin %s is not a LED", p)
		}
		return b.ledPath(info.LED, attr.String()), os.O_RDWR, nil
	case backend.AttributeAnalog:
		if info.Analog == nil {
			return "", 0, model.InvalidArgument("pin %s is not an analog pin", p)
		}
		path, err := b.glob(filepath.Join(b.DevicesDir, "ocp.*", "helper.*", fmt.Sprintf("AIN%d", info.Analog.Channel)))
		return path, os.O_RDONLY, maskAny(err)
	case backend.AttributeDuty, backend.AttributePeriod, backend.AttributePolarity, backend.AttributeRun:
		if info.PWM == nil {
			return "", 0, model.InvalidArgument("pin %s is not a pwm pin", p)
		}
		path, err := b.glob(filepath.Join(b.DevicesDir, "ocp.*", fmt.Sprintf("pwm_test_%s.*", p), attr.String()))
		return path, os.O_RDWR, maskAny(err)
	}
	return "", 0, model.InvalidArgument("unknown attribute %s", attr)
}

func (b *sysfsBackend) ledPath(led, file string) string {
	return filepath.Join(b.LEDDir, ledNamePrefix+led, file)
}

// glob returns the first file matching the pattern.
func (b *sysfsBackend) glob(pattern string) (string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", maskAny(err)
	}
	if len(matches) == 0 {
		return "", errors.Wrapf(os.ErrNotExist, "no file matching %s", pattern)
	}
	return matches[0], nil
}
