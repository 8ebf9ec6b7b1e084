package model

import (
	"time"

	"github.com/pkg/errors"
)

// AnalogMode selects how an analog input is watched.
type AnalogMode string

const (
	AnalogModeChange    AnalogMode = "change"
	AnalogModeThreshold AnalogMode = "threshold"
)

// Validate the given mode, returning nil on ok,
// or an error upon validation issues.
func (m AnalogMode) Validate() error {
	switch m {
	case AnalogModeChange, AnalogModeThreshold:
		return nil
	default:
		return errors.Wrapf(ValidationError, "invalid analog mode '%s'", string(m))
	}
}

// DefaultAnalogInterval is the polling interval of an analog watch
// without a configured interval.
const DefaultAnalogInterval = 100 * time.Millisecond

// Analog configures a watched analog input.
type Analog struct {
	// Header pin name (e.g. "P9_39")
	Pin  string     `yaml:"pin" json:"pin"`
	Mode AnalogMode `yaml:"mode" json:"mode"`
	// Polling interval (e.g. "50ms")
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	// Change mode: minimal change in millivolts
	Delta int `yaml:"delta,omitempty" json:"delta,omitempty"`
	// Threshold mode: band in millivolts
	Lower      int `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper      int `yaml:"upper,omitempty" json:"upper,omitempty"`
	Hysteresis int `yaml:"hysteresis,omitempty" json:"hysteresis,omitempty"`
}

// IntervalOrDefault returns the configured interval or DefaultAnalogInterval.
func (a Analog) IntervalOrDefault() time.Duration {
	if a.Interval == 0 {
		return DefaultAnalogInterval
	}
	return a.Interval
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
// Millivolt ranges are checked when the watch is started.
func (a Analog) Validate() error {
	if a.Pin == "" {
		return errors.Wrap(ValidationError, "analog pin is empty")
	}
	if err := a.Mode.Validate(); err != nil {
		return errors.Wrapf(ValidationError, "Error in mode of '%s': %s", a.Pin, err.Error())
	}
	if a.Interval < 0 {
		return errors.Wrapf(ValidationError, "negative interval of '%s'", a.Pin)
	}
	switch a.Mode {
	case AnalogModeChange:
		if a.Delta < 0 {
			return errors.Wrapf(ValidationError, "negative delta of '%s'", a.Pin)
		}
	case AnalogModeThreshold:
		if a.Lower > a.Upper {
			return errors.Wrapf(ValidationError, "lower (%d) > upper (%d) of '%s'", a.Lower, a.Upper, a.Pin)
		}
		if a.Hysteresis < 0 {
			return errors.Wrapf(ValidationError, "negative hysteresis of '%s'", a.Pin)
		}
	}
	return nil
}

// PWMOutput configures a PWM output.
type PWMOutput struct {
	// Header pin name (e.g. "P9_14")
	Pin string `yaml:"pin" json:"pin"`
	// Frequency in Hz (0 keeps the kernel default)
	Frequency int `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	// Initial duty cycle in percent
	DutyCycle float64 `yaml:"duty_cycle,omitempty" json:"duty_cycle,omitempty"`
	// Inverts the output
	Inverted bool `yaml:"inverted,omitempty" json:"inverted,omitempty"`
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (p PWMOutput) Validate() error {
	if p.Pin == "" {
		return errors.Wrap(ValidationError, "pwm pin is empty")
	}
	if p.Frequency < 0 {
		return errors.Wrapf(ValidationError, "negative frequency of '%s'", p.Pin)
	}
	if p.DutyCycle < 0 || p.DutyCycle > 100 {
		return errors.Wrapf(ValidationError, "duty cycle of '%s' must be 0..100, got %v", p.Pin, p.DutyCycle)
	}
	return nil
}
