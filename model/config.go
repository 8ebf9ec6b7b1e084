package model

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Configuration describes the pins the daemon configures & watches.
type Configuration struct {
	// Digital inputs watched for edges
	Inputs []Input `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	// Digital outputs, settable over MQTT
	Outputs []Output `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	// Analog inputs watched for changes or threshold crossings
	Analog []Analog `yaml:"analog,omitempty" json:"analog,omitempty"`
	// PWM outputs, duty cycle settable over MQTT
	PWM []PWMOutput `yaml:"pwm,omitempty" json:"pwm,omitempty"`
}

// ParseConfiguration decodes & validates a YAML configuration.
func ParseConfiguration(data []byte) (Configuration, error) {
	var c Configuration
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Configuration{}, errors.Wrapf(ValidationError, "invalid YAML: %s", err.Error())
	}
	if err := c.Validate(); err != nil {
		return Configuration{}, maskAny(err)
	}
	return c, nil
}

// PinNames returns the names of all configured pins.
func (c Configuration) PinNames() []string {
	return lo.Flatten([][]string{
		lo.Map(c.Inputs, func(x Input, _ int) string { return x.Pin }),
		lo.Map(c.Outputs, func(x Output, _ int) string { return x.Pin }),
		lo.Map(c.Analog, func(x Analog, _ int) string { return x.Pin }),
		lo.Map(c.PWM, func(x PWMOutput, _ int) string { return x.Pin }),
	})
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (c Configuration) Validate() error {
	for _, x := range c.Inputs {
		if err := x.Validate(); err != nil {
			return maskAny(err)
		}
	}
	for _, x := range c.Outputs {
		if err := x.Validate(); err != nil {
			return maskAny(err)
		}
	}
	for _, x := range c.Analog {
		if err := x.Validate(); err != nil {
			return maskAny(err)
		}
	}
	for _, x := range c.PWM {
		if err := x.Validate(); err != nil {
			return maskAny(err)
		}
	}
	seen := make(map[string]struct{})
	for _, name := range c.PinNames() {
		key := strings.ToUpper(strings.TrimSpace(name))
		if _, found := seen[key]; found {
			return errors.Wrapf(ValidationError, "pin '%s' is configured more than once", name)
		}
		seen[key] = struct{}{}
	}
	return nil
}
