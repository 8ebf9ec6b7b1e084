package model

import (
	"testing"
	"time"
)

const testConfig = `
inputs:
  - pin: P8_12
    edge: rising
  - pin: P8_14
    pull: pulldown
outputs:
  - pin: USR1
    initial: high
analog:
  - pin: P9_39
    mode: change
    delta: 25
    interval: 50ms
  - pin: P9_40
    mode: threshold
    lower: 600
    upper: 1200
    hysteresis: 50
pwm:
  - pin: P9_14
    frequency: 1000
    duty_cycle: 12.5
`

func TestParseConfiguration(t *testing.T) {
	c, err := ParseConfiguration([]byte(testConfig))
	if err != nil {
		t.Fatalf("ParseConfiguration failed: %v", err)
	}
	if len(c.Inputs) != 2 || len(c.Outputs) != 1 || len(c.Analog) != 2 || len(c.PWM) != 1 {
		t.Fatalf("Unexpected configuration %+v", c)
	}
	if e := c.Inputs[0].EdgeOrDefault(); e != EdgeRising {
		t.Errorf("Expected rising, got %s", e)
	}
	if e := c.Inputs[1].EdgeOrDefault(); e != EdgeBoth {
		t.Errorf("Expected both, got %s", e)
	}
	if p := c.Inputs[0].PullOrDefault(); p != PullNameUp {
		t.Errorf("Expected pullup, got %s", p)
	}
	if s := c.Outputs[0].InitialState(); s != High {
		t.Errorf("Expected high, got %s", s)
	}
	if d := c.Analog[0].IntervalOrDefault(); d != 50*time.Millisecond {
		t.Errorf("Expected 50ms, got %s", d)
	}
	if d := c.Analog[1].IntervalOrDefault(); d != DefaultAnalogInterval {
		t.Errorf("Expected default interval, got %s", d)
	}
	if c.PWM[0].DutyCycle != 12.5 {
		t.Errorf("Expected 12.5, got %v", c.PWM[0].DutyCycle)
	}
	if got := len(c.PinNames()); got != 6 {
		t.Errorf("Expected 6 pins, got %d", got)
	}
}

func TestValidateConfiguration(t *testing.T) {
	tests := []string{
		"inputs: [{pin: ''}]",
		"inputs: [{pin: P8_12, edge: none}]",
		"inputs: [{pin: P8_12, edge: sideways}]",
		"inputs: [{pin: P8_12, pull: strong}]",
		"outputs: [{pin: P8_12, initial: maybe}]",
		"analog: [{pin: P9_39, mode: wobble}]",
		"analog: [{pin: P9_39, mode: change, delta: -1}]",
		"analog: [{pin: P9_39, mode: threshold, lower: 800, upper: 400}]",
		"pwm: [{pin: P9_14, duty_cycle: 101}]",
		"pwm: [{pin: P9_14, frequency: -5}]",
		"inputs: [{pin: P8_12}]\noutputs: [{pin: p8_12}]",
		"inputs: {pin: P8_12}",
	}
	for _, test := range tests {
		if _, err := ParseConfiguration([]byte(test)); !IsValidation(err) {
			t.Errorf("Expected ValidationError for %q, got %v", test, err)
		}
	}
	if _, err := ParseConfiguration([]byte("")); err != nil {
		t.Errorf("Expected empty configuration to be valid, got %v", err)
	}
}
