package model

import "github.com/pkg/errors"

// Input configures a digital input that is watched for edges.
type Input struct {
	// Header pin name (e.g. "P8_12")
	Pin string `yaml:"pin" json:"pin"`
	// Edge to watch for (rising|falling|both). Defaults to both.
	Edge string `yaml:"edge,omitempty" json:"edge,omitempty"`
	// Pull resistor (pullup|pulldown|none). Defaults to pullup.
	Pull string `yaml:"pull,omitempty" json:"pull,omitempty"`
}

// Pull resistor names
const (
	PullNameUp   = "pullup"
	PullNameDown = "pulldown"
	PullNameNone = "none"
)

// EdgeOrDefault returns the configured edge, defaulting to both.
func (i Input) EdgeOrDefault() Edge {
	if i.Edge == "" {
		return EdgeBoth
	}
	e, _ := ParseEdge(i.Edge)
	return e
}

// PullOrDefault returns the configured pull resistor name, defaulting to pullup.
func (i Input) PullOrDefault() string {
	if i.Pull == "" {
		return PullNameUp
	}
	return i.Pull
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (i Input) Validate() error {
	if i.Pin == "" {
		return errors.Wrap(ValidationError, "input pin is empty")
	}
	if i.Edge != "" {
		e, err := ParseEdge(i.Edge)
		if err != nil || e == EdgeNone {
			return errors.Wrapf(ValidationError, "invalid edge '%s' of input '%s'", i.Edge, i.Pin)
		}
	}
	switch i.Pull {
	case "", PullNameUp, PullNameDown, PullNameNone:
	default:
		return errors.Wrapf(ValidationError, "invalid pull '%s' of input '%s'", i.Pull, i.Pin)
	}
	return nil
}

// Output configures a digital output.
type Output struct {
	// Header pin name (e.g. "P8_14" or "USR1")
	Pin string `yaml:"pin" json:"pin"`
	// State after startup (low|high). Defaults to low.
	Initial string `yaml:"initial,omitempty" json:"initial,omitempty"`
}

// InitialState returns the configured initial state, defaulting to low.
func (o Output) InitialState() State {
	s, _ := ParseState(o.Initial)
	return s
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (o Output) Validate() error {
	if o.Pin == "" {
		return errors.Wrap(ValidationError, "output pin is empty")
	}
	if o.Initial != "" {
		if _, err := ParseState(o.Initial); err != nil {
			return errors.Wrapf(ValidationError, "invalid initial state '%s' of output '%s'", o.Initial, o.Pin)
		}
	}
	return nil
}
