package model

import (
	"fmt"
	"strings"
)

// PinType identifies the subsystem that owns a pin.
type PinType int

const (
	PinTypeUnclaimed PinType = iota
	PinTypeGPIO
	PinTypeAnalog
	PinTypePWM
	PinTypeI2C
	PinTypeSPI
	PinTypeUART
)

func (t PinType) String() string {
	switch t {
	case PinTypeUnclaimed:
		return "unclaimed"
	case PinTypeGPIO:
		return "gpio"
	case PinTypeAnalog:
		return "analog"
	case PinTypePWM:
		return "pwm"
	case PinTypeI2C:
		return "i2c"
	case PinTypeSPI:
		return "spi"
	case PinTypeUART:
		return "uart"
	default:
		return fmt.Sprintf("PinType(%d)", int(t))
	}
}

// Direction of a GPIO pin.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionIn
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return "unknown"
	}
}

// ParseDirection parses "in" or "out" (case insensitive).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in":
		return DirectionIn, nil
	case "out":
		return DirectionOut, nil
	}
	return DirectionUnknown, InvalidArgument("invalid direction '%s'", s)
}

// State of a digital pin.
type State int

const (
	Low  State = 0
	High State = 1
)

func (s State) String() string {
	if s == High {
		return "high"
	}
	return "low"
}

// ParseState parses a kernel value ("0" / "1") or "low" / "high".
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "low", "off", "false":
		return Low, nil
	case "1", "high", "on", "true":
		return High, nil
	}
	return Low, InvalidArgument("invalid state '%s'", s)
}

// Edge selects the transitions that trigger an edge wait.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeNone:
		return "none"
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return fmt.Sprintf("Edge(%d)", int(e))
	}
}

// Valid returns true for the known edge kinds (including none).
func (e Edge) Valid() bool {
	return e >= EdgeNone && e <= EdgeBoth
}

// ParseEdge parses the kernel name of an edge kind.
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return EdgeNone, nil
	case "rising":
		return EdgeRising, nil
	case "falling":
		return EdgeFalling, nil
	case "both":
		return EdgeBoth, nil
	}
	return EdgeNone, InvalidArgument("invalid edge '%s'", s)
}
