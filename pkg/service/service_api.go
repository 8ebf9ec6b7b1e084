//    Copyright 2021-2024 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/registry"
)

// SetOutput sets a configured output to the given value.
// Digital outputs accept low/high (or 0/1), PWM outputs accept a
// duty cycle in percent.
func (s *Service) SetOutput(ctx context.Context, pinName, value string) error {
	p, err := pins.Parse(pinName)
	if err != nil {
		setOutputRequestTotal.WithLabelValues(pinName, "invalid").Inc()
		return maskAny(err)
	}
	if err := s.setOutput(p, value); err != nil {
		setOutputRequestTotal.WithLabelValues(p.String(), "failed").Inc()
		return maskAny(err)
	}
	setOutputRequestTotal.WithLabelValues(p.String(), "ok").Inc()
	return nil
}

func (s *Service) setOutput(p pins.Pin, value string) error {
	if _, found := s.outputs[p]; found {
		state, err := model.ParseState(value)
		if err != nil {
			return maskAny(err)
		}
		if err := s.Board.GPIO.DigitalWrite(p, state); err != nil {
			return maskAny(err)
		}
		s.publish(Event{Pin: p.String(), Kind: EventKindOutput, Value: int(state)})
		return nil
	}
	if _, found := s.pwm[p]; found {
		pct, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return model.InvalidArgument("invalid duty cycle '%s'", value)
		}
		duty, err := s.Board.PWM.SetDutyCycle(p, pct)
		if err != nil {
			return maskAny(err)
		}
		s.publish(Event{Pin: p.String(), Kind: EventKindPWM, Value: duty, DutyCycle: pct})
		return nil
	}
	return model.UnsupportedOperation("pin %s is not a configured output", p)
}

// Status returns a snapshot of all claimed pins of the board.
func (s *Service) Status() []registry.Status {
	return s.Board.Status()
}

// Uptime returns the time since the service was created.
func (s *Service) Uptime() time.Duration {
	return time.Since(s.startAt)
}
