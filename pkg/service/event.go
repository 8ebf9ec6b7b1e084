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

package service

import (
	"context"
	"sync/atomic"
	"time"
)

// EventKind identifies what caused an event.
type EventKind string

const (
	EventKindEdge      EventKind = "edge"
	EventKindChange    EventKind = "change"
	EventKindThreshold EventKind = "threshold"
	EventKindOutput    EventKind = "output"
	EventKindPWM       EventKind = "pwm"
)

// Event is published for every observed or commanded change of a pin.
type Event struct {
	Pin  string    `json:"pin"`
	Kind EventKind `json:"kind"`
	// Digital state (0/1) or millivolts
	Value int `json:"value"`
	// Previous millivolts (analog only)
	Previous int `json:"previous,omitempty"`
	// Edge that triggered (edge only)
	Edge string `json:"edge,omitempty"`
	// Level relative to the band (threshold only)
	Level string `json:"level,omitempty"`
	// Duty cycle in percent (pwm only)
	DutyCycle float64 `json:"duty_cycle,omitempty"`
	// Index of the callback within its watch
	Iteration int       `json:"iteration"`
	Time      time.Time `json:"time"`
}

// Subscribe registers a callback that is called (asynchronously) for every event.
// Call the returned function to stop receiving events.
func (s *Service) Subscribe(cb func(Event)) context.CancelFunc {
	var left atomic.Bool
	// pubsub.Leave matches on the code pointer, which all these closures share,
	// so leaving is done with a flag.
	s.events.Sub(func(e Event) {
		if !left.Load() {
			cb(e)
		}
	})
	return func() {
		left.Store(true)
	}
}

func (s *Service) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	eventsTotal.WithLabelValues(string(e.Kind)).Inc()
	s.events.Pub(e)
}
