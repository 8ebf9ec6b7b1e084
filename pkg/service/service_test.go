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
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/backend"
	"github.com/binkynet/BoneIO/pkg/board"
	"github.com/binkynet/BoneIO/pkg/hwtest"
	"github.com/binkynet/BoneIO/pkg/pins"
)

const testConfig = `
inputs:
  - pin: P8_12
    edge: rising
outputs:
  - pin: P8_14
    initial: high
analog:
  - pin: P9_39
    mode: change
    delta: 10
    interval: 1ms
pwm:
  - pin: P9_14
    frequency: 1000
    duty_cycle: 50
`

type testEnv struct {
	svc   *Service
	board *board.Board
	be    *hwtest.Backend
}

func newTestEnv(t *testing.T, config string) testEnv {
	cfg, err := model.ParseConfiguration([]byte(config))
	if err != nil {
		t.Fatalf("ParseConfiguration failed: %v", err)
	}
	be := hwtest.NewBackend()
	b := board.New(be, hwtest.NewOverlays(), zerolog.Nop())
	svc, err := New(Config{Watch: cfg}, Dependencies{Logger: zerolog.Nop(), Board: b})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// Kernel defaults of the PWM driver
	be.Attr(pins.P9_14, backend.AttributePeriod).Set("500000")
	be.Attr(pins.P9_14, backend.AttributeDuty).Set("0")
	be.Attr(pins.P9_14, backend.AttributePolarity).Set("1")
	be.Attr(pins.P9_14, backend.AttributeRun).Set("0")
	be.Attr(pins.P9_39, backend.AttributeAnalog).Set("500")
	return testEnv{svc: svc, board: b, be: be}
}

// waitFor polls cond until it returns true.
func waitFor(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func nextEvent(t *testing.T, events chan Event, kind EventKind) Event {
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("No %s event", kind)
		}
	}
}

func TestNewUnknownPin(t *testing.T) {
	b := board.New(hwtest.NewBackend(), hwtest.NewOverlays(), zerolog.Nop())
	cfg := model.Configuration{Inputs: []model.Input{{Pin: "P10_1"}}}
	if _, err := New(Config{Watch: cfg}, Dependencies{Logger: zerolog.Nop(), Board: b}); !model.IsValidation(err) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestRun(t *testing.T) {
	env := newTestEnv(t, testConfig)
	events := make(chan Event, 16)
	unsubscribe := env.svc.Subscribe(func(e Event) { events <- e })
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- env.svc.Run(ctx) }()

	waitFor(t, "edge watch", func() bool {
		s, _ := env.board.Registry.Get(pins.P8_12)
		return s.Background && s.Waiting
	})
	analog := env.be.Attr(pins.P9_39, backend.AttributeAnalog)
	waitFor(t, "analog baseline", func() bool {
		s, _ := env.board.Registry.Get(pins.P9_39)
		// One read during configuration, one for the baseline
		return s.Background && analog.Reads() >= 2
	})
	if s, _ := env.board.PWM.Settings(pins.P9_14); s.PeriodNS != 1000000 || s.DutyNS != 500000 || !s.Running {
		t.Errorf("Unexpected PWM settings %+v", s)
	}
	if v := env.be.Attr(pins.P8_14, backend.AttributeValue).Value(); v != "1" {
		t.Errorf("Expected output to be high, got %q", v)
	}

	value := env.be.Attr(pins.P8_12, backend.AttributeValue)
	value.Set("1")
	value.Signal()
	if e := nextEvent(t, events, EventKindEdge); e.Pin != "P8_12" || e.Value != 1 || e.Edge != "rising" {
		t.Errorf("Unexpected edge event %+v", e)
	}

	analog.Set("600")
	if e := nextEvent(t, events, EventKindChange); e.Pin != "P9_39" || e.Value != 600 {
		t.Errorf("Unexpected change event %+v", e)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if len(env.board.Status()) != 0 {
		t.Errorf("Expected all pins to be disabled, got %+v", env.board.Status())
	}
}

func TestSetOutput(t *testing.T) {
	env := newTestEnv(t, testConfig)
	events := make(chan Event, 16)
	env.svc.Subscribe(func(e Event) { events <- e })
	ctx := context.Background()
	if err := env.svc.configure(ctx); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	defer env.board.Cleanup(ctx)

	if err := env.svc.SetOutput(ctx, "p8_14", "low"); err != nil {
		t.Fatalf("SetOutput failed: %v", err)
	}
	if v := env.be.Attr(pins.P8_14, backend.AttributeValue).Value(); v != "0" {
		t.Errorf("Expected output to be low, got %q", v)
	}
	if e := nextEvent(t, events, EventKindOutput); e.Pin != "P8_14" || e.Value != 0 {
		t.Errorf("Unexpected output event %+v", e)
	}

	if err := env.svc.SetOutput(ctx, "P9_14", "25"); err != nil {
		t.Fatalf("SetOutput failed: %v", err)
	}
	if s, _ := env.board.PWM.Settings(pins.P9_14); s.DutyNS != 250000 {
		t.Errorf("Expected duty 250000, got %d", s.DutyNS)
	}
	if e := nextEvent(t, events, EventKindPWM); e.DutyCycle != 25 || e.Value != 250000 {
		t.Errorf("Unexpected pwm event %+v", e)
	}

	tests := []struct {
		Pin, Value string
		Check      func(error) bool
	}{
		{"P8_12", "1", model.IsUnsupportedOperation},
		{"P8_14", "maybe", model.IsInvalidArgument},
		{"P9_14", "half", model.IsInvalidArgument},
		{"P9_14", "150", model.IsInvalidArgument},
		{"P42_1", "1", model.IsInvalidArgument},
	}
	for _, test := range tests {
		if err := env.svc.SetOutput(ctx, test.Pin, test.Value); !test.Check(err) {
			t.Errorf("Unexpected error for %s=%s: %v", test.Pin, test.Value, err)
		}
	}
}
