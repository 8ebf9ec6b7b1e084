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

package gpio

import (
	"context"
	"testing"
	"time"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/backend"
	"github.com/binkynet/BoneIO/pkg/pins"
)

func newInputEnv(t *testing.T, p pins.Pin) testEnv {
	env := newTestEnv()
	if err := env.gpio.PinMode(context.Background(), p, model.DirectionIn); err != nil {
		t.Fatalf("PinMode failed: %v", err)
	}
	env.be.Attr(p, backend.AttributeValue).Set("0")
	return env
}

func TestWaitForEdgeTimeout(t *testing.T) {
	env := newInputEnv(t, pins.P9_12)
	start := time.Now()
	_, triggered, err := env.gpio.WaitForEdge(context.Background(), pins.P9_12, model.EdgeRising, 50*time.Millisecond, true)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if triggered {
		t.Error("Expected no edge")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond || elapsed > time.Second {
		t.Errorf("Unexpected wait duration %s", elapsed)
	}
	edgeAttr := env.be.Attr(pins.P9_12, backend.AttributeEdge)
	if writes := edgeAttr.Writes(); len(writes) != 2 || writes[0] != "rising" || writes[1] != "none" {
		t.Errorf("Unexpected edge writes %v", writes)
	}
	if s, _ := env.reg.Get(pins.P9_12); s.Waiting {
		t.Error("Expected claim to be released")
	}
}

func TestWaitForEdgeTriggered(t *testing.T) {
	env := newInputEnv(t, pins.P9_12)
	value := env.be.Attr(pins.P9_12, backend.AttributeValue)
	value.Script("0", "1")
	value.Signal()
	state, triggered, err := env.gpio.WaitForEdge(context.Background(), pins.P9_12, model.EdgeBoth, time.Second, true)
	if err != nil || !triggered {
		t.Fatalf("Expected edge, got %v, %v", triggered, err)
	}
	if state != model.High {
		t.Errorf("Expected high, got %s", state)
	}
	if value.Reads() != 2 {
		t.Errorf("Expected a clearing read and a state read, got %d reads", value.Reads())
	}
}

func TestWaitForEdgeValidation(t *testing.T) {
	env := newInputEnv(t, pins.P9_12)
	ctx := context.Background()
	if _, _, err := env.gpio.WaitForEdge(ctx, pins.P9_12, model.EdgeNone, time.Millisecond, true); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
	if _, _, err := env.gpio.WaitForEdge(ctx, pins.P9_12, model.Edge(9), time.Millisecond, true); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
	if err := env.gpio.PinMode(ctx, pins.P9_11, model.DirectionOut); err != nil {
		t.Fatalf("PinMode failed: %v", err)
	}
	if _, _, err := env.gpio.WaitForEdge(ctx, pins.P9_11, model.EdgeRising, time.Millisecond, true); !model.IsModeMismatch(err) {
		t.Errorf("Expected ModeMismatch, got %v", err)
	}
	if _, err := env.gpio.RunOnEdge(ctx, pins.P9_12, model.EdgeNone, 0, 0, nil); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
}

func TestWaitForEdgeKeepsClaim(t *testing.T) {
	env := newInputEnv(t, pins.P9_12)
	ctx := context.Background()
	if _, _, err := env.gpio.WaitForEdge(ctx, pins.P9_12, model.EdgeFalling, 10*time.Millisecond, false); err != nil {
		t.Fatalf("WaitForEdge failed: %v", err)
	}
	if edge, _ := env.gpio.Edge(pins.P9_12); edge != model.EdgeFalling {
		t.Errorf("Expected falling edge to stay configured, got %s", edge)
	}
	if _, _, err := env.gpio.WaitForEdge(ctx, pins.P9_12, model.EdgeFalling, 10*time.Millisecond, true); !model.IsAlreadyWaiting(err) {
		t.Errorf("Expected AlreadyWaiting, got %v", err)
	}
	if err := env.gpio.SetEdge(pins.P9_12, model.EdgeNone, false); err != nil {
		t.Fatalf("SetEdge failed: %v", err)
	}
	if _, _, err := env.gpio.WaitForEdge(ctx, pins.P9_12, model.EdgeFalling, 10*time.Millisecond, true); err != nil {
		t.Errorf("Expected wait to succeed after clearing the edge, got %v", err)
	}
}

type edgeEvent struct {
	Edge      model.Edge
	State     model.State
	Iteration int
}

func TestRunOnEdge(t *testing.T) {
	env := newInputEnv(t, pins.P9_12)
	ctx := context.Background()
	value := env.be.Attr(pins.P9_12, backend.AttributeValue)
	events := make(chan edgeEvent, 4)
	task, err := env.gpio.RunOnEdge(ctx, pins.P9_12, model.EdgeRising, 20*time.Millisecond, 2, func(p pins.Pin, edge model.Edge, state model.State, iteration int) {
		events <- edgeEvent{edge, state, iteration}
	})
	if err != nil {
		t.Fatalf("RunOnEdge failed: %v", err)
	}

	// Second waiter is rejected
	if _, _, err := env.gpio.WaitForEdge(ctx, pins.P9_12, model.EdgeRising, time.Millisecond, true); !model.IsAlreadyWaiting(err) {
		t.Errorf("Expected AlreadyWaiting, got %v", err)
	}
	if _, err := env.gpio.RunOnEdge(ctx, pins.P9_12, model.EdgeRising, 0, 0, nil); !model.IsAlreadyWaiting(err) {
		t.Errorf("Expected AlreadyWaiting, got %v", err)
	}

	for i := 0; i < 2; i++ {
		value.Set("1")
		value.Signal()
		select {
		case ev := <-events:
			if ev.Iteration != i || ev.Edge != model.EdgeRising || ev.State != model.High {
				t.Errorf("Unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("No callback for iteration %d", i)
		}
	}
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("Task did not end after 2 repeats")
	}
	if task.Err() != nil {
		t.Errorf("Expected no task error, got %v", task.Err())
	}
	if v := env.be.Attr(pins.P9_12, backend.AttributeEdge).Value(); v != "none" {
		t.Errorf("Expected edge to be reset, got '%s'", v)
	}
	if s, _ := env.reg.Get(pins.P9_12); s.Waiting || s.Background {
		t.Errorf("Expected ownership to be cleared, got %+v", s)
	}
}

func TestStopEdgeWait(t *testing.T) {
	env := newInputEnv(t, pins.P9_12)
	ctx := context.Background()
	env.gpio.StopEdgeWait(pins.P9_12)

	task, err := env.gpio.RunOnEdge(ctx, pins.P9_12, model.EdgeBoth, 0, 0, nil)
	if err != nil {
		t.Fatalf("RunOnEdge failed: %v", err)
	}
	// Wait until the task has configured the edge
	deadline := time.Now().Add(time.Second)
	for env.be.Attr(pins.P9_12, backend.AttributeEdge).Value() != "both" {
		if time.Now().After(deadline) {
			t.Fatal("Edge was not configured")
		}
		time.Sleep(time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		env.gpio.StopEdgeWait(pins.P9_12)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StopEdgeWait did not return")
	}
	if task.Running() {
		t.Error("Expected task to be stopped")
	}
	if v := env.be.Attr(pins.P9_12, backend.AttributeEdge).Value(); v != "none" {
		t.Errorf("Expected edge to be reset, got '%s'", v)
	}
	if env.reg.Task(pins.P9_12) != nil {
		t.Error("Expected task to be detached")
	}
}

func TestDisableStopsEdgeWait(t *testing.T) {
	env := newInputEnv(t, pins.P9_12)
	task, err := env.gpio.RunOnEdge(context.Background(), pins.P9_12, model.EdgeRising, 0, 0, nil)
	if err != nil {
		t.Fatalf("RunOnEdge failed: %v", err)
	}
	if err := env.gpio.Disable(pins.P9_12); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("Task was not stopped")
	}
	if env.reg.Enabled(pins.P9_12) {
		t.Error("Expected record to be removed")
	}
}
