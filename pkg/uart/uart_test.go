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

package uart

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/device"
	"github.com/binkynet/BoneIO/pkg/hwtest"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/registry"
)

type testEnv struct {
	uart     *Ports
	mgr      *device.Manager
	reg      *registry.Registry
	be       *hwtest.Backend
	overlays *hwtest.Overlays
}

func newTestEnv() testEnv {
	reg := registry.New()
	mgr := device.NewManager(reg, zerolog.Nop())
	be := hwtest.NewBackend()
	overlays := hwtest.NewOverlays()
	return testEnv{
		uart:     New(mgr, be, overlays, zerolog.Nop()),
		mgr:      mgr,
		reg:      reg,
		be:       be,
		overlays: overlays,
	}
}

func TestSetup(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if err := env.uart.Setup(ctx, UART4, 12345); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
	if err := env.uart.Setup(ctx, UART(9), DefaultSpeed); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
	if err := env.uart.Setup(ctx, UART4, DefaultSpeed); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if loads := env.overlays.Loads(); len(loads) != 1 || loads[0] != "BB-UART4" {
		t.Errorf("Unexpected overlays %v", loads)
	}
	for _, p := range []pins.Pin{pins.P9_11, pins.P9_13} {
		s, found := env.reg.Get(p)
		if !found || s.Type != model.PinTypeUART || s.Bus != "UART4" {
			t.Errorf("Unexpected status of %s: %+v", p, s)
		}
	}
	if port := env.be.Serial("/dev/ttyO4"); port.Baud != DefaultSpeed {
		t.Errorf("Expected %d baud, got %d", DefaultSpeed, port.Baud)
	}
	// Transmit only port claims a single pin
	if err := env.uart.Setup(ctx, UART3, 115200); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if got := env.uart.Pins(); len(got) != 3 {
		t.Errorf("Expected 3 pins, got %v", got)
	}
	if x, err := ParseUART("UART3"); err != nil || x != UART3 {
		t.Errorf("ParseUART: %s, %v", x, err)
	}
}

func TestWrite(t *testing.T) {
	env := newTestEnv()
	if _, err := env.uart.Write(UART1, []byte("x")); !model.IsNotEnabled(err) {
		t.Errorf("Expected NotEnabled, got %v", err)
	}
	if err := env.uart.Setup(context.Background(), UART1, 115200); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if _, err := env.uart.Write(UART1, []byte("AT")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := env.uart.WriteLine(UART1, "+OK"); err != nil {
		t.Fatalf("WriteLine failed: %v", err)
	}
	if out := env.be.Serial("/dev/ttyO1").Output(); out != "AT+OK\n" {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestRead(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if err := env.uart.Setup(ctx, UART2, DefaultSpeed); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	port := env.be.Serial("/dev/ttyO2")
	port.Feed("abc  hello world \r\nxyz")
	s, err := env.uart.ReadChars(ctx, UART2, 3)
	if err != nil || s != "abc" {
		t.Fatalf("Expected abc, got %q, %v", s, err)
	}
	line, err := env.uart.ReadLine(ctx, UART2)
	if err != nil || line != "hello world" {
		t.Fatalf("Expected 'hello world', got %q, %v", line, err)
	}
	s, err = env.uart.ReadChars(ctx, UART2, 3)
	if err != nil || s != "xyz" {
		t.Fatalf("Expected xyz, got %q, %v", s, err)
	}

	// Nothing left to read
	tctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if _, err := env.uart.ReadLine(tctx, UART2); err == nil {
		t.Error("Expected error on timeout")
	}
	if s, _ := env.reg.Get(pins.P9_22); s.Waiting {
		t.Error("Expected claim on rx pin to be released")
	}
	if _, err := env.uart.ReadChars(ctx, UART2, 0); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
}

func TestReadTransmitOnly(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if err := env.uart.Setup(ctx, UART3, DefaultSpeed); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if _, err := env.uart.ReadLine(ctx, UART3); !model.IsUnsupportedOperation(err) {
		t.Errorf("Expected UnsupportedOperation, got %v", err)
	}
	if _, err := env.uart.RunOnEachLine(ctx, UART3, 0, nil); !model.IsUnsupportedOperation(err) {
		t.Errorf("Expected UnsupportedOperation, got %v", err)
	}
}

type lineEvent struct {
	Data      string
	Iteration int
}

func TestRunOnEachLine(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if err := env.uart.Setup(ctx, UART5, DefaultSpeed); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	events := make(chan lineEvent, 4)
	task, err := env.uart.RunOnEachLine(ctx, UART5, 0, func(uart UART, data string, iteration int) {
		events <- lineEvent{data, iteration}
	})
	if err != nil {
		t.Fatalf("RunOnEachLine failed: %v", err)
	}
	env.be.Serial("/dev/ttyO5").Feed("one\ntwo\n")
	for i, expected := range []string{"one", "two"} {
		select {
		case ev := <-events:
			if ev.Data != expected || ev.Iteration != i {
				t.Errorf("Expected %s/%d, got %+v", expected, i, ev)
			}
		case <-time.After(time.Second):
			t.Fatal("No callback")
		}
	}

	// Other readers are rejected while the task runs
	if _, err := env.uart.ReadLine(ctx, UART5); !model.IsAlreadyWaiting(err) {
		t.Errorf("Expected AlreadyWaiting, got %v", err)
	}
	if _, err := env.uart.RunOnEachChars(ctx, UART5, 1, 0, nil); !model.IsAlreadyWaiting(err) {
		t.Errorf("Expected AlreadyWaiting, got %v", err)
	}
	if err := env.uart.SetSpeed(UART5, 57600); !model.IsAlreadyWaiting(err) {
		t.Errorf("Expected AlreadyWaiting, got %v", err)
	}

	env.uart.StopRead(UART5)
	if task.Running() {
		t.Error("Expected task to be stopped")
	}
	if s, _ := env.reg.Get(pins.P8_38); s.Waiting || s.Background {
		t.Errorf("Expected rx pin to be free, got %+v", s)
	}
	if err := env.uart.SetSpeed(UART5, 57600); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	if speed, _ := env.uart.Speed(UART5); speed != 57600 {
		t.Errorf("Expected 57600, got %d", speed)
	}
}

func TestRunOnEachChars(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if err := env.uart.Setup(ctx, UART1, DefaultSpeed); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	env.be.Serial("/dev/ttyO1").Feed("aabbccdd")
	var chunks []string
	task, err := env.uart.RunOnEachChars(ctx, UART1, 2, 3, func(uart UART, data string, iteration int) {
		chunks = append(chunks, data)
	})
	if err != nil {
		t.Fatalf("RunOnEachChars failed: %v", err)
	}
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("Task did not end")
	}
	if len(chunks) != 3 || chunks[0] != "aa" || chunks[2] != "cc" {
		t.Errorf("Unexpected chunks %v", chunks)
	}
	if task.Err() != nil {
		t.Errorf("Unexpected task error %v", task.Err())
	}
}

func TestDisable(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if err := env.uart.Disable(UART4); !model.IsNotEnabled(err) {
		t.Errorf("Expected NotEnabled, got %v", err)
	}
	if err := env.uart.Setup(ctx, UART4, DefaultSpeed); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	task, err := env.uart.RunOnEachLine(ctx, UART4, 0, nil)
	if err != nil {
		t.Fatalf("RunOnEachLine failed: %v", err)
	}
	if err := env.uart.Disable(UART4); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if task.Running() {
		t.Error("Expected read task to be stopped")
	}
	if env.reg.Enabled(pins.P9_11) || env.reg.Enabled(pins.P9_13) {
		t.Error("Expected pins to be removed")
	}
	if len(env.overlays.Unloads()) != 0 {
		t.Error("Expected overlay to stay loaded")
	}
	if _, err := env.be.Serial("/dev/ttyO4").Write([]byte("x")); err == nil {
		t.Error("Expected port to be closed")
	}
}
