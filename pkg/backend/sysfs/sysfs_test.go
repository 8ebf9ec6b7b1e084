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

package sysfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/backend"
	"github.com/binkynet/BoneIO/pkg/pins"
)

// newTestBackend returns a backend rooted in a temporary directory.
func newTestBackend(t *testing.T) *sysfsBackend {
	root := t.TempDir()
	cfg := Config{
		GPIODir:    filepath.Join(root, "class", "gpio"),
		LEDDir:     filepath.Join(root, "class", "leds"),
		DevicesDir: filepath.Join(root, "devices"),
	}
	return New(cfg, zerolog.Nop()).(*sysfsBackend)
}

// writeFile creates the file (and its directory) with the given content.
func writeFile(t *testing.T, path, content string) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func openTemp(t *testing.T, content string) *fileHandle {
	path := filepath.Join(t.TempDir(), "value")
	writeFile(t, path, content)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	h := newFileHandle(f)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestConfigDefaults(t *testing.T) {
	b := New(Config{}, zerolog.Nop()).(*sysfsBackend)
	if b.GPIODir != "/sys/class/gpio" || b.LEDDir != "/sys/class/leds" || b.DevicesDir != "/sys/devices" {
		t.Errorf("Unexpected defaults %+v", b.Config)
	}
}

func TestHandleReadWrite(t *testing.T) {
	h := openTemp(t, "0\n")
	for i := 0; i < 2; i++ {
		if v, err := h.Read(); err != nil || v != "0" {
			t.Fatalf("Expected '0', got '%s', %v", v, err)
		}
	}
	if err := h.Write("1"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if v, err := h.Read(); err != nil || v != "1" {
		t.Errorf("Expected '1' after write, got '%s', %v", v, err)
	}
	if err := h.Write("0"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if v, err := h.Read(); err != nil || v != "0" {
		t.Errorf("Expected '0' after second write, got '%s', %v", v, err)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
	if _, err := h.Read(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Expected ErrClosed from Read, got %v", err)
	}
	if err := h.Write("1"); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Expected ErrClosed from Write, got %v", err)
	}
}

func TestHandleReadTracksContent(t *testing.T) {
	h := openTemp(t, "  1234 \n")
	if v, err := h.Read(); err != nil || v != "1234" {
		t.Fatalf("Expected '1234', got '%s', %v", v, err)
	}
	if err := os.WriteFile(h.file.Name(), []byte("987\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if v, err := h.Read(); err != nil || v != "987" {
		t.Errorf("Expected '987', got '%s', %v", v, err)
	}
}

func TestHandleWaitTimeout(t *testing.T) {
	h := openTemp(t, "0\n")
	start := time.Now()
	triggered, err := h.Wait(context.Background(), 120*time.Millisecond)
	if err != nil || triggered {
		t.Fatalf("Expected timeout, got %v, %v", triggered, err)
	}
	if elapsed := time.Since(start); elapsed < 120*time.Millisecond {
		t.Errorf("Wait returned early after %s", elapsed)
	}
}

func TestHandleWaitCanceled(t *testing.T) {
	h := openTemp(t, "0\n")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	triggered, err := h.Wait(ctx, 0)
	if triggered || errors.Cause(err) != context.DeadlineExceeded {
		t.Fatalf("Expected DeadlineExceeded, got %v, %v", triggered, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Cancel noticed after %s", elapsed)
	}
}

func TestHandleWaitClosed(t *testing.T) {
	h := openTemp(t, "0\n")
	type result struct {
		triggered bool
		err       error
	}
	done := make(chan result, 1)
	go func() {
		triggered, err := h.Wait(context.Background(), 0)
		done <- result{triggered, err}
	}()
	time.Sleep(20 * time.Millisecond)
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case r := <-done:
		if r.triggered || !errors.Is(r.err, os.ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v, %v", r.triggered, r.err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not notice the closed handle")
	}

	if _, err := h.Wait(context.Background(), 0); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Expected ErrClosed on a closed handle, got %v", err)
	}
}

func TestPaths(t *testing.T) {
	b := newTestBackend(t)
	ain := filepath.Join(b.DevicesDir, "ocp.3", "helper.15", "AIN0")
	pwm := filepath.Join(b.DevicesDir, "ocp.3", "pwm_test_P9_14.16", "duty")
	writeFile(t, ain, "1234\n")
	writeFile(t, pwm, "0\n")

	tests := []struct {
		Pin      pins.Pin
		Attr     backend.Attribute
		Expected string
	}{
		{pins.P9_12, backend.AttributeValue, filepath.Join(b.GPIODir, "gpio60", "value")},
		{pins.P9_12, backend.AttributeDirection, filepath.Join(b.GPIODir, "gpio60", "direction")},
		{pins.P9_12, backend.AttributeEdge, filepath.Join(b.GPIODir, "gpio60", "edge")},
		{pins.USR0, backend.AttributeValue, filepath.Join(b.LEDDir, "beaglebone:green:usr0", "brightness")},
		{pins.USR0, backend.AttributeTrigger, filepath.Join(b.LEDDir, "beaglebone:green:usr0", "trigger")},
		{pins.USR3, backend.AttributeBrightness, filepath.Join(b.LEDDir, "beaglebone:green:usr3", "brightness")},
		{pins.P9_39, backend.AttributeAnalog, ain},
		{pins.P9_14, backend.AttributeDuty, pwm},
	}
	for _, test := range tests {
		path, _, err := b.path(test.Pin, test.Attr)
		if err != nil {
			t.Errorf("path(%s, %s) failed: %v", test.Pin, test.Attr, err)
		} else if path != test.Expected {
			t.Errorf("path(%s, %s): expected %s, got %s", test.Pin, test.Attr, test.Expected, path)
		}
	}

	h, err := b.Open(pins.P9_39, backend.AttributeAnalog)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()
	if mv, err := backend.ReadInt(h); err != nil || mv != 1234 {
		t.Errorf("Expected 1234, got %d, %v", mv, err)
	}
}

func TestPathErrors(t *testing.T) {
	b := newTestBackend(t)
	if _, _, err := b.path(pins.USR0, backend.AttributeDirection); !model.IsUnsupportedOperation(err) {
		t.Errorf("Expected UnsupportedOperation for direction of a LED, got %v", err)
	}
	if _, _, err := b.path(pins.USR1, backend.AttributeEdge); !model.IsUnsupportedOperation(err) {
		t.Errorf("Expected UnsupportedOperation for edge of a LED, got %v", err)
	}
	if _, _, err := b.path(pins.P9_12, backend.AttributeTrigger); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument for trigger of a GPIO, got %v", err)
	}
	if _, _, err := b.path(pins.P9_12, backend.AttributeAnalog); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument for analog of a GPIO, got %v", err)
	}
	if _, _, err := b.path(pins.P9_39, backend.AttributeDuty); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument for duty of an analog pin, got %v", err)
	}
	if _, _, err := b.path(pins.P9_39, backend.AttributeValue); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument for value of an analog pin, got %v", err)
	}
	// No overlay loaded yet
	if _, _, err := b.path(pins.P9_39, backend.AttributeAnalog); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist without ADC helper, got %v", err)
	}
	if _, _, err := b.path(pins.P9_14, backend.AttributePeriod); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist without pwm_test device, got %v", err)
	}
	if _, err := b.Open(pins.P9_12, backend.AttributeValue); err == nil {
		t.Error("Expected Open of an unexported gpio to fail")
	}
}

func TestUnexportGPIO(t *testing.T) {
	b := newTestBackend(t)
	unexport := filepath.Join(b.GPIODir, "unexport")
	writeFile(t, unexport, "")

	if b.GPIOExported(pins.P9_12) {
		t.Error("Expected gpio60 not to be exported")
	}
	if err := b.UnexportGPIO(pins.P9_12); err != nil {
		t.Fatalf("UnexportGPIO failed: %v", err)
	}
	if data, _ := os.ReadFile(unexport); len(data) != 0 {
		t.Errorf("Expected no write for an unexported gpio, got '%s'", data)
	}

	writeFile(t, filepath.Join(b.GPIODir, "gpio60", "value"), "0\n")
	if !b.GPIOExported(pins.P9_12) {
		t.Error("Expected gpio60 to be exported")
	}
	if err := b.UnexportGPIO(pins.P9_12); err != nil {
		t.Fatalf("UnexportGPIO failed: %v", err)
	}
	if data, _ := os.ReadFile(unexport); string(data) != "60" {
		t.Errorf("Expected '60' written to unexport, got '%s'", data)
	}

	if b.GPIOExported(pins.P9_39) {
		t.Error("Expected analog pin never to be exported")
	}
	if err := b.UnexportGPIO(pins.P9_39); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument for a pin without gpio, got %v", err)
	}
}
