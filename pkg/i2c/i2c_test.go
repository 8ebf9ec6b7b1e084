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

package i2c

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/device"
	"github.com/binkynet/BoneIO/pkg/hwtest"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/registry"
)

type testEnv struct {
	i2c      *I2C
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
		i2c:      New(mgr, be, overlays, zerolog.Nop()),
		mgr:      mgr,
		reg:      reg,
		be:       be,
		overlays: overlays,
	}
}

func TestParseBus(t *testing.T) {
	for _, b := range []Bus{I2C0, I2C1, I2C2, I2C1A} {
		parsed, err := ParseBus(b.String())
		if err != nil || parsed != b {
			t.Errorf("ParseBus(%s): got %s, %v", b, parsed, err)
		}
	}
	if _, err := ParseBus("I2C9"); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
}

func TestSetup(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if err := env.i2c.Setup(ctx, I2C1); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if loads := env.overlays.Loads(); len(loads) != 1 || loads[0] != "BB-I2C1" {
		t.Errorf("Unexpected overlays %v", loads)
	}
	for _, p := range []pins.Pin{pins.P9_17, pins.P9_18} {
		s, found := env.reg.Get(p)
		if !found || s.Type != model.PinTypeI2C || s.Bus != "I2C1" {
			t.Errorf("Unexpected status of %s: %+v", p, s)
		}
	}
	// Setup twice is a no-op
	if err := env.i2c.Setup(ctx, I2C1); err != nil {
		t.Fatalf("Second Setup failed: %v", err)
	}
	if len(env.overlays.Loads()) != 1 {
		t.Error("Expected overlay to be loaded once")
	}
	// Internal bus has no pins and no overlay
	if err := env.i2c.Setup(ctx, I2C0); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if buses := env.i2c.Buses(); len(buses) != 2 || buses[0] != I2C0 || buses[1] != I2C1 {
		t.Errorf("Unexpected buses %v", buses)
	}
}

func TestWriteRead(t *testing.T) {
	env := newTestEnv()
	if _, err := env.i2c.Write(I2C2, 0x20, []byte{1}); !model.IsNotEnabled(err) {
		t.Errorf("Expected NotEnabled, got %v", err)
	}
	if err := env.i2c.Setup(context.Background(), I2C2); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	dev := env.be.I2C("/dev/i2c-1")
	dev.SetData(0x48, []byte{0x12, 0x34, 0x56})

	if n, err := env.i2c.Write(I2C2, 0x20, []byte{0x01, 0xff}); err != nil || n != 2 {
		t.Fatalf("Write failed: %d, %v", n, err)
	}
	data, err := env.i2c.Read(I2C2, 0x48, 2, []byte{0x00})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0x12, 0x34}) {
		t.Errorf("Unexpected data %x", data)
	}
	written := dev.Written()
	if len(written) != 2 || written[0].Address != 0x20 || written[1].Address != 0x48 || !bytes.Equal(written[1].Data, []byte{0x00}) {
		t.Errorf("Unexpected writes %+v", written)
	}

	if _, err := env.i2c.Write(I2C2, 0x80, nil); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
	if _, err := env.i2c.Read(I2C2, 0x48, 0, nil); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
}

func TestDisable(t *testing.T) {
	env := newTestEnv()
	if err := env.i2c.Disable(I2C2); !model.IsNotEnabled(err) {
		t.Errorf("Expected NotEnabled, got %v", err)
	}
	if err := env.i2c.Setup(context.Background(), I2C2); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := env.i2c.Disable(I2C2); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if env.reg.Enabled(pins.P9_19) || env.reg.Enabled(pins.P9_20) {
		t.Error("Expected pins to be removed")
	}
	if !env.be.I2C("/dev/i2c-1").Closed() {
		t.Error("Expected device to be closed")
	}
	if env.i2c.Enabled(I2C2) {
		t.Error("Expected bus to be disabled")
	}
}

func TestTakeOverDisablesBus(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.mgr.Register(model.PinTypeGPIO, device.DisablerFunc(func(ctx context.Context, p pins.Pin) error {
		env.reg.Delete(p).Close()
		return nil
	}))
	if err := env.i2c.Setup(ctx, I2C1A); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := env.mgr.Claim(ctx, pins.P9_26, model.PinTypeGPIO); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if env.i2c.Enabled(I2C1A) {
		t.Error("Expected bus to be disabled")
	}
	if env.reg.Enabled(pins.P9_24) {
		t.Error("Expected other bus pin to be removed")
	}
	if env.reg.TypeOf(pins.P9_26) != model.PinTypeGPIO {
		t.Error("Expected GPIO owner")
	}

	// Setting up the bus takes the pin back
	if err := env.i2c.Setup(ctx, I2C1A); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if env.reg.TypeOf(pins.P9_26) != model.PinTypeI2C {
		t.Error("Expected I2C owner")
	}
}

func TestCleanup(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	for _, b := range []Bus{I2C0, I2C2} {
		if err := env.i2c.Setup(ctx, b); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
	}
	if err := env.mgr.Cleanup(ctx); err != nil {
		t.Fatalf("Manager cleanup failed: %v", err)
	}
	// Internal bus has no pins, so only the I2C cleanup closes it
	if buses := env.i2c.Buses(); len(buses) != 1 || buses[0] != I2C0 {
		t.Errorf("Unexpected buses %v", buses)
	}
	if err := env.i2c.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if len(env.i2c.Buses()) != 0 {
		t.Error("Expected no active buses")
	}
}
