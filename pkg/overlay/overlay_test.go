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

package overlay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
)

const testSlots = ` 0: 54:PF---
 1: 55:PF---
 7: ff:P-O-L Override Board Name,00A0,Override Manuf,BB-ADC
 8: ff:P-O-L Override Board Name,00A0,Override Manuf,GPIO_P9_12_0x37
`

func newTestLoader(t *testing.T) (Loader, string) {
	dir := t.TempDir()
	capemgr := filepath.Join(dir, "bone_capemgr.9")
	if err := os.MkdirAll(capemgr, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	slots := filepath.Join(capemgr, "slots")
	if err := os.WriteFile(slots, []byte(testSlots), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	l := NewCapeManager(Config{
		CapeManagerGlob: filepath.Join(dir, "bone_capemgr.*"),
		SettleDelay:     time.Millisecond,
	}, zerolog.Nop())
	return l, slots
}

func TestLoadAlreadyLoaded(t *testing.T) {
	l, slots := newTestLoader(t)
	if err := l.Load(ADC); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	content, _ := os.ReadFile(slots)
	if string(content) != testSlots {
		t.Error("Expected slots not to be written for a loaded overlay")
	}
	if loaded, err := l.IsLoaded("GPIO_P9_12_0x37"); err != nil || !loaded {
		t.Errorf("Expected GPIO overlay to be loaded, got %v, %v", loaded, err)
	}
	if loaded, err := l.IsLoaded("BB-UART1"); err != nil || loaded {
		t.Errorf("Expected UART overlay not to be loaded, got %v, %v", loaded, err)
	}
}

func TestLoadNotConfirmed(t *testing.T) {
	l, _ := newTestLoader(t)
	// A plain file never reports the new overlay
	if err := l.Load("BB-UART1"); !model.IsDeviceTree(err) {
		t.Errorf("Expected DeviceTreeError, got %v", err)
	}
}

func TestUnload(t *testing.T) {
	l, _ := newTestLoader(t)
	unloaded, err := l.Unload("BB-SPIDEV0")
	if err != nil || unloaded {
		t.Errorf("Expected no-op unload, got %v, %v", unloaded, err)
	}
	// A plain file keeps the slot, so the kernel never confirms
	if _, err := l.Unload("GPIO_P9_12_.*"); !model.IsDeviceTree(err) {
		t.Errorf("Expected DeviceTreeError, got %v", err)
	}
	if _, err := l.Unload("(["); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
}

func TestMissingCapeManager(t *testing.T) {
	l := NewCapeManager(Config{
		CapeManagerGlob: filepath.Join(t.TempDir(), "bone_capemgr.*"),
	}, zerolog.Nop())
	if _, err := l.IsLoaded(ADC); !model.IsDeviceTree(err) {
		t.Errorf("Expected DeviceTreeError, got %v", err)
	}
}
