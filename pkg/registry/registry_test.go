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

package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/backend"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/task"
)

type closeCounter struct {
	backend.Handle
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestGetUnknown(t *testing.T) {
	r := New()
	if _, found := r.Get(pins.P9_12); found {
		t.Error("Expected no record")
	}
	if r.Enabled(pins.P9_12) {
		t.Error("Expected pin not to be enabled")
	}
	if r.TypeOf(pins.P9_12) != model.PinTypeUnclaimed {
		t.Error("Expected unclaimed pin")
	}
	if r.Delete(pins.P9_12) != nil {
		t.Error("Expected delete of unknown pin to be a no-op")
	}
	if r.Modify(pins.P9_12, func(s *Status) {}) {
		t.Error("Expected Modify of unknown pin to return false")
	}
}

func TestClaimConflict(t *testing.T) {
	for _, p := range pins.All() {
		r := New()
		first, second := task.NewID(), task.NewID()
		if err := r.Claim(p, first); err != nil {
			t.Fatalf("First claim on %s failed: %v", p, err)
		}
		if err := r.Claim(p, first); err != nil {
			t.Errorf("Re-claim by the same owner on %s failed: %v", p, err)
		}
		if err := r.Claim(p, second); !model.IsAlreadyWaiting(err) {
			t.Errorf("Expected AlreadyWaiting on %s, got %v", p, err)
		}
		if r.Release(p, second) {
			t.Errorf("Expected release by non-owner to fail on %s", p)
		}
		if !r.Release(p, first) {
			t.Errorf("Expected release by owner to succeed on %s", p)
		}
		if err := r.Claim(p, second); err != nil {
			t.Errorf("Claim after release on %s failed: %v", p, err)
		}
	}
}

func TestConcurrentClaims(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	var mutex sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Claim(pins.P8_11, task.NewID()); err == nil {
				mutex.Lock()
				winners++
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", winners)
	}
}

func TestAttachDetach(t *testing.T) {
	r := New()
	tk := task.New("test", zerolog.Nop())
	if err := r.Attach(pins.P9_12, tk); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if err := r.Attach(pins.P9_12, task.New("other", zerolog.Nop())); !model.IsAlreadyWaiting(err) {
		t.Errorf("Expected AlreadyWaiting for second task, got %v", err)
	}
	if err := r.Claim(pins.P9_12, task.NewID()); !model.IsAlreadyWaiting(err) {
		t.Errorf("Expected AlreadyWaiting for blocking claim, got %v", err)
	}
	if err := r.Claim(pins.P9_12, tk.ID()); err != nil {
		t.Errorf("Expected task to claim its own pin, got %v", err)
	}
	if s, _ := r.Get(pins.P9_12); !s.Background || !s.Waiting {
		t.Errorf("Unexpected status %+v", s)
	}
	r.ReleaseIdle(pins.P9_12)
	if s, _ := r.Get(pins.P9_12); !s.Waiting {
		t.Error("Expected ReleaseIdle to keep the claim of the background task")
	}
	r.Detach(pins.P9_12, tk)
	if s, _ := r.Get(pins.P9_12); s.Background || s.Waiting {
		t.Errorf("Expected detach to clear ownership, got %+v", s)
	}
	if r.Task(pins.P9_12) != nil {
		t.Error("Expected no task")
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	r := New()
	r.SetType(pins.P9_14, model.PinTypeGPIO)
	r.Update(pins.P9_14, func(s *Status) {
		s.Direction = model.DirectionIn
	})
	h := &closeCounter{}
	if got, stored := r.StoreHandle(pins.P9_14, backend.AttributeValue, h); got != h || !stored {
		t.Error("Expected stored handle to be returned")
	}
	other := &closeCounter{}
	if got, stored := r.StoreHandle(pins.P9_14, backend.AttributeValue, other); got != h || stored {
		t.Error("Expected existing handle to win")
	}
	if other.closed != 0 {
		t.Error("Expected unstored handle to be left to the caller")
	}

	tk := task.New("bg", zerolog.Nop())
	if err := r.Attach(pins.P9_14, tk); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	tk.Start(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, func() { r.Detach(pins.P9_14, tk) })

	removed := r.Delete(pins.P9_14)
	if removed == nil || removed.Status.Type != model.PinTypeGPIO {
		t.Fatalf("Unexpected removed %+v", removed)
	}
	if err := removed.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	select {
	case <-tk.Done():
	case <-time.After(time.Second):
		t.Fatal("Task was not stopped")
	}
	if h.closed != 1 {
		t.Errorf("Expected handle to be closed once, got %d", h.closed)
	}
	if r.Enabled(pins.P9_14) {
		t.Error("Expected record to be removed")
	}
}

func TestPins(t *testing.T) {
	r := New()
	r.SetType(pins.P9_14, model.PinTypePWM)
	r.SetType(pins.P8_13, model.PinTypePWM)
	r.SetType(pins.P9_12, model.PinTypeGPIO)
	got := r.Pins(model.PinTypePWM)
	if len(got) != 2 || got[0] != pins.P8_13 || got[1] != pins.P9_14 {
		t.Errorf("Unexpected PWM pins %v", got)
	}
	if len(r.All()) != 3 {
		t.Errorf("Expected 3 records, got %d", len(r.All()))
	}
}
