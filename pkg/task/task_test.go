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

package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestStopRunsCleanup(t *testing.T) {
	tk := New("test", zerolog.Nop())
	cleaned := make(chan struct{})
	var bodyID ID
	tk.Start(context.Background(), func(ctx context.Context) error {
		bodyID, _ = IDFromContext(ctx)
		<-ctx.Done()
		return nil
	}, func() {
		close(cleaned)
	})
	if !tk.Running() {
		t.Error("Expected task to be running")
	}
	tk.Stop()
	select {
	case <-cleaned:
	default:
		t.Fatal("Cleanup did not run before Stop returned")
	}
	if bodyID != tk.ID() {
		t.Errorf("Expected body context to carry task ID %d, got %d", tk.ID(), bodyID)
	}
	if tk.Running() {
		t.Error("Expected task to be stopped")
	}
	if tk.Err() != nil {
		t.Errorf("Expected no error, got %v", tk.Err())
	}
}

func TestFailureAndPanic(t *testing.T) {
	failing := New("failing", zerolog.Nop())
	failing.Start(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	}, nil)
	select {
	case <-failing.Done():
	case <-time.After(time.Second):
		t.Fatal("Task did not end")
	}
	if failing.Err() == nil {
		t.Error("Expected error")
	}

	cleaned := false
	panicking := New("panicking", zerolog.Nop())
	panicking.Start(context.Background(), func(ctx context.Context) error {
		panic("oops")
	}, func() {
		cleaned = true
	})
	<-panicking.Done()
	if !cleaned {
		t.Error("Expected cleanup after panic")
	}
	if panicking.Err() == nil {
		t.Error("Expected error after panic")
	}
}

func TestStopBeforeStart(t *testing.T) {
	tk := New("idle", zerolog.Nop())
	tk.Stop()
	if tk.Running() {
		t.Error("Expected idle task not to be running")
	}
}

func TestOwnerOf(t *testing.T) {
	a := OwnerOf(context.Background())
	b := OwnerOf(context.Background())
	if a == b {
		t.Error("Expected fresh owner IDs")
	}
	ctx := WithID(context.Background(), 42)
	if OwnerOf(ctx) != 42 {
		t.Error("Expected owner from context")
	}
}
