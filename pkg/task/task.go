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
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ID identifies the owner of a pin claim.
// Every background task has its own ID, blocking callers get
// a fresh ID per call unless their context carries one.
type ID uint64

var lastID uint64

// NewID returns a process-unique owner ID.
func NewID() ID {
	return ID(atomic.AddUint64(&lastID, 1))
}

type ctxKey struct{}

// WithID returns a context that carries the given owner ID.
func WithID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IDFromContext returns the owner ID carried by the context (if any).
func IDFromContext(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(ctxKey{}).(ID)
	return id, ok
}

// OwnerOf returns the owner ID from the context, or a fresh one.
func OwnerOf(ctx context.Context) ID {
	if id, ok := IDFromContext(ctx); ok {
		return id
	}
	return NewID()
}

// Task is a cancellable background goroutine with a cleanup
// function that always runs when the goroutine ends.
type Task struct {
	id   ID
	name string
	log  zerolog.Logger

	mutex   sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// New creates a task that is not yet started.
func New(name string, log zerolog.Logger) *Task {
	id := NewID()
	return &Task{
		id:   id,
		name: name,
		log:  log.With().Str("task", name).Uint64("task-id", uint64(id)).Logger(),
		done: make(chan struct{}),
	}
}

// ID returns the owner ID of the task.
func (t *Task) ID() ID {
	return t.id
}

// Name of the task
func (t *Task) Name() string {
	return t.name
}

// Start runs body in a new goroutine.
// The context given to body carries the ID of the task.
// Cleanup is called after body returns, also when body
// failed or panicked.
func (t *Task) Start(ctx context.Context, body func(ctx context.Context) error, cleanup func()) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.started {
		return
	}
	t.started = true
	ctx, cancel := context.WithCancel(WithID(ctx, t.id))
	t.cancel = cancel

	go func() {
		defer close(t.done)
		defer cancel()
		defer func() {
			if cleanup != nil {
				cleanup()
			}
		}()
		defer func() {
			if r := recover(); r != nil {
				err := errors.Errorf("panic in task %s: %v", t.name, r)
				t.log.Error().Err(err).Msg("Task panicked")
				t.setErr(err)
			}
		}()

		t.log.Debug().Msg("Task started")
		if err := body(ctx); err != nil && ctx.Err() == nil {
			t.log.Error().Err(err).Msg("Task failed")
			t.setErr(err)
		} else {
			t.log.Debug().Msg("Task ended")
		}
	}()
}

func (t *Task) setErr(err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.err = err
}

// Stop cancels the task and waits until it has ended
// (including its cleanup).
// Stop must not be called from within the task itself.
func (t *Task) Stop() {
	t.mutex.Lock()
	started, cancel := t.started, t.cancel
	t.mutex.Unlock()

	if !started {
		return
	}
	cancel()
	<-t.done
}

// Done is closed when the task has ended.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Running returns true when the task has started and not yet ended.
func (t *Task) Running() bool {
	t.mutex.Lock()
	started := t.started
	t.mutex.Unlock()
	if !started {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Err returns the error that ended the task (if any).
func (t *Task) Err() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.err
}
