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
	"sort"
	"sync"

	aerr "github.com/ewoutp/go-aggregate-error"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/backend"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/task"
)

// PWMStatus holds the cached PWM settings of a pin.
type PWMStatus struct {
	PeriodNS int
	DutyNS   int
	Polarity int
	Running  bool
}

// Status is a snapshot of the state of a single pin.
type Status struct {
	Pin  pins.Pin
	Type model.PinType
	// GPIO direction
	Direction model.Direction
	// Last observed digital state or millivolt reading
	State      int
	StateKnown bool
	// Edge trigger configured in the kernel
	Edge model.Edge
	// Pull & slew settings of a GPIO pin (as configured in the pinmux)
	Pull string
	Slew string
	// Set when a consumer holds the exclusive right to block on this pin
	Waiting bool
	// Owner of the waiting claim
	Owner task.ID
	// Set when a background task runs on this pin
	Background bool
	// Bus (I2C/SPI/UART) the pin is assigned to
	Bus string
	// PWM settings
	PWM PWMStatus
}

type record struct {
	Status
	task    *task.Task
	handles map[backend.Attribute]backend.Handle
}

// Registry holds the status of all claimed pins.
// All fields of all records are guarded by a single mutex,
// which is never held during I/O.
type Registry struct {
	mutex   sync.Mutex
	records map[pins.Pin]*record
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[pins.Pin]*record),
	}
}

// get returns the record of the pin, creating it when needed.
// Mutex must be held.
func (r *Registry) get(p pins.Pin) *record {
	rec, found := r.records[p]
	if !found {
		rec = &record{
			Status:  Status{Pin: p},
			handles: make(map[backend.Attribute]backend.Handle),
		}
		r.records[p] = rec
	}
	return rec
}

// Get returns a snapshot of the status of the pin.
// Returns false if the pin has no record.
func (r *Registry) Get(p pins.Pin) (Status, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, found := r.records[p]
	if !found {
		return Status{}, false
	}
	result := rec.Status
	result.Background = rec.task != nil
	return result, true
}

// Enabled returns true when the pin has a record.
func (r *Registry) Enabled(p pins.Pin) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, found := r.records[p]
	return found
}

// TypeOf returns the owner type of the pin.
func (r *Registry) TypeOf(p pins.Pin) model.PinType {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if rec, found := r.records[p]; found {
		return rec.Type
	}
	return model.PinTypeUnclaimed
}

// Update calls fn with the status of the pin while holding the lock.
// The record is created when it does not exist.
// fn must not block.
func (r *Registry) Update(p pins.Pin, fn func(s *Status)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec := r.get(p)
	fn(&rec.Status)
	rec.Pin = p
}

// Modify calls fn with the status of the pin while holding the lock.
// Returns false (without calling fn) when the pin has no record.
// fn must not block.
func (r *Registry) Modify(p pins.Pin, fn func(s *Status)) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, found := r.records[p]
	if !found {
		return false
	}
	fn(&rec.Status)
	rec.Pin = p
	return true
}

// Removed holds what remained of a deleted record.
// The caller is responsible for stopping the task and closing the handles.
type Removed struct {
	Status  Status
	Task    *task.Task
	Handles []backend.Handle
}

// Close stops the task (if any) and closes all handles.
func (rm *Removed) Close() error {
	if rm == nil {
		return nil
	}
	if rm.Task != nil {
		rm.Task.Stop()
	}
	var ae aerr.AggregateError
	for _, h := range rm.Handles {
		ae.Add(h.Close())
	}
	return ae.AsError()
}

// Delete removes the record of the pin.
// Returns nil when the pin has no record.
func (r *Registry) Delete(p pins.Pin) *Removed {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, found := r.records[p]
	if !found {
		return nil
	}
	delete(r.records, p)
	result := &Removed{
		Status: rec.Status,
		Task:   rec.task,
	}
	for _, h := range rec.handles {
		result.Handles = append(result.Handles, h)
	}
	if rec.Type != model.PinTypeUnclaimed {
		registeredPins.WithLabelValues(rec.Type.String()).Dec()
	}
	return result
}

// SetType sets the owner type of the pin, creating the record when needed.
func (r *Registry) SetType(p pins.Pin, t model.PinType) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec := r.get(p)
	if rec.Type == t {
		return
	}
	if rec.Type != model.PinTypeUnclaimed {
		registeredPins.WithLabelValues(rec.Type.String()).Dec()
	}
	rec.Type = t
	if t != model.PinTypeUnclaimed {
		registeredPins.WithLabelValues(t.String()).Inc()
	}
}

// Claim gives the owner the exclusive right to wait on the pin.
// Fails with AlreadyWaiting when another owner waits on the pin
// or runs a background task on it.
func (r *Registry) Claim(p pins.Pin, owner task.ID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec := r.get(p)
	if rec.Waiting && rec.Owner != owner {
		claimConflictsTotal.WithLabelValues(p.String()).Inc()
		return model.AlreadyWaiting("already waiting on pin %s", p)
	}
	if rec.task != nil && rec.task.ID() != owner {
		claimConflictsTotal.WithLabelValues(p.String()).Inc()
		return model.AlreadyWaiting("background task %s running on pin %s", rec.task.Name(), p)
	}
	rec.Waiting = true
	rec.Owner = owner
	return nil
}

// Release the waiting claim of the owner.
// Returns false when the owner did not hold the claim.
func (r *Registry) Release(p pins.Pin, owner task.ID) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, found := r.records[p]
	if !found || !rec.Waiting || rec.Owner != owner {
		return false
	}
	rec.Waiting = false
	rec.Owner = 0
	return true
}

// ReleaseIdle releases a waiting claim that is not held by a background task.
func (r *Registry) ReleaseIdle(p pins.Pin) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, found := r.records[p]
	if !found || !rec.Waiting {
		return
	}
	if rec.task != nil && rec.task.ID() == rec.Owner {
		return
	}
	rec.Waiting = false
	rec.Owner = 0
}

// Attach registers a background task for the pin.
// Fails with AlreadyWaiting when another owner waits on the pin
// or a background task is already registered.
func (r *Registry) Attach(p pins.Pin, t *task.Task) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec := r.get(p)
	if rec.task != nil {
		claimConflictsTotal.WithLabelValues(p.String()).Inc()
		return model.AlreadyWaiting("background task %s already running on pin %s", rec.task.Name(), p)
	}
	if rec.Waiting && rec.Owner != t.ID() {
		claimConflictsTotal.WithLabelValues(p.String()).Inc()
		return model.AlreadyWaiting("already waiting on pin %s", p)
	}
	rec.task = t
	return nil
}

// Detach removes the background task from the pin, including
// any waiting claim it holds.
func (r *Registry) Detach(p pins.Pin, t *task.Task) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, found := r.records[p]
	if !found {
		return
	}
	if rec.task == t {
		rec.task = nil
	}
	if rec.Waiting && rec.Owner == t.ID() {
		rec.Waiting = false
		rec.Owner = 0
	}
}

// Task returns the background task of the pin (if any).
func (r *Registry) Task(p pins.Pin) *task.Task {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if rec, found := r.records[p]; found {
		return rec.task
	}
	return nil
}

// Handle returns the cached handle for the attribute of the pin.
func (r *Registry) Handle(p pins.Pin, attr backend.Attribute) (backend.Handle, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if rec, found := r.records[p]; found {
		h, found := rec.handles[attr]
		return h, found
	}
	return nil, false
}

// StoreHandle caches the handle for the attribute of the pin and returns
// the cached handle. If another handle was cached in the meantime, that
// one is returned with stored set to false and the caller must close
// the given handle.
func (r *Registry) StoreHandle(p pins.Pin, attr backend.Attribute, h backend.Handle) (cached backend.Handle, stored bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec := r.get(p)
	if existing, found := rec.handles[attr]; found {
		return existing, false
	}
	rec.handles[attr] = h
	return h, true
}

// TakeHandle removes the cached handle for the attribute of the pin.
// The caller must close it.
func (r *Registry) TakeHandle(p pins.Pin, attr backend.Attribute) (backend.Handle, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if rec, found := r.records[p]; found {
		h, found := rec.handles[attr]
		delete(rec.handles, attr)
		return h, found
	}
	return nil, false
}

// Pins returns the pins owned by the given type, sorted.
func (r *Registry) Pins(t model.PinType) []pins.Pin {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var result []pins.Pin
	for p, rec := range r.records {
		if rec.Type == t {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// All returns a snapshot of all records, sorted by pin.
func (r *Registry) All() []Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	result := make([]Status, 0, len(r.records))
	for _, rec := range r.records {
		s := rec.Status
		s.Background = rec.task != nil
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Pin < result[j].Pin })
	return result
}
