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

package ain

import (
	"context"
	"fmt"
	"time"

	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/task"
)

// Change is the result of a change wait.
type Change struct {
	// Value the change is measured from
	Baseline int
	// Value that ended the wait
	Value int
	// Number of polls that did not detect a change
	Iterations int
}

// ChangeCallback is called by RunOnChange for every detected change.
// Iteration starts at 0.
type ChangeCallback func(p pins.Pin, previous, value, iteration int)

// changed returns true when value differs enough from baseline.
// The delta is limited to the distance from baseline to the rail
// in the direction of the change, so a change up to a rail always counts.
func changed(baseline, value, delta int) bool {
	if delta == 0 {
		return true
	}
	diff := value - baseline
	switch {
	case diff > 0:
		return diff >= min(delta, MaxMillivolts-baseline)
	case diff < 0:
		return -diff >= min(delta, baseline)
	default:
		return false
	}
}

// WaitForChange blocks until the value of the pin differs at least delta
// millivolts from its current value. The pin is polled every interval.
func (a *AIN) WaitForChange(ctx context.Context, p pins.Pin, delta int, interval time.Duration) (Change, error) {
	return a.waitForChange(ctx, p, delta, interval, 0, false)
}

// WaitForChangeFrom is WaitForChange measured from the given baseline.
func (a *AIN) WaitForChangeFrom(ctx context.Context, p pins.Pin, delta int, interval time.Duration, baseline int) (Change, error) {
	if err := checkMillivolts("baseline", baseline); err != nil {
		return Change{}, maskAny(err)
	}
	return a.waitForChange(ctx, p, delta, interval, baseline, true)
}

func (a *AIN) validateChange(p pins.Pin, delta int, interval time.Duration) error {
	if err := pins.Check(p, pins.CapabilityAnalog); err != nil {
		return maskAny(err)
	}
	if err := checkMillivolts("delta", delta); err != nil {
		return maskAny(err)
	}
	return checkInterval(interval)
}

func (a *AIN) waitForChange(ctx context.Context, p pins.Pin, delta int, interval time.Duration, baseline int, hasBaseline bool) (result Change, err error) {
	if err := a.validateChange(p, delta, interval); err != nil {
		return Change{}, maskAny(err)
	}
	wasEnabled := a.Enabled(p)
	if err := a.enable(p); err != nil {
		return Change{}, maskAny(err)
	}
	defer func() {
		if err != nil && !wasEnabled {
			a.disableUnread(p)
		}
	}()
	owner := task.OwnerOf(ctx)
	if err := a.reg.Claim(p, owner); err != nil {
		return Change{}, maskAny(err)
	}
	defer a.reg.Release(p, owner)

	if !hasBaseline {
		mv, err := a.Read(p)
		if err != nil {
			return Change{}, maskAny(err)
		}
		baseline = mv
	}
	for count := 0; ; count++ {
		mv, err := a.Read(p)
		if err != nil {
			return Change{}, maskAny(err)
		}
		if changed(baseline, mv, delta) {
			changesTotal.WithLabelValues(p.String()).Inc()
			return Change{Baseline: baseline, Value: mv, Iterations: count}, nil
		}
		if err := sleep(ctx, interval); err != nil {
			return Change{}, maskAny(err)
		}
	}
}

// RunOnChange starts a background task that calls cb every time the value
// of the pin changes at least delta millivolts.
// The task stops after repeats callbacks (repeats <= 0 runs until stopped).
func (a *AIN) RunOnChange(ctx context.Context, p pins.Pin, delta int, interval time.Duration, repeats int, cb ChangeCallback) (*task.Task, error) {
	if err := a.validateChange(p, delta, interval); err != nil {
		return nil, maskAny(err)
	}
	t := task.New(fmt.Sprintf("ain-change-%s", p), a.log)
	if err := a.enable(p); err != nil {
		return nil, maskAny(err)
	}
	if err := a.reg.Attach(p, t); err != nil {
		return nil, maskAny(err)
	}
	t.Start(ctx, func(ctx context.Context) error {
		var (
			c     Change
			err   error
			known bool
		)
		for count := 0; repeats <= 0 || count < repeats; count++ {
			if known {
				c, err = a.waitForChange(ctx, p, delta, interval, c.Value, true)
			} else {
				c, err = a.waitForChange(ctx, p, delta, interval, 0, false)
			}
			if err != nil {
				return maskAny(err)
			}
			known = true
			if cb != nil {
				cb(p, c.Baseline, c.Value, count)
			}
			// Keep an even cadence when the change was detected without polling
			if c.Iterations == 0 {
				if err := sleep(ctx, interval); err != nil {
					return maskAny(err)
				}
			}
		}
		return nil
	}, func() {
		a.reg.Detach(p, t)
	})
	return t, nil
}

// RunOnceOnChange is RunOnChange with a single callback.
func (a *AIN) RunOnceOnChange(ctx context.Context, p pins.Pin, delta int, interval time.Duration, cb ChangeCallback) (*task.Task, error) {
	return a.RunOnChange(ctx, p, delta, interval, 1, cb)
}
