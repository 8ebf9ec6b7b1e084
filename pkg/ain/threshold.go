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

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/task"
)

// Level of an analog value relative to a Band.
type Level int

const (
	LevelUnknown Level = iota
	LevelLow
	LevelMid
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelUnknown:
		return "unknown"
	case LevelLow:
		return "low"
	case LevelMid:
		return "mid"
	case LevelHigh:
		return "high"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Band is a pair of thresholds with hysteresis.
// Leaving LOW requires reaching Lower+Hysteresis, leaving HIGH requires
// dropping to Upper-Hysteresis.
type Band struct {
	Lower      int
	Upper      int
	Hysteresis int
}

// Validate returns InvalidArgument when the band is out of range.
func (b Band) Validate() error {
	if err := checkMillivolts("lower", b.Lower); err != nil {
		return err
	}
	if err := checkMillivolts("upper", b.Upper); err != nil {
		return err
	}
	if b.Lower > b.Upper {
		return model.InvalidArgument("lower (%d) must be <= upper (%d)", b.Lower, b.Upper)
	}
	return checkMillivolts("hysteresis", b.Hysteresis)
}

// Initial returns the level of a value without history.
func (b Band) Initial(mv int) Level {
	switch {
	case mv >= b.Upper:
		return LevelHigh
	case mv <= b.Lower:
		return LevelLow
	default:
		return LevelMid
	}
}

// Next returns the level of value mv when the previous level was last.
func (b Band) Next(last Level, mv int) Level {
	switch last {
	case LevelLow:
		switch {
		case mv >= b.Upper && mv >= b.Lower+b.Hysteresis:
			return LevelHigh
		case mv >= b.Lower+b.Hysteresis:
			return LevelMid
		default:
			return LevelLow
		}
	case LevelHigh:
		switch {
		case mv <= b.Lower && mv <= b.Upper-b.Hysteresis:
			return LevelLow
		case mv <= b.Upper-b.Hysteresis:
			return LevelMid
		default:
			return LevelHigh
		}
	case LevelMid:
		switch {
		case mv >= b.Upper:
			return LevelHigh
		case mv <= b.Lower:
			return LevelLow
		default:
			return LevelMid
		}
	}
	return b.Initial(mv)
}

// Crossing is the result of a threshold wait.
type Crossing struct {
	Previous      int
	Value         int
	PreviousLevel Level
	Level         Level
	// Number of polls that did not change the level
	Iterations int
}

// ThresholdCallback is called by RunOnThreshold for every level change.
// Iteration starts at 0.
type ThresholdCallback func(p pins.Pin, previous, value int, previousLevel, level Level, iteration int)

// WaitForThreshold blocks until the level of the pin relative to the band
// changes. The pin is polled every interval.
func (a *AIN) WaitForThreshold(ctx context.Context, p pins.Pin, band Band, interval time.Duration) (Crossing, error) {
	return a.waitForThreshold(ctx, p, band, interval, 0, false, LevelUnknown)
}

// WaitForThresholdFrom is WaitForThreshold starting from a known value.
// When level is LevelUnknown, it is derived from the value.
func (a *AIN) WaitForThresholdFrom(ctx context.Context, p pins.Pin, band Band, interval time.Duration, last int, level Level) (Crossing, error) {
	if err := checkMillivolts("last value", last); err != nil {
		return Crossing{}, maskAny(err)
	}
	if level < LevelUnknown || level > LevelHigh {
		return Crossing{}, model.InvalidArgument("invalid level %s", level)
	}
	return a.waitForThreshold(ctx, p, band, interval, last, true, level)
}

func (a *AIN) validateThreshold(p pins.Pin, band Band, interval time.Duration) error {
	if err := pins.Check(p, pins.CapabilityAnalog); err != nil {
		return maskAny(err)
	}
	if err := band.Validate(); err != nil {
		return maskAny(err)
	}
	return checkInterval(interval)
}

func (a *AIN) waitForThreshold(ctx context.Context, p pins.Pin, band Band, interval time.Duration, last int, hasLast bool, level Level) (result Crossing, err error) {
	if err := a.validateThreshold(p, band, interval); err != nil {
		return Crossing{}, maskAny(err)
	}
	wasEnabled := a.Enabled(p)
	if err := a.enable(p); err != nil {
		return Crossing{}, maskAny(err)
	}
	defer func() {
		if err != nil && !wasEnabled {
			a.disableUnread(p)
		}
	}()
	owner := task.OwnerOf(ctx)
	if err := a.reg.Claim(p, owner); err != nil {
		return Crossing{}, maskAny(err)
	}
	defer a.reg.Release(p, owner)

	if !hasLast {
		mv, err := a.Read(p)
		if err != nil {
			return Crossing{}, maskAny(err)
		}
		last = mv
	}
	if level == LevelUnknown {
		level = band.Initial(last)
	}
	for count := 0; ; count++ {
		mv, err := a.Read(p)
		if err != nil {
			return Crossing{}, maskAny(err)
		}
		if next := band.Next(level, mv); next != level {
			crossingsTotal.WithLabelValues(p.String(), next.String()).Inc()
			return Crossing{
				Previous:      last,
				Value:         mv,
				PreviousLevel: level,
				Level:         next,
				Iterations:    count,
			}, nil
		}
		if err := sleep(ctx, interval); err != nil {
			return Crossing{}, maskAny(err)
		}
	}
}

// RunOnThreshold starts a background task that calls cb every time the level
// of the pin relative to the band changes.
// The task stops after repeats callbacks (repeats <= 0 runs until stopped).
func (a *AIN) RunOnThreshold(ctx context.Context, p pins.Pin, band Band, interval time.Duration, repeats int, cb ThresholdCallback) (*task.Task, error) {
	if err := a.validateThreshold(p, band, interval); err != nil {
		return nil, maskAny(err)
	}
	t := task.New(fmt.Sprintf("ain-threshold-%s", p), a.log)
	if err := a.enable(p); err != nil {
		return nil, maskAny(err)
	}
	if err := a.reg.Attach(p, t); err != nil {
		return nil, maskAny(err)
	}
	t.Start(ctx, func(ctx context.Context) error {
		var (
			c     Crossing
			err   error
			known bool
		)
		for count := 0; repeats <= 0 || count < repeats; count++ {
			if known {
				c, err = a.waitForThreshold(ctx, p, band, interval, c.Value, true, c.Level)
			} else {
				c, err = a.waitForThreshold(ctx, p, band, interval, 0, false, LevelUnknown)
			}
			if err != nil {
				return maskAny(err)
			}
			known = true
			if cb != nil {
				cb(p, c.Previous, c.Value, c.PreviousLevel, c.Level, count)
			}
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

// RunOnceOnThreshold is RunOnThreshold with a single callback.
func (a *AIN) RunOnceOnThreshold(ctx context.Context, p pins.Pin, band Band, interval time.Duration, cb ThresholdCallback) (*task.Task, error) {
	return a.RunOnThreshold(ctx, p, band, interval, 1, cb)
}
