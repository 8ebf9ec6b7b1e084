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

package service

import (
	"context"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/ain"
	"github.com/binkynet/BoneIO/pkg/gpio"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/pwm"
	"github.com/binkynet/BoneIO/pkg/task"
)

func pullOf(name string) gpio.Pull {
	switch name {
	case model.PullNameDown:
		return gpio.PullDown
	case model.PullNameNone:
		return gpio.PullNone
	default:
		return gpio.PullUp
	}
}

func (s *Service) configureInput(ctx context.Context, p pins.Pin, x model.Input) error {
	return maskAny(s.Board.GPIO.PinMode(ctx, p, model.DirectionIn, gpio.WithPull(pullOf(x.PullOrDefault()))))
}

func (s *Service) configureOutput(ctx context.Context, p pins.Pin, x model.Output) error {
	if err := s.Board.GPIO.PinMode(ctx, p, model.DirectionOut); err != nil {
		return maskAny(err)
	}
	return maskAny(s.Board.GPIO.DigitalWrite(p, x.InitialState()))
}

func (s *Service) configurePWM(ctx context.Context, p pins.Pin, x model.PWMOutput) error {
	opts := []pwm.StartOption{pwm.WithDutyCycle(x.DutyCycle)}
	if x.Frequency > 0 {
		opts = append(opts, pwm.WithFrequency(x.Frequency))
	}
	if x.Inverted {
		opts = append(opts, pwm.WithPolarity(pwm.PolarityInverted))
	} else {
		opts = append(opts, pwm.WithPolarity(pwm.PolarityNormal))
	}
	return maskAny(s.Board.PWM.Start(ctx, p, opts...))
}

// wait for the task to end. Returns nil when the context was canceled.
func wait(ctx context.Context, t *task.Task) error {
	select {
	case <-t.Done():
	case <-ctx.Done():
		t.Stop()
	}
	if ctx.Err() != nil {
		return nil
	}
	return maskAny(t.Err())
}

// watchEdges publishes an event for every edge of the input
// until the context is canceled or the watch fails.
func (s *Service) watchEdges(ctx context.Context, p pins.Pin, x model.Input) error {
	t, err := s.Board.GPIO.RunOnEdge(ctx, p, x.EdgeOrDefault(), 0, 0, func(p pins.Pin, edge model.Edge, state model.State, iteration int) {
		s.publish(Event{
			Pin:       p.String(),
			Kind:      EventKindEdge,
			Value:     int(state),
			Edge:      edge.String(),
			Iteration: iteration,
		})
	})
	if err != nil {
		return maskAny(err)
	}
	return wait(ctx, t)
}

// watchAnalog publishes an event for every change or threshold crossing
// of the analog input until the context is canceled or the watch fails.
func (s *Service) watchAnalog(ctx context.Context, p pins.Pin, x model.Analog) error {
	var (
		t   *task.Task
		err error
	)
	switch x.Mode {
	case model.AnalogModeThreshold:
		band := ain.Band{Lower: x.Lower, Upper: x.Upper, Hysteresis: x.Hysteresis}
		t, err = s.Board.AIN.RunOnThreshold(ctx, p, band, x.IntervalOrDefault(), 0,
			func(p pins.Pin, previous, value int, previousLevel, level ain.Level, iteration int) {
				s.publish(Event{
					Pin:       p.String(),
					Kind:      EventKindThreshold,
					Value:     value,
					Previous:  previous,
					Level:     level.String(),
					Iteration: iteration,
				})
			})
	default:
		t, err = s.Board.AIN.RunOnChange(ctx, p, x.Delta, x.IntervalOrDefault(), 0,
			func(p pins.Pin, previous, value, iteration int) {
				s.publish(Event{
					Pin:       p.String(),
					Kind:      EventKindChange,
					Value:     value,
					Previous:  previous,
					Iteration: iteration,
				})
			})
	}
	if err != nil {
		return maskAny(err)
	}
	return wait(ctx, t)
}
