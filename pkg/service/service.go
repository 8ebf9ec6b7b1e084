//    Copyright 2017-2024 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package service

import (
	"context"
	"time"

	"github.com/mattn/go-pubsub"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/board"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/service/util"
)

var (
	maskAny = errors.WithStack
)

// Config of the service.
type Config struct {
	// Pins to configure & watch
	Watch model.Configuration
}

// Dependencies of the service.
type Dependencies struct {
	Logger zerolog.Logger
	Board  *board.Board
}

// Service configures the pins of the board and publishes their events
// until it is canceled.
type Service struct {
	Config
	Dependencies

	log     zerolog.Logger
	events  *pubsub.PubSub
	startAt time.Time
	// Resolved pins of the configuration
	inputs  map[pins.Pin]model.Input
	outputs map[pins.Pin]model.Output
	analog  map[pins.Pin]model.Analog
	pwm     map[pins.Pin]model.PWMOutput
}

// New creates a Service instance and returns it.
// All pin names of the configuration must be known.
func New(conf Config, deps Dependencies) (*Service, error) {
	if err := conf.Watch.Validate(); err != nil {
		return nil, maskAny(err)
	}
	s := &Service{
		Config:       conf,
		Dependencies: deps,
		log:          deps.Logger.With().Str("component", "service").Logger(),
		events:       pubsub.New(),
		startAt:      time.Now(),
		inputs:       make(map[pins.Pin]model.Input),
		outputs:      make(map[pins.Pin]model.Output),
		analog:       make(map[pins.Pin]model.Analog),
		pwm:          make(map[pins.Pin]model.PWMOutput),
	}
	resolve := func(name string) (pins.Pin, error) {
		p, err := pins.Parse(name)
		if err != nil {
			return 0, errors.Wrapf(model.ValidationError, "unknown pin '%s'", name)
		}
		return p, nil
	}
	for _, x := range conf.Watch.Inputs {
		p, err := resolve(x.Pin)
		if err != nil {
			return nil, err
		}
		s.inputs[p] = x
	}
	for _, x := range conf.Watch.Outputs {
		p, err := resolve(x.Pin)
		if err != nil {
			return nil, err
		}
		s.outputs[p] = x
	}
	for _, x := range conf.Watch.Analog {
		p, err := resolve(x.Pin)
		if err != nil {
			return nil, err
		}
		s.analog[p] = x
	}
	for _, x := range conf.Watch.PWM {
		p, err := resolve(x.Pin)
		if err != nil {
			return nil, err
		}
		s.pwm[p] = x
	}
	return s, nil
}

// Run configures all pins, then watches them until the given context
// is canceled. On return all pins of the board are disabled.
func (s *Service) Run(ctx context.Context) error {
	log := s.log
	defer func() {
		if err := s.Board.Cleanup(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Cleanup failed")
		}
	}()

	if err := s.configure(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to configure pins")
		return maskAny(err)
	}
	log.Info().
		Int("inputs", len(s.inputs)).
		Int("outputs", len(s.outputs)).
		Int("analog", len(s.analog)).
		Int("pwm", len(s.pwm)).
		Msg("Pins configured")

	g, ctx := errgroup.WithContext(ctx)
	for p, x := range s.inputs {
		p, x := p, x
		g.Go(func() error {
			return util.UntilCanceled(ctx, log, "edge watch of "+p.String(), func() error {
				return s.watchEdges(ctx, p, x)
			})
		})
	}
	for p, x := range s.analog {
		p, x := p, x
		g.Go(func() error {
			return util.UntilCanceled(ctx, log, "analog watch of "+p.String(), func() error {
				return s.watchAnalog(ctx, p, x)
			})
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return maskAny(g.Wait())
}

// configure all pins concurrently, collecting all errors.
func (s *Service) configure(ctx context.Context) error {
	var se util.SyncError
	var g errgroup.Group
	for p, x := range s.inputs {
		p, x := p, x
		g.Go(func() error {
			se.Add(errors.Wrapf(s.configureInput(ctx, p, x), "input %s", p))
			return nil
		})
	}
	for p, x := range s.outputs {
		p, x := p, x
		g.Go(func() error {
			se.Add(errors.Wrapf(s.configureOutput(ctx, p, x), "output %s", p))
			return nil
		})
	}
	for p := range s.analog {
		p := p
		g.Go(func() error {
			// Validates the pin & loads the ADC overlay
			_, err := s.Board.AIN.Read(p)
			se.Add(errors.Wrapf(err, "analog %s", p))
			return nil
		})
	}
	for p, x := range s.pwm {
		p, x := p, x
		g.Go(func() error {
			se.Add(errors.Wrapf(s.configurePWM(ctx, p, x), "pwm %s", p))
			return nil
		})
	}
	g.Wait()
	return se.AsError()
}
