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

package gpio

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/backend"
	"github.com/binkynet/BoneIO/pkg/pins"
	"github.com/binkynet/BoneIO/pkg/registry"
	"github.com/binkynet/BoneIO/pkg/task"
)

// EdgeCallback is called by RunOnEdge for every detected edge.
// Iteration starts at 0.
type EdgeCallback func(p pins.Pin, edge model.Edge, state model.State, iteration int)

// Edge returns the edge trigger configured on the pin.
func (g *GPIO) Edge(p pins.Pin) (model.Edge, error) {
	s, err := g.status(p)
	if err != nil {
		return model.EdgeNone, maskAny(err)
	}
	if s.Edge != model.EdgeNone {
		return s.Edge, nil
	}
	h, err := g.handle(p, backend.AttributeEdge)
	if err != nil {
		return model.EdgeNone, maskAny(err)
	}
	raw, err := h.Read()
	if err != nil {
		return model.EdgeNone, maskAny(err)
	}
	return model.ParseEdge(raw)
}

// SetEdge configures the edge trigger of an input pin.
// Setting EdgeNone releases an idle waiting claim on the pin.
func (g *GPIO) SetEdge(p pins.Pin, edge model.Edge, force bool) error {
	if !edge.Valid() {
		return model.InvalidArgument("invalid edge %s", edge)
	}
	if err := g.requireMode(p, model.DirectionIn); err != nil {
		return maskAny(err)
	}
	if !force {
		if current, err := g.Edge(p); err == nil && current == edge {
			if edge == model.EdgeNone {
				g.reg.ReleaseIdle(p)
			}
			return nil
		}
	}
	h, err := g.handle(p, backend.AttributeEdge)
	if err != nil {
		return maskAny(err)
	}
	if err := h.Write(edge.String()); err != nil {
		return maskAny(err)
	}
	raw, err := h.Read()
	if err != nil {
		return maskAny(err)
	}
	if actual, err := model.ParseEdge(raw); err != nil || actual != edge {
		g.reg.Modify(p, func(s *registry.Status) { s.Edge = model.EdgeNone })
		return errors.Errorf("unable to set edge of pin %s to %s (got '%s')", p, edge, raw)
	}
	g.reg.Modify(p, func(s *registry.Status) { s.Edge = edge })
	if edge == model.EdgeNone {
		g.reg.ReleaseIdle(p)
	}
	return nil
}

// WaitForEdge blocks until the given edge is detected on the input pin,
// the timeout elapses (timeout <= 0 waits forever) or the context is canceled.
// On an edge it returns the new state and true.
// On timeout it returns false without error.
// With autoClear the edge trigger is reset to none before returning,
// otherwise the pin stays claimed until its edge is set to none.
func (g *GPIO) WaitForEdge(ctx context.Context, p pins.Pin, edge model.Edge, timeout time.Duration, autoClear bool) (model.State, bool, error) {
	if !edge.Valid() || edge == model.EdgeNone {
		return model.Low, false, model.InvalidArgument("cannot wait for edge %s on pin %s", edge, p)
	}
	if err := g.requireMode(p, model.DirectionIn); err != nil {
		return model.Low, false, maskAny(err)
	}
	owner := task.OwnerOf(ctx)
	if err := g.reg.Claim(p, owner); err != nil {
		return model.Low, false, maskAny(err)
	}
	reset := func() {
		if err := g.SetEdge(p, model.EdgeNone, false); err != nil {
			g.log.Debug().Err(err).Str("pin", p.String()).Msg("Failed to clear edge")
		}
		g.reg.Release(p, owner)
	}

	if err := g.SetEdge(p, edge, false); err != nil {
		g.reg.Release(p, owner)
		return model.Low, false, maskAny(err)
	}
	h, err := g.handle(p, backend.AttributeValue)
	if err != nil {
		reset()
		return model.Low, false, maskAny(err)
	}
	// Clear pending state
	if _, err := h.Read(); err != nil {
		reset()
		return model.Low, false, maskAny(err)
	}
	triggered, err := h.Wait(ctx, timeout)
	if autoClear {
		reset()
	}
	if err != nil {
		return model.Low, false, maskAny(err)
	}
	if !triggered {
		edgeTimeoutsTotal.WithLabelValues(p.String()).Inc()
		return model.Low, false, nil
	}
	edgesTotal.WithLabelValues(p.String()).Inc()
	state, err := g.read(p)
	if err != nil {
		return model.Low, false, maskAny(err)
	}
	return state, true, nil
}

// RunOnEdge starts a background task that waits for edges on the input pin
// and calls cb for each of them.
// The task stops after repeats callbacks (repeats <= 0 runs until stopped).
// When the task ends, the edge trigger is reset to none.
func (g *GPIO) RunOnEdge(ctx context.Context, p pins.Pin, edge model.Edge, timeout time.Duration, repeats int, cb EdgeCallback) (*task.Task, error) {
	if !edge.Valid() || edge == model.EdgeNone {
		return nil, model.InvalidArgument("cannot wait for edge %s on pin %s", edge, p)
	}
	if err := g.requireMode(p, model.DirectionIn); err != nil {
		return nil, maskAny(err)
	}
	t := task.New(fmt.Sprintf("gpio-edge-%s", p), g.log)
	if err := g.reg.Attach(p, t); err != nil {
		return nil, maskAny(err)
	}
	log := g.log.With().Str("pin", p.String()).Str("edge", edge.String()).Logger()
	t.Start(ctx, func(ctx context.Context) error {
		count := 0
		for repeats <= 0 || count < repeats {
			state, triggered, err := g.WaitForEdge(ctx, p, edge, timeout, false)
			if err != nil {
				return maskAny(err)
			}
			if !triggered {
				continue
			}
			if cb != nil {
				cb(p, edge, state, count)
			}
			count++
		}
		return nil
	}, func() {
		if g.reg.TypeOf(p) == model.PinTypeGPIO {
			if err := g.SetEdge(p, model.EdgeNone, false); err != nil {
				log.Debug().Err(err).Msg("Failed to reset edge")
			}
		}
		g.reg.Detach(p, t)
		log.Debug().Msg("Edge wait ended")
	})
	return t, nil
}

// RunOnceOnEdge is RunOnEdge with a single callback.
func (g *GPIO) RunOnceOnEdge(ctx context.Context, p pins.Pin, edge model.Edge, timeout time.Duration, cb EdgeCallback) (*task.Task, error) {
	return g.RunOnEdge(ctx, p, edge, timeout, 1, cb)
}

// StopEdgeWait stops the background edge task of the pin and waits
// for it to end. It is a no-op when no task is running.
// Must not be called from within the callback.
func (g *GPIO) StopEdgeWait(p pins.Pin) {
	if t := g.reg.Task(p); t != nil {
		t.Stop()
	}
}
