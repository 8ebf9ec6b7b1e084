// Copyright 2021 Ewout Prangsma
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

package util

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/pkg/metrics"
)

const (
	minRetryDelay = time.Millisecond * 10
	maxRetryDelay = time.Second * 5
)

var (
	// Total number of failed runs per description
	failuresTotal = metrics.MustRegisterCounterVec("util",
		"until_canceled_failures_total",
		"Total number of failed runs of a repeated action",
		"description")
)

// UntilCanceled continues to call the given callback
// until the given context is canceled.
// After a failure, the delay before the next call grows up to 5s.
// Always returns nil.
func UntilCanceled(ctx context.Context, log zerolog.Logger, description string, cb func() error) error {
	delay := minRetryDelay
	for {
		if ctx.Err() != nil {
			// Context canceled
			return nil
		}
		if err := cb(); err != nil {
			log.Warn().Err(err).Msgf("%s failed", description)
			failuresTotal.WithLabelValues(description).Inc()
			delay = nextDelay(delay)
		} else {
			delay = minRetryDelay
		}
		select {
		case <-ctx.Done():
			log.Debug().Msgf("Stopping %s; context canceled", description)
			return nil
		case <-time.After(delay):
			// Continue
		}
	}
}

func nextDelay(delay time.Duration) time.Duration {
	return min(time.Duration(float64(delay)*1.5), maxRetryDelay)
}
