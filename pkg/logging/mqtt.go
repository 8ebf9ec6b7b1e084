// Copyright 2018-2024 Ewout Prangsma
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

package logging

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/binkynet/BoneIO/pkg/metrics"
)

// Publisher sends a JSON encoded message to an MQTT topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg interface{}) error
}

// MQTTWriter is a log output that forwards log events to an MQTT topic.
// Events are dropped while it is disabled or has no destination.
type MQTTWriter interface {
	io.Writer
	Enable(enable bool)
	SetDestination(topic string, publisher Publisher)
}

const (
	subSystem     = "logging"
	logQueueSize  = 512
	publishFailed = "failed"
	publishOK     = "ok"
	dropped       = "dropped"
)

var (
	logLinesTotal = metrics.MustRegisterCounterVec(subSystem, "mqtt_lines_total", "Number of log lines handled by the MQTT writer", "result")
)

// logEvent is the payload of a published log line.
// Fields holds the decoded zerolog event; Message is used for non-JSON lines.
type logEvent struct {
	Fields  map[string]interface{} `json:"fields,omitempty"`
	Message string                 `json:"message,omitempty"`
}

func newLogEvent(line []byte) logEvent {
	var fields map[string]interface{}
	if err := json.Unmarshal(line, &fields); err == nil {
		return logEvent{Fields: fields}
	}
	return logEvent{Message: string(line)}
}

type mqttWriter struct {
	mutex     sync.Mutex
	topic     string
	publisher Publisher
	enabled   bool
	// Signaled when the destination or enabled state changes
	changed chan struct{}
	queue   chan []byte
}

// NewMQTTWriter creates a new MQTT output for logs.
// Publishing stops when the given context is canceled.
func NewMQTTWriter(ctx context.Context) MQTTWriter {
	w := &mqttWriter{
		changed: make(chan struct{}, 1),
		queue:   make(chan []byte, logQueueSize),
	}
	go w.run(ctx)
	return w
}

// Write queues a copy of the line. When the queue is full the
// oldest line is dropped. Write never fails.
func (w *mqttWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	line := append([]byte(nil), p...)
	for {
		select {
		case w.queue <- line:
			return len(p), nil
		default:
		}
		select {
		case <-w.queue:
			logLinesTotal.WithLabelValues(dropped).Inc()
		default:
		}
	}
}

func (w *mqttWriter) Enable(enable bool) {
	w.mutex.Lock()
	w.enabled = enable
	w.mutex.Unlock()
	w.notify()
}

func (w *mqttWriter) SetDestination(topic string, publisher Publisher) {
	w.mutex.Lock()
	w.topic = topic
	w.publisher = publisher
	w.mutex.Unlock()
	w.notify()
}

func (w *mqttWriter) notify() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// destination returns the publisher & topic, or nil when disabled.
func (w *mqttWriter) destination() (Publisher, string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if !w.enabled || w.topic == "" {
		return nil, ""
	}
	return w.publisher, w.topic
}

func (w *mqttWriter) run(ctx context.Context) {
	for {
		publisher, topic := w.destination()
		if publisher == nil {
			select {
			case <-w.changed:
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case line := <-w.queue:
			if err := publisher.Publish(ctx, topic, newLogEvent(line)); err != nil {
				logLinesTotal.WithLabelValues(publishFailed).Inc()
			} else {
				logLinesTotal.WithLabelValues(publishOK).Inc()
			}
		case <-w.changed:
		case <-ctx.Done():
			return
		}
	}
}
