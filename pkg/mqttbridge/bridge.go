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

// Package mqttbridge publishes pin events to an MQTT broker and
// forwards output commands from the broker to the service.
//
// Topics (relative to the configured prefix):
//
//	<pin>/event  JSON encoded service.Event (published)
//	<pin>/set    output value (subscribed)
//	log          log lines (published)
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/pkg/service"
)

const (
	// DefaultTopicPrefix is the topic prefix used when none is configured.
	DefaultTopicPrefix = "boneio"
	publishTimeout     = time.Millisecond * 200
	qos                = 0
)

var (
	maskAny = errors.WithStack
)

// Config of the bridge.
type Config struct {
	// Broker address (host:port)
	Broker      string
	TopicPrefix string
	ClientID    string
}

func (c *Config) setDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.ClientID == "" {
		c.ClientID = "boneio"
	}
}

// Service is the part of the pin service used by the bridge.
type Service interface {
	Subscribe(cb func(service.Event)) context.CancelFunc
	SetOutput(ctx context.Context, pinName, value string) error
}

// Bridge connects a Service with an MQTT broker.
type Bridge struct {
	Config
	log     zerolog.Logger
	service Service

	mutex  sync.Mutex
	client mqttapi.Client
}

// New creates a bridge.
func New(cfg Config, svc Service, log zerolog.Logger) *Bridge {
	cfg.setDefaults()
	return &Bridge{
		Config:  cfg,
		log:     log.With().Str("component", "mqttbridge").Logger(),
		service: svc,
	}
}

// EventTopic returns the topic events of the given pin are published on.
func (b *Bridge) EventTopic(pinName string) string {
	return b.TopicPrefix + "/" + pinName + "/event"
}

// LogTopic returns the topic log lines are published on.
func (b *Bridge) LogTopic() string {
	return b.TopicPrefix + "/log"
}

func (b *Bridge) setTopicFilter() string {
	return b.TopicPrefix + "/+/set"
}

// pinOfSetTopic returns the pin name of a <prefix>/<pin>/set topic.
func (b *Bridge) pinOfSetTopic(topic string) (string, bool) {
	rest, found := strings.CutPrefix(topic, b.TopicPrefix+"/")
	if !found {
		return "", false
	}
	pin, found := strings.CutSuffix(rest, "/set")
	if !found || pin == "" || strings.Contains(pin, "/") {
		return "", false
	}
	return pin, true
}

// Run connects to the broker and forwards events & commands until
// the given context is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	log := b.log
	opts := mqttapi.NewClientOptions().
		AddBroker("tcp://" + b.Broker).
		SetClientID(b.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(func(c mqttapi.Client, m mqttapi.Message) {
		// Ignore messages when no subscription match
	})
	opts.SetOnConnectHandler(func(c mqttapi.Client) {
		// (Re)subscribe after every connect
		if token := c.Subscribe(b.setTopicFilter(), qos, b.onMessage); token.Wait() && token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", b.setTopicFilter()).Msg("Failed to subscribe")
		}
	})

	client := mqttapi.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to mqtt: %w", token.Error())
	}
	b.mutex.Lock()
	b.client = client
	b.mutex.Unlock()
	log.Info().Str("broker", b.Broker).Str("prefix", b.TopicPrefix).Msg("Connected to MQTT broker")

	unsubscribe := b.service.Subscribe(func(e service.Event) {
		if err := b.Publish(ctx, b.EventTopic(e.Pin), e); err != nil {
			log.Debug().Err(err).Str("pin", e.Pin).Msg("Failed to publish event")
		}
	})
	<-ctx.Done()
	unsubscribe()

	b.mutex.Lock()
	b.client = nil
	b.mutex.Unlock()
	client.Disconnect(250)
	return nil
}

// Publish the JSON encoding of msg on the given topic.
func (b *Bridge) Publish(ctx context.Context, topic string, msg interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return maskAny(err)
	}
	b.mutex.Lock()
	client := b.client
	b.mutex.Unlock()
	if client == nil {
		return errors.New("not connected")
	}
	token := client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		publishedTotal.WithLabelValues("timeout").Inc()
		return errors.Errorf("publish to '%s' timed out", topic)
	}
	if err := token.Error(); err != nil {
		publishedTotal.WithLabelValues("failed").Inc()
		return maskAny(err)
	}
	publishedTotal.WithLabelValues("ok").Inc()
	return nil
}

// onMessage handles a message on a set topic.
func (b *Bridge) onMessage(client mqttapi.Client, msg mqttapi.Message) {
	b.handleSet(msg.Topic(), msg.Payload())
}

func (b *Bridge) handleSet(topic string, payload []byte) {
	pin, ok := b.pinOfSetTopic(topic)
	if !ok {
		return
	}
	value := strings.TrimSpace(string(payload))
	if err := b.service.SetOutput(context.Background(), pin, value); err != nil {
		commandsTotal.WithLabelValues("failed").Inc()
		b.log.Warn().Err(err).Str("pin", pin).Str("value", value).Msg("Failed to set output")
		return
	}
	commandsTotal.WithLabelValues("ok").Inc()
}
