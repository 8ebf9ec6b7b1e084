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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/board"
	"github.com/binkynet/BoneIO/pkg/environment"
	"github.com/binkynet/BoneIO/pkg/logging"
	"github.com/binkynet/BoneIO/pkg/mqttbridge"
	"github.com/binkynet/BoneIO/pkg/overlay"
	"github.com/binkynet/BoneIO/pkg/server"
	"github.com/binkynet/BoneIO/pkg/service"
	"github.com/binkynet/BoneIO/pkg/service/util"
)

const (
	projectName       = "BoneIO"
	defaultServerPort = 7130
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
	maskAny        = errors.WithStack
)

func main() {
	var levelFlag string
	var configPath string
	var serverHost string
	var serverPort int
	var mqttCfg mqttbridge.Config
	var overlayCfg overlay.Config
	var force bool

	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.StringVarP(&configPath, "config", "c", "", "Path of the YAML file describing the pins to watch")
	pflag.StringVar(&serverHost, "host", "0.0.0.0", "Host address the HTTP server will listen on")
	pflag.IntVar(&serverPort, "port", defaultServerPort, "Port the HTTP server will listen on")
	pflag.StringVar(&mqttCfg.Broker, "mqtt-broker", "", "Address (host:port) of the MQTT broker. Empty disables MQTT")
	pflag.StringVar(&mqttCfg.TopicPrefix, "mqtt-topic", mqttbridge.DefaultTopicPrefix, "Prefix of all MQTT topics")
	pflag.StringVar(&mqttCfg.ClientID, "mqtt-client-id", "", "MQTT client ID (defaults to the hostname)")
	pflag.StringVar(&overlayCfg.CapeManagerGlob, "capemgr", "", "Glob pattern of the cape manager directory")
	pflag.BoolVar(&force, "force", false, "Run on hosts that are not a BeagleBone")
	pflag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	output := logging.NewMultiWriter(zerolog.ConsoleWriter{Out: os.Stderr})
	logger := zerolog.New(output).With().Timestamp().Logger()
	level, err := zerolog.ParseLevel(levelFlag)
	if err != nil {
		Exitf("Invalid log level '%s': %v\n", levelFlag, err)
	}
	logger = logger.Level(level)

	if err := environment.Check(logger, force); err != nil {
		Exitf("%v\n", err)
	}

	var watch model.Configuration
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			Exitf("Failed to read config %s: %v\n", configPath, err)
		}
		watch, err = model.ParseConfiguration(data)
		if err != nil {
			Exitf("Invalid config %s: %v\n", configPath, err)
		}
	}

	b := board.NewSysfs(board.Config{Overlay: overlayCfg}, logger)
	svc, err := service.New(service.Config{
		Watch: watch,
	}, service.Dependencies{
		Logger: logger,
		Board:  b,
	})
	if err != nil {
		Exitf("Failed to initialize Service: %v\n", err)
	}

	var bridge *mqttbridge.Bridge
	if mqttCfg.Broker != "" {
		if mqttCfg.ClientID == "" {
			if host, err := os.Hostname(); err == nil {
				mqttCfg.ClientID = "boneio-" + host
			}
		}
		bridge = mqttbridge.New(mqttCfg, svc, logger)
		mqttWriter := logging.NewMQTTWriter(ctx)
		mqttWriter.SetDestination(bridge.LogTopic(), bridge)
		mqttWriter.Enable(true)
		output.Add(mqttWriter)
	}

	httpServer := server.New(server.Config{
		Host: serverHost,
		Port: serverPort,
	}, logger, svc)

	// Prepare to shutdown in a controlled manor
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if bridge != nil {
		g.Go(func() error {
			return util.UntilCanceled(ctx, logger, "MQTT bridge", func() error {
				return maskAny(bridge.Run(ctx))
			})
		})
	}
	if err := g.Wait(); err != nil {
		Exitf("Service run failed: %v\n", err)
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
