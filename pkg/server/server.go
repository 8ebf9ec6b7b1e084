// Copyright 2023-2024 Ewout Prangsma
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

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/registry"
)

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	Port int
}

// Service provides the data served by the server.
type Service interface {
	// Status returns a snapshot of all claimed pins.
	Status() []registry.Status
	// Uptime returns the time since the service started.
	Uptime() time.Duration
	// SetOutput sets a configured output to the given value.
	SetOutput(ctx context.Context, pinName, value string) error
}

// Server runs the HTTP server for the service.
type Server struct {
	Config
	log     zerolog.Logger
	service Service
}

// New configures a new Server.
func New(cfg Config, log zerolog.Logger, service Service) *Server {
	return &Server{
		Config:  cfg,
		log:     log.With().Str("component", "server").Logger(),
		service: service,
	}
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on address %s: %w", httpAddr, err)
	}
	httpSrv := http.Server{
		Handler: s.router(),
	}

	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to serve HTTP server")
		}
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()

	// Wait until context closed
	<-ctx.Done()

	log.Info().Msg("Closing server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/pins", s.pins)
	e.PUT("/pins/:pin", s.setPin)
	e.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	e.GET("/debug/pprof/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
	e.GET("/debug/pprof/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))
	return e
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status: "OK",
		Uptime: s.service.Uptime().Round(time.Second).String(),
	})
}

// pinStatus is the JSON view of a registry.Status.
type pinStatus struct {
	Pin        string `json:"pin"`
	Type       string `json:"type"`
	Direction  string `json:"direction,omitempty"`
	State      *int   `json:"state,omitempty"`
	Edge       string `json:"edge,omitempty"`
	Pull       string `json:"pull,omitempty"`
	Slew       string `json:"slew,omitempty"`
	Waiting    bool   `json:"waiting,omitempty"`
	Background bool   `json:"background,omitempty"`
	Bus        string `json:"bus,omitempty"`
	PeriodNS   int    `json:"period_ns,omitempty"`
	DutyNS     int    `json:"duty_ns,omitempty"`
	Running    bool   `json:"running,omitempty"`
}

func newPinStatus(s registry.Status) pinStatus {
	result := pinStatus{
		Pin:        s.Pin.String(),
		Type:       s.Type.String(),
		Pull:       s.Pull,
		Slew:       s.Slew,
		Waiting:    s.Waiting,
		Background: s.Background,
		Bus:        s.Bus,
	}
	if s.Direction != model.DirectionUnknown {
		result.Direction = s.Direction.String()
	}
	if s.StateKnown {
		state := s.State
		result.State = &state
	}
	if s.Edge != model.EdgeNone {
		result.Edge = s.Edge.String()
	}
	if s.Type == model.PinTypePWM {
		result.PeriodNS = s.PWM.PeriodNS
		result.DutyNS = s.PWM.DutyNS
		result.Running = s.PWM.Running
	}
	return result
}

func (s *Server) pins(c echo.Context) error {
	result := lo.Map(s.service.Status(), func(x registry.Status, _ int) pinStatus {
		return newPinStatus(x)
	})
	return c.JSON(http.StatusOK, result)
}

type setPinRequest struct {
	Value string `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) setPin(c echo.Context) error {
	var req setPinRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	if err := s.service.SetOutput(c.Request().Context(), c.Param("pin"), req.Value); err != nil {
		status := http.StatusInternalServerError
		switch {
		case model.IsInvalidArgument(err):
			status = http.StatusBadRequest
		case model.IsUnsupportedOperation(err), model.IsModeMismatch(err), model.IsNotEnabled(err):
			status = http.StatusConflict
		}
		return c.JSON(status, errorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}
