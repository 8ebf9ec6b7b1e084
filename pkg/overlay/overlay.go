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

package overlay

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/BoneIO/model"
)

// Well known overlay names
const (
	// Analog inputs
	ADC = "BB-ADC"
	// PWM subsystem
	PWM = "am33xx_pwm"
	// Prefix of per pin PWM overlays
	PWMPinPrefix = "bone_pwm_"
	// Prefix of per pin GPIO overlays
	GPIOPinPrefix = "GPIO_"
	// Prefix of UART overlays
	UARTPrefix = "BB-UART"
)

const (
	defaultCapeManagerGlob = "/sys/devices/bone_capemgr.*"
	defaultSettleDelay     = 250 * time.Millisecond
)

var (
	maskAny = errors.WithStack
)

// Loader loads and unloads device tree overlays.
type Loader interface {
	// Load the overlay with given name.
	// Loading an already loaded overlay is a no-op.
	Load(name string) error
	// Unload the first loaded overlay whose name matches the given
	// regular expression. Returns false when no such overlay is loaded.
	Unload(pattern string) (bool, error)
	// IsLoaded returns true when the overlay with given name is loaded.
	IsLoaded(name string) (bool, error)
}

// Config of the cape manager loader.
type Config struct {
	// Glob pattern of the cape manager directory
	CapeManagerGlob string
	// Time given to the kernel to process a slots change
	SettleDelay time.Duration
}

func (c *Config) setDefaults() {
	if c.CapeManagerGlob == "" {
		c.CapeManagerGlob = defaultCapeManagerGlob
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = defaultSettleDelay
	}
}

type capeManager struct {
	Config
	log    zerolog.Logger
	mutex  sync.Mutex
	loaded map[string]struct{}
}

// NewCapeManager creates a loader that uses the slots file of the cape manager.
func NewCapeManager(cfg Config, log zerolog.Logger) Loader {
	cfg.setDefaults()
	return &capeManager{
		Config: cfg,
		log:    log.With().Str("component", "overlay").Logger(),
		loaded: make(map[string]struct{}),
	}
}

// Load the overlay with given name.
func (m *capeManager) Load(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, found := m.loaded[name]; found {
		return nil
	}
	if loaded, err := m.isLoaded(name); err != nil {
		return maskAny(err)
	} else if loaded {
		m.loaded[name] = struct{}{}
		return nil
	}

	log := m.log.With().Str("overlay", name).Logger()
	log.Debug().Msg("Loading overlay")
	if err := m.writeSlots(name); err != nil {
		overlayFailuresTotal.WithLabelValues("load").Inc()
		return model.DeviceTree("failed to load overlay %s: %v", name, err)
	}
	time.Sleep(m.SettleDelay)
	if loaded, err := m.isLoaded(name); err != nil {
		return maskAny(err)
	} else if !loaded {
		overlayFailuresTotal.WithLabelValues("load").Inc()
		return model.DeviceTree("overlay %s not loaded", name)
	}
	m.loaded[name] = struct{}{}
	overlayLoadsTotal.Inc()
	log.Info().Msg("Loaded overlay")
	return nil
}

// Unload the first loaded overlay matching the given pattern.
func (m *capeManager) Unload(pattern string) (bool, error) {
	expr, err := regexp.Compile(`(?m)^ ?(\d+): .*?,` + pattern + `$`)
	if err != nil {
		return false, model.InvalidArgument("invalid overlay pattern '%s'", pattern)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	slots, err := m.readSlots()
	if err != nil {
		return false, maskAny(err)
	}
	match := expr.FindStringSubmatch(slots)
	if match == nil {
		return false, nil
	}
	id, _ := strconv.Atoi(match[1])
	log := m.log.With().Str("overlay", pattern).Int("slot", id).Logger()
	log.Debug().Msg("Unloading overlay")
	if err := m.writeSlots("-" + match[1]); err != nil {
		overlayFailuresTotal.WithLabelValues("unload").Inc()
		return false, model.DeviceTree("failed to unload overlay %s: %v", pattern, err)
	}
	time.Sleep(m.SettleDelay)
	if slots, err := m.readSlots(); err != nil {
		return false, maskAny(err)
	} else if still := expr.FindStringSubmatch(slots); still != nil && still[1] == match[1] {
		overlayFailuresTotal.WithLabelValues("unload").Inc()
		return false, model.DeviceTree("overlay %s still loaded in slot %d", pattern, id)
	}
	nameExpr := regexp.MustCompile(`^` + pattern + `$`)
	for name := range m.loaded {
		if nameExpr.MatchString(name) {
			delete(m.loaded, name)
		}
	}
	overlayUnloadsTotal.Inc()
	log.Info().Msg("Unloaded overlay")
	return true, nil
}

// IsLoaded returns true when the overlay with given name is loaded.
func (m *capeManager) IsLoaded(name string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.isLoaded(name)
}

func (m *capeManager) isLoaded(name string) (bool, error) {
	slots, err := m.readSlots()
	if err != nil {
		return false, maskAny(err)
	}
	expr := regexp.MustCompile(`(?m),` + regexp.QuoteMeta(name) + `$`)
	return expr.MatchString(slots), nil
}

func (m *capeManager) slotsPath() (string, error) {
	matches, err := filepath.Glob(m.CapeManagerGlob)
	if err != nil {
		return "", maskAny(err)
	}
	if len(matches) == 0 {
		return "", model.DeviceTree("no cape manager found at %s", m.CapeManagerGlob)
	}
	return filepath.Join(matches[0], "slots"), nil
}

func (m *capeManager) readSlots() (string, error) {
	path, err := m.slotsPath()
	if err != nil {
		return "", maskAny(err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", maskAny(err)
	}
	return string(content), nil
}

func (m *capeManager) writeSlots(value string) error {
	path, err := m.slotsPath()
	if err != nil {
		return maskAny(err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return maskAny(err)
	}
	defer f.Close()
	if _, err := f.WriteString(value); err != nil {
		return maskAny(err)
	}
	return nil
}
