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

package sysfs

import (
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"

	"github.com/binkynet/BoneIO/pkg/backend"
)

const (
	// Reads return after this time without data, so readers can
	// notice cancellation.
	serialReadTimeout = 100 * time.Millisecond
)

// OpenSerial opens a UART device at the given baud rate.
func (b *sysfsBackend) OpenSerial(device string, baud int) (backend.SerialPort, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: serialReadTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", device)
	}
	b.log.Debug().Str("device", device).Int("baud", baud).Msg("Opened serial port")
	return port, nil
}
