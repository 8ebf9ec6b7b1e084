//    Copyright 2018-2024 Ewout Prangsma
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

package environment

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/binkynet/BoneIO/model"
)

// Machine returns the machine & kernel release names of the host.
func Machine() (machine, release string, err error) {
	var name unix.Utsname
	if err := unix.Uname(&name); err != nil {
		return "", "", errors.WithStack(err)
	}
	return unix.ByteSliceToString(name.Machine[:]), unix.ByteSliceToString(name.Release[:]), nil
}

// IsSupportedMachine returns true for the ARMv7 machines of the BeagleBone family.
func IsSupportedMachine(machine string) bool {
	return strings.HasPrefix(strings.TrimSpace(machine), "armv7")
}

// Check returns an UnsupportedOperation error when not running on a
// BeagleBone, unless force is set.
func Check(log zerolog.Logger, force bool) error {
	machine, release, err := Machine()
	if err != nil {
		return err
	}
	log.Debug().Str("machine", machine).Str("release", release).Msg("Detected environment")
	if IsSupportedMachine(machine) {
		return nil
	}
	if force {
		log.Warn().Str("machine", machine).Msg("Not running on a BeagleBone; continuing because of --force")
		return nil
	}
	return model.UnsupportedOperation("machine '%s' is not a BeagleBone (use --force to override)", machine)
}
