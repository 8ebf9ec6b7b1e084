// Copyright 2020 Ewout Prangsma
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
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/binkynet/BoneIO/pkg/backend"
)

const (
	// From  /usr/include/linux/i2c-dev.h:
	// ioctl signals
	I2C_SLAVE = 0x0703
	I2C_FUNCS = 0x0705

	// From  /usr/include/linux/i2c.h:
	// Adapter functionality
	I2C_FUNC_I2C = 0x00000001
)

type i2cDevice struct {
	mutex   sync.Mutex
	file    *os.File
	address uint8
	funcs   uint64 // adapter functionality mask
}

// OpenI2C opens an I2C bus device (e.g. /dev/i2c-2).
func (b *sysfsBackend) OpenI2C(device string) (backend.I2CDevice, error) {
	f, err := os.OpenFile(device, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", device)
	}
	d := &i2cDevice{file: f}
	if err := d.queryFunctionality(); err != nil {
		f.Close()
		return nil, maskAny(err)
	}
	if d.funcs&I2C_FUNC_I2C == 0 {
		b.log.Warn().Str("device", device).Msg("Adapter does not report plain I2C support")
	}
	return d, nil
}

func (d *i2cDevice) queryFunctionality() error {
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		d.file.Fd(),
		I2C_FUNCS,
		uintptr(unsafe.Pointer(&d.funcs)),
	)
	if errno != 0 {
		return errors.Wrapf(errno, "querying functionality of %s failed", d.file.Name())
	}
	return nil
}

// SetAddress selects the slave address used by Read & Write.
func (d *i2cDevice) SetAddress(address uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file == nil {
		return errors.Wrap(os.ErrClosed, "set address")
	}
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		d.file.Fd(),
		I2C_SLAVE,
		uintptr(address),
	)
	if errno != 0 {
		return errors.Wrapf(errno, "setting address (0x%0x) failed", address)
	}
	d.address = address
	return nil
}

// Read directly from the device at the selected address.
func (d *i2cDevice) Read(b []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file == nil {
		return 0, errors.Wrap(os.ErrClosed, "read")
	}
	n, err := d.file.Read(b)
	if err != nil {
		return n, errors.Wrapf(err, "read[0x%0x] failed", d.address)
	}
	return n, nil
}

// Write directly to the device at the selected address.
func (d *i2cDevice) Write(b []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file == nil {
		return 0, errors.Wrap(os.ErrClosed, "write")
	}
	n, err := d.file.Write(b)
	if err != nil {
		return n, errors.Wrapf(err, "write[0x%0x] failed", d.address)
	}
	return n, nil
}

func (d *i2cDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return maskAny(err)
}
