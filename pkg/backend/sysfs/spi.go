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
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/binkynet/BoneIO/pkg/backend"
)

const (
	// From /usr/include/linux/spi/spidev.h
	SPI_IOC_WR_MODE          = 0x40016b01
	SPI_IOC_WR_BITS_PER_WORD = 0x40016b03
	SPI_IOC_WR_MAX_SPEED_HZ  = 0x40046b04
	SPI_IOC_MESSAGE_1        = 0x40206b00
)

// spiIocTransfer mirrors struct spi_ioc_transfer (32 bytes).
type spiIocTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	len         uint32
	speedHz     uint32
	delayUSecs  uint16
	bitsPerWord uint8
	csChange    uint8
	pad         uint32
}

type spiDevice struct {
	mutex sync.Mutex
	file  *os.File
}

// OpenSPI opens a spidev device (e.g. /dev/spidev1.0).
func (b *sysfsBackend) OpenSPI(device string) (backend.SPIDevice, error) {
	f, err := os.OpenFile(device, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", device)
	}
	return &spiDevice{file: f}, nil
}

func (d *spiDevice) ioctl(req uintptr, arg unsafe.Pointer) error {
	if d.file == nil {
		return errors.Wrap(os.ErrClosed, "ioctl")
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errors.Wrapf(errno, "ioctl 0x%x on %s failed", req, d.file.Name())
	}
	return nil
}

// SetMode sets the SPI mode (0..3).
func (d *spiDevice) SetMode(mode uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.ioctl(SPI_IOC_WR_MODE, unsafe.Pointer(&mode))
}

// SetBitsPerWord sets the default word size.
func (d *spiDevice) SetBitsPerWord(bpw uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.ioctl(SPI_IOC_WR_BITS_PER_WORD, unsafe.Pointer(&bpw))
}

// SetMaxSpeed sets the default clock speed.
func (d *spiDevice) SetMaxSpeed(hz uint32) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.ioctl(SPI_IOC_WR_MAX_SPEED_HZ, unsafe.Pointer(&hz))
}

// Transfer performs a single full duplex transfer.
// RX must be nil or as long as TX.
func (d *spiDevice) Transfer(xfer backend.SPITransfer) error {
	if len(xfer.TX) == 0 {
		return nil
	}
	if xfer.RX != nil && len(xfer.RX) != len(xfer.TX) {
		return errors.Errorf("rx buffer length %d does not match tx length %d", len(xfer.RX), len(xfer.TX))
	}
	msg := spiIocTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&xfer.TX[0]))),
		len:         uint32(len(xfer.TX)),
		speedHz:     xfer.SpeedHz,
		delayUSecs:  xfer.DelayUSecs,
		bitsPerWord: xfer.BitsPerWord,
	}
	if xfer.RX != nil {
		msg.rxBuf = uint64(uintptr(unsafe.Pointer(&xfer.RX[0])))
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	err := d.ioctl(SPI_IOC_MESSAGE_1, unsafe.Pointer(&msg))
	runtime.KeepAlive(xfer.TX)
	runtime.KeepAlive(xfer.RX)
	return err
}

func (d *spiDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return maskAny(err)
}
