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
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	// Longest time a single poll call blocks, so cancellation is noticed.
	pollSlice = 50 * time.Millisecond
	// Largest value read from a sysfs attribute
	maxAttributeSize = 64
)

// fileHandle is an open sysfs attribute file.
type fileHandle struct {
	mutex sync.Mutex
	file  *os.File
}

func newFileHandle(f *os.File) *fileHandle {
	return &fileHandle{file: f}
}

// Read rewinds the file and returns its trimmed content.
func (h *fileHandle) Read() (string, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.file == nil {
		return "", errors.Wrap(os.ErrClosed, "read")
	}
	if _, err := h.file.Seek(0, io.SeekStart); err != nil {
		return "", maskAny(err)
	}
	buf := make([]byte, maxAttributeSize)
	n, err := h.file.Read(buf)
	if err != nil && err != io.EOF {
		return "", errors.Wrapf(err, "failed to read %s", h.file.Name())
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

// Write rewinds the file and writes the given value.
func (h *fileHandle) Write(value string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.file == nil {
		return errors.Wrap(os.ErrClosed, "write")
	}
	if _, err := h.file.Seek(0, io.SeekStart); err != nil {
		return maskAny(err)
	}
	if _, err := h.file.WriteString(value); err != nil {
		return errors.Wrapf(err, "failed to write '%s' to %s", value, h.file.Name())
	}
	return nil
}

// Wait blocks until the kernel signals an edge on the file (POLLPRI).
// Poll is called in short slices so a canceled context or a closed
// handle is noticed.
func (h *fileHandle) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	f := h.current()
	if f == nil {
		return false, errors.Wrap(os.ErrClosed, "wait")
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	fds := []unix.PollFd{{Fd: int32(f.Fd()), Events: unix.POLLPRI | unix.POLLERR}}
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		// The descriptor may be reused once the handle is closed
		if h.current() != f {
			return false, errors.Wrap(os.ErrClosed, "wait")
		}
		slice := pollSlice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return false, nil
			}
			if remaining < slice {
				slice = remaining
			}
		}
		fds[0].Revents = 0
		n, err := unix.Poll(fds, int(slice/time.Millisecond))
		if err == unix.EINTR {
			continue
		} else if err != nil {
			return false, errors.Wrapf(err, "poll on %s failed", f.Name())
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return false, errors.Wrap(os.ErrClosed, "wait")
		}
		if fds[0].Revents&(unix.POLLPRI|unix.POLLERR) != 0 {
			return true, nil
		}
	}
}

// current returns the open file or nil once the handle is closed.
func (h *fileHandle) current() *os.File {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.file
}

// Close the file. Closing twice is a no-op.
func (h *fileHandle) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return maskAny(err)
}
