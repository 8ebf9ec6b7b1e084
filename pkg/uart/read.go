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

package uart

import (
	"context"
	"fmt"
	"strings"

	"github.com/binkynet/BoneIO/model"
	"github.com/binkynet/BoneIO/pkg/task"
)

// DataCallback is called by RunOnEachLine & RunOnEachChars for every
// received line or group of characters. Iteration starts at 0.
type DataCallback func(uart UART, data string, iteration int)

// reader returns the open port and the rx pin, claimed by the owner of ctx.
// The returned function releases the claim.
func (u *Ports) reader(ctx context.Context, uart UART) (*openPort, func(), error) {
	op, info, err := u.get(uart)
	if err != nil {
		return nil, nil, maskAny(err)
	}
	if info.RX == 0 {
		return nil, nil, model.UnsupportedOperation("%s cannot receive", uart)
	}
	owner := task.OwnerOf(ctx)
	if err := u.reg.Claim(info.RX, owner); err != nil {
		return nil, nil, maskAny(err)
	}
	return op, func() { u.reg.Release(info.RX, owner) }, nil
}

// ReadChars blocks until n characters have been received.
func (u *Ports) ReadChars(ctx context.Context, uart UART, n int) (string, error) {
	if n < 1 {
		return "", model.InvalidArgument("number of characters must be > 0, got %d", n)
	}
	op, release, err := u.reader(ctx, uart)
	if err != nil {
		return "", maskAny(err)
	}
	defer release()
	return readChars(ctx, uart, op, n)
}

func readChars(ctx context.Context, uart UART, op *openPort, n int) (string, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		b, err := readByte(ctx, op)
		if err != nil {
			return "", maskAny(err)
		}
		buf = append(buf, b)
	}
	bytesTotal.WithLabelValues(uart.String(), "rx").Add(float64(n))
	return string(buf), nil
}

// ReadLine blocks until a newline has been received.
// The line is returned without surrounding whitespace.
func (u *Ports) ReadLine(ctx context.Context, uart UART) (string, error) {
	op, release, err := u.reader(ctx, uart)
	if err != nil {
		return "", maskAny(err)
	}
	defer release()
	return readLine(ctx, uart, op)
}

func readLine(ctx context.Context, uart UART, op *openPort) (string, error) {
	var sb strings.Builder
	for {
		b, err := readByte(ctx, op)
		if err != nil {
			return "", maskAny(err)
		}
		if b == '\n' {
			break
		}
		sb.WriteByte(b)
	}
	bytesTotal.WithLabelValues(uart.String(), "rx").Add(float64(sb.Len() + 1))
	linesTotal.WithLabelValues(uart.String()).Inc()
	return strings.TrimSpace(sb.String()), nil
}

// RunOnEachLine starts a background task that calls cb for every received line.
// The task stops after repeats callbacks (repeats <= 0 runs until stopped).
func (u *Ports) RunOnEachLine(ctx context.Context, uart UART, repeats int, cb DataCallback) (*task.Task, error) {
	return u.run(ctx, uart, "lines", repeats, cb, func(ctx context.Context, op *openPort) (string, error) {
		return readLine(ctx, uart, op)
	})
}

// RunOnceOnEachLine is RunOnEachLine with a single callback.
func (u *Ports) RunOnceOnEachLine(ctx context.Context, uart UART, cb DataCallback) (*task.Task, error) {
	return u.RunOnEachLine(ctx, uart, 1, cb)
}

// RunOnEachChars starts a background task that calls cb for every
// group of chars received characters.
// The task stops after repeats callbacks (repeats <= 0 runs until stopped).
func (u *Ports) RunOnEachChars(ctx context.Context, uart UART, chars, repeats int, cb DataCallback) (*task.Task, error) {
	if chars < 1 {
		return nil, model.InvalidArgument("number of characters must be > 0, got %d", chars)
	}
	return u.run(ctx, uart, "chars", repeats, cb, func(ctx context.Context, op *openPort) (string, error) {
		return readChars(ctx, uart, op, chars)
	})
}

// RunOnceOnEachChars is RunOnEachChars with a single callback.
func (u *Ports) RunOnceOnEachChars(ctx context.Context, uart UART, chars int, cb DataCallback) (*task.Task, error) {
	return u.RunOnEachChars(ctx, uart, chars, 1, cb)
}

func (u *Ports) run(ctx context.Context, uart UART, kind string, repeats int, cb DataCallback,
	read func(context.Context, *openPort) (string, error)) (*task.Task, error) {
	op, info, err := u.get(uart)
	if err != nil {
		return nil, maskAny(err)
	}
	if info.RX == 0 {
		return nil, model.UnsupportedOperation("%s cannot receive", uart)
	}
	t := task.New(fmt.Sprintf("uart-%s-%s", kind, uart), u.log)
	if err := u.reg.Attach(info.RX, t); err != nil {
		return nil, maskAny(err)
	}
	t.Start(ctx, func(ctx context.Context) error {
		owner := task.OwnerOf(ctx)
		if err := u.reg.Claim(info.RX, owner); err != nil {
			return maskAny(err)
		}
		for count := 0; repeats <= 0 || count < repeats; count++ {
			data, err := read(ctx, op)
			if err != nil {
				return maskAny(err)
			}
			if cb != nil {
				cb(uart, data, count)
			}
		}
		return nil
	}, func() {
		u.reg.Detach(info.RX, t)
	})
	return t, nil
}

// StopRead stops the background read task of the port and waits for it to end.
// It is a no-op when no task is running.
func (u *Ports) StopRead(uart UART) {
	info, err := uart.info()
	if err != nil || info.RX == 0 {
		return
	}
	if t := u.reg.Task(info.RX); t != nil {
		t.Stop()
	}
}
