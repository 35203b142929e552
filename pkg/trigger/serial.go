// Copyright 2024 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trigger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"braces.dev/errtrace"
	"go.bug.st/serial"

	"github.com/livekit/protocol/logger"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 5 * time.Second
	DefaultSentinel    = "RING"

	maxLineSize = 1024
)

var ErrOpen = errors.New("cannot open trigger device")

// Source blocks until a trigger fires.
type Source interface {
	Wait(ctx context.Context) error
}

type SerialConfig struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration // bounds a single read, not the whole wait
	Sentinel    string
}

// Serial waits for a sentinel line on a serial device, e.g. a button wired to a microcontroller.
type Serial struct {
	conf SerialConfig
	log  logger.Logger
}

func NewSerial(conf SerialConfig, log logger.Logger) *Serial {
	if conf.BaudRate <= 0 {
		conf.BaudRate = DefaultBaudRate
	}
	if conf.ReadTimeout <= 0 {
		conf.ReadTimeout = DefaultReadTimeout
	}
	if conf.Sentinel == "" {
		conf.Sentinel = DefaultSentinel
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Serial{
		conf: conf,
		log:  log.WithValues("device", conf.Device),
	}
}

// Wait opens the device and returns once the sentinel line is read.
// The device is reopened on every call, so a replugged board is picked up on the next trigger.
func (s *Serial) Wait(ctx context.Context) error {
	port, err := serial.Open(s.conf.Device, &serial.Mode{BaudRate: s.conf.BaudRate})
	if err != nil {
		return errtrace.Wrap(fmt.Errorf("%w %s: %w", ErrOpen, s.conf.Device, err))
	}
	defer port.Close()

	if err = port.SetReadTimeout(s.conf.ReadTimeout); err != nil {
		return errtrace.Wrap(err)
	}
	// drop presses that happened while no call could be placed
	if err = port.ResetInputBuffer(); err != nil {
		s.log.Debugw("cannot reset input buffer", "error", err)
	}

	// closing the port unblocks a pending read on cancellation
	stop := context.AfterFunc(ctx, func() {
		_ = port.Close()
	})
	defer stop()

	err = s.scan(ctx, port)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errtrace.Wrap(err)
}

// scan reads lines from r until one equals the sentinel. Reads returning no data are
// timeouts and are ignored, as are lines that are not valid UTF-8.
func (s *Serial) scan(ctx context.Context, r io.Reader) error {
	var (
		buf  = make([]byte, 256)
		line []byte
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n == 0 && err == nil {
			s.log.Debugw("trigger read timeout")
			continue
		}
		line = append(line, buf[:n]...)
		for {
			i := bytes.IndexByte(line, '\n')
			if i < 0 {
				break
			}
			if s.match(line[:i]) {
				s.log.Infow("button press detected")
				return nil
			}
			line = line[i+1:]
		}
		if len(line) > maxLineSize {
			s.log.Debugw("discarding oversized line", "size", len(line))
			line = line[:0]
		}
		if err != nil {
			return errtrace.Wrap(err)
		}
	}
}

func (s *Serial) match(line []byte) bool {
	if !utf8.Valid(line) {
		s.log.Debugw("ignoring invalid data on trigger line")
		return false
	}
	return string(bytes.TrimSpace(line)) == s.conf.Sentinel
}
