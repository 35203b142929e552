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

package sip

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"braces.dev/errtrace"

	"github.com/livekit/protocol/logger"
)

const (
	DefaultReadTimeout    = 5 * time.Second
	DefaultMaxMessageSize = 16 << 10

	// upper bound on 1xx responses skipped while waiting for a final one
	maxProvisionalResponses = 8
)

// Dialer opens the signaling connection. *net.Dialer and *tls.Dialer implement it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type SessionConfig struct {
	ReadTimeout    time.Duration // bounds each message read or write; zero means DefaultReadTimeout
	MaxMessageSize int           // zero means DefaultMaxMessageSize
}

// Session owns one signaling connection for the lifetime of a call.
type Session struct {
	log         logger.Logger
	conn        net.Conn
	r           *bufio.Reader
	ioTimeout   time.Duration
	maxSize     int
}

// Dial connects to addr and wraps the connection into a Session.
func Dial(ctx context.Context, d Dialer, addr string, conf SessionConfig, log logger.Logger) (*Session, error) {
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errtrace.Wrap(fmt.Errorf("%w: %s: %w", ErrConnection, addr, err))
	}
	return newSession(conn, conf, log), nil
}

func newSession(conn net.Conn, conf SessionConfig, log logger.Logger) *Session {
	if conf.ReadTimeout <= 0 {
		conf.ReadTimeout = DefaultReadTimeout
	}
	if conf.MaxMessageSize <= 0 {
		conf.MaxMessageSize = DefaultMaxMessageSize
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Session{
		log:         log,
		conn:        conn,
		r:           bufio.NewReader(conn),
		ioTimeout:   conf.ReadTimeout,
		maxSize:     conf.MaxMessageSize,
	}
}

func (s *Session) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Send writes the whole message.
func (s *Session) Send(msg []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.ioTimeout)); err != nil {
		return errtrace.Wrap(fmt.Errorf("%w: %w", ErrWrite, err))
	}
	if _, err := s.conn.Write(msg); err != nil {
		return errtrace.Wrap(fmt.Errorf("%w: %w", ErrWrite, err))
	}
	return nil
}

// Receive reads exactly one message: header lines up to the blank line,
// followed by Content-Length bytes of body if the header announces one.
func (s *Session) Receive() ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.ioTimeout)); err != nil {
		return nil, errtrace.Wrap(fmt.Errorf("%w: %w", ErrRead, err))
	}
	msg, err := s.readMessage()
	if err != nil {
		return nil, errtrace.Wrap(fmt.Errorf("%w: %w", ErrRead, err))
	}
	return msg, nil
}

// ReceiveFinal is like Receive, but skips provisional (1xx) responses.
func (s *Session) ReceiveFinal() ([]byte, error) {
	for i := 0; ; i++ {
		msg, err := s.Receive()
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		code, ok := statusCode(msg)
		if !ok || code >= 200 || i >= maxProvisionalResponses {
			return msg, nil
		}
		s.log.Debugw("skipping provisional response", "status", code)
	}
}

func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) readMessage() ([]byte, error) {
	var (
		msg     []byte
		bodyLen int
	)
	for {
		line, err := s.readLine(s.maxSize - len(msg))
		if err != nil {
			return nil, err
		}
		blank := len(bytes.TrimRight(line, "\r\n")) == 0
		if blank && len(msg) == 0 {
			// keep-alive or trailing line of a previous message
			continue
		}
		msg = append(msg, line...)
		if blank {
			break
		}
		if n, ok := contentLength(line); ok {
			bodyLen = n
		}
	}
	if bodyLen > 0 {
		if len(msg)+bodyLen > s.maxSize {
			return nil, errMessageTooLarge
		}
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(s.r, body); err != nil {
			return nil, err
		}
		msg = append(msg, body...)
	}
	return msg, nil
}

func (s *Session) readLine(limit int) ([]byte, error) {
	var line []byte
	for {
		frag, err := s.r.ReadSlice('\n')
		if len(line)+len(frag) > limit {
			return nil, errMessageTooLarge
		}
		line = append(line, frag...)
		if err == nil {
			return line, nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
	}
}

// contentLength reports the value of a Content-Length (or compact "l") header line.
func contentLength(line []byte) (int, bool) {
	name, val, ok := strings.Cut(string(line), ":")
	if !ok {
		return 0, false
	}
	name = strings.TrimSpace(name)
	if !strings.EqualFold(name, "content-length") && !strings.EqualFold(name, "l") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// statusCode parses the status code of a response status line.
func statusCode(msg []byte) (int, bool) {
	const prefix = "SIP/2.0 "
	if len(msg) < len(prefix)+3 || !bytes.HasPrefix(msg, []byte(prefix)) {
		return 0, false
	}
	code, err := strconv.Atoi(string(msg[len(prefix) : len(prefix)+3]))
	if err != nil {
		return 0, false
	}
	return code, true
}

// firstLine returns the start line of a message, for logging.
func firstLine(msg []byte) string {
	if i := bytes.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return string(bytes.TrimRight(msg, "\r"))
}
