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
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/livekit/protocol/logger"

	"github.com/sipbell/bell/pkg/stats"
)

const (
	DefaultRingDuration = 2000 * time.Millisecond
	defaultDialTimeout  = 10 * time.Second
)

type ClientConfig struct {
	RingDuration time.Duration // zero means DefaultRingDuration
	DialTimeout  time.Duration
	Session      SessionConfig
	TLS          *tls.Config // used when the transport is tls
}

// Client places bell calls. Calls are run one at a time by the caller.
type Client struct {
	conf   *CallConfig
	cconf  ClientConfig
	log    logger.Logger
	mon    *stats.Monitor
	dialer Dialer

	lastCallID atomic.Int64
}

func NewClient(conf *CallConfig, cconf ClientConfig, log logger.Logger, mon *stats.Monitor) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if cconf.RingDuration <= 0 {
		cconf.RingDuration = DefaultRingDuration
	}
	if cconf.DialTimeout <= 0 {
		cconf.DialTimeout = defaultDialTimeout
	}
	c := &Client{
		conf:  conf,
		cconf: cconf,
		log:   log,
		mon:   mon,
	}
	c.dialer = c.defaultDialer()
	return c
}

func (c *Client) defaultDialer() Dialer {
	nd := &net.Dialer{Timeout: c.cconf.DialTimeout}
	if c.conf.Transport != TransportTLS {
		return nd
	}
	tconf := c.cconf.TLS
	if tconf == nil {
		tconf = NewTLSConfig(c.conf.Server, 0, false)
	}
	return &tls.Dialer{NetDialer: nd, Config: tconf}
}

// SetDialer replaces the dialer used to reach the server.
func (c *Client) SetDialer(d Dialer) {
	c.dialer = d
}

func (c *Client) RingDuration() time.Duration {
	return c.cconf.RingDuration
}

// newCallID returns a time-derived call ID that never repeats within this client.
func (c *Client) newCallID() string {
	for {
		prev := c.lastCallID.Load()
		id := time.Now().UnixMilli()
		if id <= prev {
			id = prev + 1
		}
		if c.lastCallID.CompareAndSwap(prev, id) {
			return strconv.FormatInt(id, 10)
		}
	}
}

// Ring runs one complete call: INVITE, digest challenge, authenticated INVITE, ring hold, CANCEL.
// Every invocation uses a new connection, call ID and digest.
func (c *Client) Ring(ctx context.Context) error {
	callID := c.newCallID()
	ctx, span := Tracer.Start(ctx, "Client.Ring", trace.WithAttributes(
		attribute.String("sip.callID", callID),
		attribute.String("sip.target", c.conf.Target),
	))
	defer span.End()

	call := c.newCall(callID)
	if err := call.Run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
