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
	"net"
	"strconv"
	"strings"
)

const (
	DefaultPort      = 5060
	DefaultUserAgent = "sip-bell"
)

// Transport is a signaling transport name as used in the Via header.
type Transport string

const (
	TransportTCP = Transport("tcp")
	TransportTLS = Transport("tls")
)

// ViaName returns the transport token for the Via header.
func (t Transport) ViaName() string {
	if t == "" {
		return "TCP"
	}
	return strings.ToUpper(string(t))
}

// CallConfig describes the call endpoint. It is created once and never mutated during a call.
type CallConfig struct {
	Source    string    // local address put into From
	Server    string    // SIP server host, also used in the request line and Via
	Port      int       // SIP server port
	Target    string    // number or address to ring
	Username  string    // digest username
	Password  string    // digest password
	Transport Transport // tcp or tls
	UserAgent string
}

// URI is the request URI used for digest computation.
func (c *CallConfig) URI() string {
	return "sip:" + c.Username + "@" + c.Server
}

// Addr returns the dial address of the server.
func (c *CallConfig) Addr() string {
	return net.JoinHostPort(c.Server, strconv.Itoa(c.Port))
}

func (c *CallConfig) userAgent() string {
	if c.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.UserAgent
}

// Challenge is a digest challenge issued by the server.
type Challenge struct {
	Realm string
	Nonce string
}

// CallState is a state of the outbound call sequence.
type CallState string

const (
	CallIdle                    = CallState("idle")
	CallFirstInviteSent         = CallState("first_invite_sent")
	CallChallengeReceived       = CallState("challenge_received")
	CallAuthenticatedInviteSent = CallState("authenticated_invite_sent")
	CallRinging                 = CallState("ringing")
	CallCancelled               = CallState("cancelled")
	CallDone                    = CallState("done")
	CallFailed                  = CallState("failed")
)

func (s CallState) String() string {
	return string(s)
}
