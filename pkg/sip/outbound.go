// Copyright 2023 LiveKit, Inc.
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
	"time"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"
	"go.opentelemetry.io/otel/trace"

	"github.com/livekit/protocol/logger"

	"github.com/sipbell/bell/pkg/stats"
)

const (
	evtInvite       = "invite"
	evtChallenge    = "challenge"
	evtAuthenticate = "authenticate"
	evtRing         = "ring"
	evtCancel       = "cancel"
	evtHangup       = "hangup"
	evtFail         = "fail"
)

// callSteps is the fixed order of the call sequence, starting from CallIdle.
var callSteps = []string{evtInvite, evtChallenge, evtAuthenticate, evtRing, evtCancel, evtHangup}

type outboundCall struct {
	c    *Client
	log  logger.Logger
	mon  *stats.CallMonitor
	fsm  *stateless.StateMachine
	tx   *Transaction
	sess *Session

	callDur  func() time.Duration
	failedIn CallState
}

func (c *Client) newCall(callID string) *outboundCall {
	call := &outboundCall{
		c:   c,
		log: c.log.WithValues("callID", callID, "target", c.conf.Target),
		mon: c.mon.NewCall(),
		tx:  NewTransaction(c.conf, callID),
	}
	call.initFSM()
	return call
}

func (c *outboundCall) initFSM() {
	fsm := stateless.NewStateMachine(CallIdle)

	fsm.Configure(CallIdle).
		Permit(evtInvite, CallFirstInviteSent).
		Permit(evtFail, CallFailed)

	fsm.Configure(CallFirstInviteSent).
		OnEntry(c.actInvite).
		Permit(evtChallenge, CallChallengeReceived).
		Permit(evtFail, CallFailed)

	fsm.Configure(CallChallengeReceived).
		OnEntry(c.actChallenge).
		Permit(evtAuthenticate, CallAuthenticatedInviteSent).
		Permit(evtFail, CallFailed)

	fsm.Configure(CallAuthenticatedInviteSent).
		OnEntry(c.actAuthenticate).
		Permit(evtRing, CallRinging).
		Permit(evtFail, CallFailed)

	fsm.Configure(CallRinging).
		OnEntry(c.actRing).
		Permit(evtCancel, CallCancelled).
		Permit(evtFail, CallFailed)

	fsm.Configure(CallCancelled).
		OnEntry(c.actCancel).
		Permit(evtHangup, CallDone).
		Permit(evtFail, CallFailed)

	fsm.Configure(CallDone).
		OnEntry(c.actDone)

	fsm.Configure(CallFailed).
		OnEntry(c.actFailed)

	fsm.OnTransitioned(func(ctx context.Context, t stateless.Transition) {
		c.log.Debugw("call state changed", "from", t.Source, "to", t.Destination)
		trace.SpanFromContext(ctx).AddEvent(t.Destination.(CallState).String())
	})

	c.fsm = fsm
}

// State returns the current call state.
func (c *outboundCall) State() CallState {
	return c.fsm.MustState().(CallState)
}

// Run drives the call from CallIdle to CallDone. The first failing step moves the call
// to CallFailed and its error is returned; nothing is retried.
func (c *outboundCall) Run(ctx context.Context) error {
	c.log.Infow("starting call")
	c.mon.CallStart()
	defer c.mon.CallEnd()
	c.callDur = c.mon.CallDur()
	defer c.closeSession()

	for _, evt := range callSteps {
		if err := c.fsm.FireCtx(ctx, evt); err != nil {
			state := c.State()
			c.failedIn = state
			if ferr := c.fsm.FireCtx(ctx, evtFail, err); ferr != nil {
				c.log.Warnw("cannot mark call as failed", ferr, "state", state)
			}
			return errtrace.Wrap(&CallError{State: state, Err: err})
		}
	}
	return nil
}

func (c *outboundCall) send(msg []byte) error {
	c.log.Debugw("sending request", "request", firstLine(msg), "raw", string(msg))
	return errtrace.Wrap(c.sess.Send(msg))
}

// receiveAndLog reads one response that the call does not interpret.
func (c *outboundCall) receiveAndLog() error {
	resp, err := c.sess.Receive()
	if err != nil {
		return errtrace.Wrap(err)
	}
	c.log.Debugw("received response", "response", firstLine(resp), "raw", string(resp))
	return nil
}

func (c *outboundCall) actInvite(ctx context.Context, _ ...any) error {
	sess, err := Dial(ctx, c.c.dialer, c.c.conf.Addr(), c.c.cconf.Session, c.log)
	if err != nil {
		return errtrace.Wrap(err)
	}
	c.sess = sess
	c.log.Debugw("connected", "local", sess.LocalAddr(), "remote", sess.RemoteAddr())

	c.tx.CSeq = 1
	c.mon.InviteReq(stats.AuthNone)
	return errtrace.Wrap(c.send(BuildInvite(c.tx)))
}

func (c *outboundCall) actChallenge(_ context.Context, _ ...any) error {
	resp, err := c.sess.ReceiveFinal()
	if err != nil {
		return errtrace.Wrap(err)
	}
	c.log.Debugw("received response", "response", firstLine(resp), "raw", string(resp))

	ch, err := ParseChallenge(resp)
	if err != nil {
		return errtrace.Wrap(err)
	}
	c.mon.ChallengeReceived()
	c.log.Debugw("received challenge", "realm", ch.Realm, "nonce", ch.Nonce)
	c.tx.Challenge = &ch
	return nil
}

func (c *outboundCall) actAuthenticate(_ context.Context, _ ...any) error {
	conf := c.c.conf
	ch := *c.tx.Challenge
	response := ComputeDigest(conf.Username, conf.Password, ch.Realm, ch.Nonce, MethodInvite, conf.URI())

	c.tx.CSeq++
	c.mon.InviteReq(stats.AuthDigest)
	if err := c.send(BuildAuthInvite(conf, c.tx, ch, response)); err != nil {
		return errtrace.Wrap(err)
	}
	return errtrace.Wrap(c.receiveAndLog())
}

func (c *outboundCall) actRing(ctx context.Context, _ ...any) error {
	dur := c.c.cconf.RingDuration
	c.log.Debugw("ringing", "duration", dur)
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		// still cancel below, so the phone does not keep ringing
		c.log.Infow("ring interrupted, cancelling call early")
	}
	return nil
}

func (c *outboundCall) actCancel(_ context.Context, _ ...any) error {
	c.mon.CancelReq()
	if err := c.send(BuildCancel(c.tx)); err != nil {
		return errtrace.Wrap(err)
	}
	return errtrace.Wrap(c.receiveAndLog())
}

func (c *outboundCall) actDone(_ context.Context, _ ...any) error {
	c.closeSession()
	c.mon.CallComplete()
	c.log.Infow("call finished", "duration", c.callDur())
	return nil
}

func (c *outboundCall) actFailed(_ context.Context, args ...any) error {
	c.closeSession()
	var err error
	if len(args) > 0 {
		err, _ = args[0].(error)
	}
	c.mon.CallFailed(c.failedIn.String())
	c.log.Warnw("call failed", err, "state", c.failedIn, "duration", c.callDur())
	return nil
}

func (c *outboundCall) closeSession() {
	if c.sess == nil {
		return
	}
	if err := c.sess.Close(); err != nil {
		c.log.Debugw("closing connection failed", "error", err)
	}
	c.sess = nil
}
