package sip

import (
	"errors"
	"fmt"
)

var (
	ErrConnection = errors.New("connection failed")
	ErrWrite      = errors.New("write failed")
	ErrRead       = errors.New("read failed")

	ErrInvalidEncoding   = errors.New("response is not valid UTF-8")
	ErrChallengeNotFound = errors.New("no digest challenge in response")
	ErrRealmMissing      = errors.New("digest challenge has an empty realm")
	ErrNonceMissing      = errors.New("digest challenge has an empty nonce")

	errMessageTooLarge = errors.New("message exceeds maximum size")
)

// CallError is returned when a call step fails. State is the state the call was entering.
type CallError struct {
	State CallState
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call failed in state %s: %v", e.State, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}
