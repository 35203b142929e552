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

package errors

import (
	"errors"

	"github.com/livekit/psrpc"
)

func ErrCouldNotParseConfig(err error) psrpc.Error {
	return psrpc.NewErrorf(psrpc.InvalidArgument, "could not parse config: %v", err)
}

func ErrMissingField(name string) psrpc.Error {
	return psrpc.NewErrorf(psrpc.InvalidArgument, "%s is required", name)
}

func ErrInvalidField(name string, reason string) psrpc.Error {
	return psrpc.NewErrorf(psrpc.InvalidArgument, "invalid %s: %s", name, reason)
}

// IsConfigError reports whether err was caused by an invalid configuration.
func IsConfigError(err error) bool {
	var e psrpc.Error
	return errors.As(err, &e) && e.Code() == psrpc.InvalidArgument
}
