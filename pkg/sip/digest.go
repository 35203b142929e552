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
	"github.com/icholy/digest"
)

// ComputeDigest returns the lowercase hex MD5 digest response:
//
//	MD5(MD5(username:realm:password):nonce:MD5(method:uri))
//
// Challenges are always treated as qop-less, which is what legacy SIP servers expect.
func ComputeDigest(username, password, realm, nonce, method, uri string) string {
	cred, err := digest.Digest(&digest.Challenge{
		Realm: realm,
		Nonce: nonce,
	}, digest.Options{
		Method:   method,
		URI:      uri,
		Username: username,
		Password: password,
	})
	if err != nil {
		// only returned for unsupported algorithms; MD5 is the default
		panic(err)
	}
	return cred.Response
}
