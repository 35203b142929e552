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
	"strconv"
	"strings"
)

const (
	MethodInvite = "INVITE"
	MethodCancel = "CANCEL"

	// appended after the sequence line of every request
	requestTerminator = "\n\n"
)

// Transaction holds the per-call dialog state. It is owned by a single outbound call.
type Transaction struct {
	CallID    string
	CSeq      int
	Challenge *Challenge

	header string
}

// NewTransaction renders the shared header block once, so every request of the call
// carries byte-identical Call-ID, From, To and Via lines.
func NewTransaction(conf *CallConfig, callID string) *Transaction {
	return &Transaction{
		CallID: callID,
		CSeq:   1,
		header: headerBlock(conf, callID),
	}
}

// Header returns the header block shared by all requests of the transaction.
func (t *Transaction) Header() string {
	return t.header
}

func headerBlock(conf *CallConfig, callID string) string {
	var b strings.Builder
	b.WriteString("sip: " + conf.Server + " SIP/2.0\n")
	b.WriteString("From: <sip:" + conf.Username + "@" + conf.Source + ">\n")
	b.WriteString("Via: SIP/2.0/" + conf.Transport.ViaName() + " " + conf.Server + "\n")
	b.WriteString("To: <sip:" + conf.Target + ">;tag=x\n")
	b.WriteString("Call-ID: i" + callID + "\n")
	b.WriteString("User-Agent: " + conf.userAgent() + "\n")
	b.WriteString("Content-Length: 0\n")
	return b.String()
}

func sequenceLine(seq int, method string) string {
	return "Cseq: " + strconv.Itoa(seq) + " " + method + "\n"
}

// BuildInvite renders the initial, unauthenticated INVITE.
func BuildInvite(t *Transaction) []byte {
	var b strings.Builder
	b.WriteString(MethodInvite + " ")
	b.WriteString(t.header)
	b.WriteString(sequenceLine(t.CSeq, MethodInvite))
	b.WriteString(requestTerminator)
	return []byte(b.String())
}

// BuildAuthInvite renders the INVITE answering the digest challenge.
func BuildAuthInvite(conf *CallConfig, t *Transaction, ch Challenge, response string) []byte {
	var b strings.Builder
	b.WriteString(MethodInvite + " ")
	b.WriteString(t.header)
	b.WriteString(`Authorization: Digest username="` + conf.Username + "\",\n")
	b.WriteString(` realm="` + ch.Realm + "\",\n")
	b.WriteString(` nonce="` + ch.Nonce + "\",\n")
	b.WriteString(` uri="` + conf.URI() + "\",\n")
	b.WriteString(` response="` + response + "\"\n")
	b.WriteString(sequenceLine(t.CSeq, MethodInvite))
	b.WriteString(requestTerminator)
	return []byte(b.String())
}

// BuildCancel renders the CANCEL that stops the ringing.
func BuildCancel(t *Transaction) []byte {
	var b strings.Builder
	b.WriteString(MethodCancel + " ")
	b.WriteString(t.header)
	b.WriteString(sequenceLine(t.CSeq, MethodCancel))
	b.WriteString(requestTerminator)
	return []byte(b.String())
}
