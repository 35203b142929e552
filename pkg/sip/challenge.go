package sip

import (
	"regexp"
	"unicode/utf8"

	"braces.dev/errtrace"
)

var challengeRe = regexp.MustCompile(`realm="(?P<realm>[^"]*)",\s*nonce="(?P<nonce>[^"]*)"`)

// ParseChallenge extracts realm and nonce from a raw challenge response.
// Only the realm="...", nonce="..." fragment is interpreted; the rest of the response is ignored.
func ParseChallenge(resp []byte) (Challenge, error) {
	if !utf8.Valid(resp) {
		return Challenge{}, errtrace.Wrap(ErrInvalidEncoding)
	}
	m := challengeRe.FindSubmatch(resp)
	if m == nil {
		return Challenge{}, errtrace.Wrap(ErrChallengeNotFound)
	}
	ch := Challenge{
		Realm: string(m[challengeRe.SubexpIndex("realm")]),
		Nonce: string(m[challengeRe.SubexpIndex("nonce")]),
	}
	if ch.Realm == "" {
		return Challenge{}, errtrace.Wrap(ErrRealmMissing)
	}
	if ch.Nonce == "" {
		return Challenge{}, errtrace.Wrap(ErrNonceMissing)
	}
	return ch, nil
}
