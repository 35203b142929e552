package sip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseChallenge(t *testing.T) {
	cases := []struct {
		name string
		resp string
		exp  Challenge
		err  error
	}{
		{
			name: "www-authenticate",
			resp: "SIP/2.0 401 Unauthorized\r\n" +
				"WWW-Authenticate: Digest realm=\"example.com\", nonce=\"ABC123\"\r\n" +
				"Content-Length: 0\r\n\r\n",
			exp: Challenge{Realm: "example.com", Nonce: "ABC123"},
		},
		{
			name: "algorithm first",
			resp: "SIP/2.0 401 Unauthorized\r\n" +
				"WWW-Authenticate: Digest algorithm=MD5, realm=\"fritz.box\", nonce=\"0F1E2D3C\"\r\n\r\n",
			exp: Challenge{Realm: "fritz.box", Nonce: "0F1E2D3C"},
		},
		{
			name: "no challenge",
			resp: "SIP/2.0 403 Forbidden\r\nContent-Length: 0\r\n\r\n",
			err:  ErrChallengeNotFound,
		},
		{
			name: "empty realm",
			resp: "SIP/2.0 401 Unauthorized\r\nWWW-Authenticate: Digest realm=\"\", nonce=\"ABC\"\r\n\r\n",
			err:  ErrRealmMissing,
		},
		{
			name: "empty nonce",
			resp: "SIP/2.0 401 Unauthorized\r\nWWW-Authenticate: Digest realm=\"r\", nonce=\"\"\r\n\r\n",
			err:  ErrNonceMissing,
		},
		{
			name: "invalid utf8",
			resp: "SIP/2.0 401 \xff\xfe realm=\"r\", nonce=\"n\"",
			err:  ErrInvalidEncoding,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ParseChallenge([]byte(c.resp))
			if c.err != nil {
				require.ErrorIs(t, err, c.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.exp, got)
		})
	}
}
