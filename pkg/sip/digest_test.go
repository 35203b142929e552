package sip

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestComputeDigest(t *testing.T) {
	got := ComputeDigest("door", "secret", "example.com", "ABC123", MethodInvite, "sip:door@10.0.0.1")

	ha1 := md5hex("door:example.com:secret")
	ha2 := md5hex("INVITE:sip:door@10.0.0.1")
	require.Equal(t, md5hex(ha1+":ABC123:"+ha2), got)
	require.Len(t, got, 32)
	require.Regexp(t, `^[0-9a-f]{32}$`, got)

	// deterministic
	require.Equal(t, got, ComputeDigest("door", "secret", "example.com", "ABC123", MethodInvite, "sip:door@10.0.0.1"))
}

func TestComputeDigestInputs(t *testing.T) {
	base := [6]string{"door", "secret", "example.com", "ABC123", MethodInvite, "sip:door@10.0.0.1"}
	compute := func(in [6]string) string {
		return ComputeDigest(in[0], in[1], in[2], in[3], in[4], in[5])
	}
	seen := map[string]int{compute(base): -1}
	for i := range base {
		in := base
		in[i] += "x"
		d := compute(in)
		prev, dup := seen[d]
		require.False(t, dup, "input %d collides with %d", i, prev)
		seen[d] = i
	}
}
