package trigger

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chunkReader returns its chunks one read at a time. An empty chunk simulates a read timeout.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	c := r.chunks[0]
	r.chunks = r.chunks[1:]
	return copy(p, c), nil
}

func TestSerialScan(t *testing.T) {
	cases := []struct {
		name   string
		chunks []string
		err    error
	}{
		{name: "sentinel", chunks: []string{"RING\r\n"}},
		{name: "split", chunks: []string{"RI", "", "NG\n"}},
		{name: "noise first", chunks: []string{"boot ok\n", "", "\xff\xfe\n", "  RING  \n"}},
		{name: "same read", chunks: []string{"hello\nRING\nmore"}},
		{name: "no sentinel", chunks: []string{"RINGING\n", "RIN"}, err: io.EOF},
		{name: "invalid utf8 sentinel", chunks: []string{"RING\xff\n"}, err: io.EOF},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := NewSerial(SerialConfig{Device: "test"}, nil)
			err := s.scan(context.Background(), &chunkReader{chunks: c.chunks})
			if c.err != nil {
				require.ErrorIs(t, err, c.err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSerialScanCustomSentinel(t *testing.T) {
	s := NewSerial(SerialConfig{Device: "test", Sentinel: "PRESS"}, nil)
	require.NoError(t, s.scan(context.Background(), strings.NewReader("RING\nPRESS\n")))
}

func TestSerialScanOversizedLine(t *testing.T) {
	s := NewSerial(SerialConfig{Device: "test"}, nil)
	r := &chunkReader{chunks: []string{strings.Repeat("x", 2*maxLineSize), "\nRING\n"}}
	require.NoError(t, s.scan(context.Background(), r))
}

// timeoutReader simulates a port with a read timeout that never receives data.
type timeoutReader struct{}

func (timeoutReader) Read(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, nil
}

func TestSerialScanCancel(t *testing.T) {
	s := NewSerial(SerialConfig{Device: "test"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.scan(ctx, timeoutReader{})
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSerialOpenFailure(t *testing.T) {
	s := NewSerial(SerialConfig{Device: "/dev/does-not-exist-bell"}, nil)
	err := s.Wait(context.Background())
	require.ErrorIs(t, err, ErrOpen)
}

func TestNewSerialDefaults(t *testing.T) {
	s := NewSerial(SerialConfig{Device: "test"}, nil)
	require.Equal(t, DefaultBaudRate, s.conf.BaudRate)
	require.Equal(t, DefaultReadTimeout, s.conf.ReadTimeout)
	require.Equal(t, "RING", s.conf.Sentinel)
}
