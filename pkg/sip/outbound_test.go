package sip

import (
	"context"
	"net"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/livekit/protocol/logger"

	"github.com/sipbell/bell/pkg/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type receivedMsg struct {
	at   time.Time
	data string
}

// fakeServer accepts signaling connections and answers each request with the next scripted response.
type fakeServer struct {
	t     testing.TB
	ln    net.Listener
	reply func(conn, msg int) string // empty string means no response
	wg    sync.WaitGroup

	mu    sync.Mutex
	calls [][]receivedMsg
}

func newFakeServer(t testing.TB, reply func(conn, msg int) string) *fakeServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{t: t, ln: ln, reply: reply}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) Close() {
	_ = s.ln.Close()
	s.wg.Wait()
}

func (s *fakeServer) serve() {
	defer s.wg.Done()
	for i := 0; ; i++ {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.calls = append(s.calls, nil)
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(i, conn)
	}
}

func (s *fakeServer) handle(id int, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	sess := newSession(conn, SessionConfig{}, logger.GetLogger())
	for n := 0; ; n++ {
		msg, err := sess.Receive()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.calls[id] = append(s.calls[id], receivedMsg{at: time.Now(), data: string(msg)})
		s.mu.Unlock()
		if resp := s.reply(id, n); resp != "" {
			if err := sess.Send([]byte(resp)); err != nil {
				return
			}
		}
	}
}

// Messages returns the requests received on each connection, in order.
func (s *fakeServer) Messages() [][]receivedMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]receivedMsg, len(s.calls))
	for i, c := range s.calls {
		out[i] = append([]receivedMsg(nil), c...)
	}
	return out
}

// Dialer redirects every dial to the fake server and records the requested address.
func (s *fakeServer) Dialer(dialed *[]string) Dialer {
	var mu sync.Mutex
	return dialerFunc(func(ctx context.Context, network, address string) (net.Conn, error) {
		mu.Lock()
		*dialed = append(*dialed, address)
		mu.Unlock()
		var d net.Dialer
		return d.DialContext(ctx, network, s.ln.Addr().String())
	})
}

func challengeReply(nonce string) func(conn, msg int) string {
	return func(_, msg int) string {
		switch msg {
		case 0:
			return "SIP/2.0 100 Trying\r\nContent-Length: 0\r\n\r\n" +
				"SIP/2.0 401 Unauthorized\r\n" +
				"WWW-Authenticate: Digest realm=\"example.com\", nonce=\"" + nonce + "\"\r\n" +
				"Content-Length: 0\r\n\r\n"
		case 1:
			return "SIP/2.0 180 Ringing\r\nContent-Length: 0\r\n\r\n"
		default:
			return "SIP/2.0 200 OK\r\nContent-Length: 0\r\n\r\n"
		}
	}
}

func newTestClient(t testing.TB, srv *fakeServer, ring time.Duration, dialed *[]string) (*Client, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	mon := stats.NewMonitor(reg)
	require.NoError(t, mon.Start())

	c := NewClient(testCallConfig(), ClientConfig{RingDuration: ring}, logger.GetLogger(), mon)
	c.SetDialer(srv.Dialer(dialed))
	return c, reg
}

func TestOutboundCall(t *testing.T) {
	srv := newFakeServer(t, challengeReply("ABC123"))
	var dialed []string
	c, reg := newTestClient(t, srv, 1500*time.Millisecond, &dialed)

	require.NoError(t, c.Ring(context.Background()))
	srv.Close()

	require.Equal(t, []string{"10.0.0.1:5060"}, dialed)
	calls := srv.Messages()
	require.Len(t, calls, 1)
	msgs := calls[0]
	require.Len(t, msgs, 3)

	require.True(t, strings.HasPrefix(msgs[0].data, "INVITE sip: 10.0.0.1 SIP/2.0\n"))
	require.Contains(t, msgs[0].data, "Cseq: 1 INVITE\n")
	require.NotContains(t, msgs[0].data, "Authorization")

	exp := ComputeDigest("door", "secret", "example.com", "ABC123", MethodInvite, "sip:door@10.0.0.1")
	require.True(t, strings.HasPrefix(msgs[1].data, "INVITE "))
	require.Contains(t, msgs[1].data, ` response="`+exp+`"`)
	require.Contains(t, msgs[1].data, "Cseq: 2 INVITE\n")

	require.True(t, strings.HasPrefix(msgs[2].data, "CANCEL "))
	require.Contains(t, msgs[2].data, "Cseq: 2 CANCEL\n")

	hold := msgs[2].at.Sub(msgs[1].at)
	require.GreaterOrEqual(t, hold, 1500*time.Millisecond)

	// all requests belong to the same dialog
	header := func(m string) string {
		_, rest, _ := strings.Cut(m, " ")
		i := strings.Index(rest, "Content-Length: 0\n")
		return rest[:i]
	}
	require.Equal(t, header(msgs[0].data), header(msgs[1].data))
	require.Equal(t, header(msgs[0].data), header(msgs[2].data))

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP sipbell_sip_calls_completed Number of calls that rang and were cancelled
# TYPE sipbell_sip_calls_completed counter
sipbell_sip_calls_completed 1
# HELP sipbell_sip_calls_active Number of calls in progress
# TYPE sipbell_sip_calls_active gauge
sipbell_sip_calls_active 0
# HELP sipbell_sip_invite_requests Number of SIP INVITE requests sent
# TYPE sipbell_sip_invite_requests counter
sipbell_sip_invite_requests{auth="digest"} 1
sipbell_sip_invite_requests{auth="none"} 1
`), "sipbell_sip_calls_completed", "sipbell_sip_calls_active", "sipbell_sip_invite_requests"))
}

func TestOutboundCallNoChallenge(t *testing.T) {
	srv := newFakeServer(t, func(_, _ int) string {
		return "SIP/2.0 403 Forbidden\r\nContent-Length: 0\r\n\r\n"
	})
	var dialed []string
	c, reg := newTestClient(t, srv, 10*time.Millisecond, &dialed)

	err := c.Ring(context.Background())
	require.ErrorIs(t, err, ErrChallengeNotFound)

	var cerr *CallError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, CallChallengeReceived, cerr.State)

	srv.Close()
	calls := srv.Messages()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 1)
	require.NotContains(t, calls[0][0].data, "Authorization")

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP sipbell_sip_calls_failed Number of calls aborted by an error
# TYPE sipbell_sip_calls_failed counter
sipbell_sip_calls_failed{state="challenge_received"} 1
`), "sipbell_sip_calls_failed"))
}

func TestOutboundCallConnectionRefused(t *testing.T) {
	reg := prometheus.NewRegistry()
	mon := stats.NewMonitor(reg)
	require.NoError(t, mon.Start())

	c := NewClient(testCallConfig(), ClientConfig{}, nil, mon)
	c.SetDialer(dialerFunc(func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Net: network, Err: net.UnknownNetworkError("refused")}
	}))
	err := c.Ring(context.Background())
	require.ErrorIs(t, err, ErrConnection)

	var cerr *CallError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, CallFirstInviteSent, cerr.State)
}

func TestOutboundCallCancelledContext(t *testing.T) {
	srv := newFakeServer(t, challengeReply("ABC123"))
	var dialed []string
	c, _ := newTestClient(t, srv, time.Minute, &dialed)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.NoError(t, c.Ring(ctx))
	require.Less(t, time.Since(start), 10*time.Second)

	srv.Close()
	msgs := srv.Messages()[0]
	require.Len(t, msgs, 3)
	require.True(t, strings.HasPrefix(msgs[2].data, "CANCEL "))
}

func TestDefaultRingDuration(t *testing.T) {
	c := NewClient(testCallConfig(), ClientConfig{}, nil, stats.NewMonitor(prometheus.NewRegistry()))
	require.Equal(t, 2000*time.Millisecond, c.RingDuration())
	require.Equal(t, DefaultRingDuration, c.RingDuration())
}

var (
	reCallID = regexp.MustCompile(`(?m)^Call-ID: i\d+$`)
	reDigest = regexp.MustCompile(`response="[0-9a-f]{32}"`)
	reNonce  = regexp.MustCompile(`nonce="[^"]*"`)
)

func normalize(m string) string {
	m = reCallID.ReplaceAllString(m, "Call-ID: <id>")
	m = reNonce.ReplaceAllString(m, `nonce="<nonce>"`)
	return reDigest.ReplaceAllString(m, `response="<digest>"`)
}

func TestOutboundCallRepeat(t *testing.T) {
	nonces := []string{"ABC123", "DEF456"}
	srv := newFakeServer(t, func(conn, msg int) string {
		return challengeReply(nonces[conn%len(nonces)])(conn, msg)
	})
	var dialed []string
	c, _ := newTestClient(t, srv, 10*time.Millisecond, &dialed)

	require.NoError(t, c.Ring(context.Background()))
	require.NoError(t, c.Ring(context.Background()))
	srv.Close()

	calls := srv.Messages()
	require.Len(t, calls, 2)
	require.Len(t, calls[0], 3)
	require.Len(t, calls[1], 3)
	for i := range calls[0] {
		a, b := calls[0][i].data, calls[1][i].data
		require.NotEqual(t, reCallID.FindString(a), reCallID.FindString(b))
		require.Equal(t, normalize(a), normalize(b))
	}
	require.Contains(t, calls[0][1].data, `nonce="ABC123"`)
	require.Contains(t, calls[1][1].data, `nonce="DEF456"`)
	require.NotEqual(t, reDigest.FindString(calls[0][1].data), reDigest.FindString(calls[1][1].data))
}

func TestCallIDUnique(t *testing.T) {
	c := NewClient(testCallConfig(), ClientConfig{}, nil, stats.NewMonitor(prometheus.NewRegistry()))
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := c.newCallID()
		_, dup := seen[id]
		require.False(t, dup, id)
		seen[id] = struct{}{}
	}
}
