package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantBridge/internal/services/numeric"
	"QuantBridge/internal/usecase"
	"QuantBridge/pkg/metrics"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	engine := usecase.NewFusionEngine(numeric.NewGaussianHMMFitter(), nil)
	svc := usecase.NewSignalService(engine, nil, metrics.Nop{})
	s := NewServer("127.0.0.1:0", svc, metrics.Nop{}, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, s *Server) *client {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) roundTrip(t *testing.T, req string) map[string]any {
	t.Helper()
	_, err := c.conn.Write([]byte(req))
	require.NoError(t, err)
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &out))
	return out
}

func rampRequest(n int) string {
	prices := make([]string, n)
	volumes := make([]string, n)
	for i := range prices {
		prices[i] = fmt.Sprint(i + 1)
		volumes[i] = "100"
	}
	return fmt.Sprintf(`{"prices":[%s],"volumes":[%s]}`, strings.Join(prices, ","), strings.Join(volumes, ","))
}

func TestSessionEndToEnd(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	out := c.roundTrip(t, rampRequest(30)+"\n")
	assert.Equal(t, 0.5, out["mlProbability"])
	assert.Equal(t, false, out["isDirectionalRegime"])
	assert.Equal(t, true, out["hedgeSignal"])
	assert.InDelta(t, 1.0, out["correlation"].(float64), 1e-12)
	assert.Len(t, out, 7)
}

func TestSessionRecoversFromMalformedJSON(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	out := c.roundTrip(t, `{"prices": ]`+"\n")
	require.Contains(t, out, "error")
	assert.Contains(t, out["error"], "malformed JSON")

	out = c.roundTrip(t, rampRequest(5))
	assert.NotContains(t, out, "error")
	assert.Contains(t, out, "zScore")
}

func TestSessionTruncatedObjectBeforeHalfClose(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	_, err := c.conn.Write([]byte(`{"prices":[1,2,3],"volumes":[1,2,3]`))
	require.NoError(t, err)
	require.NoError(t, c.conn.(*net.TCPConn).CloseWrite())

	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &out))
	require.Contains(t, out, "error")
	assert.Contains(t, out["error"], "malformed JSON")
}

func TestSessionResyncsAfterUnterminatedObject(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	_, err := c.conn.Write([]byte(`{"prices":[1,2,3],"volumes":[1,2,3]` + rampRequest(5)))
	require.NoError(t, err)

	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "malformed JSON")

	// the request that followed the broken fragment is still answered
	line, err = c.r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "zScore")
	assert.NotContains(t, line, `"error"`)
}

func TestSessionReportsInvalidRequests(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	tests := []struct {
		name, req, want string
	}{
		{"missing volumes", `{"prices":[1,2,3]}`, "volumes"},
		{"length mismatch", `{"prices":[1,2,3],"volumes":[1,2]}`, "volumes"},
		{"not an object", `[1,2,3]`, "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := c.roundTrip(t, tt.req)
			require.Contains(t, out, "error")
			assert.Contains(t, out["error"], tt.want)
		})
	}

	// the session is still usable
	out := c.roundTrip(t, rampRequest(3))
	assert.Contains(t, out, "zScore")
}

func TestSessionStreamWithoutNewlines(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	_, err := c.conn.Write([]byte(rampRequest(4) + rampRequest(6)))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		line, err := c.r.ReadString('\n')
		require.NoError(t, err)
		assert.Contains(t, line, "zScore")
	}
}

func TestConcurrentSessions(t *testing.T) {
	s := startServer(t)
	const sessions, perSession = 8, 10

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", s.Addr().String())
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
			r := bufio.NewReader(conn)
			for j := 0; j < perSession; j++ {
				if _, err := conn.Write([]byte(rampRequest(2 + id + j))); !assert.NoError(t, err) {
					return
				}
				line, err := r.ReadString('\n')
				if !assert.NoError(t, err) {
					return
				}
				assert.NotContains(t, line, `"error"`)
			}
		}(i)
	}
	wg.Wait()
}

func TestStopClosesSessions(t *testing.T) {
	engine := usecase.NewFusionEngine(numeric.NewGaussianHMMFitter(), nil)
	svc := usecase.NewSignalService(engine, nil, metrics.Nop{})
	s := NewServer("127.0.0.1:0", svc, metrics.Nop{}, nil)
	require.NoError(t, s.Start(context.Background()))

	c := dial(t, s)
	c.roundTrip(t, rampRequest(3))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_, err := c.r.ReadString('\n')
	assert.Error(t, err)
	_, err = net.DialTimeout("tcp", s.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err)
}
