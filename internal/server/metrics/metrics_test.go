package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/logging"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.CommandHandled("upload", "ok")
	m.CommandHandled("upload", "ok")
	m.CommandHandled("download", "checksum_mismatch")
	m.BytesTransferred("in", 10000)
	m.BytesTransferred("in", 0)
	m.ChecksumMismatch("pre_transfer")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("upload", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("download", "checksum_mismatch")))
	assert.Equal(t, 10000.0, testutil.ToFloat64(m.payloadBytes.WithLabelValues("in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mismatches.WithLabelValues("pre_transfer")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.CommandHandled("list", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `securexfer_commands_total{command="list",result="ok"} 1`)
}

func TestMetrics_ServeStopsOnCancel(t *testing.T) {
	m := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.serve(ctx, ln, logging.Nop()) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, "securexfer_active_sessions"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
