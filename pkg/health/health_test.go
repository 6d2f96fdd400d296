package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pass() CheckFunc {
	return func(_ context.Context) error { return nil }
}

func fail(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

func serve(t *testing.T, handler http.HandlerFunc, path string) (*httptest.ResponseRecorder, probeReport) {
	t.Helper()

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, path, nil))

	var report probeReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	return w, report
}

func TestLiveEndpoint_AllPassing(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, pass())
	h.AddLivenessCheck("gc", time.Second, pass())

	w, report := serve(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", report.Status)
}

func TestLiveEndpoint_FailingProbe(t *testing.T) {
	h := New()
	h.AddLivenessCheck("db", time.Second, fail("connection refused"))

	// Probes start passing; three consecutive failures flip them.
	ctx := context.Background()
	for range defaultFailAfter {
		h.live[0].exec(ctx)
	}

	w, report := serve(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", report.Status)
	assert.Equal(t, "connection refused", report.Checks["db"])
}

func TestLiveEndpoint_FailureBelowThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("flaky", time.Second, fail("temporary"))

	ctx := context.Background()
	h.live[0].exec(ctx)
	h.live[0].exec(ctx)

	w, _ := serve(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyEndpoint_Gate(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, pass())

	w, report := serve(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, report.Checks, "_readiness")

	h.SetReady(true)
	w, report = serve(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", report.Status)

	h.SetReady(false)
	w, _ = serve(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyEndpoint_OneFailingProbe(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, pass())
	h.AddReadinessCheck("redis", time.Second, fail("no route to host"))
	h.SetReady(true)

	ctx := context.Background()
	for range defaultFailAfter {
		h.ready[1].exec(ctx)
	}

	w, report := serve(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, report.Checks, "redis")
	assert.NotContains(t, report.Checks, "postgres")
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, pass())

	assert.False(t, h.IsReady())
	h.SetReady(true)
	assert.True(t, h.IsReady())
	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestProbeRecovery(t *testing.T) {
	down := true
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(_ context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})
	p := h.live[0]
	ctx := context.Background()

	for range defaultFailAfter {
		p.exec(ctx)
	}
	ok, _ := p.state()
	assert.False(t, ok)

	down = false
	p.exec(ctx)
	ok, _ = p.state()
	assert.True(t, ok, "probe should recover after a consecutive pass")
}

func TestStopIsIdempotent(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, pass())

	h.Start(context.Background(), 50*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestEndpoints_NoProbes(t *testing.T) {
	h := New()

	w, report := serve(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", report.Status)

	h.SetReady(true)
	w, _ = serve(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, fail("err"))
	h.AddReadinessCheck("ready", time.Second, pass())
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()

				w := httptest.NewRecorder()
				h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

				w = httptest.NewRecorder()
				h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
