package chaos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(v float64) func() float64 { return func() float64 { return v } }

func TestInject_OffByDefault(t *testing.T) {
	c := New("inventory-service", InventoryProfile, WithRand(fixed(0)))

	assert.NoError(t, c.Inject(context.Background()))
}

func TestInject_FailsBelowRate(t *testing.T) {
	c := New("payment-service", PaymentProfile, WithRand(fixed(0.39)))
	c.EnableFailures()

	assert.ErrorIs(t, c.Inject(context.Background()), ErrInjected)
}

func TestInject_PassesAboveRate(t *testing.T) {
	c := New("payment-service", PaymentProfile, WithRand(fixed(0.4)))
	c.EnableFailures()

	assert.NoError(t, c.Inject(context.Background()))
}

func TestInject_SlowModeDelays(t *testing.T) {
	c := New("inventory-service", Profile{SlowMin: 20 * time.Millisecond, SlowMax: 40 * time.Millisecond}, WithRand(fixed(0.5)))
	c.EnableSlow()

	start := time.Now()
	require.NoError(t, c.Inject(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestInject_SlowModeHonoursContext(t *testing.T) {
	c := New("payment-service", PaymentProfile, WithRand(fixed(0)))
	c.EnableSlow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Inject(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDisableFailures_AlsoDisablesSlow(t *testing.T) {
	c := New("payment-service", PaymentProfile)
	c.EnableFailures()
	c.EnableSlow()

	c.DisableFailures()

	s := c.Status()
	assert.False(t, s.Failures)
	assert.False(t, s.Slow)
}

func TestRouter(t *testing.T) {
	c := New("inventory-service", InventoryProfile)
	srv := httptest.NewServer(NewRouter(c, nil))
	defer srv.Close()

	post := func(path string) {
		t.Helper()
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	post("/chaos/enable")
	post("/chaos/slow")
	assert.True(t, c.Status().Failures)
	assert.True(t, c.Status().Slow)

	post("/chaos/slow/disable")
	assert.False(t, c.Status().Slow)

	resp, err := http.Get(srv.URL + "/chaos/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "inventory-service", status.Service)
	assert.True(t, status.Failures)
	assert.Equal(t, 0.3, status.FailureRate)

	post("/chaos/disable")
	assert.False(t, c.Status().Failures)
}

type modeLog struct{ modes [][2]bool }

func (m *modeLog) ChaosModes(_ string, failures, slow bool) {
	m.modes = append(m.modes, [2]bool{failures, slow})
}

func TestController_ReportsModes(t *testing.T) {
	rec := &modeLog{}
	c := New("payment-service", PaymentProfile, WithRecorder(rec))

	c.EnableFailures()
	c.EnableSlow()
	c.DisableFailures()

	assert.Equal(t, [][2]bool{{false, false}, {true, false}, {true, true}, {false, false}}, rec.modes)
}

func TestWithLogger_NilKeepsDefault(t *testing.T) {
	c := New("inventory-service", InventoryProfile, WithLogger(nil))

	assert.NotPanics(t, c.EnableFailures)
	assert.NotPanics(t, c.DisableFailures)
}

func TestRouter_ServesMetricsAndRunsMiddleware(t *testing.T) {
	var seen []string
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("chaos_failure_enabled 0\n"))
	})
	router := NewRouter(New("inventory-service", InventoryProfile), metrics, mw)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chaos_failure_enabled")
	assert.Equal(t, []string{"/metrics"}, seen)
}
