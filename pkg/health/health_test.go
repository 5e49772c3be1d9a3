package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe_FailureThreshold(t *testing.T) {
	fail := errors.New("down")
	p := newProbe("db", time.Second, func(context.Context) error { return fail })

	ctx := context.Background()
	p.tick(ctx)
	p.tick(ctx)
	assert.True(t, p.ok.Load(), "two failures stay below the threshold")

	p.tick(ctx)
	assert.False(t, p.ok.Load(), "third consecutive failure flips the probe")

	msg, failed := p.failure()
	require.True(t, failed)
	assert.Equal(t, "down", msg)
}

func TestProbe_RecoversAfterSuccess(t *testing.T) {
	var err error = errors.New("down")
	p := newProbe("db", time.Second, func(context.Context) error { return err })

	ctx := context.Background()
	for range defaultFailureThreshold {
		p.tick(ctx)
	}
	require.False(t, p.ok.Load())

	err = nil
	p.tick(ctx)
	assert.True(t, p.ok.Load())
}

func TestHealth_ReadyRequiresBothFlagAndChecks(t *testing.T) {
	h := New()
	h.AddReadinessCheck("db", time.Second, func(context.Context) error { return nil })

	assert.False(t, h.IsReady(), "not ready before SetReady")

	h.SetReady(true)
	assert.True(t, h.IsReady())

	h.mu.RLock()
	p := h.readiness[0]
	h.mu.RUnlock()
	p.ok.Store(false)
	assert.False(t, h.IsReady(), "failing readiness check blocks readiness")
}

func TestHealth_Endpoints(t *testing.T) {
	h := New()
	h.SetReady(true)

	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)

	h.SetReady(false)
	w = httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Contains(t, resp.Checks, "_readiness")
}

func TestHealth_StartAndStop(t *testing.T) {
	h := New()
	ran := make(chan struct{}, 1)
	h.AddLivenessCheck("beat", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	defer h.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("check never ran")
	}
}
