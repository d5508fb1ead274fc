package metrics

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/authprobe/scenarios"
)

func TestObserveRequest(t *testing.T) {
	c := NewCollector()

	c.ObserveRequest("login", 200, 20*time.Millisecond, nil)
	c.ObserveRequest("login", 200, 30*time.Millisecond, nil)
	c.ObserveRequest("login", 401, 10*time.Millisecond, nil)
	c.ObserveRequest("register", 0, time.Millisecond, errors.New("connection refused"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("login", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("login", "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("register", "error")))

	count, err := testutil.GatherAndCount(c.Registry(), "authprobe_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one histogram series per endpoint")
}

func TestRecordResult(t *testing.T) {
	c := NewCollector()
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	result := scenarios.NewResult("auth-flow")
	result.AddStage(scenarios.StageResult{Name: "register", Status: scenarios.StagePassed})
	result.AddStage(scenarios.StageResult{Name: "login", Status: scenarios.StageFailed})
	result.AddStage(scenarios.StageResult{Name: "current-user", Status: scenarios.StageSkipped})

	c.RecordResult(result)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.stageSuccess.WithLabelValues("auth-flow", "register")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.stageSuccess.WithLabelValues("auth-flow", "login")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(c.lastRun))

	count, err := testutil.GatherAndCount(c.Registry(), "authprobe_stage_success")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "skipped stages are not recorded")
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.ObserveRequest("me", 200, 5*time.Millisecond, nil)

	path := filepath.Join(t.TempDir(), "authprobe.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `authprobe_requests_total{code="200",endpoint="me"} 1`)
}

func TestPush(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, buf.String()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	c := NewCollector()
	c.ObserveRequest("login", 200, time.Millisecond, nil)
	require.NoError(t, c.Push(context.Background(), gateway.URL, "authprobe"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/authprobe", path)
	assert.NotEmpty(t, body)
}

func TestPush_GatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	c := NewCollector()
	err := c.Push(context.Background(), gateway.URL, "authprobe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}
