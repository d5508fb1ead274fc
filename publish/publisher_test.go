package publish

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/authprobe/report"
	"github.com/c360studio/authprobe/scenarios"
)

func testRun(names ...string) *report.Run {
	results := make([]*scenarios.Result, 0, len(names))
	for _, name := range names {
		r := scenarios.NewResult(name)
		r.Success = true
		r.Complete()
		results = append(results, r)
	}
	return report.NewRun("http://localhost:8080/auth", results)
}

func TestSubject(t *testing.T) {
	tests := []struct {
		name string
		run  *report.Run
		want string
	}{
		{"single scenario", testRun("auth-flow"), "authprobe.results.auth-flow"},
		{"several scenarios", testRun("auth-flow", "auth-guards"), "authprobe.results.all"},
		{"no scenarios", testRun(), "authprobe.results.all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject("authprobe.results", tt.run))
		})
	}
}

func TestNewWithoutURLIsNop(t *testing.T) {
	p, err := New("", "authprobe.results", nil)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), testRun("auth-flow")))
	assert.NoError(t, p.Close())
}

func TestNewUnreachableServer(t *testing.T) {
	_, err := New("nats://127.0.0.1:1", "authprobe.results", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to NATS")
}

// TestNATSPublisher_Integration requires a running NATS server.
// Run with: NATS_URL=nats://localhost:4222 go test ./publish/...
func TestNATSPublisher_Integration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("authprobe.test.>", msgs)
	require.NoError(t, err)
	defer func() { _ = s.Unsubscribe() }()
	require.NoError(t, sub.Flush())

	p, err := NewNATSPublisher(url, "authprobe.test", nil)
	require.NoError(t, err)
	defer p.Close()

	run := testRun("auth-flow")
	require.NoError(t, p.Publish(context.Background(), run))

	select {
	case msg := <-msgs:
		assert.Equal(t, "authprobe.test.auth-flow", msg.Subject)
		assert.Equal(t, run.RunID, msg.Header.Get(nats.MsgIdHdr))

		var got report.Run
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, run.RunID, got.RunID)
		assert.Equal(t, 1, got.Summary.Passed)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for published report")
	}
}
