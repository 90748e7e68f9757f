package natsqueue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorango/flowcraft/internal/adapter"
)

// connectTestQueue dials NATS_URL (default nats://127.0.0.1:4222), skipping
// the test when nothing answers — the same posture redisstore's tests take
// toward a real backing service this module doesn't vendor a fake for.
func connectTestQueue(t *testing.T, streamName, consumerName, subject string) *Queue {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url, nats.Timeout(200*time.Millisecond))
	if err != nil {
		t.Skipf("nats not reachable at %s: %v", url, err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subject},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = js.DeleteStream(context.Background(), streamName) })

	q, err := Connect(ctx, js, Config{
		StreamName:   streamName,
		ConsumerName: consumerName,
		Subject:      subject,
		FetchWait:    500 * time.Millisecond,
		AckWait:      time.Second,
	})
	require.NoError(t, err)
	return q
}

func TestEnqueueThenConsumeDeliversJob(t *testing.T) {
	q := connectTestQueue(t, "FLOWCRAFT_TEST_JOBS", "flowcraft-test-worker", "flowcraft.test.jobs")

	job := adapter.Job{RunID: "run1", BlueprintID: "bp", NodeID: "a"}
	require.NoError(t, q.Enqueue(context.Background(), job))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	received := make(chan adapter.Job, 1)
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, j adapter.Job) error {
			received <- j
			cancel()
			return nil
		})
	}()

	select {
	case got := <-received:
		assert.Equal(t, job, got)
	case <-ctx.Done():
		t.Fatal("expected a delivered job before the context timed out")
	}
}

func TestConsumeRedeliversOnHandlerError(t *testing.T) {
	q := connectTestQueue(t, "FLOWCRAFT_TEST_JOBS_RETRY", "flowcraft-test-retry-worker", "flowcraft.test.jobs.retry")

	job := adapter.Job{RunID: "run2", BlueprintID: "bp", NodeID: "a"}
	require.NoError(t, q.Enqueue(context.Background(), job))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	attempts := 0
	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, j adapter.Job) error {
			attempts++
			if attempts < 2 {
				return assert.AnError
			}
			close(done)
			cancel()
			return nil
		})
	}()

	select {
	case <-done:
		assert.GreaterOrEqual(t, attempts, 2)
	case <-ctx.Done():
		t.Fatal("expected at least one redelivery before the context timed out")
	}
}
