package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcomeSink struct {
	mu  sync.Mutex
	out []MetadataOutcome
}

func (s *outcomeSink) handle(_ context.Context, o MetadataOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, o)
}

func (s *outcomeSink) snapshot() []MetadataOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MetadataOutcome(nil), s.out...)
}

func TestDispatcher_RejectsWhenQueueFull(t *testing.T) {
	gen := &fakeGenerator{md: sampleMetadata(), block: make(chan struct{})}
	sink := &outcomeSink{}
	d := NewDispatcher(gen, DispatcherConfig{Workers: 1, QueueSize: 1, Timeout: time.Second}, sink.handle, nil)
	d.Start(context.Background())

	ctx := context.Background()
	d.Enqueue(ctx, MetadataJob{DatasetID: "running"})

	// Wait until the worker holds the first job so the queue is empty.
	require.Eventually(t, func() bool { return len(d.jobs) == 0 }, time.Second, time.Millisecond)

	d.Enqueue(ctx, MetadataJob{DatasetID: "queued"})
	d.Enqueue(ctx, MetadataJob{DatasetID: "overflow"})

	out := sink.snapshot()
	require.Len(t, out, 1, "overflow is reported without waiting")
	assert.Equal(t, "overflow", out[0].DatasetID)
	assert.ErrorIs(t, out[0].Err, ErrQueueFull)

	close(gen.block)
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(stopCtx))

	got := map[string]error{}
	for _, o := range sink.snapshot() {
		got[o.DatasetID] = o.Err
	}
	assert.Len(t, got, 3)
	assert.NoError(t, got["running"])
	assert.NoError(t, got["queued"])
}

func TestDispatcher_EnqueueBeforeStartFails(t *testing.T) {
	sink := &outcomeSink{}
	d := NewDispatcher(&fakeGenerator{}, DispatcherConfig{}, sink.handle, nil)

	d.Enqueue(context.Background(), MetadataJob{DatasetID: "x"})

	out := sink.snapshot()
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, ErrDispatcherStopped)
}

func TestDispatcher_PerAttemptTimeout(t *testing.T) {
	// The generator never returns on its own; each attempt must be cut off.
	gen := &fakeGenerator{block: make(chan struct{})}
	sink := &outcomeSink{}
	d := NewDispatcher(gen, DispatcherConfig{Workers: 1, Timeout: 20 * time.Millisecond, Retries: 1, Backoff: time.Millisecond}, sink.handle, nil)
	d.Start(context.Background())
	defer func() { _ = d.Stop(context.Background()) }()

	d.Enqueue(context.Background(), MetadataJob{DatasetID: "slow"})

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	o := sink.snapshot()[0]
	assert.ErrorIs(t, o.Err, context.DeadlineExceeded)
	assert.Equal(t, 2, o.Attempts)
}

func TestDispatcher_StopCancelsInFlightOnDeadline(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	sink := &outcomeSink{}
	d := NewDispatcher(gen, DispatcherConfig{Workers: 1, Timeout: time.Minute}, sink.handle, nil)
	d.Start(context.Background())
	d.Enqueue(context.Background(), MetadataJob{DatasetID: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := d.Stop(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	out := sink.snapshot()
	require.Len(t, out, 1)
	assert.Error(t, out[0].Err)

	// Stop is idempotent.
	assert.NoError(t, d.Stop(context.Background()))
}

func TestBuildPrompt(t *testing.T) {
	p := Profile{
		OriginalFilename: "roads & bridges.csv",
		Columns: []Column{
			{Name: "id", DataType: TypeNumber, SampleValues: []string{"1", "2"}},
			{Name: "note", DataType: TypeString},
		},
	}

	got, err := BuildPrompt(p)
	require.NoError(t, err)

	want := "<filename>roads & bridges.csv</filename>\n\n<data>[\n" +
		"  {\n" +
		"    \"name\": \"id\",\n" +
		"    \"type\": \"number\",\n" +
		"    \"samples\": [\n" +
		"      \"1\",\n" +
		"      \"2\"\n" +
		"    ]\n" +
		"  },\n" +
		"  {\n" +
		"    \"name\": \"note\",\n" +
		"    \"type\": \"string\",\n" +
		"    \"samples\": []\n" +
		"  }\n" +
		"]</data>"
	assert.Equal(t, want, got)
}
