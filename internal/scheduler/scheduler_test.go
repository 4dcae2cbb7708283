package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("refresh ran without a deadline")
	}
	return r.err
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]string
}

func (i *recordingInvalidator) Invalidate(symbols ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, symbols)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestScheduler_RegisterAll(t *testing.T) {
	tests := []struct {
		name         string
		content      ContentRefresher
		artifacts    ArtifactInvalidator
		contentSpec  string
		artifactSpec string
		wantJobs     int
		wantErr      bool
	}{
		{name: "both jobs", content: &countingRefresher{}, artifacts: &recordingInvalidator{}, contentSpec: "@every 30s", artifactSpec: "0 0 * * *", wantJobs: 2},
		{name: "empty spec skips job", content: &countingRefresher{}, artifacts: &recordingInvalidator{}, contentSpec: "@every 30s", wantJobs: 1},
		{name: "missing dependency skips job", artifacts: &recordingInvalidator{}, contentSpec: "@every 30s", artifactSpec: "@daily", wantJobs: 1},
		{name: "invalid spec", content: &countingRefresher{}, contentSpec: "every now and then", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(context.Background(), tt.content, tt.artifacts, quietLogger())

			err := s.RegisterAll(tt.contentSpec, tt.artifactSpec)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantJobs, s.Jobs())
		})
	}
}

func TestScheduler_Jobs(t *testing.T) {
	refresher := &countingRefresher{err: errors.New("redis down")}
	invalidator := &recordingInvalidator{}
	s := NewScheduler(context.Background(), refresher, invalidator, quietLogger())

	s.refreshContent()
	s.invalidateArtifacts()

	assert.Equal(t, int32(1), refresher.calls.Load())
	require.Len(t, invalidator.calls, 1)
	assert.Empty(t, invalidator.calls[0])
}

func TestScheduler_StartStop(t *testing.T) {
	refresher := &countingRefresher{}
	s := NewScheduler(context.Background(), refresher, nil, quietLogger())
	require.NoError(t, s.RegisterAll("@every 1s", ""))

	s.Start()
	assert.Eventually(t, func() bool { return refresher.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()

	after := refresher.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, after, refresher.calls.Load())
}
