package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnuragDani/subscription-charger/internal/cache"
	"github.com/AnuragDani/subscription-charger/internal/charge"
	"github.com/AnuragDani/subscription-charger/internal/logger"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	result  *charge.CycleResult
	err     error
	started chan struct{}
	release chan struct{}
}

func (r *fakeRunner) RunChargeCycle(ctx context.Context) (*charge.CycleResult, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.started != nil {
		close(r.started)
		<-r.release
	}
	return r.result, r.err
}

func TestTriggerManual_RecordsResult(t *testing.T) {
	runner := &fakeRunner{result: &charge.CycleResult{Processed: 3, Succeeded: 2, Failed: 1}}
	s := NewScheduler(runner, "@every 1h", 0, nil, logger.Discard())

	result, err := s.TriggerManual(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)

	status := s.Status(context.Background())
	assert.False(t, status.Running)
	assert.False(t, status.CycleRunning)
	require.NotNil(t, status.LastRun)
	assert.Same(t, runner.result, status.LastResult)
	assert.Empty(t, status.LastError)
}

func TestTriggerManual_RejectsOverlap(t *testing.T) {
	runner := &fakeRunner{
		result:  &charge.CycleResult{},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := NewScheduler(runner, "@every 1h", 0, nil, logger.Discard())

	done := make(chan error, 1)
	go func() {
		_, err := s.TriggerManual(context.Background())
		done <- err
	}()
	<-runner.started

	_, err := s.TriggerManual(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)
	assert.True(t, s.Status(context.Background()).CycleRunning)

	close(runner.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, runner.calls)
}

func TestTriggerManual_KeepsPartialResultOnError(t *testing.T) {
	runner := &fakeRunner{result: &charge.CycleResult{Processed: 1}, err: context.Canceled}
	s := NewScheduler(runner, "@every 1h", 0, nil, logger.Discard())

	result, err := s.TriggerManual(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Processed)

	status := s.Status(context.Background())
	assert.Equal(t, context.Canceled.Error(), status.LastError)
	assert.Equal(t, 1, status.LastResult.Processed)
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, "not a schedule", 0, nil, logger.Discard())
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}

func TestStartStop_ReportsNextRun(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, "@every 1h", 0, nil, logger.Discard())
	require.NoError(t, s.Start())

	status := s.Status(context.Background())
	assert.True(t, status.Running)
	require.NotNil(t, status.NextRun)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *status.NextRun, time.Minute)

	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestLastResult_SharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := cache.NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	runner := &fakeRunner{result: &charge.CycleResult{Processed: 4, Succeeded: 4}}
	writer := NewScheduler(runner, "@every 1h", 0, client, logger.Discard())
	_, err = writer.TriggerManual(context.Background())
	require.NoError(t, err)

	reader := NewScheduler(&fakeRunner{}, "@every 1h", 0, client, logger.Discard())
	result := reader.LastResult(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, 4, result.Succeeded)
}

func TestLastResult_NothingCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := cache.NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	s := NewScheduler(&fakeRunner{err: errors.New("unused")}, "@every 1h", 0, client, logger.Discard())
	assert.Nil(t, s.LastResult(context.Background()))
}
