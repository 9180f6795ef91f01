package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRecomputer is a mock implementation of Recomputer
type MockRecomputer struct {
	mock.Mock
}

func (m *MockRecomputer) RecomputeStale(ctx context.Context, batchSize, maxConcurrent int) (int, error) {
	args := m.Called(ctx, batchSize, maxConcurrent)
	return args.Int(0), args.Error(1)
}

func TestRecomputeWorker_SweepsOnStartAndStops(t *testing.T) {
	called := make(chan struct{}, 1)
	recomputer := new(MockRecomputer)
	recomputer.On("RecomputeStale", mock.Anything, 20, 4).Return(3, nil).Run(func(mock.Arguments) {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	config := DefaultRecomputeWorkerConfig()
	config.Schedule = "@every 1h"
	worker := NewRecomputeWorker(recomputer, zap.NewNop(), config)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Start(ctx) }()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("worker did not sweep on start")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	recomputer.AssertNumberOfCalls(t, "RecomputeStale", 1)
}

func TestRecomputeWorker_InvalidSchedule(t *testing.T) {
	config := DefaultRecomputeWorkerConfig()
	config.Schedule = "every minute"
	worker := NewRecomputeWorker(new(MockRecomputer), zap.NewNop(), config)

	err := worker.Start(context.Background())
	assert.ErrorContains(t, err, "invalid recompute schedule")
}

func TestRecomputeWorker_SweepReportsFailures(t *testing.T) {
	recomputer := new(MockRecomputer)
	recomputer.On("RecomputeStale", mock.Anything, 5, 2).Return(1, errors.New("database unavailable"))

	worker := NewRecomputeWorker(recomputer, zap.NewNop(), RecomputeWorkerConfig{BatchSize: 5, MaxConcurrent: 2})
	assert.Equal(t, 1, worker.sweep(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, worker.sweep(cancelled))
	require.Len(t, recomputer.Calls, 1)
}
