package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) AbandonStale(ctx context.Context, idleFor time.Duration, limit int) (int, error) {
	args := m.Called(idleFor, limit)
	return args.Int(0), args.Error(1)
}

func (m *mockSweeper) PurgeExpiredTokens(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepWorker_RunOnceDrainsBatches(t *testing.T) {
	sweeper := &mockSweeper{}
	sweeper.On("AbandonStale", 3*time.Hour, SweepBatchSize).Return(SweepBatchSize, nil).Once()
	sweeper.On("AbandonStale", 3*time.Hour, SweepBatchSize).Return(7, nil).Once()
	sweeper.On("PurgeExpiredTokens", 24*time.Hour).Return(int64(4), nil).Once()

	w := NewSweepWorker(sweeper, SweepConfig{AbandonAfter: 3 * time.Hour, TokenRetention: 24 * time.Hour}, discardLogger())
	w.RunOnce(context.Background())

	sweeper.AssertExpectations(t)
}

func TestSweepWorker_AbandonErrorStillPurges(t *testing.T) {
	sweeper := &mockSweeper{}
	sweeper.On("AbandonStale", time.Hour, SweepBatchSize).Return(0, errors.New("db down")).Once()
	sweeper.On("PurgeExpiredTokens", time.Hour).Return(int64(0), nil).Once()

	w := NewSweepWorker(sweeper, SweepConfig{AbandonAfter: time.Hour, TokenRetention: time.Hour}, discardLogger())
	w.RunOnce(context.Background())

	sweeper.AssertExpectations(t)
}

func TestSweepWorker_DisabledSteps(t *testing.T) {
	sweeper := &mockSweeper{}

	w := NewSweepWorker(sweeper, SweepConfig{}, discardLogger())
	w.RunOnce(context.Background())

	sweeper.AssertNotCalled(t, "AbandonStale", mock.Anything, mock.Anything)
	sweeper.AssertNotCalled(t, "PurgeExpiredTokens", mock.Anything)
	assert.Equal(t, DefaultSweepInterval, w.cfg.Interval)
}

func TestSweepWorker_StartStopsOnCancel(t *testing.T) {
	swept := make(chan struct{}, 1)
	sweeper := &mockSweeper{}
	sweeper.On("AbandonStale", time.Hour, SweepBatchSize).Return(0, nil).Run(func(mock.Arguments) {
		select {
		case swept <- struct{}{}:
		default:
		}
	})

	w := NewSweepWorker(sweeper, SweepConfig{Interval: 5 * time.Millisecond, AbandonAfter: time.Hour}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Start(ctx)
	}()

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("worker never swept")
	}

	cancel()
	wg.Wait()
}
