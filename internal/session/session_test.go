package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_BeginCancelsPrevious(t *testing.T) {
	var s Session

	first, doneFirst := s.Begin(context.Background())
	defer doneFirst()
	second, doneSecond := s.Begin(context.Background())
	defer doneSecond()

	assert.ErrorIs(t, first.Err(), context.Canceled)
	assert.NoError(t, second.Err())
	assert.True(t, s.Active())
}

func TestSession_CancelTripsCurrent(t *testing.T) {
	var s Session

	ctx, done := s.Begin(context.Background())
	defer done()
	s.Cancel()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, s.Active())

	fresh, doneFresh := s.Begin(context.Background())
	defer doneFresh()
	assert.NoError(t, fresh.Err(), "a new operation must get an untripped context")
}

func TestSession_StaleDoneKeepsNewerOperation(t *testing.T) {
	var s Session

	_, doneOld := s.Begin(context.Background())
	newer, doneNew := s.Begin(context.Background())
	defer doneNew()

	doneOld()
	assert.True(t, s.Active())
	assert.NoError(t, newer.Err())
}

func TestSession_CancelWithoutOperation(t *testing.T) {
	var s Session
	s.Cancel()
	assert.False(t, s.Active())
}

func TestSession_ConcurrentBegin(t *testing.T) {
	var s Session
	var wg sync.WaitGroup
	ctxs := make([]context.Context, 50)

	for i := range ctxs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctxs[i], _ = s.Begin(context.Background())
		}(i)
	}
	wg.Wait()

	live := 0
	for _, ctx := range ctxs {
		if ctx.Err() == nil {
			live++
		}
	}
	assert.Equal(t, 1, live)
	s.Cancel()
}
