/*
 * CertWatch - Copyright (C) 2022 Zane van Iperen.
 *    Contact: zane@zanevaniperen.com
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// blockingCheck counts calls and holds each one until released.
type blockingCheck struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func newBlockingCheck() *blockingCheck {
	return &blockingCheck{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingCheck) check(ctx context.Context, _ *log.Entry) error {
	b.calls.Add(1)
	b.entered <- struct{}{}

	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestTrigger_SingleFlight(t *testing.T) {
	b := newBlockingCheck()
	s := New(Config{}, b.check)

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		o, err := s.Trigger(context.Background())
		assert.NoError(t, err)
		outcomes[0] = o
	}()

	<-b.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		o, err := s.Trigger(context.Background())
		assert.NoError(t, err)
		outcomes[1] = o
	}()

	time.Sleep(20 * time.Millisecond)
	close(b.release)
	wg.Wait()

	assert.Equal(t, int32(1), b.calls.Load())
	assert.NotEmpty(t, outcomes[0].RunID)
	assert.Equal(t, outcomes[0].RunID, outcomes[1].RunID)
	assert.Equal(t, "manual", outcomes[0].Source)
	assert.NoError(t, outcomes[0].Err)

	last, ok := s.Last()
	assert.True(t, ok)
	assert.Equal(t, outcomes[0].RunID, last.RunID)

	t.Run("next_trigger_starts_new_run", func(t *testing.T) {
		o, err := s.Trigger(context.Background())
		assert.NoError(t, err)
		assert.NotEqual(t, outcomes[0].RunID, o.RunID)
		assert.Equal(t, int32(2), b.calls.Load())
	})
}

func TestTrigger_Errors(t *testing.T) {
	t.Run("check_error", func(t *testing.T) {
		s := New(Config{}, func(context.Context, *log.Entry) error {
			return errors.New("imap down")
		})

		o, err := s.Trigger(context.Background())
		assert.NoError(t, err)
		assert.EqualError(t, o.Err, "imap down")
	})

	t.Run("timeout", func(t *testing.T) {
		b := newBlockingCheck()
		s := New(Config{Timeout: 20 * time.Millisecond}, b.check)

		o, err := s.Trigger(context.Background())
		assert.NoError(t, err)
		assert.True(t, errors.Is(o.Err, context.DeadlineExceeded))
	})

	t.Run("panic", func(t *testing.T) {
		calls := 0
		s := New(Config{}, func(context.Context, *log.Entry) error {
			calls++
			if calls == 1 {
				panic("boom")
			}
			return nil
		})

		o, err := s.Trigger(context.Background())
		assert.NoError(t, err)
		assert.EqualError(t, o.Err, "check panicked: boom")

		o, err = s.Trigger(context.Background())
		assert.NoError(t, err)
		assert.NoError(t, o.Err)
	})

	t.Run("caller_gives_up", func(t *testing.T) {
		b := newBlockingCheck()
		s := New(Config{}, b.check)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := s.Trigger(ctx)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))

		// The run carries on regardless.
		close(b.release)
		o, err := s.Trigger(context.Background())
		assert.NoError(t, err)
		assert.NoError(t, o.Err)
	})
}

func TestRun(t *testing.T) {
	t.Run("ticks", func(t *testing.T) {
		var calls atomic.Int32
		s := New(Config{Period: 10 * time.Millisecond, InitialDelay: time.Millisecond},
			func(context.Context, *log.Entry) error {
				calls.Add(1)
				return nil
			})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

		cancel()
		assert.NoError(t, <-done)

		o, ok := s.Last()
		assert.True(t, ok)
		assert.Equal(t, "timer", o.Source)
	})

	t.Run("overlapping_ticks_dropped", func(t *testing.T) {
		b := newBlockingCheck()
		s := New(Config{Period: 5 * time.Millisecond, InitialDelay: time.Millisecond}, b.check)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		<-b.entered
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(1), b.calls.Load())

		// Stopping cancels the active run and waits for it.
		cancel()
		assert.NoError(t, <-done)

		o, ok := s.Last()
		assert.True(t, ok)
		assert.True(t, errors.Is(o.Err, context.Canceled))
	})

	t.Run("trigger_after_stop", func(t *testing.T) {
		s := New(Config{InitialDelay: time.Hour}, func(context.Context, *log.Entry) error { return nil })

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, s.Run(ctx))

		_, err := s.Trigger(context.Background())
		assert.Equal(t, ErrStopped, err)
	})
}
