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

// Package scheduler runs a check periodically, never more than one at a
// time, and lets callers trigger it out of band.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPeriod       = 10 * time.Minute
	DefaultInitialDelay = 30 * time.Second
	DefaultTimeout      = 5 * time.Minute
)

var ErrStopped = errors.New("scheduler stopped")

// Check is one invocation. The logger carries the run id.
type Check func(ctx context.Context, logger *log.Entry) error

type Config struct {
	Period       time.Duration
	InitialDelay time.Duration
	Timeout      time.Duration
	Logger       *log.Entry
}

// Outcome describes a finished run.
type Outcome struct {
	RunID    string
	Source   string
	Started  time.Time
	Finished time.Time
	Err      error
}

func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

type run struct {
	outcome Outcome
	done    chan struct{}
}

type Scheduler struct {
	cfg   Config
	check Check
	log   *log.Entry

	running atomic.Bool

	mu      sync.Mutex
	base    context.Context
	current *run
	last    *Outcome

	wg sync.WaitGroup
}

func New(cfg Config, check Check) *Scheduler {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}

	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	return &Scheduler{
		cfg:   cfg,
		check: check,
		log:   logger.WithField("component", "scheduler"),
		base:  context.Background(),
	}
}

// Run fires the check after the initial delay and then every period until
// ctx is done. Ticks that find a run in progress are dropped. On return no
// run is in progress.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	defer s.wg.Wait()

	s.log.WithFields(log.Fields{
		"period":        s.cfg.Period,
		"initial_delay": s.cfg.InitialDelay,
		"timeout":       s.cfg.Timeout,
	}).Info("scheduler_started")

	timer := time.NewTimer(s.cfg.InitialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		s.log.Info("scheduler_stopped")
		return nil
	case <-timer.C:
	}

	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	for {
		if _, started := s.start("timer"); !started {
			s.log.Debug("scheduler_tick_dropped")
		}

		select {
		case <-ctx.Done():
			s.log.Info("scheduler_stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Trigger starts a run unless one is active, then waits for whichever run
// is active and returns its outcome. The run itself is not bound to ctx.
func (s *Scheduler) Trigger(ctx context.Context) (Outcome, error) {
	r, started := s.start("manual")
	if r == nil {
		return Outcome{}, ErrStopped
	}

	if !started {
		s.log.WithField("run_id", r.outcome.RunID).Debug("scheduler_trigger_joined")
	}

	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Last returns the outcome of the most recent finished run.
func (s *Scheduler) Last() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return Outcome{}, false
	}
	return *s.last, true
}

// start begins a run if none is active. It returns the run that is now
// active and whether this call started it, or nil once stopped.
func (s *Scheduler) start(source string) (*run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.CompareAndSwap(false, true) {
		return s.current, false
	}

	if s.base.Err() != nil {
		s.running.Store(false)
		return nil, false
	}

	r := &run{
		outcome: Outcome{RunID: uuid.NewString(), Source: source, Started: time.Now()},
		done:    make(chan struct{}),
	}
	s.current = r

	ctx, cancel := context.WithTimeout(s.base, s.cfg.Timeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.execute(ctx, r)
	}()

	return r, true
}

func (s *Scheduler) execute(ctx context.Context, r *run) {
	logger := s.log.WithFields(log.Fields{
		"run_id": r.outcome.RunID,
		"source": r.outcome.Source,
	})

	defer func() {
		if p := recover(); p != nil {
			r.outcome.Err = fmt.Errorf("check panicked: %v", p)
		}

		r.outcome.Finished = time.Now()
		s.report(ctx, logger, r.outcome)

		s.mu.Lock()
		s.current = nil
		s.last = &r.outcome
		s.running.Store(false)
		s.mu.Unlock()

		close(r.done)
	}()

	logger.Info("scheduler_run_started")
	r.outcome.Err = s.check(ctx, logger)
}

func (s *Scheduler) report(ctx context.Context, logger *log.Entry, o Outcome) {
	logger = logger.WithField("duration", o.Duration())

	switch {
	case o.Err == nil:
		logger.Info("scheduler_run_finished")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		logger.WithError(o.Err).Error("scheduler_run_timeout")
	default:
		logger.WithError(o.Err).Error("scheduler_run_failed")
	}
}
