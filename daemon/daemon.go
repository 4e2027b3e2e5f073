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

// Package daemon runs the certificate pipelines on a schedule: both
// watchers, then the notification coordinator, with a control socket for
// out-of-band checks.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vs49688/certwatch/control"
	"github.com/vs49688/certwatch/notify"
	"github.com/vs49688/certwatch/scheduler"
	"github.com/vs49688/certwatch/watcher"
)

func NewDaemon(cfg *Config) (*Daemon, error) {
	if cfg.Dial == nil || cfg.Store == nil || cfg.State == nil {
		return nil, errors.New("a dialer, a store and suppression state are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	sender := cfg.Sender
	if sender == nil {
		sender = notify.LogSender{Logger: logger}
	}

	newCertConfig := cfg.NewCert
	if newCertConfig.Logger == nil {
		newCertConfig.Logger = logger
	}

	revocationConfig := cfg.Revocation
	if revocationConfig.Logger == nil {
		revocationConfig.Logger = logger
	}

	notifyConfig := cfg.Notify
	if notifyConfig.Logger == nil {
		notifyConfig.Logger = logger
	}

	d := &Daemon{
		newCert:     watcher.NewNewCertWatcher(newCertConfig, cfg.Dial, cfg.Store),
		revocation:  watcher.NewRevocationWatcher(revocationConfig, cfg.Dial, cfg.Store),
		coordinator: notify.NewCoordinator(notifyConfig, cfg.Store, cfg.State, sender),
		log:         logger,
		now:         time.Now,
	}
	d.since = d.now()

	scheduleConfig := cfg.Schedule
	if scheduleConfig.Logger == nil {
		scheduleConfig.Logger = logger
	}
	d.scheduler = scheduler.New(scheduleConfig, d.Check)

	if cfg.ControlSocket != "" {
		srv, err := control.Listen(cfg.ControlSocket, d.FastCheck, logger)
		if err != nil {
			return nil, err
		}
		d.control = srv
	}

	go func() { cfg.DoneChan <- d.tick(cfg.StopChan) }()

	return d, nil
}

// Close releases the control socket. Runs in progress are not waited for;
// close StopChan and wait on DoneChan for that.
func (d *Daemon) Close() {
	if d.control != nil {
		_ = d.control.Close()
	}
}

func (d *Daemon) tick(stop <-chan struct{}) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 2)
	running := 1
	go func() { errs <- d.scheduler.Run(ctx) }()

	if d.control != nil {
		running++
		go func() { errs <- d.control.Serve(ctx) }()
	}

	var result error
	select {
	case <-stop:
		d.log.Trace("exit_requested")
	case err := <-errs:
		running--
		result = err
		d.log.WithError(err).Error("daemon_component_exited")
	}

	cancel()
	for ; running > 0; running-- {
		if err := <-errs; err != nil && result == nil {
			result = err
		}
	}

	return result
}

// FastCheck runs a check now, or joins the one in progress, and reports
// how it went.
func (d *Daemon) FastCheck(ctx context.Context) error {
	o, err := d.scheduler.Trigger(ctx)
	if err != nil {
		return err
	}
	return o.Err
}

type pipelineResult struct {
	report *watcher.Report
	err    error
}

// Check is one scheduled pass: both watchers concurrently, then the
// notifications once both are done.
func (d *Daemon) Check(ctx context.Context, logger *log.Entry) error {
	var (
		wg         sync.WaitGroup
		revocation pipelineResult
		newCert    pipelineResult
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		revocation.report, revocation.err = d.revocation.Run(ctx, watcher.ModeIncremental)
	}()
	go func() {
		defer wg.Done()
		newCert.report, newCert.err = d.newCert.Run(ctx, watcher.ModeIncremental)
	}()
	wg.Wait()

	errs := []error{
		logPipeline(logger, "revocation", revocation),
		logPipeline(logger, "newcert", newCert),
	}

	if err := ctx.Err(); err != nil {
		logger.WithError(err).Warn("check_cancelled_before_notify")
		return errors.Join(append(errs, err)...)
	}

	errs = append(errs, d.notify(ctx, logger))
	return errors.Join(errs...)
}

func logPipeline(logger *log.Entry, name string, res pipelineResult) error {
	entry := logger.WithField("pipeline", name)
	if res.report != nil {
		entry = entry.WithFields(res.report.Fields())
	}

	if res.err != nil {
		entry.WithError(res.err).Error("pipeline_failed")
		return fmt.Errorf("%v: %w", name, res.err)
	}

	entry.Debug("pipeline_finished")
	return nil
}

func (d *Daemon) notify(ctx context.Context, logger *log.Entry) error {
	now := d.now()

	var errs []error

	expiring, err := d.coordinator.NotifyExpiring(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("notifying expiring certificates: %w", err))
	}
	logger.WithFields(expiring.Fields()).WithField("reason", notify.ReasonExpiring).Info("notify_finished")

	d.mu.Lock()
	since := d.since
	d.mu.Unlock()

	newUsers, err := d.coordinator.NotifyNewUsers(ctx, since, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("notifying new certificates: %w", err))
	}
	logger.WithFields(newUsers.Fields()).WithField("reason", notify.ReasonNewUser).Info("notify_finished")

	// Undelivered new-user batches are retried from the same point.
	if err == nil && newUsers.Failed == 0 {
		d.mu.Lock()
		d.since = now
		d.mu.Unlock()
	}

	return errors.Join(errs...)
}
