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

package config

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vs49688/certwatch/daemon"
	"github.com/vs49688/certwatch/notify"
	"github.com/vs49688/certwatch/scheduler"
	"github.com/vs49688/certwatch/store"
	"github.com/vs49688/certwatch/watcher"
)

func (cfg *ScanConfig) OpenStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.DatabasePath)
}

func (cfg *ScanConfig) Dialer(logger *log.Entry) (watcher.Dialer, error) {
	connConfig, factory, err := cfg.IMAP.Resolve()
	if err != nil {
		return nil, err
	}
	return watcher.NewDialer(connConfig, factory, logger), nil
}

func (cfg *ScanConfig) NewCertConfig(settings *Settings, logger *log.Entry) (watcher.NewCertConfig, error) {
	extractor, err := cfg.Extractor()
	if err != nil {
		return watcher.NewCertConfig{}, err
	}

	sites, err := settings.FolderSites()
	if err != nil {
		return watcher.NewCertConfig{}, err
	}

	return watcher.NewCertConfig{
		Folder:    cfg.NewCertFolder,
		Window:    cfg.Window,
		Extractor: extractor,
		Sites:     sites,
		Logger:    logger,
	}, nil
}

func (cfg *RunConfig) Sender(logger *log.Entry) notify.Sender {
	if cfg.NotifySender == SenderAMQP {
		return notify.NewAMQPSender(notify.AMQPConfig{URL: cfg.AMQP.URL, Queue: cfg.AMQP.Queue}, logger)
	}
	return notify.LogSender{Logger: logger}
}

// SuppressionState loads the suppression state from the configured
// backend. The returned function releases it.
func (cfg *RunConfig) SuppressionState(ctx context.Context, st *store.SQLiteStore) (notify.SuppressionState, func(), error) {
	switch cfg.Suppression {
	case SuppressionRedis:
		client, err := cfg.Redis.NewRedisClient(ctx)
		if err != nil {
			return nil, nil, err
		}

		state, err := notify.LoadRedisSuppression(ctx, client, cfg.Redis.Key)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return state, func() { _ = client.Close() }, nil

	case SuppressionStore, "":
		state, err := notify.LoadStoreSuppression(ctx, st)
		if err != nil {
			return nil, nil, err
		}
		return state, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown suppression backend: %v", cfg.Suppression)
	}
}

// BuildDaemonConfig fills everything except the channels.
func (cfg *RunConfig) BuildDaemonConfig(ctx context.Context, daemonConfig *daemon.Config, settings *Settings, st *store.SQLiteStore, logger *log.Entry) (func(), error) {
	if err := cfg.Merge(settings); err != nil {
		return nil, err
	}

	dial, err := cfg.Dialer(logger)
	if err != nil {
		return nil, err
	}

	newCert, err := cfg.NewCertConfig(settings, logger)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	state, release, err := cfg.SuppressionState(ctx, st)
	if err != nil {
		return nil, err
	}

	daemonConfig.Dial = dial
	daemonConfig.NewCert = newCert
	daemonConfig.Revocation = watcher.RevocationConfig{Folder: cfg.RevokeFolder, Logger: logger}
	daemonConfig.Notify = notify.Config{
		Sites:     settings.Recipients(),
		Threshold: cfg.NotifyThreshold,
		Location:  loc,
		Logger:    logger,
	}
	daemonConfig.Schedule = scheduler.Config{
		Period:       cfg.Period,
		InitialDelay: cfg.InitialDelay,
		Timeout:      cfg.Timeout,
		Logger:       logger,
	}
	daemonConfig.ControlSocket = cfg.ControlSocket
	daemonConfig.Store = st
	daemonConfig.State = state
	daemonConfig.Sender = cfg.Sender(logger)
	daemonConfig.Logger = logger

	return release, nil
}
