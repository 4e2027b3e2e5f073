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

package daemon

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vs49688/certwatch/control"
	"github.com/vs49688/certwatch/notify"
	"github.com/vs49688/certwatch/scheduler"
	"github.com/vs49688/certwatch/watcher"
)

// Store is everything the daemon's pipelines need from the record store.
type Store interface {
	watcher.NewCertStore
	watcher.RevocationStore
	notify.RecordSource
}

type Config struct {
	Dial       watcher.Dialer
	NewCert    watcher.NewCertConfig
	Revocation watcher.RevocationConfig
	Notify     notify.Config
	Schedule   scheduler.Config

	// ControlSocket is the path of the control socket. Empty disables it.
	ControlSocket string

	Store  Store
	State  notify.SuppressionState
	Sender notify.Sender
	Logger *log.Entry

	DoneChan chan<- error
	StopChan <-chan struct{}
}

type Daemon struct {
	newCert     *watcher.NewCertWatcher
	revocation  *watcher.RevocationWatcher
	coordinator *notify.Coordinator
	scheduler   *scheduler.Scheduler
	control     *control.Server
	log         *log.Entry
	now         func() time.Time

	// since is where the next new-user notification starts.
	mu    sync.Mutex
	since time.Time
}
