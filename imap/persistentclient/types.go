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

package persistentclient

import (
	"context"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	imap2 "github.com/vs49688/certwatch/imap"
)

type Config struct {
	imap2.ConnectionConfig
	MaxDelay time.Duration
	// RequestTimeout bounds how long a request waits for a connection
	// while the client is reconnecting.
	RequestTimeout time.Duration
	Updates        chan<- client.Update
}

type listRequest struct {
	r chan error

	ref  string
	name string
	ch   chan *imap.MailboxInfo
}

type selectResponse struct {
	status *imap.MailboxStatus
	err    error
}

type selectRequest struct {
	r chan selectResponse

	name     string
	readOnly bool
}

type searchResponse struct {
	seqs []uint32
	err  error
}

type searchRequest struct {
	r chan searchResponse

	criteria *imap.SearchCriteria
}

type fetchRequest struct {
	r chan error

	seqset *imap.SeqSet
	items  []imap.FetchItem
	ch     chan *imap.Message
}

type mailboxRequest struct {
	r chan *imap.MailboxStatus
}

type logoutRequest struct {
	r chan error
}

type clientState int32

const (
	ClientStateDisconnected clientState = 0
	ClientStateConnected    clientState = 1
)

func (s clientState) String() string {
	switch s {
	case ClientStateDisconnected:
		return "disconnected"
	case ClientStateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

type PersistentIMAPClient struct {
	c             imap2.Client
	ctx           context.Context
	cfg           Config
	ch            chan interface{}
	logoutChannel chan logoutRequest
	shutdown      int32
	loggedOut     chan struct{}
	logURL        string
}

type Factory struct {
	MaxDelay       time.Duration
	RequestTimeout time.Duration
}
