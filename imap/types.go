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

package imap

import (
	"context"
	"crypto/tls"
	"errors"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
)

// Client is the subset of the go-imap client used to walk folders and
// read messages. Everything is read-only: nothing is stored, appended
// or expunged.
type Client interface {
	List(ref string, name string, ch chan *imap.MailboxInfo) error

	Select(name string, readOnly bool) (*imap.MailboxStatus, error)

	Search(criteria *imap.SearchCriteria) ([]uint32, error)

	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error

	Mailbox() *imap.MailboxStatus

	Logout() error

	LoggedOut() <-chan struct{}
}

//go:generate mockgen -destination=mocks/mock_authenticatable.go -package=mock_imap . Authenticatable

// Authenticatable is anything that can be logged into.
// *client.Client satisfies this.
type Authenticatable interface {
	Login(username string, password string) error
	Authenticate(auth sasl.Client) error
}

type Authenticator interface {
	Authenticate(c Authenticatable) error
}

type ConnectionConfig struct {
	HostPort  string
	Auth      Authenticator
	Mailbox   string
	TLS       bool
	TLSConfig *tls.Config
	Debug     bool
}

type ClientConfig struct {
	ConnectionConfig
	Updates chan<- client.Update

	// Context bounds the connection. Once it is done the connection is
	// torn down and pending commands fail. Nil means no bound.
	Context context.Context
}

// Ctx returns Context, or context.Background() if unset.
func (cfg *ClientConfig) Ctx() context.Context {
	if cfg.Context == nil {
		return context.Background()
	}
	return cfg.Context
}

type ClientFactory interface {
	NewClient(cfg *ClientConfig) (Client, error)
}

type Message = imap.Message
type SeqSet = imap.SeqSet
type MailboxInfo = imap.MailboxInfo
type MailboxStatus = imap.MailboxStatus
type FetchItem = imap.FetchItem
type SearchCriteria = imap.SearchCriteria
type BodyStructure = imap.BodyStructure

// ErrNotConnected is returned by transports that queue requests while
// reconnecting, once they give up waiting.
var ErrNotConnected = errors.New("not connected")
