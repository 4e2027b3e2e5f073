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
	"errors"
	"math/rand"
	"net/url"
	"sync/atomic"
	"time"

	goImap "github.com/emersion/go-imap"
	log "github.com/sirupsen/logrus"
	"github.com/vs49688/certwatch/imap"
	"github.com/vs49688/certwatch/imap/client"
)

var errConnectionClosed = errors.New("connection closed")

func (c *PersistentIMAPClient) isShutdown() bool {
	return atomic.LoadInt32(&c.shutdown) != 0
}

// submit hands a request to the connection goroutine. It gives up if the
// client is shut down, the context is done, or the client stays
// disconnected for longer than RequestTimeout.
func (c *PersistentIMAPClient) submit(req interface{}) error {
	select {
	case c.ch <- req:
		return nil
	case <-c.loggedOut:
		return errConnectionClosed
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-time.After(c.cfg.RequestTimeout):
		return imap.ErrNotConnected
	}
}

func (c *PersistentIMAPClient) List(ref string, name string, ch chan *goImap.MailboxInfo) error {
	shutdown := c.isShutdown()
	c.log().WithField("shutdown", shutdown).Trace("pimap_list_invoked")
	if shutdown {
		close(ch)
		return errConnectionClosed
	}

	r := make(chan error)
	if err := c.submit(listRequest{r: r, ref: ref, name: name, ch: ch}); err != nil {
		close(ch)
		return err
	}
	return <-r
}

func (c *PersistentIMAPClient) Select(name string, readOnly bool) (*goImap.MailboxStatus, error) {
	shutdown := c.isShutdown()
	c.log().WithField("shutdown", shutdown).Trace("pimap_select_invoked")
	if shutdown {
		return nil, errConnectionClosed
	}

	r := make(chan selectResponse)
	if err := c.submit(selectRequest{r: r, name: name, readOnly: readOnly}); err != nil {
		return nil, err
	}
	sr := <-r
	return sr.status, sr.err
}

func (c *PersistentIMAPClient) Search(criteria *goImap.SearchCriteria) ([]uint32, error) {
	shutdown := c.isShutdown()
	c.log().WithField("shutdown", shutdown).Trace("pimap_search_invoked")
	if shutdown {
		return nil, errConnectionClosed
	}

	r := make(chan searchResponse)
	if err := c.submit(searchRequest{r: r, criteria: criteria}); err != nil {
		return nil, err
	}
	sr := <-r
	return sr.seqs, sr.err
}

func (c *PersistentIMAPClient) Fetch(seqset *goImap.SeqSet, items []goImap.FetchItem, ch chan *goImap.Message) error {
	shutdown := c.isShutdown()
	c.log().WithField("shutdown", shutdown).Trace("pimap_fetch_invoked")
	if shutdown {
		close(ch)
		return errConnectionClosed
	}

	r := make(chan error)
	if err := c.submit(fetchRequest{r: r, seqset: seqset, items: items, ch: ch}); err != nil {
		close(ch)
		return err
	}
	return <-r
}

// Mailbox returns the currently selected mailbox, or nil if the
// connection is down. A reconnect always drops the selection.
func (c *PersistentIMAPClient) Mailbox() *goImap.MailboxStatus {
	shutdown := c.isShutdown()
	c.log().WithField("shutdown", shutdown).Trace("pimap_mailbox_invoked")
	if shutdown {
		return nil
	}

	r := make(chan *goImap.MailboxStatus)
	if err := c.submit(mailboxRequest{r: r}); err != nil {
		return nil
	}
	return <-r
}

func (c *PersistentIMAPClient) Logout() error {
	shutdown := c.isShutdown()
	c.log().WithField("shutdown", shutdown).Trace("pimap_logout_invoked")
	if shutdown {
		return nil
	}

	r := make(chan error)
	select {
	case c.logoutChannel <- logoutRequest{r: r}:
		return <-r
	case <-c.loggedOut:
		return nil
	}
}

func (c *PersistentIMAPClient) LoggedOut() <-chan struct{} {
	return c.loggedOut
}

func (c *PersistentIMAPClient) log() *log.Entry {
	return log.WithField("url", c.logURL)
}

func makeAndInitClient(ctx context.Context, cfg *Config) (imap.Client, error) {
	f := &client.Factory{}
	return f.NewClient(&imap.ClientConfig{
		ConnectionConfig: cfg.ConnectionConfig,
		Updates:          cfg.Updates,
		Context:          ctx,
	})
}

func (c *PersistentIMAPClient) handle(_req interface{}) {
	switch req := _req.(type) {
	case listRequest:
		c.log().Trace("pimap_list_request")
		req.r <- c.c.List(req.ref, req.name, req.ch)
	case selectRequest:
		c.log().Trace("pimap_select_request")
		s, err := c.c.Select(req.name, req.readOnly)
		req.r <- selectResponse{status: s, err: err}
	case searchRequest:
		c.log().Trace("pimap_search_request")
		seqs, err := c.c.Search(req.criteria)
		req.r <- searchResponse{seqs: seqs, err: err}
	case fetchRequest:
		c.log().Trace("pimap_fetch_request")
		req.r <- c.c.Fetch(req.seqset, req.items, req.ch)
	case mailboxRequest:
		c.log().Trace("pimap_mailbox_request")
		req.r <- c.c.Mailbox()
	}
}

func (c *PersistentIMAPClient) run() {
	nextDelay := time.Second
	state := ClientStateConnected
	for {
		c.log().WithField("state", state).Trace("pimap_loop_enter")
		if state == ClientStateDisconnected {
			select {
			case req := <-c.logoutChannel:
				c.log().Trace("pimap_logout_request")
				req.r <- nil
				goto done
			case <-c.ctx.Done():
				c.log().WithError(c.ctx.Err()).Trace("pimap_context_done")
				goto done
			case <-time.After(nextDelay):
				break
			}

			cli, err := makeAndInitClient(c.ctx, &c.cfg)
			if err != nil {
				if nextDelay == 0 {
					nextDelay = time.Second
				} else {
					nextDelay = 2 * (nextDelay - (nextDelay % (1000 * time.Millisecond)))
				}

				nextDelay += time.Duration(rand.Intn(1000)) * time.Millisecond
				if nextDelay > c.cfg.MaxDelay {
					nextDelay = c.cfg.MaxDelay
				}

				c.log().WithError(err).WithFields(log.Fields{
					"new_delay": nextDelay,
				}).Error("pimap_connection_failed")
				continue
			}

			c.c = cli
			state = ClientStateConnected
			nextDelay = time.Second
			c.log().Info("pimap_connected")
		}

		if state == ClientStateConnected {
			select {
			case <-c.c.LoggedOut():
				c.log().Warn("pimap_disconnected")
				c.c = nil
				state = ClientStateDisconnected
			case req := <-c.logoutChannel:
				c.log().Trace("pimap_logout_request")
				req.r <- c.c.Logout()
				goto done
			case <-c.ctx.Done():
				// The connection is torn down by its own context hook.
				c.log().WithError(c.ctx.Err()).Trace("pimap_context_done")
				goto done
			case req := <-c.ch:
				c.handle(req)
			}
		}
	}
done:
	c.c = nil
	atomic.StoreInt32(&c.shutdown, 1)
	close(c.loggedOut)
	count := drainRequests(c.ch)
	c.log().WithField("count", count).Trace("pimap_proc_exit")
}

// drainRequests fails anything that slipped in while shutting down. The
// request channel is never closed, as late senders select on loggedOut.
func drainRequests(ch chan interface{}) int {
	count := 0
	for {
		select {
		case _req := <-ch:
			count += 1
			switch req := _req.(type) {
			case listRequest:
				close(req.ch)
				req.r <- errConnectionClosed
			case selectRequest:
				req.r <- selectResponse{err: errConnectionClosed}
			case searchRequest:
				req.r <- searchResponse{err: errConnectionClosed}
			case fetchRequest:
				close(req.ch)
				req.r <- errConnectionClosed
			case mailboxRequest:
				req.r <- nil
			}
		default:
			return count
		}
	}
}

// NewClient makes the first connection before returning, so a bad
// address or bad credentials fail here. Only later drops are retried in
// the background.
func NewClient(ctx context.Context, cfg *Config) (*PersistentIMAPClient, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ourCfg := *cfg
	if ourCfg.MaxDelay == 0 {
		ourCfg.MaxDelay = 64 * time.Second
	} else if ourCfg.MaxDelay < time.Second {
		ourCfg.MaxDelay = time.Second
	}

	if ourCfg.RequestTimeout == 0 {
		ourCfg.RequestTimeout = 30 * time.Second
	}

	u := url.URL{
		Host: ourCfg.HostPort,
		Path: ourCfg.Mailbox,
	}

	if ourCfg.TLS {
		u.Scheme = "imaps"
	} else {
		u.Scheme = "imap"
	}

	first, err := makeAndInitClient(ctx, &ourCfg)
	if err != nil {
		return nil, err
	}

	c := &PersistentIMAPClient{
		c:             first,
		ctx:           ctx,
		cfg:           ourCfg,
		ch:            make(chan interface{}),
		logoutChannel: make(chan logoutRequest),
		shutdown:      0,
		loggedOut:     make(chan struct{}),
		logURL:        u.String(),
	}
	c.log().Info("pimap_connected")
	go c.run()
	return c, nil
}
