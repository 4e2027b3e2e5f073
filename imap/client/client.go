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

package client

import (
	"context"
	"net"
	"os"

	"github.com/emersion/go-imap/client"
	"github.com/vs49688/certwatch/imap"
)

type Factory struct{}

func dial(ctx context.Context, cfg *imap.ClientConfig) (*client.Client, error) {
	d := &net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		d.Deadline = deadline
	}

	if cfg.TLS {
		return client.DialWithDialerTLS(d, cfg.HostPort, cfg.TLSConfig)
	}
	return client.DialWithDialer(d, cfg.HostPort)
}

func (f *Factory) NewClient(cfg *imap.ClientConfig) (imap.Client, error) {
	ctx := cfg.Ctx()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// A done context kills the connection, which fails whatever is in flight.
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	go func() {
		<-c.LoggedOut()
		stop()
	}()

	c.Updates = cfg.Updates

	wantCleanup := true
	defer func() {
		if wantCleanup {
			_ = c.Logout()
		}
	}()

	if cfg.Debug {
		c.SetDebug(os.Stderr)
	}

	if err := cfg.Auth.Authenticate(c); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	if cfg.Mailbox != "" {
		if _, err := c.Select(cfg.Mailbox, true); err != nil {
			return nil, err
		}
	}

	wantCleanup = false
	return c, nil
}
