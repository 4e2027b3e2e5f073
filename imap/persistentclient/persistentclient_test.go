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
	"testing"
	"time"

	goImap "github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"

	"github.com/vs49688/certwatch/imap"
	"github.com/vs49688/certwatch/internal"
)

func TestNewClient_FailsFast(t *testing.T) {
	_, address, _ := internal.BuildTestIMAPServer(t)

	tests := []struct {
		name string
		cfg  imap.ConnectionConfig
	}{
		{"unreachable", imap.ConnectionConfig{
			HostPort: "127.0.0.1:1",
			Auth:     imap.NewNormalAuthenticator("username", "password"),
		}},
		{"bad_password", imap.ConnectionConfig{
			HostPort: address,
			Auth:     imap.NewNormalAuthenticator("username", "wrong"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Factory{RequestTimeout: 10 * time.Second}

			start := time.Now()
			c, err := f.NewClient(&imap.ClientConfig{ConnectionConfig: tt.cfg})
			assert.Error(t, err)
			assert.Nil(t, c)
			assert.Less(t, time.Since(start), 5*time.Second)
		})
	}
}

func TestDisconnected(t *testing.T) {
	srv, address, _ := internal.BuildTestIMAPServer(t)

	f := Factory{RequestTimeout: 200 * time.Millisecond}
	c, err := f.NewClient(&imap.ClientConfig{
		ConnectionConfig: imap.ConnectionConfig{
			HostPort: address,
			Auth:     imap.NewNormalAuthenticator("username", "password"),
		},
	})
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	_, err = c.Select("INBOX", true)
	assert.NoError(t, err)

	assert.NoError(t, srv.Close())

	t.Run("request_times_out", func(t *testing.T) {
		assert.Eventually(t, func() bool {
			_, err := c.Select("INBOX", true)
			return errors.Is(err, imap.ErrNotConnected)
		}, 5*time.Second, 50*time.Millisecond)

		assert.Nil(t, c.Mailbox())
	})

	t.Run("list_closes_channel", func(t *testing.T) {
		ch := make(chan *goImap.MailboxInfo, 1)
		assert.ErrorIs(t, c.List("", "*", ch), imap.ErrNotConnected)

		_, open := <-ch
		assert.False(t, open)
	})

	t.Run("after_logout", func(t *testing.T) {
		assert.NoError(t, c.Logout())

		select {
		case <-c.LoggedOut():
		case <-time.After(5 * time.Second):
			t.Fatal("client did not shut down")
		}

		_, err := c.Search(goImap.NewSearchCriteria())
		assert.ErrorIs(t, err, errConnectionClosed)

		assert.NoError(t, c.Logout())
	})
}

func TestContextDone(t *testing.T) {
	_, address, _ := internal.BuildTestIMAPServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := Factory{RequestTimeout: 10 * time.Second}
	c, err := f.NewClient(&imap.ClientConfig{
		ConnectionConfig: imap.ConnectionConfig{
			HostPort: address,
			Auth:     imap.NewNormalAuthenticator("username", "password"),
		},
		Context: ctx,
	})
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	cancel()

	select {
	case <-c.LoggedOut():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not shut down")
	}

	start := time.Now()
	_, err = c.Select("INBOX", true)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, c.Logout())
}

func TestConnected(t *testing.T) {
	_, address, mbox := internal.BuildTestIMAPServer(t)
	internal.AddTestMessage(mbox, time.Now(), []byte("Subject: hello\r\n\r\nbody\r\n"))
	internal.AddTestMessage(mbox, time.Now(), []byte("Subject: world\r\n\r\nbody\r\n"))

	f := Factory{}
	c, err := f.NewClient(&imap.ClientConfig{
		ConnectionConfig: imap.ConnectionConfig{
			HostPort: address,
			Auth:     imap.NewNormalAuthenticator("username", "password"),
		},
	})
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	t.Cleanup(func() { assert.NoError(t, c.Logout()) })

	status, err := c.Select("INBOX", true)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, uint32(2), status.Messages)

	if mb := c.Mailbox(); assert.NotNil(t, mb) {
		assert.Equal(t, "INBOX", mb.Name)
	}

	seqs, err := c.Search(goImap.NewSearchCriteria())
	assert.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, seqs)

	seqset := new(goImap.SeqSet)
	seqset.AddRange(1, 2)

	ch := make(chan *goImap.Message, 2)
	assert.NoError(t, c.Fetch(seqset, []goImap.FetchItem{goImap.FetchEnvelope}, ch))

	var subjects []string
	for msg := range ch {
		subjects = append(subjects, msg.Envelope.Subject)
	}
	assert.Equal(t, []string{"hello", "world"}, subjects)
}
