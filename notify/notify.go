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

// Package notify composes batched notifications about certificate records
// and hands them to a Sender, at most once per calendar day for each
// reason and entity.
package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/vs49688/certwatch/store"
)

type Reason string

const (
	ReasonExpiring Reason = "expiring"
	ReasonNewUser  Reason = "newuser"
)

// Key identifies one suppression entry.
type Key struct {
	Reason Reason
	Entity string
}

func (k Key) String() string {
	return string(k.Reason) + ":" + k.Entity
}

func entityOf(r store.Record) string {
	return strconv.FormatInt(r.ID, 10)
}

// Sender delivers one composed message. It reports whether the message
// was accepted; there is no error to act on besides retrying later.
type Sender interface {
	Send(ctx context.Context, recipients []string, text string) bool
}

// SuppressionState remembers when each entity was last notified. Set only
// changes memory; Flush makes every Set since the last Flush durable.
type SuppressionState interface {
	Get(key Key) (time.Time, bool)
	Set(key Key, t time.Time)
	Flush(ctx context.Context) error
}

//go:generate mockgen -destination=mocks/mock_notify.go -package=mock_notify . Sender,SuppressionState

// RecordSource is what the coordinator reads records from.
type RecordSource interface {
	LoadAll(ctx context.Context, includeDeleted bool, site string) ([]store.Record, error)
	LoadAddedAfter(ctx context.Context, ts time.Time) ([]store.Record, error)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
