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

package store

import (
	"time"
)

// Kind says which pipeline processed a message.
type Kind string

const (
	KindNew     Kind = "NEW"
	KindRevoke  Kind = "REVOKE"
	KindGeneric Kind = "GENERIC"
)

// Fact is one certificate observation, together with where it came from.
type Fact struct {
	Name        string
	Serial      string
	Start       time.Time
	End         time.Time
	Site        string
	Folder      string
	MessageID   string
	MessageDate time.Time
	Sender      string
	Subject     string
}

func (f Fact) usable() bool {
	return f.Name != "" && f.Serial != "" && !f.Start.IsZero() && !f.End.IsZero()
}

// Record is the reconciled state of one holder's certificate.
type Record struct {
	ID           int64      `db:"id"`
	Name         string     `db:"name"`
	NameKey      string     `db:"name_key"`
	Serial       string     `db:"serial"`
	ValidFrom    time.Time  `db:"valid_from"`
	ValidTo      time.Time  `db:"valid_to"`
	Note         string     `db:"note"`
	Site         string     `db:"site"`
	Deleted      bool       `db:"deleted"`
	Revoked      bool       `db:"revoked"`
	RevokedAt    *time.Time `db:"revoked_at"`
	RevokeFolder string     `db:"revoke_folder"`
	Folder       string     `db:"folder"`
	Sender       string     `db:"sender"`
	Subject      string     `db:"subject"`
	MessageID    string     `db:"message_id"`
	MessageDate  *time.Time `db:"message_date"`
	HasArchive   bool       `db:"has_archive"`
	TokenID      *int64     `db:"token_id"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

const recordColumns = `id, name, name_key, serial, valid_from, valid_to, note, site,
	deleted, revoked, revoked_at, revoke_folder, folder, sender, subject,
	message_id, message_date, has_archive, token_id, created_at, updated_at`

// DaysLeft is the number of whole days until the certificate expires,
// never negative.
func (r Record) DaysLeft(now time.Time) int {
	d := r.ValidTo.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// Current reports whether the record is neither deleted nor revoked.
func (r Record) Current() bool {
	return !r.Deleted && !r.Revoked
}

type UpsertResult struct {
	Updated bool
	Added   bool
	ID      int64
}

// Suppression is the last time a notification was sent for an entity.
type Suppression struct {
	Reason string    `db:"reason"`
	Entity string    `db:"entity"`
	SentAt time.Time `db:"sent_at"`
}

// dbTime is how every timestamp is written: UTC, whole seconds.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := dbTime(t)
	return &v
}
