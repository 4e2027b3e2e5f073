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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	"github.com/vs49688/certwatch/extract"
)

func normalizeFact(f Fact) Fact {
	f.Name = strings.Join(strings.Fields(f.Name), " ")
	f.Serial = extract.NormalizeSerial(f.Serial)
	f.Start = dbTime(f.Start)
	f.End = dbTime(f.End)
	return f
}

func getRecord(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*Record, error) {
	var r Record
	if err := sqlx.GetContext(ctx, q, &r, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// Upsert reconciles a fact into the store in a single transaction.
//
// A record with the same name and serial is always refreshed. Otherwise
// the name's record with the latest expiry is replaced only if the fact
// expires strictly later. A revoked record is never reused for another
// serial: a strictly newer fact gets a row of its own. With no record for
// the name, a new one is inserted.
func (s *SQLiteStore) Upsert(ctx context.Context, fact Fact) (UpsertResult, error) {
	var res UpsertResult

	if !fact.usable() {
		return res, ErrIncompleteFact
	}

	f := normalizeFact(fact)
	nameKey := NormalizeName(f.Name)
	now := dbTime(time.Now())

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := getRecord(ctx, tx,
			`SELECT `+recordColumns+` FROM certificates
			WHERE name_key = ? AND serial = ?
			ORDER BY valid_to DESC, id DESC LIMIT 1`,
			nameKey, f.Serial,
		)
		if err != nil {
			return fmt.Errorf("looking up %q/%q: %w", f.Name, f.Serial, err)
		}

		if existing == nil {
			existing, err = getRecord(ctx, tx,
				`SELECT `+recordColumns+` FROM certificates
				WHERE name_key = ?
				ORDER BY valid_to DESC, id DESC LIMIT 1`,
				nameKey,
			)
			if err != nil {
				return fmt.Errorf("looking up %q: %w", f.Name, err)
			}
		}

		insert := func() error {
			r, err := tx.ExecContext(ctx, `
				INSERT INTO certificates (
					name, name_key, serial, valid_from, valid_to, site,
					folder, sender, subject, message_id, message_date,
					created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				f.Name, nameKey, f.Serial, f.Start, f.End, f.Site,
				f.Folder, f.Sender, f.Subject, f.MessageID, nullTime(f.MessageDate),
				now, now,
			)
			if err != nil {
				return fmt.Errorf("inserting %q/%q: %w", f.Name, f.Serial, err)
			}

			if res.ID, err = r.LastInsertId(); err != nil {
				return err
			}
			res.Added = true
			return nil
		}

		if existing == nil {
			return insert()
		}

		sameSerial := existing.Serial == f.Serial
		isNewer := f.End.After(existing.ValidTo)

		if existing.Revoked && !sameSerial {
			if isNewer {
				return insert()
			}
			res.ID = existing.ID
			return nil
		}

		res.ID = existing.ID
		if !sameSerial && !isNewer {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE certificates SET
				name = ?, name_key = ?,
				has_archive = CASE WHEN serial = ? THEN has_archive ELSE 0 END,
				serial = ?, valid_from = ?, valid_to = ?,
				site = CASE WHEN ? = '' THEN site ELSE ? END,
				folder = ?, sender = ?, subject = ?, message_id = ?, message_date = ?,
				updated_at = ?
			WHERE id = ?`,
			f.Name, nameKey,
			f.Serial,
			f.Serial, f.Start, f.End,
			f.Site, f.Site,
			f.Folder, f.Sender, f.Subject, f.MessageID, nullTime(f.MessageDate),
			now,
			existing.ID,
		)
		if err != nil {
			return fmt.Errorf("updating record %v: %w", existing.ID, err)
		}

		res.Updated = true
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	s.log.WithFields(log.Fields{
		"name":    f.Name,
		"serial":  f.Serial,
		"id":      res.ID,
		"added":   res.Added,
		"updated": res.Updated,
	}).Info("store_upsert")
	return res, nil
}

// Revoke marks every not-yet-revoked record with serial as revoked and
// deleted. It reports false when nothing changed, either because no such
// record exists or because it was already revoked.
func (s *SQLiteStore) Revoke(ctx context.Context, serial, folder string, at time.Time) (bool, error) {
	serial = extract.NormalizeSerial(serial)
	if serial == "" {
		return false, nil
	}

	if at.IsZero() {
		at = time.Now()
	}

	r, err := s.db.ExecContext(ctx, `
		UPDATE certificates SET
			deleted = 1, revoked = 1, revoked_at = ?, revoke_folder = ?, updated_at = ?
		WHERE serial = ? AND revoked = 0`,
		dbTime(at), folder, dbTime(time.Now()), serial,
	)
	if err != nil {
		return false, fmt.Errorf("revoking %q: %w", serial, err)
	}

	n, err := r.RowsAffected()
	if err != nil {
		return false, err
	}

	s.log.WithFields(log.Fields{
		"serial":  serial,
		"folder":  folder,
		"applied": n > 0,
	}).Info("store_revoke")
	return n > 0, nil
}

// LoadAll lists records ordered by expiry. Deleted records are included
// only on request; an empty site matches every site.
func (s *SQLiteStore) LoadAll(ctx context.Context, includeDeleted bool, site string) ([]Record, error) {
	var conditions []string
	var args []interface{}

	if !includeDeleted {
		conditions = append(conditions, "deleted = 0")
	}

	if site != "" {
		conditions = append(conditions, "site = ?")
		args = append(args, site)
	}

	query := "SELECT " + recordColumns + " FROM certificates"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY valid_to ASC, id ASC"

	var records []Record
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	return records, nil
}

// LoadAddedAfter lists current records created at or after ts.
func (s *SQLiteStore) LoadAddedAfter(ctx context.Context, ts time.Time) ([]Record, error) {
	var records []Record
	err := s.db.SelectContext(ctx, &records,
		"SELECT "+recordColumns+" FROM certificates WHERE deleted = 0 AND created_at >= ? ORDER BY id ASC",
		dbTime(ts),
	)
	if err != nil {
		return nil, fmt.Errorf("querying records added after %v: %w", ts, err)
	}
	return records, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Record, error) {
	r, err := getRecord(ctx, s.db, "SELECT "+recordColumns+" FROM certificates WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("getting record %v: %w", id, err)
	}

	if r == nil {
		return nil, fmt.Errorf("record %v: %w", id, ErrNotFound)
	}
	return r, nil
}

// SetSite tags a record with the site whose recipients are told about it.
func (s *SQLiteStore) SetSite(ctx context.Context, id int64, site string) error {
	r, err := s.db.ExecContext(ctx,
		"UPDATE certificates SET site = ?, updated_at = ? WHERE id = ?",
		site, dbTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("setting site of record %v: %w", id, err)
	}

	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("record %v: %w", id, ErrNotFound)
	}
	return nil
}
