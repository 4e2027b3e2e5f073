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
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// SaveArchive stores a certificate archive and flags the record as having
// one, in one transaction. An earlier archive for the record is replaced.
func (s *SQLiteStore) SaveArchive(ctx context.Context, recordID int64, data []byte, filename string) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		r, err := tx.ExecContext(ctx, "UPDATE certificates SET has_archive = 1 WHERE id = ?", recordID)
		if err != nil {
			return fmt.Errorf("flagging archive on record %v: %w", recordID, err)
		}

		if n, _ := r.RowsAffected(); n == 0 {
			return fmt.Errorf("record %v: %w", recordID, ErrNotFound)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO archives (certificate_id, filename, data, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (certificate_id) DO UPDATE SET
				filename = excluded.filename,
				data = excluded.data,
				created_at = excluded.created_at`,
			recordID, filename, data, dbTime(time.Now()),
		)
		if err != nil {
			return fmt.Errorf("inserting archive for record %v: %w", recordID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithFields(log.Fields{
		"id":       recordID,
		"filename": filename,
		"size":     len(data),
	}).Info("store_archive_saved")
	return nil
}

func (s *SQLiteStore) HasArchive(ctx context.Context, recordID int64) (bool, error) {
	var has bool
	err := s.db.GetContext(ctx, &has, "SELECT has_archive FROM certificates WHERE id = ?", recordID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("record %v: %w", recordID, ErrNotFound)
	}

	if err != nil {
		return false, fmt.Errorf("checking archive of record %v: %w", recordID, err)
	}
	return has, nil
}

// Archive returns the stored archive bytes and file name of a record.
func (s *SQLiteStore) Archive(ctx context.Context, recordID int64) ([]byte, string, error) {
	var row struct {
		Filename string `db:"filename"`
		Data     []byte `db:"data"`
	}

	err := s.db.GetContext(ctx, &row, `
		SELECT a.filename, a.data FROM archives a
		JOIN certificates c ON c.id = a.certificate_id
		WHERE a.certificate_id = ? AND c.has_archive = 1`,
		recordID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("record %v: %w", recordID, ErrNoArchive)
	}

	if err != nil {
		return nil, "", fmt.Errorf("reading archive of record %v: %w", recordID, err)
	}
	return row.Data, row.Filename, nil
}
