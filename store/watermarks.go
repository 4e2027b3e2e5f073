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
)

// Watermark returns the highest sequence number already scanned in
// folder, or 0.
func (s *SQLiteStore) Watermark(ctx context.Context, folder string) (uint32, error) {
	var seq uint32
	err := s.db.GetContext(ctx, &seq, "SELECT seq FROM watermarks WHERE folder = ?", folder)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("reading watermark of %q: %w", folder, err)
	}
	return seq, nil
}

// SetWatermark raises the folder's watermark to n. A lower n is ignored.
func (s *SQLiteStore) SetWatermark(ctx context.Context, folder string, n uint32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (folder, seq, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (folder) DO UPDATE SET
			seq = MAX(seq, excluded.seq),
			updated_at = excluded.updated_at`,
		folder, n, dbTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("setting watermark of %q: %w", folder, err)
	}
	return nil
}

// ResetWatermark forgets the folder's watermark, for when the mailbox was
// expunged below it and sequence numbers were reused.
func (s *SQLiteStore) ResetWatermark(ctx context.Context, folder string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM watermarks WHERE folder = ?", folder); err != nil {
		return fmt.Errorf("resetting watermark of %q: %w", folder, err)
	}
	return nil
}
