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
	"fmt"
	"time"
)

func (s *SQLiteStore) IsProcessed(ctx context.Context, folder, messageID string, kind Kind) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM processed_messages WHERE folder = ? AND message_id = ? AND kind = ?",
		folder, messageID, string(kind),
	)
	if err != nil {
		return false, fmt.Errorf("checking ledger for %q/%q: %w", folder, messageID, err)
	}
	return n > 0, nil
}

// MarkProcessed records that a message was handled. Marking a message
// twice is not an error.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, folder, messageID string, kind Kind) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_messages (folder, message_id, kind, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (folder, message_id, kind) DO NOTHING`,
		folder, messageID, string(kind), dbTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("marking %q/%q processed: %w", folder, messageID, err)
	}
	return nil
}
