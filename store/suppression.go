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

	"github.com/jmoiron/sqlx"
)

// Suppressions loads every stored last-sent time.
func (s *SQLiteStore) Suppressions(ctx context.Context) ([]Suppression, error) {
	var out []Suppression
	if err := s.db.SelectContext(ctx, &out, "SELECT reason, entity, sent_at FROM suppressions"); err != nil {
		return nil, fmt.Errorf("loading suppressions: %w", err)
	}
	return out, nil
}

// PutSuppressions writes last-sent times as one unit.
func (s *SQLiteStore) PutSuppressions(ctx context.Context, items []Suppression) error {
	if len(items) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO suppressions (reason, entity, sent_at) VALUES (?, ?, ?)
			ON CONFLICT (reason, entity) DO UPDATE SET sent_at = excluded.sent_at`)
		if err != nil {
			return fmt.Errorf("preparing suppression upsert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, it := range items {
			if _, err := stmt.ExecContext(ctx, it.Reason, it.Entity, dbTime(it.SentAt)); err != nil {
				return fmt.Errorf("storing suppression %v/%v: %w", it.Reason, it.Entity, err)
			}
		}
		return nil
	})
}
