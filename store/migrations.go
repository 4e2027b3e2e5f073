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

type migration struct {
	version int
	sql     string
}

// migrations must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tokens (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	label      TEXT NOT NULL,
	serial     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS certificates (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	name_key      TEXT NOT NULL,
	serial        TEXT NOT NULL,
	valid_from    DATETIME NOT NULL,
	valid_to      DATETIME NOT NULL,
	note          TEXT NOT NULL DEFAULT '',
	site          TEXT NOT NULL DEFAULT '',
	deleted       INTEGER NOT NULL DEFAULT 0,
	revoked       INTEGER NOT NULL DEFAULT 0,
	revoked_at    DATETIME,
	revoke_folder TEXT NOT NULL DEFAULT '',
	folder        TEXT NOT NULL DEFAULT '',
	sender        TEXT NOT NULL DEFAULT '',
	subject       TEXT NOT NULL DEFAULT '',
	message_id    TEXT NOT NULL DEFAULT '',
	message_date  DATETIME,
	has_archive   INTEGER NOT NULL DEFAULT 0,
	token_id      INTEGER REFERENCES tokens(id) ON DELETE SET NULL,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	CHECK (revoked = 0 OR deleted = 1)
);

CREATE INDEX IF NOT EXISTS idx_certificates_name_key ON certificates(name_key, valid_to);
CREATE INDEX IF NOT EXISTS idx_certificates_serial ON certificates(serial);
CREATE INDEX IF NOT EXISTS idx_certificates_created_at ON certificates(created_at);

CREATE TABLE IF NOT EXISTS processed_messages (
	folder       TEXT NOT NULL,
	message_id   TEXT NOT NULL,
	kind         TEXT NOT NULL,
	processed_at DATETIME NOT NULL,
	PRIMARY KEY (folder, message_id, kind)
);

CREATE TABLE IF NOT EXISTS watermarks (
	folder     TEXT PRIMARY KEY,
	seq        INTEGER NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS archives (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	certificate_id INTEGER NOT NULL UNIQUE REFERENCES certificates(id) ON DELETE CASCADE,
	filename       TEXT NOT NULL,
	data           BLOB NOT NULL,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS suppressions (
	reason  TEXT NOT NULL,
	entity  TEXT NOT NULL,
	sent_at DATETIME NOT NULL,
	PRIMARY KEY (reason, entity)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
