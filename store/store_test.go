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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testFact(serial string, end time.Time) Fact {
	return Fact{
		Name:      "Иванов Иван Иванович",
		Serial:    serial,
		Start:     end.AddDate(-1, 0, 0),
		End:       end,
		Folder:    "INBOX/Certs",
		MessageID: "<" + serial + "@example.com>",
		Sender:    "ca@example.com",
		Subject:   "Сертификат №" + serial,
	}
}

func mustUpsert(t *testing.T, s *SQLiteStore, f Fact) UpsertResult {
	t.Helper()

	res, err := s.Upsert(context.Background(), f)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return res
}

func mustGet(t *testing.T, s *SQLiteStore, id int64) *Record {
	t.Helper()

	r, err := s.Get(context.Background(), id)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return r
}

func TestUpsert(t *testing.T) {
	t.Run("insert_then_refresh", func(t *testing.T) {
		s := NewTestStore(t)
		f := testFact("AB12", day(2026, 1, 1))

		res := mustUpsert(t, s, f)
		assert.True(t, res.Added)
		assert.False(t, res.Updated)

		again := mustUpsert(t, s, f)
		assert.False(t, again.Added)
		assert.True(t, again.Updated)
		assert.Equal(t, res.ID, again.ID)

		all, err := s.LoadAll(context.Background(), true, "")
		assert.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("same_serial_last_wins", func(t *testing.T) {
		f1 := testFact("AB12", day(2026, 1, 1))
		f2 := testFact("AB12", day(2025, 6, 1))

		for _, order := range [][]Fact{{f1, f2}, {f2, f1}} {
			s := NewTestStore(t)
			mustUpsert(t, s, order[0])
			res := mustUpsert(t, s, order[1])

			assert.True(t, res.Updated)
			r := mustGet(t, s, res.ID)
			assert.True(t, r.ValidTo.Equal(order[1].End))
			assert.True(t, r.ValidFrom.Equal(order[1].Start))
		}
	})

	t.Run("older_different_serial_rejected", func(t *testing.T) {
		s := NewTestStore(t)
		first := mustUpsert(t, s, testFact("AB12", day(2026, 1, 1)))

		for _, end := range []time.Time{day(2025, 1, 1), day(2026, 1, 1)} {
			res := mustUpsert(t, s, testFact("CD34", end))
			assert.False(t, res.Added)
			assert.False(t, res.Updated)
			assert.Equal(t, first.ID, res.ID)
		}

		r := mustGet(t, s, first.ID)
		assert.Equal(t, "AB12", r.Serial)
		assert.True(t, r.ValidTo.Equal(day(2026, 1, 1)))
	})

	t.Run("newer_different_serial_replaces", func(t *testing.T) {
		s := NewTestStore(t)
		first := mustUpsert(t, s, testFact("AB12", day(2026, 1, 1)))

		res := mustUpsert(t, s, testFact("CD34", day(2027, 1, 1)))
		assert.True(t, res.Updated)
		assert.Equal(t, first.ID, res.ID)

		r := mustGet(t, s, first.ID)
		assert.Equal(t, "CD34", r.Serial)
		assert.Equal(t, "<CD34@example.com>", r.MessageID)
	})

	t.Run("name_normalization", func(t *testing.T) {
		s := NewTestStore(t)
		first := mustUpsert(t, s, testFact("AB12", day(2026, 1, 1)))

		f := testFact("ab 12", day(2026, 1, 1))
		// Latin A and O, doubled spaces, upper case.
		f.Name = "  ИВAНOВ   ИВАН  ИВАНОВИЧ "
		res := mustUpsert(t, s, f)
		assert.Equal(t, first.ID, res.ID)
		assert.True(t, res.Updated)
	})

	t.Run("revoked_then_older_serial_unchanged", func(t *testing.T) {
		s := NewTestStore(t)
		ctx := context.Background()

		first := mustUpsert(t, s, testFact("0011", day(2025, 1, 1)))
		renewed := mustUpsert(t, s, testFact("AB12", day(2026, 1, 1)))
		assert.Equal(t, first.ID, renewed.ID)

		applied, err := s.Revoke(ctx, "AB12", "INBOX/Revoked", time.Time{})
		assert.NoError(t, err)
		assert.True(t, applied)

		res := mustUpsert(t, s, testFact("0011", day(2025, 1, 1)))
		assert.False(t, res.Added)
		assert.False(t, res.Updated)
		assert.Equal(t, first.ID, res.ID)

		current, err := s.LoadAll(ctx, false, "")
		assert.NoError(t, err)
		assert.Empty(t, current)

		r := mustGet(t, s, first.ID)
		assert.Equal(t, "AB12", r.Serial)
		assert.True(t, r.Revoked)
	})

	t.Run("revoked_then_newer_serial_added", func(t *testing.T) {
		s := NewTestStore(t)
		ctx := context.Background()
		first := mustUpsert(t, s, testFact("AB12", day(2026, 1, 1)))

		_, err := s.Revoke(ctx, "AB12", "INBOX/Revoked", time.Time{})
		assert.NoError(t, err)

		res := mustUpsert(t, s, testFact("CD34", day(2027, 1, 1)))
		assert.True(t, res.Added)
		assert.NotEqual(t, first.ID, res.ID)

		again := mustUpsert(t, s, testFact("CD34", day(2027, 1, 1)))
		assert.True(t, again.Updated)
		assert.Equal(t, res.ID, again.ID)

		r := mustGet(t, s, first.ID)
		assert.Equal(t, "AB12", r.Serial)
		assert.True(t, r.Revoked)
	})

	t.Run("revoked_same_serial_refreshed", func(t *testing.T) {
		s := NewTestStore(t)
		ctx := context.Background()
		first := mustUpsert(t, s, testFact("AB12", day(2026, 1, 1)))

		_, err := s.Revoke(ctx, "AB12", "INBOX/Revoked", time.Time{})
		assert.NoError(t, err)

		res := mustUpsert(t, s, testFact("AB12", day(2026, 1, 1)))
		assert.False(t, res.Added)
		assert.Equal(t, first.ID, res.ID)
		assert.True(t, mustGet(t, s, first.ID).Revoked)
	})

	t.Run("incomplete", func(t *testing.T) {
		s := NewTestStore(t)
		f := testFact("AB12", day(2026, 1, 1))
		f.Name = ""

		_, err := s.Upsert(context.Background(), f)
		assert.ErrorIs(t, err, ErrIncompleteFact)
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	s := NewTestStore(t)
	res := mustUpsert(t, s, testFact("AB12", day(2026, 1, 1)))

	at := day(2025, 3, 1)
	applied, err := s.Revoke(ctx, " ab12 ", "INBOX/Revoked", at)
	assert.NoError(t, err)
	assert.True(t, applied)

	r := mustGet(t, s, res.ID)
	assert.True(t, r.Deleted)
	assert.True(t, r.Revoked)
	assert.Equal(t, "INBOX/Revoked", r.RevokeFolder)
	if assert.NotNil(t, r.RevokedAt) {
		assert.True(t, r.RevokedAt.Equal(at))
	}

	applied, err = s.Revoke(ctx, "AB12", "INBOX/Other", day(2025, 4, 1))
	assert.NoError(t, err)
	assert.False(t, applied)

	r = mustGet(t, s, res.ID)
	assert.True(t, r.RevokedAt.Equal(at))
	assert.Equal(t, "INBOX/Revoked", r.RevokeFolder)

	applied, err = s.Revoke(ctx, "FFFF", "INBOX/Revoked", at)
	assert.NoError(t, err)
	assert.False(t, applied)

	current, err := s.LoadAll(ctx, false, "")
	assert.NoError(t, err)
	assert.Empty(t, current)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	s := NewTestStore(t)

	before := time.Now().Add(-time.Second)

	a := testFact("AB12", day(2026, 1, 1))
	a.Site = "north"
	b := testFact("CD34", day(2025, 1, 1))
	b.Name = "Петров Пётр"
	c := testFact("EF56", day(2027, 1, 1))
	c.Name = "Сидоров Сидор"

	ra := mustUpsert(t, s, a)
	mustUpsert(t, s, b)
	mustUpsert(t, s, c)

	_, err := s.Revoke(ctx, "EF56", "INBOX", time.Time{})
	assert.NoError(t, err)

	t.Run("current", func(t *testing.T) {
		all, err := s.LoadAll(ctx, false, "")
		assert.NoError(t, err)
		if assert.Len(t, all, 2) {
			assert.Equal(t, "CD34", all[0].Serial)
			assert.Equal(t, "AB12", all[1].Serial)
		}
	})

	t.Run("deleted", func(t *testing.T) {
		all, err := s.LoadAll(ctx, true, "")
		assert.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("site", func(t *testing.T) {
		all, err := s.LoadAll(ctx, false, "north")
		assert.NoError(t, err)
		if assert.Len(t, all, 1) {
			assert.Equal(t, ra.ID, all[0].ID)
		}
	})

	t.Run("added_after", func(t *testing.T) {
		added, err := s.LoadAddedAfter(ctx, before)
		assert.NoError(t, err)
		assert.Len(t, added, 2)

		added, err = s.LoadAddedAfter(ctx, time.Now().Add(time.Hour))
		assert.NoError(t, err)
		assert.Empty(t, added)
	})

	t.Run("get_missing", func(t *testing.T) {
		_, err := s.Get(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set_site", func(t *testing.T) {
		assert.NoError(t, s.SetSite(ctx, ra.ID, "south"))
		assert.Equal(t, "south", mustGet(t, s, ra.ID).Site)
		assert.ErrorIs(t, s.SetSite(ctx, 9999, "south"), ErrNotFound)
	})
}

func TestDaysLeft(t *testing.T) {
	now := time.Now()

	assert.Equal(t, 5, Record{ValidTo: now.Add(5 * 24 * time.Hour)}.DaysLeft(now))
	assert.Equal(t, 4, Record{ValidTo: now.Add(5*24*time.Hour - time.Minute)}.DaysLeft(now))
	assert.Equal(t, 0, Record{ValidTo: now.Add(-48 * time.Hour)}.DaysLeft(now))
	assert.Equal(t, 0, Record{ValidTo: now}.DaysLeft(now))
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	s := NewTestStore(t)

	ok, err := s.IsProcessed(ctx, "INBOX", "<1@x>", KindNew)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.MarkProcessed(ctx, "INBOX", "<1@x>", KindNew))
	assert.NoError(t, s.MarkProcessed(ctx, "INBOX", "<1@x>", KindNew))

	ok, err = s.IsProcessed(ctx, "INBOX", "<1@x>", KindNew)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsProcessed(ctx, "INBOX", "<1@x>", KindRevoke)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.IsProcessed(ctx, "INBOX/Sub", "<1@x>", KindNew)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestWatermark(t *testing.T) {
	ctx := context.Background()
	s := NewTestStore(t)

	n, err := s.Watermark(ctx, "Revoked")
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), n)

	assert.NoError(t, s.SetWatermark(ctx, "Revoked", 10))
	assert.NoError(t, s.SetWatermark(ctx, "Revoked", 4))

	n, err = s.Watermark(ctx, "Revoked")
	assert.NoError(t, err)
	assert.Equal(t, uint32(10), n)

	assert.NoError(t, s.ResetWatermark(ctx, "Revoked"))
	n, err = s.Watermark(ctx, "Revoked")
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), n)
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	s := NewTestStore(t)
	res := mustUpsert(t, s, testFact("AB12", day(2026, 1, 1)))

	has, err := s.HasArchive(ctx, res.ID)
	assert.NoError(t, err)
	assert.False(t, has)

	_, _, err = s.Archive(ctx, res.ID)
	assert.ErrorIs(t, err, ErrNoArchive)

	assert.NoError(t, s.SaveArchive(ctx, res.ID, []byte("PK\x03\x04old"), "old.zip"))
	assert.NoError(t, s.SaveArchive(ctx, res.ID, []byte("PK\x03\x04new"), "cert.zip"))

	has, err = s.HasArchive(ctx, res.ID)
	assert.NoError(t, err)
	assert.True(t, has)

	data, name, err := s.Archive(ctx, res.ID)
	assert.NoError(t, err)
	assert.Equal(t, []byte("PK\x03\x04new"), data)
	assert.Equal(t, "cert.zip", name)

	t.Run("missing_record_rolls_back", func(t *testing.T) {
		err := s.SaveArchive(ctx, 9999, []byte("x"), "x.zip")
		assert.ErrorIs(t, err, ErrNotFound)

		var n int
		assert.NoError(t, s.db.Get(&n, "SELECT COUNT(*) FROM archives"))
		assert.Equal(t, 1, n)
	})

	t.Run("new_serial_clears_flag", func(t *testing.T) {
		up := mustUpsert(t, s, testFact("CD34", day(2027, 1, 1)))
		assert.True(t, up.Updated)

		has, err := s.HasArchive(ctx, res.ID)
		assert.NoError(t, err)
		assert.False(t, has)
	})
}

func TestSuppressions(t *testing.T) {
	ctx := context.Background()
	s := NewTestStore(t)

	sent := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	assert.NoError(t, s.PutSuppressions(ctx, []Suppression{
		{Reason: "expiring", Entity: "1", SentAt: sent},
		{Reason: "newuser", Entity: "1", SentAt: sent},
	}))
	assert.NoError(t, s.PutSuppressions(ctx, []Suppression{
		{Reason: "expiring", Entity: "1", SentAt: sent.AddDate(0, 0, 1)},
	}))

	items, err := s.Suppressions(ctx)
	assert.NoError(t, err)
	if assert.Len(t, items, 2) {
		got := map[string]time.Time{}
		for _, it := range items {
			got[it.Reason+"/"+it.Entity] = it.SentAt
		}
		assert.True(t, got["expiring/1"].Equal(sent.AddDate(0, 0, 1)))
		assert.True(t, got["newuser/1"].Equal(sent))
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "иванов иван иванович", NormalizeName("  Иванов\tИван   Иванович "))
	assert.Equal(t, "федоров петр", NormalizeName("Фёдоров Петр"))
	// Latin A, o, O and e.
	assert.Equal(t, NormalizeName("Аносов Олег"), NormalizeName("Aнoсов Oлeг"))
}
