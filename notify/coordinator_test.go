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

package notify_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/vs49688/certwatch/notify"
	mock_notify "github.com/vs49688/certwatch/notify/mocks"
	"github.com/vs49688/certwatch/store"
)

type sent struct {
	to   []string
	text string
}

// recordingSender answers every Send with ok and remembers what it saw.
func recordingSender(ctrl *gomock.Controller, ok bool, log *[]sent) *mock_notify.MockSender {
	s := mock_notify.NewMockSender(ctrl)
	s.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, to []string, text string) bool {
		*log = append(*log, sent{to: to, text: text})
		return ok
	}).AnyTimes()
	return s
}

func addRecord(t *testing.T, st *store.SQLiteStore, name, serial, site string, end time.Time) int64 {
	t.Helper()

	res, err := st.Upsert(context.Background(), store.Fact{
		Name:   name,
		Serial: serial,
		Start:  end.AddDate(-1, 0, 0),
		End:    end,
		Site:   site,
		Folder: "INBOX/Certs",
	})
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return res.ID
}

var testSites = map[string][]string{
	"north": {"north@example.com"},
	"south": {"south@example.com", "boss@example.com"},
	"east":  {"boss@example.com"},
}

func inDays(now time.Time, n int) time.Time {
	return now.Add(time.Duration(n)*24*time.Hour + time.Hour)
}

func TestNotifyExpiring(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	st := store.NewTestStore(t)
	addRecord(t, st, "Иванов Иван Иванович", "AA01", "north", inDays(now, 5))
	addRecord(t, st, "Петров Пётр Петрович", "AA02", "north", inDays(now, 2))
	addRecord(t, st, "Сидоров Сидор", "AA03", "south", inDays(now, 10))
	addRecord(t, st, "Кузнецов Олег", "AA04", "nowhere", inDays(now, 3))
	addRecord(t, st, "Орлов Денис", "AA05", "north", inDays(now, 60))
	addRecord(t, st, "Смирнов Алексей", "AA06", "north", now.AddDate(0, 0, -2))

	revoked := addRecord(t, st, "Волков Игорь", "AA07", "north", inDays(now, 1))
	_, err := st.Revoke(ctx, "AA07", "INBOX/Revoked", now)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	state, err := notify.LoadStoreSuppression(ctx, st)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	var log []sent
	c := notify.NewCoordinator(notify.Config{
		Sites:     testSites,
		Threshold: 30,
		Location:  time.UTC,
	}, st, state, recordingSender(gomock.NewController(t), true, &log))

	t.Run("first", func(t *testing.T) {
		out, err := c.NotifyExpiring(ctx, now)
		if !assert.NoError(t, err) {
			t.FailNow()
		}

		assert.Equal(t, notify.Outcome{Batches: 2, Delivered: 3, Unrouted: 1}, out)
		if !assert.Len(t, log, 2) {
			t.FailNow()
		}

		assert.Equal(t, []string{"north@example.com"}, log[0].to)
		assert.Equal(t, []string{"south@example.com", "boss@example.com"}, log[1].to)

		north := log[0].text
		assert.Contains(t, north, "(north)")
		assert.NotContains(t, north, "Орлов")
		assert.NotContains(t, north, "Смирнов")
		assert.NotContains(t, north, "Волков")

		petrov, ivanov := strings.Index(north, "Петров"), strings.Index(north, "Иванов")
		assert.True(t, petrov >= 0 && ivanov > petrov, "ascending days left")
		assert.Contains(t, north, "осталось 2 дн.")
	})

	t.Run("same_day_suppressed", func(t *testing.T) {
		out, err := c.NotifyExpiring(ctx, now.Add(8*time.Hour))
		if !assert.NoError(t, err) {
			t.FailNow()
		}

		assert.Equal(t, notify.Outcome{Suppressed: 3, Unrouted: 1}, out)
		assert.Len(t, log, 2)
	})

	t.Run("state_survives_reload", func(t *testing.T) {
		reloaded, err := notify.LoadStoreSuppression(ctx, st)
		if !assert.NoError(t, err) {
			t.FailNow()
		}

		_, ok := reloaded.Get(notify.Key{Reason: notify.ReasonExpiring, Entity: "1"})
		assert.True(t, ok)

		_, ok = reloaded.Get(notify.Key{Reason: notify.ReasonExpiring, Entity: "5"})
		assert.False(t, ok)

		_, ok = reloaded.Get(notify.Key{Reason: notify.ReasonExpiring, Entity: strconv.FormatInt(revoked, 10)})
		assert.False(t, ok)
	})

	t.Run("next_day_eligible", func(t *testing.T) {
		out, err := c.NotifyExpiring(ctx, now.Add(24*time.Hour))
		if !assert.NoError(t, err) {
			t.FailNow()
		}

		assert.Equal(t, 2, out.Batches)
		assert.Equal(t, 3, out.Delivered)
		if assert.Len(t, log, 4) {
			assert.Contains(t, log[2].text, "осталось 1 дн.")
		}
	})
}

func TestNotifyExpiring_FailedSend(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	st := store.NewTestStore(t)
	addRecord(t, st, "Иванов Иван Иванович", "AA01", "north", inDays(now, 5))

	state, err := notify.LoadStoreSuppression(ctx, st)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	var log []sent
	c := notify.NewCoordinator(notify.Config{Sites: testSites, Location: time.UTC},
		st, state, recordingSender(gomock.NewController(t), false, &log))

	for i := 0; i < 2; i++ {
		out, err := c.NotifyExpiring(ctx, now)
		if !assert.NoError(t, err) {
			t.FailNow()
		}
		assert.Equal(t, notify.Outcome{Batches: 1, Failed: 1}, out)
	}

	assert.Len(t, log, 2)

	items, err := st.Suppressions(ctx)
	assert.NoError(t, err)
	assert.Empty(t, items)
}

func TestNotifyNewUsers(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	since := now.Add(-time.Minute)

	st := store.NewTestStore(t)
	addRecord(t, st, "Петров Пётр Петрович", "BB02", "south", inDays(now, 300))
	addRecord(t, st, "Иванов Иван Иванович", "BB01", "north", inDays(now, 365))

	t.Run("union_of_recipients", func(t *testing.T) {
		state, err := notify.LoadStoreSuppression(ctx, st)
		if !assert.NoError(t, err) {
			t.FailNow()
		}

		var log []sent
		c := notify.NewCoordinator(notify.Config{Sites: testSites}, st, state,
			recordingSender(gomock.NewController(t), true, &log))

		out, err := c.NotifyNewUsers(ctx, since, now)
		if !assert.NoError(t, err) {
			t.FailNow()
		}

		assert.Equal(t, notify.Outcome{Batches: 1, Delivered: 2}, out)
		if !assert.Len(t, log, 1) {
			t.FailNow()
		}

		assert.Equal(t, []string{"boss@example.com", "north@example.com", "south@example.com"}, log[0].to)
		assert.Contains(t, log[0].text, "Иванов Иван Иванович, № BB01 (north)")
		assert.Contains(t, log[0].text, "Петров Пётр Петрович, № BB02 (south)")

		out, err = c.NotifyNewUsers(ctx, since, now)
		assert.NoError(t, err)
		assert.Equal(t, notify.Outcome{Suppressed: 2}, out)
		assert.Len(t, log, 1)
	})

	t.Run("nothing_new", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		state := mock_notify.NewMockSuppressionState(ctrl)
		sender := mock_notify.NewMockSender(ctrl)

		c := notify.NewCoordinator(notify.Config{Sites: testSites}, st, state, sender)

		out, err := c.NotifyNewUsers(ctx, now.Add(time.Hour), now)
		assert.NoError(t, err)
		assert.Equal(t, notify.Outcome{}, out)
	})

	t.Run("no_recipients", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		state := mock_notify.NewMockSuppressionState(ctrl)
		sender := mock_notify.NewMockSender(ctrl)

		c := notify.NewCoordinator(notify.Config{}, st, state, sender)

		out, err := c.NotifyNewUsers(ctx, since, now)
		assert.NoError(t, err)
		assert.Equal(t, notify.Outcome{Unrouted: 2}, out)
	})

	t.Run("flush_failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		state := mock_notify.NewMockSuppressionState(ctrl)
		state.EXPECT().Get(gomock.Any()).Return(time.Time{}, false).Times(2)
		state.EXPECT().Set(gomock.Any(), now).Times(2)
		state.EXPECT().Flush(gomock.Any()).Return(errors.New("disk full"))

		sender := mock_notify.NewMockSender(ctrl)
		sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(true)

		c := notify.NewCoordinator(notify.Config{Sites: testSites}, st, state, sender)

		out, err := c.NotifyNewUsers(ctx, since, now)
		assert.EqualError(t, err, "disk full")
		assert.Equal(t, 2, out.Delivered)
	})
}
