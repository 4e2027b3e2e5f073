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

package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vs49688/certwatch/store"
)

// memoryState is the in-memory half shared by the durable states.
type memoryState struct {
	mu    sync.Mutex
	last  map[Key]time.Time
	dirty map[Key]struct{}
}

func newMemoryState() *memoryState {
	return &memoryState{
		last:  map[Key]time.Time{},
		dirty: map[Key]struct{}{},
	}
}

func (m *memoryState) Get(key Key) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.last[key]
	return t, ok
}

func (m *memoryState) Set(key Key, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.last[key] = t
	m.dirty[key] = struct{}{}
}

// pending returns the entries changed since the last successful flush.
func (m *memoryState) pending() map[Key]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Key]time.Time, len(m.dirty))
	for k := range m.dirty {
		out[k] = m.last[k]
	}
	return out
}

// flushed clears the dirty marks of entries not changed again since.
func (m *memoryState) flushed(written map[Key]time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, t := range written {
		if m.last[k].Equal(t) {
			delete(m.dirty, k)
		}
	}
}

type SuppressionStore interface {
	Suppressions(ctx context.Context) ([]store.Suppression, error)
	PutSuppressions(ctx context.Context, items []store.Suppression) error
}

// StoreSuppression keeps suppression state in the record store's
// suppressions table.
type StoreSuppression struct {
	*memoryState
	st SuppressionStore
}

// LoadStoreSuppression reads the whole table once.
func LoadStoreSuppression(ctx context.Context, st SuppressionStore) (*StoreSuppression, error) {
	items, err := st.Suppressions(ctx)
	if err != nil {
		return nil, err
	}

	s := &StoreSuppression{memoryState: newMemoryState(), st: st}
	for _, it := range items {
		s.last[Key{Reason: Reason(it.Reason), Entity: it.Entity}] = it.SentAt
	}
	return s, nil
}

func (s *StoreSuppression) Flush(ctx context.Context) error {
	pending := s.pending()
	if len(pending) == 0 {
		return nil
	}

	items := make([]store.Suppression, 0, len(pending))
	for k, t := range pending {
		items = append(items, store.Suppression{Reason: string(k.Reason), Entity: k.Entity, SentAt: t})
	}

	if err := s.st.PutSuppressions(ctx, items); err != nil {
		return err
	}

	s.flushed(pending)
	return nil
}

const DefaultRedisKey = "certwatch:suppression"

// RedisSuppression keeps suppression state in one Redis hash, with fields
// "reason:entity" holding RFC 3339 timestamps.
type RedisSuppression struct {
	*memoryState
	client *redis.Client
	key    string
}

// LoadRedisSuppression reads the whole hash once.
func LoadRedisSuppression(ctx context.Context, client *redis.Client, key string) (*RedisSuppression, error) {
	if key == "" {
		key = DefaultRedisKey
	}

	fields, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("loading %v: %w", key, err)
	}

	s := &RedisSuppression{memoryState: newMemoryState(), client: client, key: key}
	for field, value := range fields {
		reason, entity, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}

		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			continue
		}
		s.last[Key{Reason: Reason(reason), Entity: entity}] = t
	}
	return s, nil
}

func (s *RedisSuppression) Flush(ctx context.Context) error {
	pending := s.pending()
	if len(pending) == 0 {
		return nil
	}

	values := make(map[string]interface{}, len(pending))
	for k, t := range pending {
		values[k.String()] = t.UTC().Format(time.RFC3339)
	}

	if err := s.client.HSet(ctx, s.key, values).Err(); err != nil {
		return fmt.Errorf("storing %v: %w", s.key, err)
	}

	s.flushed(pending)
	return nil
}
