/*
 * Qrflow
 * Copyright (C) 2026. Nlwallet community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package session

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlwallet/qrflow/pkg/store"
)

func TestAdapter_CleanupStaleSessions(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("zero ttl is immediately eligible", func(t *testing.T) {
		withClock(t, start)
		tree := store.NewMemoryTree()
		adapter := NewAdapter(tree)
		id, err := adapter.CreateSession(ctx, "doomed", 0)
		require.NoError(t, err)

		assert.Equal(t, 1, adapter.CleanupStaleSessions(ctx, CleanupOptions{}))
		exists, err := adapter.SessionExists(ctx, id)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("ttl boundary", func(t *testing.T) {
		withClock(t, start)
		tree := store.NewMemoryTree()
		adapter := NewAdapter(tree)
		id, err := adapter.CreateSession(ctx, "bounded", DefaultTTL)
		require.NoError(t, err)

		NowFunc = func() time.Time { return start.Add(DefaultTTL - time.Millisecond) }
		assert.Equal(t, 0, NewAdapter(tree).CleanupStaleSessions(ctx, CleanupOptions{}))
		exists, _ := adapter.SessionExists(ctx, id)
		assert.True(t, exists)

		NowFunc = func() time.Time { return start.Add(DefaultTTL + time.Millisecond) }
		assert.Equal(t, 1, NewAdapter(tree).CleanupStaleSessions(ctx, CleanupOptions{}))
		exists, _ = adapter.SessionExists(ctx, id)
		assert.False(t, exists)
	})

	t.Run("sweeps by key age and completedAt", func(t *testing.T) {
		withClock(t, start)
		tree := store.NewMemoryTree()
		adapter := NewAdapter(tree)

		// a record without expiresAt, keyed by an old creation timestamp
		oldKey := strconv.FormatInt(start.Add(-2*time.Hour).UnixMilli(), 10)
		require.NoError(t, tree.Set(ctx, sessionPath(oldKey), map[string]interface{}{"scanned": true}))
		// a completed record without expiresAt
		require.NoError(t, tree.Set(ctx, sessionPath("done"), map[string]interface{}{
			"status": map[string]interface{}{"completedAt": start.Add(-90 * time.Minute).UnixMilli()},
		}))
		// a fresh one that must survive
		fresh, err := adapter.CreateSession(ctx, "fresh", DefaultTTL)
		require.NoError(t, err)

		assert.Equal(t, 2, adapter.CleanupStaleSessions(ctx, CleanupOptions{OlderThan: time.Hour}))
		exists, _ := adapter.SessionExists(ctx, fresh)
		assert.True(t, exists)
	})

	t.Run("throttled per adapter instance", func(t *testing.T) {
		withClock(t, start)
		tree := store.NewMemoryTree()
		adapter := NewAdapter(tree)
		_, err := adapter.CreateSession(ctx, "a", 0)
		require.NoError(t, err)

		assert.Equal(t, 1, adapter.CleanupStaleSessions(ctx, CleanupOptions{}))

		_, err = adapter.CreateSession(ctx, "b", 0)
		require.NoError(t, err)
		assert.Equal(t, 0, adapter.CleanupStaleSessions(ctx, CleanupOptions{}))

		NowFunc = func() time.Time { return start.Add(2 * time.Minute) }
		assert.Equal(t, 1, adapter.CleanupStaleSessions(ctx, CleanupOptions{}))
	})

	t.Run("query failures are swallowed", func(t *testing.T) {
		adapter := NewAdapter(failingTree{})
		assert.Equal(t, 0, adapter.CleanupStaleSessions(ctx, CleanupOptions{}))
	})
}
