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

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlwallet/qrflow/pkg/store"
)

func withClock(t *testing.T, moment time.Time) {
	t.Helper()
	NowFunc = func() time.Time { return moment }
	t.Cleanup(func() { NowFunc = time.Now })
}

func TestAdapter_CreateSession(t *testing.T) {
	ctx := context.Background()
	moment := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	withClock(t, moment)

	t.Run("defaults", func(t *testing.T) {
		tree := store.NewMemoryTree()
		adapter := NewAdapter(tree)

		id, err := adapter.CreateSession(ctx, "", DefaultTTL)
		require.NoError(t, err)
		assert.Equal(t, strconv.FormatInt(moment.UnixMilli(), 10), id)

		var record map[string]interface{}
		require.NoError(t, tree.Get(ctx, "sessions/"+id, &record))
		assert.Equal(t, false, record["scanned"])
		assert.Equal(t, false, record["completed"])
		assert.Equal(t, float64(moment.UnixMilli()), record["createdAt"])
		assert.Equal(t, float64(moment.Add(DefaultTTL).UnixMilli()), record["expiresAt"])
	})

	t.Run("negative ttl disables expiry", func(t *testing.T) {
		tree := store.NewMemoryTree()
		adapter := NewAdapter(tree)

		id, err := adapter.CreateSession(ctx, "fixed-id", -1)
		require.NoError(t, err)
		assert.Equal(t, "fixed-id", id)

		var record map[string]interface{}
		require.NoError(t, tree.Get(ctx, "sessions/fixed-id", &record))
		assert.NotContains(t, record, "expiresAt")
	})
}

func TestAdapter_MarkIdempotence(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter(store.NewMemoryTree())
	id, err := adapter.CreateSession(ctx, "", DefaultTTL)
	require.NoError(t, err)

	require.NoError(t, adapter.MarkScanned(ctx, id))
	first, err := adapter.GetStatus(ctx, id)
	require.NoError(t, err)

	require.NoError(t, adapter.MarkScanned(ctx, id))
	require.NoError(t, adapter.MarkCompleted(ctx, id))
	require.NoError(t, adapter.MarkCompleted(ctx, id))

	status, err := adapter.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.True(t, status.Scanned())
	assert.True(t, status.Completed())
	assert.Equal(t, first.Scanned(), status.Scanned())

	require.NoError(t, adapter.DeleteSession(ctx, id))
	require.NoError(t, adapter.DeleteSession(ctx, id))
	exists, err := adapter.SessionExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAdapter_GetStatus_LegacyViews(t *testing.T) {
	ctx := context.Background()
	tree := store.NewMemoryTree()
	adapter := NewAdapter(tree)

	t.Run("legacy boolean only", func(t *testing.T) {
		require.NoError(t, tree.Set(ctx, "sessions/legacy", map[string]interface{}{
			"scanned": true, "completed": false, "createdAt": 1234,
		}))
		status, err := adapter.GetStatus(ctx, "legacy")
		require.NoError(t, err)
		assert.True(t, status.Scanned())
		assert.False(t, status.Completed())
		assert.Equal(t, int64(1234), status.ScannedAt)
	})

	t.Run("namespaced timestamp only", func(t *testing.T) {
		require.NoError(t, tree.Set(ctx, "sessions/stamped", map[string]interface{}{
			"createdAt": 1234,
			"status":    map[string]interface{}{"completedAt": 5678},
		}))
		status, err := adapter.GetStatus(ctx, "stamped")
		require.NoError(t, err)
		assert.True(t, status.Completed())
		assert.Equal(t, int64(5678), status.CompletedAt)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := adapter.GetStatus(ctx, "nope")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestAdapter_OnScanned(t *testing.T) {
	ctx := context.Background()

	t.Run("fires once whichever signal comes first", func(t *testing.T) {
		tree := store.NewMemoryTree()
		adapter := NewAdapter(tree)
		id, _ := adapter.CreateSession(ctx, "", DefaultTTL)

		fired := 0
		cancel, err := adapter.OnScanned(id, func() { fired++ })
		require.NoError(t, err)
		defer cancel()
		assert.Equal(t, 0, fired)

		// the writer may use either representation; both paths being written
		// must still result in a single callback
		require.NoError(t, tree.Set(ctx, "sessions/"+id+"/status/scannedAt", 999))
		require.NoError(t, tree.Set(ctx, "sessions/"+id+"/scanned", true))
		assert.Equal(t, 1, fired)
	})

	t.Run("fires immediately when already scanned", func(t *testing.T) {
		adapter := NewAdapter(store.NewMemoryTree())
		id, _ := adapter.CreateSession(ctx, "", DefaultTTL)
		require.NoError(t, adapter.MarkScanned(ctx, id))

		fired := 0
		cancel, err := adapter.OnScanned(id, func() { fired++ })
		require.NoError(t, err)
		defer cancel()
		assert.Equal(t, 1, fired)
	})

	t.Run("cancel detaches both subscriptions", func(t *testing.T) {
		tree := store.NewMemoryTree()
		adapter := NewAdapter(tree)
		id, _ := adapter.CreateSession(ctx, "", DefaultTTL)

		fired := 0
		cancel, err := adapter.OnCompleted(id, func() { fired++ })
		require.NoError(t, err)
		cancel()

		require.NoError(t, adapter.MarkCompleted(ctx, id))
		assert.Equal(t, 0, fired)
	})

	t.Run("callback may write back to the session", func(t *testing.T) {
		// Re-marking from inside the callback re-triggers the subscription on
		// the same goroutine, which must not fire again or block.
		adapter := NewAdapter(store.NewMemoryTree())
		id, _ := adapter.CreateSession(ctx, "", DefaultTTL)

		fired := 0
		cancel, err := adapter.OnCompleted(id, func() {
			fired++
			require.NoError(t, adapter.MarkCompleted(ctx, id))
		})
		require.NoError(t, err)
		defer cancel()

		require.NoError(t, adapter.MarkCompleted(ctx, id))
		assert.Equal(t, 1, fired)
	})

	t.Run("callback may delete the session", func(t *testing.T) {
		// A delete-on-complete subscriber must win over the bookkeeping
		// timestamp: the record stays gone.
		adapter := NewAdapter(store.NewMemoryTree())
		id, _ := adapter.CreateSession(ctx, "", DefaultTTL)

		cancel, err := adapter.OnCompleted(id, func() {
			require.NoError(t, adapter.DeleteSession(ctx, id))
		})
		require.NoError(t, err)
		defer cancel()

		require.NoError(t, adapter.MarkCompleted(ctx, id))
		exists, err := adapter.SessionExists(ctx, id)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestAdapter_MetadataFallbacks(t *testing.T) {
	ctx := context.Background()
	tree := store.NewMemoryTree()
	adapter := NewAdapter(tree)
	id, _ := adapter.CreateSession(ctx, "", DefaultTTL)

	t.Run("offer falls back to legacy meta", func(t *testing.T) {
		require.NoError(t, tree.Set(ctx, "sessions/"+id+"/meta", map[string]interface{}{
			"type": "INKOMEN", "issuer": "Belastingdienst",
		}))
		offer, err := adapter.GetOffer(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "INKOMEN", offer.Type)
		assert.Equal(t, "Belastingdienst", offer.Issuer)
	})

	t.Run("response falls back to legacy shared", func(t *testing.T) {
		require.NoError(t, adapter.SetShared(ctx, id, Response{Outcome: OutcomeOK, Type: "PID"}))
		response, err := adapter.GetResponse(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, OutcomeOK, response.Outcome)
		assert.Equal(t, "PID", response.Type)
	})

	t.Run("response path wins over shared", func(t *testing.T) {
		require.NoError(t, adapter.SetResponse(ctx, id, Response{Outcome: OutcomeNotFound, RequestedType: "PID"}))
		response, err := adapter.GetResponse(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotFound, response.Outcome)
	})
}

func TestAdapter_FastFields(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter(store.NewMemoryTree())
	id, _ := adapter.CreateSession(ctx, "", DefaultTTL)

	assert.Empty(t, adapter.GetIntent(ctx, id))
	assert.Empty(t, adapter.GetKind(ctx, id))

	require.NoError(t, adapter.SetRequest(ctx, id, Request{Intent: IntentUseCard, Type: "PID", Version: 1}))

	assert.Equal(t, IntentUseCard, adapter.GetIntent(ctx, id))
	assert.Equal(t, KindRequest, adapter.GetKind(ctx, id))
	assert.Equal(t, "PID", adapter.GetType(ctx, id))
}

func TestAdapter_SessionExists_StoreFailure(t *testing.T) {
	adapter := NewAdapter(failingTree{})
	exists, err := adapter.SessionExists(context.Background(), "any")
	assert.Error(t, err)
	assert.False(t, exists)
	// an error is "state unknown", it must never be conflated with absence;
	// the typed not-found sentinel stays reserved for a confirmed miss
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

type failingTree struct{}

func (failingTree) Set(context.Context, string, interface{}) error { return errors.New("offline") }
func (failingTree) Get(context.Context, string, interface{}) error { return errors.New("offline") }
func (failingTree) Remove(context.Context, string) error           { return errors.New("offline") }
func (failingTree) Subscribe(string, func(interface{})) (store.CancelFunc, error) {
	return nil, errors.New("offline")
}
func (failingTree) Query(context.Context, store.QuerySpec) ([]store.Entry, error) {
	return nil, errors.New("offline")
}
