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
	"time"

	"github.com/nlwallet/qrflow/logging"
	"github.com/nlwallet/qrflow/pkg/store"
)

// cleanupThrottle bounds how often one adapter instance actually sweeps.
var cleanupThrottle = time.Minute

// CleanupOptions bounds a stale-session sweep.
type CleanupOptions struct {
	// OlderThan is the age beyond which completed or abandoned sessions are
	// swept, DefaultCleanupAge when zero. Expired sessions (expiresAt in the
	// past) are swept regardless of age.
	OlderThan time.Duration
	// BatchLimit bounds each of the underlying range queries, DefaultCleanupBatch when zero.
	BatchLimit int
}

// DefaultCleanupAge is the default CleanupOptions.OlderThan.
const DefaultCleanupAge = time.Hour

// DefaultCleanupBatch is the default CleanupOptions.BatchLimit.
const DefaultCleanupBatch = 50

// CleanupStaleSessions opportunistically deletes expired and stale sessions.
// It runs three independent range queries: by explicit expiresAt, by
// status/completedAt, and by treating the session key itself as a creation
// timestamp, and deletes the union of the matched ids. The sweep is advisory:
// it is throttled to at most once per minute per adapter instance and every
// failure is swallowed. It returns the number of sessions deleted.
func (a *Adapter) CleanupStaleSessions(ctx context.Context, opts CleanupOptions) int {
	a.cleanupMutex.Lock()
	now := NowFunc()
	if now.Sub(a.lastCleanup) < cleanupThrottle {
		a.cleanupMutex.Unlock()
		return 0
	}
	a.lastCleanup = now
	a.cleanupMutex.Unlock()

	if opts.OlderThan <= 0 {
		opts.OlderThan = DefaultCleanupAge
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = DefaultCleanupBatch
	}
	nowMillis := now.UnixMilli()
	cutoff := nowMillis - opts.OlderThan.Milliseconds()

	stale := map[string]bool{}
	for _, spec := range []store.QuerySpec{
		{Path: "sessions", OrderByChild: "expiresAt", EndAt: nowMillis, Limit: opts.BatchLimit},
		{Path: "sessions", OrderByChild: "status/completedAt", EndAt: cutoff, Limit: opts.BatchLimit},
		{Path: "sessions", EndAt: cutoff, Limit: opts.BatchLimit},
	} {
		entries, err := a.tree.Query(ctx, spec)
		if err != nil {
			logging.Log().WithError(err).Debug("session cleanup query failed")
			continue
		}
		for _, entry := range entries {
			stale[entry.Key] = true
		}
	}

	deleted := 0
	for id := range stale {
		if err := a.DeleteSession(ctx, id); err != nil {
			logging.Log().WithError(err).Debugf("could not delete stale session %s", id)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		logging.Log().Debugf("cleaned up %d stale sessions", deleted)
	}
	return deleted
}
