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

package store

import (
	"sync"
)

// notifier implements path-overlap change subscriptions shared by all Tree backends.
// A write to a path wakes every subscription registered at that path, at one of
// its ancestors, or at one of its descendants.
type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
}

type subscription struct {
	path []string
	fn   func(value interface{})
}

func newNotifier() *notifier {
	return &notifier{subs: map[int]*subscription{}}
}

func (n *notifier) subscribe(path string, fn func(value interface{})) CancelFunc {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = &subscription{path: splitPath(path), fn: fn}
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// notify invokes all subscriptions overlapping the changed path. read resolves
// the current value at a subscription's own path, nil when absent.
func (n *notifier) notify(changedPath string, read func(path string) interface{}) {
	changed := splitPath(changedPath)

	n.mu.Lock()
	var matched []*subscription
	for _, sub := range n.subs {
		if pathsOverlap(sub.path, changed) {
			matched = append(matched, sub)
		}
	}
	n.mu.Unlock()

	// Callbacks run outside the lock so they may re-subscribe or cancel.
	for _, sub := range matched {
		sub.fn(read(joinPath(sub.path)))
	}
}

// pathsOverlap reports whether one path is an ancestor of (or equal to) the other.
func pathsOverlap(a, b []string) bool {
	shortest := len(a)
	if len(b) < shortest {
		shortest = len(b)
	}
	for i := 0; i < shortest; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
