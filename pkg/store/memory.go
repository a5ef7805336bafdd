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
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

var _ Tree = (*MemoryTree)(nil)

// MemoryTree is an in-memory Tree backed by nested maps. It is safe for
// concurrent use and intended for tests and single-process demo deployments.
type MemoryTree struct {
	mu       sync.RWMutex
	root     map[string]interface{}
	notifier *notifier
}

// NewMemoryTree creates an empty in-memory tree.
func NewMemoryTree() *MemoryTree {
	return &MemoryTree{
		root:     map[string]interface{}{},
		notifier: newNotifier(),
	}
}

func (t *MemoryTree) Set(ctx context.Context, path string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value == nil {
		return t.Remove(ctx, path)
	}
	normalized, err := normalize(value)
	if err != nil {
		return fmt.Errorf("could not encode value for %s: %w", path, err)
	}
	segments := splitPath(path)
	if len(segments) == 0 {
		return fmt.Errorf("empty path")
	}

	t.mu.Lock()
	node := t.root
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			node[segment] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = normalized
	t.mu.Unlock()

	t.notifier.notify(path, t.valueAt)
	return nil
}

func (t *MemoryTree) Get(ctx context.Context, path string, target interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := t.valueAt(path)
	if value == nil {
		return ErrPathNotFound
	}
	return decodeInto(value, target)
}

func (t *MemoryTree) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segments := splitPath(path)
	if len(segments) == 0 {
		return fmt.Errorf("empty path")
	}

	t.mu.Lock()
	node := t.root
	removed := false
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]interface{})
		if !ok {
			node = nil
			break
		}
		node = child
	}
	if node != nil {
		if _, ok := node[segments[len(segments)-1]]; ok {
			delete(node, segments[len(segments)-1])
			removed = true
		}
	}
	t.mu.Unlock()

	if removed {
		t.notifier.notify(path, t.valueAt)
	}
	return nil
}

func (t *MemoryTree) Subscribe(path string, fn func(value interface{})) (CancelFunc, error) {
	cancel := t.notifier.subscribe(path, fn)
	// Deliver the current state right away, matching subscribe-then-read races
	// a remote store would otherwise expose.
	fn(t.valueAt(path))
	return cancel, nil
}

func (t *MemoryTree) Query(ctx context.Context, spec QuerySpec) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	parent, _ := t.valueAtLocked(spec.Path).(map[string]interface{})
	candidates := make([]Entry, 0, len(parent))
	for key, child := range parent {
		candidates = append(candidates, Entry{Key: key, Value: child})
	}
	t.mu.RUnlock()

	return applyQuery(candidates, spec)
}

// valueAt returns a deep copy of the value at path, nil when absent.
func (t *MemoryTree) valueAt(path string) interface{} {
	t.mu.RLock()
	node := t.valueAtLocked(path)
	if node == nil {
		t.mu.RUnlock()
		return nil
	}
	data, err := json.Marshal(node)
	t.mu.RUnlock()
	if err != nil {
		return nil
	}
	var copied interface{}
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil
	}
	return copied
}

func (t *MemoryTree) valueAtLocked(path string) interface{} {
	var node interface{} = t.root
	for _, segment := range splitPath(path) {
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil
		}
		node, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return node
}

// normalize round-trips a value through JSON so every backend stores the same shapes.
func normalize(value interface{}) (interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var normalized interface{}
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

func decodeInto(value, target interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// applyQuery filters, orders and bounds the direct children of a queried path.
func applyQuery(candidates []Entry, spec QuerySpec) ([]Entry, error) {
	type ordered struct {
		entry Entry
		order int64
	}
	matches := make([]ordered, 0, len(candidates))
	for _, candidate := range candidates {
		var order int64
		var ok bool
		if spec.OrderByChild == "" {
			order, ok = keyAsNumber(candidate.Key)
		} else {
			order, ok = orderingValue(childValue(candidate.Value, spec.OrderByChild))
		}
		if !ok || order > spec.EndAt {
			continue
		}
		matches = append(matches, ordered{entry: candidate, order: order})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].order < matches[j].order })
	if spec.Limit > 0 && len(matches) > spec.Limit {
		matches = matches[:spec.Limit]
	}
	result := make([]Entry, len(matches))
	for i, m := range matches {
		result[i] = m.entry
	}
	return result, nil
}

func childValue(node interface{}, path string) interface{} {
	for _, segment := range splitPath(path) {
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil
		}
		node, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return node
}
