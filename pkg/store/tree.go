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
	"errors"
	"strconv"
	"strings"
)

// ErrPathNotFound is returned by Get when no value exists at the requested path.
var ErrPathNotFound = errors.New("path not found")

// CancelFunc detaches a subscription. Calling it more than once is allowed.
type CancelFunc func()

// Entry is one direct child of a queried path.
type Entry struct {
	Key   string
	Value interface{}
}

// QuerySpec describes a bounded range query over the direct children of Path.
// With OrderByChild set, children are ordered by the numeric value found at
// that sub-path; children without a numeric value there are skipped.
// With OrderByChild empty, children are ordered by their key, parsed as a
// decimal number; non-numeric keys are skipped.
// EndAt is the inclusive upper bound, Limit caps the number of results.
type QuerySpec struct {
	Path         string
	OrderByChild string
	EndAt        int64
	Limit        int
}

// Tree is a path-based key-value store with change subscriptions.
// Paths are slash-separated; values round-trip through JSON, so numbers read
// back as float64 and objects as map[string]interface{}.
type Tree interface {
	// Set writes value at path, replacing any existing subtree. A nil value removes the path.
	Set(ctx context.Context, path string, value interface{}) error
	// Get reads the value at path into target (a pointer). Returns ErrPathNotFound when absent.
	Get(ctx context.Context, path string, target interface{}) error
	// Remove deletes the subtree at path. Removing an absent path is a no-op.
	Remove(ctx context.Context, path string) error
	// Subscribe registers fn for changes at or below path. fn is invoked once
	// immediately with the current value (nil when absent) and again after every
	// overlapping write.
	Subscribe(path string, fn func(value interface{})) (CancelFunc, error)
	// Query runs a bounded range query, see QuerySpec.
	Query(ctx context.Context, spec QuerySpec) ([]Entry, error)
}

func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func joinPath(segments []string) string {
	return strings.Join(segments, "/")
}

// orderingValue extracts a numeric ordering value, accepting the types a JSON
// round-trip or a direct write may produce.
func orderingValue(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func keyAsNumber(key string) (int64, bool) {
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
