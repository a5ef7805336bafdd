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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var _ Tree = (*BoltTree)(nil)

var treeBucket = []byte("tree")

// BoltTree is a Tree persisted in a bbolt database. The tree is flattened into
// one bucket: every leaf value is stored as JSON under its full slash-separated
// path, subtrees are assembled from their leaves on read.
type BoltTree struct {
	db       *bolt.DB
	notifier *notifier
}

// CreateBoltTree opens (or creates) a bbolt-backed tree at the given file path.
func CreateBoltTree(filePath string) (*BoltTree, error) {
	db, err := bolt.Open(filePath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open store at %s: %w", filePath, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(treeBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltTree{db: db, notifier: newNotifier()}, nil
}

// Close releases the underlying database file.
func (t *BoltTree) Close() error {
	return t.db.Close()
}

func (t *BoltTree) Set(ctx context.Context, path string, value interface{}) error {
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
	cleanPath := joinPath(segments)

	err = t.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(treeBucket)
		if err := deleteSubtree(bucket, cleanPath); err != nil {
			return err
		}
		// A leaf on the ancestor chain would shadow the new subtree.
		for i := 1; i < len(segments); i++ {
			if err := bucket.Delete([]byte(joinPath(segments[:i]))); err != nil {
				return err
			}
		}
		return writeLeaves(bucket, cleanPath, normalized)
	})
	if err != nil {
		return err
	}

	t.notifier.notify(cleanPath, t.valueAt)
	return nil
}

func (t *BoltTree) Get(ctx context.Context, path string, target interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := t.valueAt(path)
	if value == nil {
		return ErrPathNotFound
	}
	return decodeInto(value, target)
}

func (t *BoltTree) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanPath := joinPath(splitPath(path))
	if cleanPath == "" {
		return fmt.Errorf("empty path")
	}

	removed := false
	err := t.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(treeBucket)
		existed := subtreeExists(bucket, cleanPath)
		if err := deleteSubtree(bucket, cleanPath); err != nil {
			return err
		}
		removed = existed
		return nil
	})
	if err != nil {
		return err
	}
	if removed {
		t.notifier.notify(cleanPath, t.valueAt)
	}
	return nil
}

func (t *BoltTree) Subscribe(path string, fn func(value interface{})) (CancelFunc, error) {
	cancel := t.notifier.subscribe(path, fn)
	fn(t.valueAt(path))
	return cancel, nil
}

func (t *BoltTree) Query(ctx context.Context, spec QuerySpec) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parentPath := joinPath(splitPath(spec.Path))

	var candidates []Entry
	err := t.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(treeBucket)
		seen := map[string]bool{}
		prefix := []byte(parentPath + "/")
		cursor := bucket.Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
			remainder := strings.TrimPrefix(string(k), string(prefix))
			child := strings.SplitN(remainder, "/", 2)[0]
			if seen[child] {
				continue
			}
			seen[child] = true
			candidates = append(candidates, Entry{
				Key:   child,
				Value: assembleSubtree(bucket, parentPath+"/"+child),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applyQuery(candidates, spec)
}

// valueAt reads the value at path, nil when absent. Read failures also yield
// nil: subscribers and existence probes treat an unreadable node as absent.
func (t *BoltTree) valueAt(path string) interface{} {
	cleanPath := joinPath(splitPath(path))
	var value interface{}
	_ = t.db.View(func(tx *bolt.Tx) error {
		value = assembleSubtree(tx.Bucket(treeBucket), cleanPath)
		return nil
	})
	return value
}

func assembleSubtree(bucket *bolt.Bucket, path string) interface{} {
	if data := bucket.Get([]byte(path)); data != nil {
		var leaf interface{}
		if err := json.Unmarshal(data, &leaf); err != nil {
			return nil
		}
		return leaf
	}

	root := map[string]interface{}{}
	prefix := []byte(path + "/")
	cursor := bucket.Cursor()
	for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
		var leaf interface{}
		if err := json.Unmarshal(v, &leaf); err != nil {
			continue
		}
		node := root
		segments := splitPath(strings.TrimPrefix(string(k), string(prefix)))
		for _, segment := range segments[:len(segments)-1] {
			child, ok := node[segment].(map[string]interface{})
			if !ok {
				child = map[string]interface{}{}
				node[segment] = child
			}
			node = child
		}
		node[segments[len(segments)-1]] = leaf
	}
	if len(root) == 0 {
		return nil
	}
	return root
}

func subtreeExists(bucket *bolt.Bucket, path string) bool {
	if bucket.Get([]byte(path)) != nil {
		return true
	}
	prefix := []byte(path + "/")
	k, _ := bucket.Cursor().Seek(prefix)
	return k != nil && bytes.HasPrefix(k, prefix)
}

func deleteSubtree(bucket *bolt.Bucket, path string) error {
	if err := bucket.Delete([]byte(path)); err != nil {
		return err
	}
	prefix := []byte(path + "/")
	var stale [][]byte
	cursor := bucket.Cursor()
	for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func writeLeaves(bucket *bolt.Bucket, path string, value interface{}) error {
	if m, ok := value.(map[string]interface{}); ok {
		for key, child := range m {
			childSegments := splitPath(key)
			if len(childSegments) == 0 {
				continue
			}
			if err := writeLeaves(bucket, path+"/"+joinPath(childSegments), child); err != nil {
				return err
			}
		}
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(path), data)
}
