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
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nlwallet/qrflow/logging"
	"github.com/nlwallet/qrflow/pkg/store"
)

// DefaultTTL is the session lifetime applied when the caller does not choose one.
const DefaultTTL = 10 * time.Minute

// NowFunc is used to get the current time. It can be replaced when you want to mock the clock.
var NowFunc = time.Now

// GenerateID returns the default session id: the current time in milliseconds
// as a decimal string.
func GenerateID() string {
	return strconv.FormatInt(NowFunc().UnixMilli(), 10)
}

// RandomID returns an unguessable session id. Any opaque token is a valid id;
// use this instead of GenerateID when ids must not be predictable.
func RandomID() string {
	return uuid.New().String()
}

// Adapter wraps a path-based key-value Tree with typed session operations.
// All session data lives under sessions/{id}.
type Adapter struct {
	tree store.Tree

	cleanupMutex sync.Mutex
	lastCleanup  time.Time
}

// NewAdapter creates an Adapter on top of the given tree.
func NewAdapter(tree store.Tree) *Adapter {
	return &Adapter{tree: tree}
}

func sessionPath(id string, sub ...string) string {
	path := "sessions/" + id
	for _, s := range sub {
		path += "/" + s
	}
	return path
}

// CreateSession writes the initial session record and returns its id.
// An empty id gets the GenerateID default. A zero ttl expires the session
// immediately, a negative ttl disables expiry.
func (a *Adapter) CreateSession(ctx context.Context, id string, ttl time.Duration) (string, error) {
	if id == "" {
		id = GenerateID()
	}
	now := NowFunc().UnixMilli()
	record := map[string]interface{}{
		"scanned":   false,
		"completed": false,
		"createdAt": now,
	}
	if ttl >= 0 {
		record["expiresAt"] = now + ttl.Milliseconds()
	}
	if err := a.tree.Set(ctx, sessionPath(id), record); err != nil {
		return "", errors.Wrapf(err, "could not create session %s", id)
	}
	return id, nil
}

// MarkScanned flags the session as scanned. Idempotent: it sets the legacy
// boolean and the namespaced timestamp, the flag write is the critical one.
func (a *Adapter) MarkScanned(ctx context.Context, id string) error {
	if err := a.tree.Set(ctx, sessionPath(id, "scanned"), true); err != nil {
		return errors.Wrapf(err, "could not mark session %s scanned", id)
	}
	a.setTimestamp(ctx, id, "scannedAt")
	return nil
}

// MarkCompleted flags the session as completed. Idempotent, same dual write as MarkScanned.
func (a *Adapter) MarkCompleted(ctx context.Context, id string) error {
	if err := a.tree.Set(ctx, sessionPath(id, "completed"), true); err != nil {
		return errors.Wrapf(err, "could not mark session %s completed", id)
	}
	a.setTimestamp(ctx, id, "completedAt")
	return nil
}

// setTimestamp is bookkeeping: a failure must never fail the protocol step.
// A subscriber may delete the session the moment the flag write lands, so the
// timestamp is skipped when the record is already gone rather than recreating it.
func (a *Adapter) setTimestamp(ctx context.Context, id, field string) {
	exists, err := a.SessionExists(ctx, id)
	if err != nil || !exists {
		return
	}
	if err := a.tree.Set(ctx, sessionPath(id, "status", field), NowFunc().UnixMilli()); err != nil {
		logging.Log().WithError(err).Debugf("could not write status/%s for session %s", field, id)
	}
}

// DeleteSession removes the entire session record. Safe to call on a non-existent id.
func (a *Adapter) DeleteSession(ctx context.Context, id string) error {
	return a.tree.Remove(ctx, sessionPath(id))
}

// SessionExists probes for the session record. A store failure is reported as
// an error, not as absence: callers must treat it as "state unknown".
func (a *Adapter) SessionExists(ctx context.Context, id string) (bool, error) {
	var record map[string]interface{}
	err := a.tree.Get(ctx, sessionPath(id), &record)
	if errors.Is(err, store.ErrPathNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "could not probe session %s", id)
	}
	return true, nil
}

// GetStatus merges the legacy boolean flags and the namespaced timestamps into
// the canonical Status. When only a legacy flag is set the timestamp is
// unknown; it is reported as the session's createdAt, falling back to 1.
func (a *Adapter) GetStatus(ctx context.Context, id string) (Status, error) {
	var record struct {
		Scanned   bool  `json:"scanned"`
		Completed bool  `json:"completed"`
		CreatedAt int64 `json:"createdAt"`
		Status    struct {
			ScannedAt   int64 `json:"scannedAt"`
			CompletedAt int64 `json:"completedAt"`
		} `json:"status"`
	}
	err := a.tree.Get(ctx, sessionPath(id), &record)
	if errors.Is(err, store.ErrPathNotFound) {
		return Status{}, ErrSessionNotFound
	}
	if err != nil {
		return Status{}, err
	}

	fallback := record.CreatedAt
	if fallback <= 0 {
		fallback = 1
	}
	result := Status{ScannedAt: record.Status.ScannedAt, CompletedAt: record.Status.CompletedAt}
	if record.Scanned && result.ScannedAt == 0 {
		result.ScannedAt = fallback
	}
	if record.Completed && result.CompletedAt == 0 {
		result.CompletedAt = fallback
	}
	return result, nil
}

// SetSessionInfo writes the root-level quick-access fields. Empty fields are left untouched.
func (a *Adapter) SetSessionInfo(ctx context.Context, id string, info Info) error {
	fields := map[string]string{"kind": info.Kind, "intent": info.Intent, "type": info.Type}
	for field, value := range fields {
		if value == "" {
			continue
		}
		if err := a.tree.Set(ctx, sessionPath(id, field), value); err != nil {
			return errors.Wrapf(err, "could not write session %s %s", id, field)
		}
	}
	return nil
}

// GetSessionInfo reads the root-level quick-access fields.
func (a *Adapter) GetSessionInfo(ctx context.Context, id string) (Info, error) {
	var info Info
	err := a.tree.Get(ctx, sessionPath(id), &info)
	if errors.Is(err, store.ErrPathNotFound) {
		return Info{}, ErrSessionNotFound
	}
	return info, err
}

// SetOffer stores the offer and mirrors kind/type into the root quick-access fields.
func (a *Adapter) SetOffer(ctx context.Context, id string, offer Offer) error {
	if err := a.tree.Set(ctx, sessionPath(id, "offer"), offer); err != nil {
		return errors.Wrapf(err, "could not write offer for session %s", id)
	}
	return a.SetSessionInfo(ctx, id, Info{Kind: KindOffer, Type: offer.Type})
}

// GetOffer reads the offer, falling back to the legacy meta path for older session shapes.
func (a *Adapter) GetOffer(ctx context.Context, id string) (Offer, error) {
	var offer Offer
	err := a.tree.Get(ctx, sessionPath(id, "offer"), &offer)
	if errors.Is(err, store.ErrPathNotFound) {
		err = a.tree.Get(ctx, sessionPath(id, "meta"), &offer)
	}
	if errors.Is(err, store.ErrPathNotFound) {
		return Offer{}, ErrSessionNotFound
	}
	return offer, err
}

// SetRequest stores the request and mirrors kind/intent/type into the root quick-access fields.
func (a *Adapter) SetRequest(ctx context.Context, id string, request Request) error {
	if err := a.tree.Set(ctx, sessionPath(id, "request"), request); err != nil {
		return errors.Wrapf(err, "could not write request for session %s", id)
	}
	return a.SetSessionInfo(ctx, id, Info{Kind: KindRequest, Intent: request.Intent, Type: request.Type})
}

// GetRequest reads the request.
func (a *Adapter) GetRequest(ctx context.Context, id string) (Request, error) {
	var request Request
	err := a.tree.Get(ctx, sessionPath(id, "request"), &request)
	if errors.Is(err, store.ErrPathNotFound) {
		return Request{}, ErrSessionNotFound
	}
	return request, err
}

// SetResponse stores the scanning side's answer.
func (a *Adapter) SetResponse(ctx context.Context, id string, response Response) error {
	return errors.Wrapf(a.tree.Set(ctx, sessionPath(id, "response"), response),
		"could not write response for session %s", id)
}

// SetShared stores the answer under the legacy shared path, for producers that
// still read the old shape.
func (a *Adapter) SetShared(ctx context.Context, id string, response Response) error {
	return errors.Wrapf(a.tree.Set(ctx, sessionPath(id, "shared"), response),
		"could not write shared data for session %s", id)
}

// GetResponse reads the response, falling back to the legacy shared path.
func (a *Adapter) GetResponse(ctx context.Context, id string) (Response, error) {
	var response Response
	err := a.tree.Get(ctx, sessionPath(id, "response"), &response)
	if errors.Is(err, store.ErrPathNotFound) {
		err = a.tree.Get(ctx, sessionPath(id, "shared"), &response)
	}
	if errors.Is(err, store.ErrPathNotFound) {
		return Response{}, ErrSessionNotFound
	}
	return response, err
}

// GetIntent is a fast single-field read used for intent classification.
// Failures yield an empty string, they never raise.
func (a *Adapter) GetIntent(ctx context.Context, id string) string {
	return a.fastField(ctx, id, "intent")
}

// GetKind is a fast single-field read, empty string on failure.
func (a *Adapter) GetKind(ctx context.Context, id string) string {
	return a.fastField(ctx, id, "kind")
}

// GetType is a fast single-field read, empty string on failure.
func (a *Adapter) GetType(ctx context.Context, id string) string {
	return a.fastField(ctx, id, "type")
}

func (a *Adapter) fastField(ctx context.Context, id, field string) string {
	var value string
	if err := a.tree.Get(ctx, sessionPath(id, field), &value); err != nil {
		return ""
	}
	return value
}

// OnScanned invokes cb once when the session is scanned, watching both the
// legacy flag and the namespaced timestamp. Whichever signal fires first wins.
// The returned CancelFunc detaches both underlying subscriptions.
func (a *Adapter) OnScanned(id string, cb func()) (store.CancelFunc, error) {
	return a.onSignal(id, "scanned", "scannedAt", cb)
}

// OnCompleted is the completed counterpart of OnScanned.
func (a *Adapter) OnCompleted(id string, cb func()) (store.CancelFunc, error) {
	return a.onSignal(id, "completed", "completedAt", cb)
}

func (a *Adapter) onSignal(id, legacyField, statusField string, cb func()) (store.CancelFunc, error) {
	// The flag is consumed before cb runs: cb may itself write to the session
	// (marking it, deleting it) and synchronously re-trigger this subscription.
	var fired atomic.Bool
	fire := func(value interface{}) {
		if signalSet(value) && fired.CompareAndSwap(false, true) {
			cb()
		}
	}

	cancelLegacy, err := a.tree.Subscribe(sessionPath(id, legacyField), fire)
	if err != nil {
		return nil, errors.Wrapf(err, "could not subscribe to session %s", id)
	}
	cancelStatus, err := a.tree.Subscribe(sessionPath(id, "status", statusField), fire)
	if err != nil {
		cancelLegacy()
		return nil, errors.Wrapf(err, "could not subscribe to session %s", id)
	}

	return func() {
		cancelLegacy()
		cancelStatus()
	}, nil
}

// signalSet interprets either serialization view: a true boolean or a positive timestamp.
func signalSet(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v > 0
	case int64:
		return v > 0
	}
	return false
}
