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

package handoff

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/nlwallet/qrflow/logging"
	"github.com/nlwallet/qrflow/pkg/qr"
	"github.com/nlwallet/qrflow/pkg/session"
	"github.com/nlwallet/qrflow/pkg/store"
)

// Presenter drives the presenting side of a handoff: it creates the session,
// renders it as a QR code and waits for the other side to scan and complete it.
type Presenter struct {
	cfg      Config
	sessions *session.Adapter
	navigate func(url string)
	events   EventFunc

	mu        sync.Mutex
	sessionID string
	cancels   []store.CancelFunc
	done      bool
}

// PresenterOption configures optional presenter collaborators.
type PresenterOption func(*Presenter)

// WithPresenterNavigator sets the callback invoked with the terminal navigation URL.
func WithPresenterNavigator(navigate func(url string)) PresenterOption {
	return func(p *Presenter) { p.navigate = navigate }
}

// WithPresenterEvents sets the event callback.
func WithPresenterEvents(events EventFunc) PresenterOption {
	return func(p *Presenter) { p.events = events }
}

// NewPresenter validates the config and builds a presenter.
func NewPresenter(cfg Config, sessions *session.Adapter, opts ...PresenterOption) (*Presenter, error) {
	if cfg.Role == "" {
		cfg.Role = RolePresenter
	}
	if cfg.Role != RolePresenter {
		return nil, errors.Errorf("presenter built with role %s", cfg.Role)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Presenter{cfg: cfg, sessions: sessions}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// SessionID returns the created session id, empty before Start.
func (p *Presenter) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Start creates the session, writes the configured offer or request, renders
// the id into container (skipped when nil) and subscribes to the session
// signals. It also sweeps stale sessions, the store has no server-side expiry.
func (p *Presenter) Start(ctx context.Context, container qr.Container) (string, error) {
	requested := p.cfg.SessionID
	if requested == "" && p.cfg.UnguessableID {
		requested = session.RandomID()
	}
	id, err := p.sessions.CreateSession(ctx, requested, p.cfg.TTL)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.sessionID = id
	p.mu.Unlock()

	if p.cfg.Offer != nil {
		if err := p.sessions.SetOffer(ctx, id, *p.cfg.Offer); err != nil {
			return "", err
		}
	}
	if p.cfg.Request != nil {
		if err := p.sessions.SetRequest(ctx, id, *p.cfg.Request); err != nil {
			return "", err
		}
	}
	p.emit(Event{Kind: EventSession, SessionID: id})

	if container != nil {
		if err := qr.Render(qr.Options{Container: container, Text: id, Size: p.cfg.QRSize}); err != nil {
			return "", err
		}
	}

	cancelScanned, err := p.sessions.OnScanned(id, func() { p.onScanned(ctx, id) })
	if err != nil {
		return "", err
	}
	cancelCompleted, err := p.sessions.OnCompleted(id, func() { p.onCompleted(ctx, id) })
	if err != nil {
		cancelScanned()
		return "", err
	}
	p.mu.Lock()
	p.cancels = append(p.cancels, cancelScanned, cancelCompleted)
	p.mu.Unlock()

	deleted := p.sessions.CleanupStaleSessions(ctx, session.CleanupOptions{})
	if deleted > 0 {
		logging.Log().WithField("count", deleted).Debug("swept stale sessions")
	}
	return id, nil
}

// Close detaches all session subscriptions.
func (p *Presenter) Close() {
	p.mu.Lock()
	cancels := p.cancels
	p.cancels = nil
	p.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (p *Presenter) onScanned(ctx context.Context, id string) {
	p.emit(Event{Kind: EventScanned, SessionID: id})
	if p.cfg.WaitFor == WaitScanned {
		p.finish(ctx, id)
	}
}

func (p *Presenter) onCompleted(ctx context.Context, id string) {
	p.emit(Event{Kind: EventCompleted, SessionID: id})
	if p.cfg.WaitFor == WaitCompleted {
		p.finish(ctx, id)
	}
}

func (p *Presenter) finish(ctx context.Context, id string) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	p.mu.Unlock()

	if p.cfg.DeleteOnComplete {
		if err := p.sessions.DeleteSession(ctx, id); err != nil {
			logging.Log().WithError(err).Debug("session delete failed")
		}
	}
	if p.navigate != nil && p.cfg.NextURL != "" {
		p.navigate(p.cfg.NextURL)
	}
}

func (p *Presenter) emit(event Event) {
	if p.events != nil {
		p.events(event)
	}
}
