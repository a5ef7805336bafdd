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
	"strings"
	"sync"

	retry "github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/nlwallet/qrflow/logging"
	"github.com/nlwallet/qrflow/pkg/camera"
	"github.com/nlwallet/qrflow/pkg/session"
	"github.com/nlwallet/qrflow/pkg/store"
)

// State is the scanner's position in the handoff lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring"
	StateValidating State = "validating"
	StateRejected   State = "rejected"
	StatePinGate    State = "pin-gate"
	StateCompleting State = "completing"
	StateCompleted  State = "completed"
)

var (
	// ErrEmptyCode is returned for a decode that produced no usable id.
	ErrEmptyCode = errors.New("decoded code is empty")
	// ErrSessionGone is returned when the decoded id matches no live session.
	ErrSessionGone = errors.New("session not found or expired")
	// ErrStoreUnavailable wraps a store failure during validation, which is
	// reported distinctly from an unknown session.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrNotAwaitingPIN is returned by SubmitPIN outside the PIN gate.
	ErrNotAwaitingPIN = errors.New("no PIN entry pending")
	// ErrPINMismatch is returned for a wrong PIN, the gate stays open for a retry.
	ErrPINMismatch = errors.New("PIN does not match")
	// ErrBusy is returned while a previous decode is still being processed.
	ErrBusy = errors.New("already processing a code")
)

// Bridge connects completed sessions to the wallet. CardIssued stores the
// session's offer as a card, ShareCard writes a matching card back as the
// session response.
type Bridge interface {
	CardIssued(ctx context.Context, sessionID string) error
	ShareCard(ctx context.Context, sessionID string, requestedType string) error
}

// Scanner drives the scanning side of a handoff: it validates decoded ids,
// classifies the interaction, optionally holds at a PIN gate and completes
// the session. Decoded codes funnel through HandleDecode whether they come
// from the camera or from manual entry.
type Scanner struct {
	cfg      Config
	sessions *session.Adapter
	cameras  *camera.Engine
	bridge   Bridge
	navigate func(url string)
	events   EventFunc

	mu         sync.Mutex
	state      State
	sessionID  string
	controller *camera.Controller
	cancelWait store.CancelFunc
	baseCtx    context.Context
}

// ScannerOption configures optional scanner collaborators.
type ScannerOption func(*Scanner)

// WithCameraEngine attaches a camera engine, enabling Start to acquire a stream.
func WithCameraEngine(engine *camera.Engine) ScannerOption {
	return func(s *Scanner) { s.cameras = engine }
}

// WithBridge attaches the wallet bridge invoked on completion.
func WithBridge(bridge Bridge) ScannerOption {
	return func(s *Scanner) { s.bridge = bridge }
}

// WithNavigator sets the callback invoked with the terminal navigation URL.
func WithNavigator(navigate func(url string)) ScannerOption {
	return func(s *Scanner) { s.navigate = navigate }
}

// WithEvents sets the event callback.
func WithEvents(events EventFunc) ScannerOption {
	return func(s *Scanner) { s.events = events }
}

// NewScanner validates the config and builds a scanner.
func NewScanner(cfg Config, sessions *session.Adapter, opts ...ScannerOption) (*Scanner, error) {
	if cfg.Role == "" {
		cfg.Role = RoleScanner
	}
	if cfg.Role != RoleScanner {
		return nil, errors.Errorf("scanner built with role %s", cfg.Role)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{cfg: cfg, sessions: sessions, state: StateIdle, baseCtx: context.Background()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the id of the session being processed, empty before a decode.
func (s *Scanner) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Controller exposes the active camera controller, nil when no camera runs.
func (s *Scanner) Controller() *camera.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller
}

// Attach signals that the scanner's surface became visible. With Autostart
// configured this begins camera acquisition right away, otherwise the
// scanner stays idle until an explicit Start.
func (s *Scanner) Attach(ctx context.Context, surface string, width, height int) error {
	if !s.cfg.Autostart {
		return nil
	}
	return s.Start(ctx, surface, width, height)
}

// Start acquires a camera on the scanner's surface and begins decoding.
// Manual entry via HandleDecode works without Start.
func (s *Scanner) Start(ctx context.Context, surface string, width, height int) error {
	s.mu.Lock()
	if s.cameras == nil {
		s.mu.Unlock()
		return errors.New("no camera engine configured")
	}
	s.state = StateAcquiring
	s.baseCtx = ctx
	s.mu.Unlock()

	controller, err := s.cameras.Acquire(ctx, camera.Options{
		Surface:           surface,
		ContainerWidth:    width,
		ContainerHeight:   height,
		PreferBackCamera:  s.cfg.PreferBackCamera,
		PreferredDeviceID: s.cfg.PreferredDeviceID,
		OnDecode: func(text string) {
			if err := s.HandleDecode(s.baseCtx, text); err != nil {
				logging.Log().WithError(err).Debug("decoded code rejected")
			}
		},
		OnStarted: func(deviceID string) {
			s.emit(Event{Kind: EventCameraStarted, DeviceID: deviceID})
		},
		OnSwitched: func(deviceID string) {
			s.emit(Event{Kind: EventCameraSwitched, DeviceID: deviceID})
		},
	})
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.controller = controller
	s.mu.Unlock()
	return nil
}

// HandleDecode processes one decoded or manually entered code. While a
// previous code is being processed (validating, at the PIN gate or
// completing) further codes are refused with ErrBusy. A rejected attempt
// leaves the scanner ready for the next one.
func (s *Scanner) HandleDecode(ctx context.Context, text string) error {
	s.mu.Lock()
	switch s.state {
	case StateValidating, StatePinGate, StateCompleting, StateCompleted:
		s.mu.Unlock()
		return ErrBusy
	}
	id := strings.TrimSpace(text)
	if id == "" {
		s.state = StateRejected
		s.mu.Unlock()
		s.emit(Event{Kind: EventRejected, Err: ErrEmptyCode})
		return ErrEmptyCode
	}
	s.state = StateValidating
	s.sessionID = id
	s.mu.Unlock()

	exists, err := s.sessions.SessionExists(ctx, id)
	if err != nil {
		return s.reject(id, errors.Wrap(ErrStoreUnavailable, err.Error()))
	}
	if !exists {
		return s.reject(id, ErrSessionGone)
	}
	if err := s.sessions.MarkScanned(ctx, id); err != nil {
		return s.reject(id, err)
	}
	s.emit(Event{Kind: EventScanned, SessionID: id})

	cls := s.classify(ctx, id)
	if cls.useCard {
		return s.completeUseCard(ctx, id, cls.requestedType)
	}
	if s.cfg.RequirePIN {
		s.mu.Lock()
		s.state = StatePinGate
		s.mu.Unlock()
		s.emit(Event{Kind: EventPinRequired, SessionID: id})
		return nil
	}
	return s.finishIssue(ctx, id)
}

// SubmitPIN checks the entered PIN against the configured value. A mismatch
// keeps the gate open; a match completes the session.
func (s *Scanner) SubmitPIN(ctx context.Context, pin string) error {
	s.mu.Lock()
	if s.state != StatePinGate {
		s.mu.Unlock()
		return ErrNotAwaitingPIN
	}
	id := s.sessionID
	if pin != s.cfg.PINValue {
		s.mu.Unlock()
		return ErrPINMismatch
	}
	s.mu.Unlock()
	return s.finishIssue(ctx, id)
}

// Stop tears down the camera and detaches any completion watch.
func (s *Scanner) Stop() {
	s.mu.Lock()
	controller := s.controller
	cancel := s.cancelWait
	s.controller = nil
	s.cancelWait = nil
	s.state = StateIdle
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if controller != nil {
		controller.Stop()
	}
}

type classification struct {
	useCard       bool
	requestedType string
}

// classify determines the interaction intent. Metadata written by the other
// side may lag behind the session record, so the cheap field reads are
// retried a bounded number of times before falling back to the full objects.
func (s *Scanner) classify(ctx context.Context, id string) classification {
	var intent, typ string
	err := retry.Do(func() error {
		intent = s.sessions.GetIntent(ctx, id)
		kind := s.sessions.GetKind(ctx, id)
		typ = s.sessions.GetType(ctx, id)
		if intent == "" && kind == "" {
			return errors.New("no session metadata yet")
		}
		return nil
	},
		retry.Attempts(uint(s.cfg.IntentAttempts)),
		retry.Delay(s.cfg.IntentDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		if request, rerr := s.sessions.GetRequest(ctx, id); rerr == nil {
			intent = request.Intent
			typ = request.Type
		} else if offer, oerr := s.sessions.GetOffer(ctx, id); oerr == nil {
			// An offer is always an issue flow.
			intent = ""
			typ = offer.Type
		} else {
			logging.Log().WithField("sessionID", id).Debug("session carries no metadata, treating as issue flow")
		}
	}
	return classification{useCard: intent == session.IntentUseCard, requestedType: typ}
}

// finishIssue takes a validated issue-flow session to its terminal state
// according to the configured completion mode.
func (s *Scanner) finishIssue(ctx context.Context, id string) error {
	if s.cfg.NavigateOnScan {
		s.mu.Lock()
		s.state = StateCompleted
		s.mu.Unlock()
		s.navigateNext()
		return nil
	}
	if s.cfg.CompleteImmediate {
		return s.complete(ctx, id, true)
	}

	// Completion is driven by the other side, watch for it.
	s.mu.Lock()
	s.state = StateCompleting
	s.mu.Unlock()
	cancel, err := s.sessions.OnCompleted(id, func() {
		if err := s.complete(s.baseCtx, id, true); err != nil {
			logging.Log().WithError(err).WithField("sessionID", id).Warn("completion handling failed")
		}
	})
	if err != nil {
		return s.reject(id, err)
	}
	s.mu.Lock()
	s.cancelWait = cancel
	s.mu.Unlock()
	return nil
}

func (s *Scanner) complete(ctx context.Context, id string, issue bool) error {
	s.mu.Lock()
	if s.state == StateCompleted {
		s.mu.Unlock()
		return nil
	}
	s.state = StateCompleting
	s.mu.Unlock()

	if err := s.sessions.MarkCompleted(ctx, id); err != nil {
		return s.reject(id, err)
	}
	if issue && s.bridge != nil {
		// A wallet write failure is local, the handoff itself succeeded.
		if err := s.bridge.CardIssued(ctx, id); err != nil {
			logging.Log().WithError(err).WithField("sessionID", id).Warn("storing issued card failed")
		}
	}
	s.emit(Event{Kind: EventCompleted, SessionID: id})
	if s.cfg.DeleteOnComplete {
		if err := s.sessions.DeleteSession(ctx, id); err != nil {
			logging.Log().WithError(err).Debug("session delete failed")
		}
	}
	s.mu.Lock()
	s.state = StateCompleted
	s.mu.Unlock()
	s.navigateNext()
	return nil
}

// completeUseCard handles a use_card interaction: the response must land in
// the session before completion, and the record stays alive afterwards so
// the requesting side can read it back.
func (s *Scanner) completeUseCard(ctx context.Context, id, requestedType string) error {
	s.mu.Lock()
	s.state = StateCompleting
	s.mu.Unlock()

	if s.bridge != nil {
		if err := s.bridge.ShareCard(ctx, id, requestedType); err != nil {
			return s.reject(id, err)
		}
	}
	if err := s.sessions.MarkCompleted(ctx, id); err != nil {
		return s.reject(id, err)
	}
	s.emit(Event{Kind: EventCompleted, SessionID: id})
	s.mu.Lock()
	s.state = StateCompleted
	s.mu.Unlock()
	s.navigateNext()
	return nil
}

func (s *Scanner) reject(id string, err error) error {
	s.mu.Lock()
	s.state = StateRejected
	s.mu.Unlock()
	s.emit(Event{Kind: EventRejected, SessionID: id, Err: err})
	return err
}

func (s *Scanner) navigateNext() {
	if s.navigate != nil && s.cfg.NextURL != "" {
		s.navigate(s.cfg.NextURL)
	}
}

func (s *Scanner) emit(event Event) {
	if s.events != nil {
		s.events(event)
	}
}
