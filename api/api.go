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

package api

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nlwallet/qrflow/pkg/qr"
	"github.com/nlwallet/qrflow/pkg/session"
)

// Wrapper exposes the session adapter over HTTP so native presenter and
// scanner surfaces can drive a handoff without a direct store connection.
type Wrapper struct {
	Sessions *session.Adapter
}

// Routes registers all session endpoints on the given router.
func (w Wrapper) Routes(router *echo.Echo) {
	router.POST("/api/sessions", w.CreateSession)
	router.POST("/api/sessions/cleanup", w.Cleanup)
	router.GET("/api/sessions/:id", w.GetSession)
	router.DELETE("/api/sessions/:id", w.DeleteSession)
	router.PUT("/api/sessions/:id/scanned", w.MarkScanned)
	router.PUT("/api/sessions/:id/completed", w.MarkCompleted)
	router.PUT("/api/sessions/:id/offer", w.SetOffer)
	router.GET("/api/sessions/:id/offer", w.GetOffer)
	router.PUT("/api/sessions/:id/request", w.SetRequest)
	router.GET("/api/sessions/:id/request", w.GetRequest)
	router.PUT("/api/sessions/:id/response", w.SetResponse)
	router.GET("/api/sessions/:id/response", w.GetResponse)
	router.GET("/api/sessions/:id/qr.png", w.RenderQR)
}

// CreateSessionRequest is the body of POST /api/sessions. A zero TTL expires
// immediately, a negative one disables expiry, absent means the default.
type CreateSessionRequest struct {
	ID        string `json:"id,omitempty"`
	TTLMillis *int64 `json:"ttlMs,omitempty"`
}

// CreateSessionResponse carries the allocated session id.
type CreateSessionResponse struct {
	ID string `json:"id"`
}

// SessionStatusResponse is the combined status and classification view of
// one session.
type SessionStatusResponse struct {
	ID          string `json:"id"`
	Scanned     bool   `json:"scanned"`
	Completed   bool   `json:"completed"`
	ScannedAt   int64  `json:"scannedAt,omitempty"`
	CompletedAt int64  `json:"completedAt,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Intent      string `json:"intent,omitempty"`
	Type        string `json:"type,omitempty"`
}

// CleanupResponse reports how many stale sessions a sweep removed.
type CleanupResponse struct {
	Deleted int `json:"deleted"`
}

func (w Wrapper) CreateSession(ctx echo.Context) error {
	body := new(CreateSessionRequest)
	if err := ctx.Bind(body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("could not parse request body: %s", err))
	}
	ttl := session.DefaultTTL
	if body.TTLMillis != nil {
		ttl = time.Duration(*body.TTLMillis) * time.Millisecond
		if *body.TTLMillis < 0 {
			ttl = -1
		}
	}
	id, err := w.Sessions.CreateSession(ctx.Request().Context(), body.ID, ttl)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return ctx.JSON(http.StatusCreated, CreateSessionResponse{ID: id})
}

func (w Wrapper) GetSession(ctx echo.Context) error {
	id := ctx.Param("id")
	status, err := w.Sessions.GetStatus(ctx.Request().Context(), id)
	if err != nil {
		return sessionError(err)
	}
	info, _ := w.Sessions.GetSessionInfo(ctx.Request().Context(), id)
	return ctx.JSON(http.StatusOK, SessionStatusResponse{
		ID:          id,
		Scanned:     status.Scanned(),
		Completed:   status.Completed(),
		ScannedAt:   status.ScannedAt,
		CompletedAt: status.CompletedAt,
		Kind:        info.Kind,
		Intent:      info.Intent,
		Type:        info.Type,
	})
}

func (w Wrapper) DeleteSession(ctx echo.Context) error {
	if err := w.Sessions.DeleteSession(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return sessionError(err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (w Wrapper) MarkScanned(ctx echo.Context) error {
	return w.mark(ctx, w.Sessions.MarkScanned)
}

func (w Wrapper) MarkCompleted(ctx echo.Context) error {
	return w.mark(ctx, w.Sessions.MarkCompleted)
}

func (w Wrapper) SetOffer(ctx echo.Context) error {
	offer := new(session.Offer)
	if err := ctx.Bind(offer); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("could not parse offer: %s", err))
	}
	if err := w.Sessions.SetOffer(ctx.Request().Context(), ctx.Param("id"), *offer); err != nil {
		return sessionError(err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (w Wrapper) GetOffer(ctx echo.Context) error {
	offer, err := w.Sessions.GetOffer(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return sessionError(err)
	}
	return ctx.JSON(http.StatusOK, offer)
}

func (w Wrapper) SetRequest(ctx echo.Context) error {
	request := new(session.Request)
	if err := ctx.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("could not parse request: %s", err))
	}
	if err := w.Sessions.SetRequest(ctx.Request().Context(), ctx.Param("id"), *request); err != nil {
		return sessionError(err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (w Wrapper) GetRequest(ctx echo.Context) error {
	request, err := w.Sessions.GetRequest(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return sessionError(err)
	}
	return ctx.JSON(http.StatusOK, request)
}

func (w Wrapper) SetResponse(ctx echo.Context) error {
	response := new(session.Response)
	if err := ctx.Bind(response); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("could not parse response: %s", err))
	}
	if err := w.Sessions.SetResponse(ctx.Request().Context(), ctx.Param("id"), *response); err != nil {
		return sessionError(err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (w Wrapper) GetResponse(ctx echo.Context) error {
	response, err := w.Sessions.GetResponse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return sessionError(err)
	}
	return ctx.JSON(http.StatusOK, response)
}

func (w Wrapper) Cleanup(ctx echo.Context) error {
	deleted := w.Sessions.CleanupStaleSessions(ctx.Request().Context(), session.CleanupOptions{})
	return ctx.JSON(http.StatusOK, CleanupResponse{Deleted: deleted})
}

// RenderQR serves the session id as a PNG, the image a presenter page embeds.
func (w Wrapper) RenderQR(ctx echo.Context) error {
	id := ctx.Param("id")
	exists, err := w.Sessions.SessionExists(ctx.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !exists {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	size := 0
	if raw := ctx.QueryParam("size"); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil || size < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid size")
		}
	}
	img, err := qr.Encode(qr.Options{Text: id, Size: size})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return ctx.Blob(http.StatusOK, "image/png", buf.Bytes())
}

func (w Wrapper) mark(ctx echo.Context, op func(ctx context.Context, id string) error) error {
	if err := op(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return sessionError(err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func sessionError(err error) error {
	if errors.Is(err, session.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
