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
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlwallet/qrflow/pkg/session"
	"github.com/nlwallet/qrflow/pkg/store"
)

type testServer struct {
	router   *echo.Echo
	sessions *session.Adapter
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	sessions := session.NewAdapter(store.NewMemoryTree())
	router := echo.New()
	Wrapper{Sessions: sessions}.Routes(router)
	return testServer{router: router, sessions: sessions}
}

func (s testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestWrapper_CreateAndGetSession(t *testing.T) {
	server := newTestServer(t)

	rec := server.do(http.MethodPost, "/api/sessions", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = server.do(http.MethodGet, "/api/sessions/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status SessionStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, created.ID, status.ID)
	assert.False(t, status.Scanned)
	assert.False(t, status.Completed)
}

func TestWrapper_GetSessionNotFound(t *testing.T) {
	server := newTestServer(t)
	rec := server.do(http.MethodGet, "/api/sessions/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWrapper_MarkEndpoints(t *testing.T) {
	server := newTestServer(t)
	id, err := server.sessions.CreateSession(context.Background(), "", session.DefaultTTL)
	require.NoError(t, err)

	require.Equal(t, http.StatusNoContent, server.do(http.MethodPut, "/api/sessions/"+id+"/scanned", "").Code)
	require.Equal(t, http.StatusNoContent, server.do(http.MethodPut, "/api/sessions/"+id+"/completed", "").Code)

	status, err := server.sessions.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, status.Scanned())
	assert.True(t, status.Completed())
}

func TestWrapper_OfferRoundTrip(t *testing.T) {
	server := newTestServer(t)
	id, err := server.sessions.CreateSession(context.Background(), "", session.DefaultTTL)
	require.NoError(t, err)

	body := `{"type":"INKOMEN","issuer":"Belastingdienst","payload":{"bruto_jaarinkomen":42000},"version":2}`
	require.Equal(t, http.StatusNoContent, server.do(http.MethodPut, "/api/sessions/"+id+"/offer", body).Code)

	rec := server.do(http.MethodGet, "/api/sessions/"+id+"/offer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var offer session.Offer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &offer))
	assert.Equal(t, "INKOMEN", offer.Type)
	assert.Equal(t, float64(42000), offer.Payload["bruto_jaarinkomen"])

	// Setting an offer mirrors the fast classification fields.
	var status SessionStatusResponse
	rec = server.do(http.MethodGet, "/api/sessions/"+id, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, session.KindOffer, status.Kind)
	assert.Equal(t, "INKOMEN", status.Type)
}

func TestWrapper_ResponseNotFoundMapping(t *testing.T) {
	server := newTestServer(t)
	id, err := server.sessions.CreateSession(context.Background(), "", session.DefaultTTL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, server.do(http.MethodGet, "/api/sessions/"+id+"/response", "").Code)

	body := `{"outcome":"not_found","requestedType":"NVM_LIDMAATSCHAP","version":2}`
	require.Equal(t, http.StatusNoContent, server.do(http.MethodPut, "/api/sessions/"+id+"/response", body).Code)

	rec := server.do(http.MethodGet, "/api/sessions/"+id+"/response", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var response session.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, session.OutcomeNotFound, response.Outcome)
	assert.Equal(t, "NVM_LIDMAATSCHAP", response.RequestedType)
}

func TestWrapper_DeleteSession(t *testing.T) {
	server := newTestServer(t)
	id, err := server.sessions.CreateSession(context.Background(), "", session.DefaultTTL)
	require.NoError(t, err)

	require.Equal(t, http.StatusNoContent, server.do(http.MethodDelete, "/api/sessions/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, server.do(http.MethodGet, "/api/sessions/"+id, "").Code)
	// Idempotent, a second delete is fine.
	assert.Equal(t, http.StatusNoContent, server.do(http.MethodDelete, "/api/sessions/"+id, "").Code)
}

func TestWrapper_RenderQR(t *testing.T) {
	server := newTestServer(t)
	id, err := server.sessions.CreateSession(context.Background(), "", session.DefaultTTL)
	require.NoError(t, err)

	rec := server.do(http.MethodGet, "/api/sessions/"+id+"/qr.png?size=256", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())

	t.Run("unknown session", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, server.do(http.MethodGet, "/api/sessions/nope/qr.png", "").Code)
	})

	t.Run("invalid size", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, server.do(http.MethodGet, "/api/sessions/"+id+"/qr.png?size=abc", "").Code)
	})
}

func TestWrapper_Cleanup(t *testing.T) {
	server := newTestServer(t)
	rec := server.do(http.MethodPost, "/api/sessions/cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result CleanupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Deleted)
}
