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

package wallet

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nlwallet/qrflow/logging"
	"github.com/nlwallet/qrflow/pkg/session"
)

// SelectFunc asks the user to pick one card out of multiple candidates. It
// returns false when the user declines.
type SelectFunc func(candidates []Card) (Card, bool)

// ErrSelectionRequired is returned when multiple candidates match and no
// selection was made. Auto-picking among multiple candidates is never done.
var ErrSelectionRequired = errors.New("multiple matching cards, explicit selection required")

// Bridge connects the handoff machine to the wallet: completed issue flows
// add the offered card, use_card flows answer the request with a stored card
// through the session response.
type Bridge struct {
	wallet     *Wallet
	sessions   *session.Adapter
	selectCard SelectFunc
}

// NewBridge builds a bridge. selectCard may be nil, in which case only
// single-candidate matches can be shared.
func NewBridge(wallet *Wallet, sessions *session.Adapter, selectCard SelectFunc) *Bridge {
	return &Bridge{wallet: wallet, sessions: sessions, selectCard: selectCard}
}

// CardIssued stores the session's offer as a new card. A session without a
// readable offer still yields a card with the historical income defaults.
func (b *Bridge) CardIssued(ctx context.Context, sessionID string) error {
	offer, err := b.sessions.GetOffer(ctx, sessionID)
	if err != nil {
		logging.Log().WithField("sessionID", sessionID).Debug("session carries no offer, issuing default card")
		offer = session.Offer{Type: TypeIncome, Issuer: "Onbekend"}
	}
	_, err = b.wallet.Issue(offer)
	return err
}

// ShareCard answers a use_card request by writing the selected card as the
// session response. Zero candidates is a valid terminal outcome, reported as
// not_found; the wallet is left untouched either way.
func (b *Bridge) ShareCard(ctx context.Context, sessionID string, requestedType string) error {
	requested := CanonicalType(requestedType)
	candidates := b.wallet.Match(requestedType)
	if len(candidates) == 0 {
		return b.sessions.SetResponse(ctx, sessionID, session.Response{
			Outcome:       session.OutcomeNotFound,
			RequestedType: requested,
			Version:       SchemaVersion,
		})
	}

	card := candidates[0]
	if b.selectCard != nil {
		picked, ok := b.selectCard(candidates)
		if !ok {
			return ErrSelectionRequired
		}
		card = picked
	} else if len(candidates) > 1 {
		return ErrSelectionRequired
	}

	return b.sessions.SetResponse(ctx, sessionID, session.Response{
		Outcome:       session.OutcomeOK,
		Type:          CanonicalType(card.Type),
		Issuer:        card.Issuer,
		Payload:       card.Payload,
		RequestedType: requested,
		Version:       SchemaVersion,
	})
}
