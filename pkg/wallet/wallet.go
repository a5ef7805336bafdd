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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nlwallet/qrflow/logging"
	"github.com/nlwallet/qrflow/pkg/session"
)

// NowFunc returns the current time. It can be replaced to mock time in tests.
var NowFunc = time.Now

// DefaultValidity is the validity window of a newly issued card.
const DefaultValidity = time.Duration(yearInMillis) * time.Millisecond

// ErrCardNotFound is returned when an operation references an unknown card id.
var ErrCardNotFound = errors.New("card not found")

// Wallet is the credential card collection with its reconciliation rules.
// The collection and the settings document are rewritten wholesale on every
// mutation.
type Wallet struct {
	store Store

	mutex    sync.Mutex
	cards    []Card
	settings Settings
}

// Load reads both documents from the store and runs the one-time schema
// migration, persisting the upgraded document right away so the migration
// never runs twice.
func Load(store Store) (*Wallet, error) {
	doc, err := store.LoadCards()
	if err != nil {
		return nil, err
	}
	if migrate(&doc, NowFunc()) {
		if err := store.SaveCards(doc); err != nil {
			return nil, errors.Wrap(err, "could not persist migrated wallet")
		}
		logging.Log().WithField("cards", len(doc.Cards)).Info("migrated wallet document")
	}
	settings, err := store.LoadSettings()
	if err != nil {
		return nil, err
	}
	return &Wallet{store: store, cards: doc.Cards, settings: settings}, nil
}

// Cards returns a copy of the card collection.
func (w *Wallet) Cards() []Card {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	cards := make([]Card, len(w.cards))
	copy(cards, w.cards)
	return cards
}

// Settings returns the current settings document.
func (w *Wallet) Settings() Settings {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.settings
}

// DismissSeedPrompt marks the first-run seed prompt as answered.
func (w *Wallet) DismissSeedPrompt() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.settings.HideSeedPrompt = true
	return w.store.SaveSettings(w.settings)
}

// Issue appends a new card built from an offer, valid for DefaultValidity
// from now. Missing offer fields get the historical defaults.
func (w *Wallet) Issue(offer session.Offer) (Card, error) {
	now := NowFunc()
	typ := CanonicalType(offer.Type)
	if typ == "" {
		typ = TypeIncome
	}
	issuer := offer.Issuer
	if issuer == "" {
		issuer = "Onbekend"
	}
	card := Card{
		ID:        fmt.Sprintf("%s-%d", typ, now.UnixMilli()),
		Type:      typ,
		Issuer:    issuer,
		IssuedAt:  At(now),
		ExpiresAt: At(now.Add(DefaultValidity)),
		Payload:   offer.Payload,
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.cards = append(w.cards, card)
	return card, w.save()
}

// Renew resets a card's validity window in place.
func (w *Wallet) Renew(id string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	for i := range w.cards {
		if w.cards[i].ID != id {
			continue
		}
		now := NowFunc()
		w.cards[i].IssuedAt = At(now)
		w.cards[i].ExpiresAt = At(now.Add(DefaultValidity))
		return w.save()
	}
	return ErrCardNotFound
}

// Remove deletes a card by id. When the removal empties the wallet the seed
// prompt stays dismissed: an intentionally emptied wallet is not a first run.
func (w *Wallet) Remove(id string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	kept := w.cards[:0]
	found := false
	for _, card := range w.cards {
		if card.ID == id {
			found = true
			continue
		}
		kept = append(kept, card)
	}
	if !found {
		return ErrCardNotFound
	}
	w.cards = kept
	if len(w.cards) == 0 {
		w.settings.HideSeedPrompt = true
		if err := w.store.SaveSettings(w.settings); err != nil {
			return err
		}
	}
	return w.save()
}

// Clear empties the wallet and re-arms the first-run seed prompt.
func (w *Wallet) Clear() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.cards = nil
	w.settings.HideSeedPrompt = false
	if err := w.store.SaveSettings(w.settings); err != nil {
		return err
	}
	return w.save()
}

// Seed appends the given starter cards, only PID and BSN types are accepted,
// and dismisses the seed prompt.
func (w *Wallet) Seed(cards []Card) error {
	now := NowFunc()
	selected := make([]Card, 0, len(cards))
	for i, card := range cards {
		card.Type = CanonicalType(card.Type)
		if card.Type != TypePID && card.Type != TypeBSN {
			continue
		}
		if card.ID == "" {
			card.ID = fmt.Sprintf("%s-%d", card.Type, now.UnixMilli()+int64(i))
		}
		selected = append(selected, card)
	}
	if len(selected) == 0 {
		return errors.New("no PID/BSN cards in seed set")
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.cards = append(w.cards, selected...)
	w.settings.HideSeedPrompt = true
	if err := w.store.SaveSettings(w.settings); err != nil {
		return err
	}
	return w.save()
}

// SeedDefaults seeds the built-in PID and BSN starter cards.
func (w *Wallet) SeedDefaults() error {
	return w.Seed(defaultSeedCards())
}

func defaultSeedCards() []Card {
	return []Card{
		{
			Type:   TypePID,
			Issuer: "Gemeente",
			Payload: map[string]interface{}{
				"given_name":  "Willeke Liselotte",
				"family_name": "De Bruijn",
				"birth_date":  "1997-03-10",
				"age_over_18": true,
			},
		},
		{
			Type:   TypeBSN,
			Issuer: "Rijksoverheid",
			Payload: map[string]interface{}{
				"bsn": "999991772",
			},
		},
	}
}

// incomePayloadFields identify an income credential by payload shape when the
// type label itself does not match.
var incomePayloadFields = []string{
	"bruto_jaarinkomen",
	"toetsingsinkomen",
	"sv_loon",
	"inkomen",
}

// Match returns the candidate cards for a requested type. Matching is by
// canonical type equality. Two special cases widen the net: an income-like
// request with zero exact matches falls back to payload shape, and an empty
// requested type with exactly one card overall treats that card as the sole
// candidate. Zero candidates is a valid outcome, never padded with unrelated
// cards. The caller surfaces multiple candidates to the user for selection.
func (w *Wallet) Match(requestedType string) []Card {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	requested := CanonicalType(requestedType)
	if requested == "" {
		if len(w.cards) == 1 {
			return []Card{w.cards[0]}
		}
		return nil
	}

	var matches []Card
	for _, card := range w.cards {
		if CanonicalType(card.Type) == requested {
			matches = append(matches, card)
		}
	}
	if len(matches) == 0 && isIncomeLike(requested) {
		for _, card := range w.cards {
			if hasIncomePayload(card.Payload) {
				matches = append(matches, card)
			}
		}
	}
	return matches
}

func isIncomeLike(canonical string) bool {
	return strings.Contains(canonical, TypeIncome)
}

func hasIncomePayload(payload map[string]interface{}) bool {
	for _, field := range incomePayloadFields {
		if _, ok := payload[field]; ok {
			return true
		}
	}
	return false
}

// save persists the card collection, caller holds the mutex.
func (w *Wallet) save() error {
	return w.store.SaveCards(Document{Version: SchemaVersion, Cards: w.cards})
}
