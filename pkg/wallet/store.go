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
	"encoding/json"
	"os"
	"path"
	"sync"

	"github.com/pkg/errors"
)

// Settings is the second persisted document: UI preferences, currently only
// the first-run seed prompt dismissal.
type Settings struct {
	HideSeedPrompt bool `json:"hideSeedPrompt"`
}

// Store persists the two wallet documents wholesale. Every mutation rewrites
// the full document, there is no partial update.
type Store interface {
	LoadCards() (Document, error)
	SaveCards(Document) error
	LoadSettings() (Settings, error)
	SaveSettings(Settings) error
}

const (
	walletFileName   = "wallet.json"
	settingsFileName = "settings.json"
)

// FileStore keeps wallet.json and settings.json in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "could not create wallet directory")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) LoadCards() (Document, error) {
	var doc Document
	data, err := os.ReadFile(path.Join(s.dir, walletFileName))
	if os.IsNotExist(err) {
		return Document{Version: SchemaVersion}, nil
	}
	if err != nil {
		return doc, errors.Wrap(err, "could not read wallet document")
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, errors.Wrap(err, "could not parse wallet document")
	}
	return doc, nil
}

func (s *FileStore) SaveCards(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path.Join(s.dir, walletFileName), data, 0600)
}

func (s *FileStore) LoadSettings() (Settings, error) {
	var settings Settings
	data, err := os.ReadFile(path.Join(s.dir, settingsFileName))
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return settings, errors.Wrap(err, "could not read settings document")
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return settings, errors.Wrap(err, "could not parse settings document")
	}
	return settings, nil
}

func (s *FileStore) SaveSettings(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path.Join(s.dir, settingsFileName), data, 0600)
}

// MemoryStore is the in-memory Store, used in tests and ephemeral setups.
type MemoryStore struct {
	mutex    sync.Mutex
	doc      Document
	settings Settings
	hasDoc   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadCards() (Document, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.hasDoc {
		return Document{Version: SchemaVersion}, nil
	}
	return s.doc, nil
}

func (s *MemoryStore) SaveCards(doc Document) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.doc = doc
	s.hasDoc = true
	return nil
}

func (s *MemoryStore) LoadSettings() (Settings, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.settings, nil
}

func (s *MemoryStore) SaveSettings(settings Settings) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.settings = settings
	return nil
}
