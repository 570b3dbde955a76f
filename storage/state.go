package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cryptooracle/oraclebot/core"
	"github.com/tidwall/buntdb"
)

const (
	botStateKey       = "state:bot"
	symbolStatePrefix = "state:symbol:"

	// Index ordering states by their last write time
	updateIndexName = "update_index"
)

// ErrStateNotFound is returned when no state was persisted yet
var ErrStateNotFound = errors.New("state not found")

// StateStore persists symbol and bot state as JSON documents in BuntDB
type StateStore struct {
	db *buntdb.DB
}

// NewStateStoreFromFile creates a file-backed state store
func NewStateStoreFromFile(file string) (*StateStore, error) {
	return newStateStore(file)
}

// NewStateStoreFromMemory creates an in-memory state store, used in tests
func NewStateStoreFromMemory() (*StateStore, error) {
	return newStateStore(":memory:")
}

func newStateStore(sourceFile string) (*StateStore, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	if err := db.SetConfig(buntdb.Config{SyncPolicy: buntdb.EverySecond}); err != nil {
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}

	if err := db.CreateIndex(updateIndexName, symbolStatePrefix+"*", buntdb.IndexJSON("updated_at")); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &StateStore{db: db}, nil
}

// SaveSymbolState persists the trader state for one symbol
func (s *StateStore) SaveSymbolState(state *core.SymbolState) error {
	state.UpdatedAt = time.Now().UTC()
	return s.set(symbolStatePrefix+state.Symbol, state)
}

// LoadSymbolState restores the trader state for one symbol
func (s *StateStore) LoadSymbolState(symbol string) (*core.SymbolState, error) {
	state := &core.SymbolState{}
	if err := s.get(symbolStatePrefix+symbol, state); err != nil {
		return nil, err
	}
	return state, nil
}

// SaveBotState persists the global risk accounting
func (s *StateStore) SaveBotState(state *core.BotState) error {
	state.UpdatedAt = time.Now().UTC()
	return s.set(botStateKey, state)
}

// LoadBotState restores the global risk accounting
func (s *StateStore) LoadBotState() (*core.BotState, error) {
	state := &core.BotState{}
	if err := s.get(botStateKey, state); err != nil {
		return nil, err
	}
	return state, nil
}

// DeleteSymbolState removes a symbol's state, used on hot-reload remove
func (s *StateStore) DeleteSymbolState(symbol string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(symbolStatePrefix + symbol)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

func (s *StateStore) set(key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(payload), nil)
		return err
	})
}

func (s *StateStore) get(key string, out any) error {
	var payload string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		payload = v
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return ErrStateNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), out)
}

// Close flushes and closes the database
func (s *StateStore) Close() error {
	return s.db.Close()
}
