// Package storage persists the market state record and the player ledger in SQLite.
//
// The market state is stored wholesale as one JSON document and overwritten on
// every save. Loading is lenient: each top-level field is decoded on its own,
// so a malformed field is dropped (and defaulted by the engine) instead of
// discarding the whole record. Storage can also export everything to a JSON
// file using an atomic temp-file-and-rename write.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/imperium/internal/logger"
	"github.com/rewired-gh/imperium/internal/models"
)

var log = logger.Named("storage")

// Storage provides thread-safe SQLite-backed persistence
type Storage struct {
	db *sqlx.DB
	mu sync.Mutex
}

// ExportFile represents the file structure for JSON export
type ExportFile struct {
	Version  string              `json:"version"`
	SavedAt  time.Time           `json:"saved_at"`
	Market   *models.MarketState `json:"market"`
	Balances map[string]float64  `json:"balances"`
}

// New opens (or creates) the database at dbPath. Use ":memory:" for a private
// in-memory database.
func New(dbPath string) (*Storage, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dsn = dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS market_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_balances (
		resource TEXT PRIMARY KEY,
		amount REAL NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveMarketState overwrites the stored market state.
func (s *Storage) SaveMarketState(state *models.MarketState) error {
	data, err := encodeMarketState(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeMarketState(s.db, data)
}

// SaveSnapshot overwrites the market state and every ledger balance in one
// transaction, so a crash never leaves one without the other.
func (s *Storage) SaveSnapshot(state *models.MarketState, balances map[string]float64) error {
	data, err := encodeMarketState(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeMarketState(tx, data); err != nil {
		return err
	}
	if err := writeBalances(tx, balances); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// BalanceSource supplies the ledger balances written with each market state.
type BalanceSource interface {
	Balances() map[string]float64
}

// SnapshotStore saves the ledger together with every market state write.
type SnapshotStore struct {
	storage *Storage
	ledger  BalanceSource
}

// WithLedger returns a store whose market state saves also persist l's balances.
func (s *Storage) WithLedger(l BalanceSource) *SnapshotStore {
	return &SnapshotStore{storage: s, ledger: l}
}

// SaveMarketState writes state and the current ledger balances atomically.
func (w *SnapshotStore) SaveMarketState(state *models.MarketState) error {
	return w.storage.SaveSnapshot(state, w.ledger.Balances())
}

func encodeMarketState(state *models.MarketState) ([]byte, error) {
	if state == nil {
		return nil, errors.New("market state must not be nil")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal market state: %w", err)
	}
	return data, nil
}

func writeMarketState(ex sqlx.Execer, data []byte) error {
	_, err := ex.Exec(
		"INSERT OR REPLACE INTO market_state (id, data, saved_at) VALUES (1, ?, ?)",
		string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save market state: %w", err)
	}
	return nil
}

func writeBalances(ex sqlx.Execer, balances map[string]float64) error {
	if _, err := ex.Exec("DELETE FROM ledger_balances"); err != nil {
		return fmt.Errorf("failed to clear balances: %w", err)
	}
	for resource, amount := range balances {
		if _, err := ex.Exec(
			"INSERT INTO ledger_balances (resource, amount) VALUES (?, ?)",
			resource, amount,
		); err != nil {
			return fmt.Errorf("failed to save balance %s: %w", resource, err)
		}
	}
	return nil
}

// LoadMarketState returns the stored market state, or nil when nothing has been saved.
func (s *Storage) LoadMarketState() (*models.MarketState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.Get(&data, "SELECT data FROM market_state WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load market state: %w", err)
	}
	return DecodeMarketState([]byte(data))
}

// DecodeMarketState decodes a market state document field by field. Fields
// that fail to decode are logged and left at their zero value.
func DecodeMarketState(data []byte) (*models.MarketState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal market state: %w", err)
	}

	state := &models.MarketState{}
	decode := func(name string, dst interface{}) {
		raw, ok := fields[name]
		if !ok {
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			log.Warnf("ignoring malformed field %s: %v", name, err)
		}
	}
	decode("marketPrices", &state.MarketPrices)
	decode("priceHistory", &state.PriceHistory)
	decode("lastMarketUpdate", &state.LastMarketUpdate)
	decode("tradingSkill", &state.TradingSkill)
	decode("reputation", &state.Reputation)
	decode("tradeRoutes", &state.TradeRoutes)
	decode("news", &state.News)
	return state, nil
}

// SaveBalances replaces all stored ledger balances.
func (s *Storage) SaveBalances(balances map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeBalances(tx, balances); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadBalances returns all stored ledger balances.
func (s *Storage) LoadBalances() (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []struct {
		Resource string  `db:"resource"`
		Amount   float64 `db:"amount"`
	}
	if err := s.db.Select(&rows, "SELECT resource, amount FROM ledger_balances"); err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.Resource] = r.Amount
	}
	return out, nil
}

// ExportJSON writes the stored market state and balances to path atomically.
func (s *Storage) ExportJSON(path string, filePermissions, dirPermissions os.FileMode) error {
	state, err := s.LoadMarketState()
	if err != nil {
		return err
	}
	balances, err := s.LoadBalances()
	if err != nil {
		return err
	}

	// Create export directory if needed
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	data := ExportFile{
		Version:  "1.0",
		SavedAt:  time.Now(),
		Market:   state,
		Balances: balances,
	}
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}

	// Write to temporary file first (atomic write)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, jsonData, filePermissions); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath) // Clean up temp file on rename failure
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// ImportJSON loads an export file written by ExportJSON and stores its contents.
func (s *Storage) ImportJSON(path string) error {
	// Clean up any stale temp files from previous crashes
	tempPath := path + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	var file struct {
		Version  string             `json:"version"`
		Market   json.RawMessage    `json:"market"`
		Balances map[string]float64 `json:"balances"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to unmarshal export: %w", err)
	}
	if file.Version != "" && !strings.HasPrefix(file.Version, "1.") {
		return fmt.Errorf("unsupported export version %q", file.Version)
	}

	if len(file.Market) > 0 && string(file.Market) != "null" {
		state, err := DecodeMarketState(file.Market)
		if err != nil {
			return err
		}
		return s.SaveSnapshot(state, file.Balances)
	}
	return s.SaveBalances(file.Balances)
}
