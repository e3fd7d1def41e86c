// Package storage provides SQLite-backed persistence for the ladder state
// and the signal/decision history.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/arlenko/marketsentry/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db         *sql.DB
	maxHistory int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/marketsentry/data.db.
func New(maxHistory int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "marketsentry", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxHistory: maxHistory}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ladder_state (
			id                  INTEGER PRIMARY KEY CHECK (id = 1),
			last_purchase_price REAL NOT NULL DEFAULT 0,
			first_rung_price    REAL NOT NULL DEFAULT 0,
			cumulative_deployed REAL NOT NULL DEFAULT 0,
			next_buy_index      INTEGER NOT NULL DEFAULT 1,
			year                INTEGER NOT NULL,
			updated_at          INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id                TEXT PRIMARY KEY,
			direction         TEXT NOT NULL,
			symbol            TEXT,
			fractal_dimension REAL NOT NULL,
			sentiment_proxy   REAL NOT NULL,
			volatility_index  REAL NOT NULL,
			regime            TEXT NOT NULL,
			as_of             INTEGER NOT NULL,
			entry             REAL NOT NULL,
			stop_loss         REAL NOT NULL,
			target            REAL NOT NULL,
			position_size_pct REAL NOT NULL,
			rationale         TEXT,
			created_at        INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS buy_decisions (
			id           TEXT PRIMARY KEY,
			triggered    INTEGER NOT NULL,
			amount       REAL NOT NULL,
			drawdown_pct REAL NOT NULL,
			reason       TEXT NOT NULL,
			price        REAL NOT NULL,
			as_of        INTEGER NOT NULL,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON buy_decisions(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveLadderState replaces the single persisted ladder state record.
// The full row is written in one statement so a reader never observes a
// partially updated record.
func (s *Storage) SaveLadderState(state models.LadderState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("invalid ladder state: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO ladder_state
			(id, last_purchase_price, first_rung_price, cumulative_deployed,
			 next_buy_index, year, updated_at)
		VALUES (1,?,?,?,?,?,?)`,
		state.LastPurchasePrice, state.FirstRungPrice, state.CumulativeDeployed,
		state.NextBuyIndex, state.Year, state.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save ladder state: %w", err)
	}
	return nil
}

// LoadLadderState reads the persisted ladder state. The second return is
// false when no state has been saved yet.
func (s *Storage) LoadLadderState() (models.LadderState, bool, error) {
	row := s.db.QueryRow(`
		SELECT last_purchase_price, first_rung_price, cumulative_deployed,
		       next_buy_index, year, updated_at
		FROM ladder_state WHERE id = 1`)

	var state models.LadderState
	var updatedAtNano int64
	err := row.Scan(
		&state.LastPurchasePrice, &state.FirstRungPrice, &state.CumulativeDeployed,
		&state.NextBuyIndex, &state.Year, &updatedAtNano,
	)
	if err == sql.ErrNoRows {
		return models.LadderState{}, false, nil
	}
	if err != nil {
		return models.LadderState{}, false, fmt.Errorf("failed to load ladder state: %w", err)
	}
	state.UpdatedAt = time.Unix(0, updatedAtNano)
	return state, true, nil
}

// AddSignal records one signal evaluation, including no-signal runs.
func (s *Storage) AddSignal(sig models.Signal) error {
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("invalid signal: %w", err)
	}
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO signals
			(id, direction, symbol, fractal_dimension, sentiment_proxy,
			 volatility_index, regime, as_of, entry, stop_loss, target,
			 position_size_pct, rationale, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sig.ID, sig.Direction.String(), sig.Symbol,
		sig.Indicators.FractalDimension, sig.Indicators.SentimentProxy,
		sig.Indicators.VolatilityIndex, sig.Indicators.Regime.String(),
		sig.Indicators.AsOf.UnixNano(),
		sig.Entry, sig.StopLoss, sig.Target, sig.PositionSizePct,
		sig.Rationale, sig.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// RecentSignals returns up to k signals, newest first.
func (s *Storage) RecentSignals(k int) ([]models.Signal, error) {
	rows, err := s.db.Query(`
		SELECT id, direction, symbol, fractal_dimension, sentiment_proxy,
		       volatility_index, regime, as_of, entry, stop_loss, target,
		       position_size_pct, rationale, created_at
		FROM signals ORDER BY created_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []models.Signal
	for rows.Next() {
		var sig models.Signal
		var direction, regime string
		var asOfNano, createdAtNano int64
		err := rows.Scan(
			&sig.ID, &direction, &sig.Symbol,
			&sig.Indicators.FractalDimension, &sig.Indicators.SentimentProxy,
			&sig.Indicators.VolatilityIndex, &regime, &asOfNano,
			&sig.Entry, &sig.StopLoss, &sig.Target,
			&sig.PositionSizePct, &sig.Rationale, &createdAtNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		sig.Direction = parseDirection(direction)
		sig.Indicators.Regime, _ = models.ParseRegimeLabel(regime)
		sig.Indicators.AsOf = time.Unix(0, asOfNano)
		sig.CreatedAt = time.Unix(0, createdAtNano)
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// AddBuyDecision records one ladder evaluation outcome.
func (s *Storage) AddBuyDecision(dec models.BuyDecision) error {
	if dec.ID == "" {
		dec.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO buy_decisions
			(id, triggered, amount, drawdown_pct, reason, price, as_of, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		dec.ID, boolToInt(dec.Triggered), dec.Amount, dec.DrawdownPct,
		dec.Reason, dec.Price, dec.AsOf.UnixNano(), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert buy decision: %w", err)
	}
	return nil
}

// RecentBuyDecisions returns up to k decisions, newest first.
func (s *Storage) RecentBuyDecisions(k int) ([]models.BuyDecision, error) {
	rows, err := s.db.Query(`
		SELECT id, triggered, amount, drawdown_pct, reason, price, as_of
		FROM buy_decisions ORDER BY created_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query buy decisions: %w", err)
	}
	defer rows.Close()

	var decisions []models.BuyDecision
	for rows.Next() {
		var dec models.BuyDecision
		var triggered int
		var asOfNano int64
		err := rows.Scan(
			&dec.ID, &triggered, &dec.Amount, &dec.DrawdownPct,
			&dec.Reason, &dec.Price, &asOfNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan buy decision: %w", err)
		}
		dec.Triggered = triggered != 0
		dec.AsOf = time.Unix(0, asOfNano)
		decisions = append(decisions, dec)
	}
	return decisions, rows.Err()
}

// RotateHistory keeps at most maxHistory newest rows in each history table.
func (s *Storage) RotateHistory() error {
	stmts := []string{
		`DELETE FROM signals WHERE id NOT IN (
			SELECT id FROM signals ORDER BY created_at DESC LIMIT ?
		)`,
		`DELETE FROM buy_decisions WHERE id NOT IN (
			SELECT id FROM buy_decisions ORDER BY created_at DESC LIMIT ?
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt, s.maxHistory); err != nil {
			return fmt.Errorf("failed to rotate history: %w", err)
		}
	}
	return nil
}

func parseDirection(s string) models.Direction {
	switch s {
	case "LONG":
		return models.DirectionLong
	case "SHORT":
		return models.DirectionShort
	default:
		return models.DirectionNone
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
