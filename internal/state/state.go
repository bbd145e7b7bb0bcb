// Package state persists the whole accounting state (orders plus liquidity)
// to a single JSON file. Callers load the snapshot, apply a unit of work in
// memory, and save only when every step succeeded; a failed batch is rolled
// back by simply not saving.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"liquidityCore/internal/liquidity"
	"liquidityCore/internal/model"
	"liquidityCore/internal/orders"
	"liquidityCore/internal/token"
)

// Snapshot is the serializable content of a full accounting state.
type Snapshot struct {
	Orders    []model.Order   `json:"orders"`
	Liquidity liquidity.State `json:"liquidity"`
	Balances  []token.Holding `json:"balances,omitempty"`
	UpdatedAt string          `json:"updated_at"`
}

// Capture exports the live ledgers into a snapshot. Orders are sorted by id
// so repeated captures of the same state serialize identically. Bank may be
// nil when balances live elsewhere.
func Capture(orderLedger *orders.Ledger, liquidityLedger *liquidity.Ledger, bank *token.MemoryBank) Snapshot {
	all := orderLedger.All()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	snapshot := Snapshot{
		Orders:    all,
		Liquidity: liquidityLedger.Export(),
	}
	if bank != nil {
		snapshot.Balances = bank.Export()
	}
	return snapshot
}

// Apply loads a snapshot into the live ledgers, replacing their content.
func Apply(snapshot Snapshot, orderLedger *orders.Ledger, liquidityLedger *liquidity.Ledger, bank *token.MemoryBank) error {
	for _, order := range snapshot.Orders {
		if err := orderLedger.Put(order); err != nil {
			return fmt.Errorf("restore order: %w", err)
		}
	}
	if err := liquidityLedger.Restore(snapshot.Liquidity); err != nil {
		return fmt.Errorf("restore liquidity: %w", err)
	}
	if bank != nil {
		if err := bank.Restore(snapshot.Balances); err != nil {
			return fmt.Errorf("restore balances: %w", err)
		}
	}
	return nil
}

// FileStore persists snapshots to a local JSON file.
type FileStore struct {
	Path string
}

// Load reads the snapshot. A missing file is not an error; the second
// return reports whether a snapshot existed.
func (s *FileStore) Load() (Snapshot, bool, error) {
	if s == nil || s.Path == "" {
		return Snapshot{}, false, nil
	}

	stat, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("stat state: %w", err)
	}
	if stat.IsDir() {
		return Snapshot{}, false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read state: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("parse state: %w", err)
	}
	return snapshot, true, nil
}

// Save writes the snapshot atomically via a temp file and rename.
func (s *FileStore) Save(snapshot Snapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}

	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	snapshot.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.Path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
