// Package history appends per-pair price, balance, and volume snapshots,
// one per traded pair per settlement batch.
package history

import "liquidityCore/internal/model"

// Storage is a sink for history entries.
type Storage interface {
	AppendEntries(entries []model.HistoryEntry) error
}
