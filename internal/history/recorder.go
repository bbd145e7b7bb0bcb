package history

import (
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"liquidityCore/internal/model"
)

// Observation is one settled batch's view of a pair: the post-batch price
// and reference pool balances, plus the batch's fill deltas. Volume0 is
// denominated in the pair's token, Volume1 in its paired token.
type Observation struct {
	Pair     model.Pair
	Price    *big.Int
	Balance0 *big.Int
	Balance1 *big.Int
	Volume0  *big.Int
	Volume1  *big.Int
}

// Recorder accumulates cumulative per-pair volumes and appends one history
// entry per observed pair per batch.
type Recorder struct {
	storage Storage
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	volumes map[model.Pair][2]*big.Int
}

// NewRecorder builds a recorder over the given sink.
func NewRecorder(storage Storage, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		storage: storage,
		logger:  logger,
		now:     time.Now,
		volumes: make(map[model.Pair][2]*big.Int),
	}
}

// RecordBatch folds each observation's deltas into the pair's cumulative
// volumes and appends exactly one entry per pair.
func (r *Recorder) RecordBatch(observations []Observation) error {
	if len(observations) == 0 {
		return nil
	}

	r.mu.Lock()
	timestamp := r.now().Unix()
	entries := make([]model.HistoryEntry, 0, len(observations))
	for _, obs := range observations {
		cumulative, ok := r.volumes[obs.Pair]
		if !ok {
			cumulative = [2]*big.Int{big.NewInt(0), big.NewInt(0)}
			r.volumes[obs.Pair] = cumulative
		}
		if obs.Volume0 != nil {
			cumulative[0].Add(cumulative[0], obs.Volume0)
		}
		if obs.Volume1 != nil {
			cumulative[1].Add(cumulative[1], obs.Volume1)
		}

		entries = append(entries, model.HistoryEntry{
			Pair:      obs.Pair,
			Price:     copyInt(obs.Price),
			Balance0:  copyInt(obs.Balance0),
			Balance1:  copyInt(obs.Balance1),
			Volume0:   new(big.Int).Set(cumulative[0]),
			Volume1:   new(big.Int).Set(cumulative[1]),
			Timestamp: timestamp,
		})
	}
	r.mu.Unlock()

	if err := r.storage.AppendEntries(entries); err != nil {
		return err
	}

	r.logger.Debug("history recorded", zap.Int("pairs", len(entries)))
	return nil
}

// Volumes returns copies of the pair's cumulative volumes.
func (r *Recorder) Volumes(pair model.Pair) (*big.Int, *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cumulative, ok := r.volumes[pair]
	if !ok {
		return big.NewInt(0), big.NewInt(0)
	}
	return new(big.Int).Set(cumulative[0]), new(big.Int).Set(cumulative[1])
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
