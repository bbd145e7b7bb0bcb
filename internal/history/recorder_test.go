package history

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquidityCore/internal/model"
)

type memorySink struct {
	entries []model.HistoryEntry
}

func (s *memorySink) AppendEntries(entries []model.HistoryEntry) error {
	s.entries = append(s.entries, entries...)
	return nil
}

var testPair = model.Pair{
	Token:  common.HexToAddress("0xa1"),
	Paired: common.HexToAddress("0xb2"),
}

func TestRecordBatchAccumulatesVolumes(t *testing.T) {
	sink := &memorySink{}
	recorder := NewRecorder(sink, nil)

	obs := Observation{
		Pair:     testPair,
		Price:    big.NewInt(100),
		Balance0: big.NewInt(1000),
		Balance1: big.NewInt(2000),
		Volume0:  big.NewInt(10),
		Volume1:  big.NewInt(9),
	}
	if err := recorder.RecordBatch([]Observation{obs}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := recorder.RecordBatch([]Observation{obs}); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	if len(sink.entries) != 2 {
		t.Fatalf("one entry per batch expected: %d", len(sink.entries))
	}
	last := sink.entries[1]
	if last.Volume0.Cmp(big.NewInt(20)) != 0 || last.Volume1.Cmp(big.NewInt(18)) != 0 {
		t.Fatalf("volumes must be cumulative: %s, %s", last.Volume0, last.Volume1)
	}

	vol0, vol1 := recorder.Volumes(testPair)
	if vol0.Cmp(big.NewInt(20)) != 0 || vol1.Cmp(big.NewInt(18)) != 0 {
		t.Fatalf("recorder volumes mismatch: %s, %s", vol0, vol1)
	}
}

func TestRecordBatchEmptyIsNoOp(t *testing.T) {
	sink := &memorySink{}
	recorder := NewRecorder(sink, nil)

	if err := recorder.RecordBatch(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if len(sink.entries) != 0 {
		t.Fatalf("no entries expected: %d", len(sink.entries))
	}
}
