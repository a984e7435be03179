package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/guardian"
	"github.com/park285/svalinn-gateway-go/internal/normalizer"
	"github.com/park285/svalinn-gateway-go/internal/pipeline"
)

type fakeSaver struct {
	mu      sync.Mutex
	batches [][]DecisionRecord
	err     error
}

func (f *fakeSaver) SaveBatch(_ context.Context, records []DecisionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	batch := make([]DecisionRecord, len(records))
	copy(batch, records)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeSaver) saved() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, batch := range f.batches {
		total += len(batch)
	}
	return total
}

func sampleResult(id string) pipeline.Result {
	return pipeline.Result{
		RequestID:  id,
		ReceivedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		State:      pipeline.StateBlocked,
		Verdict:    guardian.KindUnsafe,
		Blocked:    true,
		PolicyID:   "competitors",
		Reason:     "policy match",
		View:       normalizer.View{Raw: "apple sucks", Text: "apple sucks"},
		Stages: []pipeline.StageRecord{
			{Stage: pipeline.StageInputGuardian, Kind: guardian.KindUnsafe, DurationMS: 12},
		},
		ElapsedMS: 15,
	}
}

func TestToRecordMapsResult(t *testing.T) {
	record := toRecord(sampleResult("r1"))

	if record.RequestID != "r1" || record.Verdict != "UNSAFE" || record.State != "BLOCKED" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.InputHash == "" || record.InputHash == "apple sucks" {
		t.Fatalf("input must be hashed, got %q", record.InputHash)
	}
	if len(record.InputHash) != 64 {
		t.Fatalf("unexpected hash length: %q", record.InputHash)
	}
	if record.Stages == "" || record.Stages == "[]" {
		t.Fatalf("expected serialized stages, got %q", record.Stages)
	}
	if !record.CreatedAt.Equal(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected arrival time carried into record, got %v", record.CreatedAt)
	}
}

func TestBatcherFlushesWhenPendingLimitReached(t *testing.T) {
	saver := &fakeSaver{}
	b := newBatcher(config.DatabaseConfig{
		AuditBatchEnabled:           true,
		AuditBatchFlushIntervalSecs: 60,
		AuditBatchMaxPendingRecords: 2,
	}, saver, nil)
	b.start()
	defer b.stop()

	b.add(toRecord(sampleResult("r1")))
	b.add(toRecord(sampleResult("r2")))

	deadline := time.Now().Add(2 * time.Second)
	for saver.saved() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 saved records, got %d", saver.saved())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBatcherFlushesOnStop(t *testing.T) {
	saver := &fakeSaver{}
	b := newBatcher(config.DatabaseConfig{
		AuditBatchEnabled:           true,
		AuditBatchFlushIntervalSecs: 60,
		AuditBatchMaxPendingRecords: 100,
	}, saver, nil)
	b.start()

	b.add(toRecord(sampleResult("r1")))
	b.stop()

	if saver.saved() != 1 {
		t.Fatalf("expected shutdown flush, got %d records", saver.saved())
	}
}

func TestBatcherRequeuesOnFailure(t *testing.T) {
	saver := &fakeSaver{err: errors.New("db down")}
	b := newBatcher(config.DatabaseConfig{
		AuditBatchEnabled:           true,
		AuditBatchFlushIntervalSecs: 60,
		AuditBatchMaxPendingRecords: 100,
	}, saver, nil)

	b.add(toRecord(sampleResult("r1")))
	b.flush(false)

	b.mu.Lock()
	pending := len(b.pending)
	b.mu.Unlock()
	if pending != 1 {
		t.Fatalf("expected failed record to be requeued, got %d pending", pending)
	}

	// 복구 후 재플러시는 성공해야 한다.
	saver.mu.Lock()
	saver.err = nil
	saver.mu.Unlock()
	b.nextFlushAllowedAt = time.Time{}
	b.flush(false)

	if saver.saved() != 1 {
		t.Fatalf("expected record after recovery, got %d", saver.saved())
	}
}

func TestRecorderDisabledIsNoop(t *testing.T) {
	r := NewRecorder(config.DatabaseConfig{Enabled: false}, nil, nil)
	r.Record(context.Background(), sampleResult("r1"))
	r.Close()
}
