package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/pipeline"
)

const defaultFlushTimeout = 5 * time.Second

type recordSaver interface {
	SaveBatch(ctx context.Context, records []DecisionRecord) error
}

// Recorder 는 파이프라인 판정을 감사 DB에 기록한다.
// 배치 모드가 켜져 있으면 메모리에 적재한 뒤 주기적으로 플러시한다.
type Recorder struct {
	repo    *Repository
	batcher *batcher
	logger  *slog.Logger
	enabled bool
}

// NewRecorder 는 설정에 따라 배치 사용 여부를 결정해 Recorder를 생성한다.
func NewRecorder(cfg config.DatabaseConfig, repo *Repository, logger *slog.Logger) *Recorder {
	recorder := &Recorder{
		repo:    repo,
		logger:  logger,
		enabled: cfg.Enabled && repo != nil,
	}

	if recorder.enabled && cfg.AuditBatchEnabled {
		recorder.batcher = newBatcher(cfg, repo, logger)
		recorder.batcher.start()
		if logger != nil {
			logger.Info(
				"audit_batch_enabled",
				"flush_interval_seconds", cfg.AuditBatchFlushIntervalSecs,
				"flush_timeout_seconds", cfg.AuditBatchFlushTimeoutSecs,
				"max_pending_records", cfg.AuditBatchMaxPendingRecords,
			)
		}
	}

	return recorder
}

// Record 는 요청 한 건의 최종 판정을 기록한다.
// 감사 실패는 요청 처리에 영향을 주지 않는다.
func (r *Recorder) Record(ctx context.Context, result pipeline.Result) {
	if r == nil || !r.enabled {
		return
	}

	record := toRecord(result)

	if r.batcher != nil {
		r.batcher.add(record)
		return
	}

	if err := r.repo.SaveBatch(ctx, []DecisionRecord{record}); err != nil {
		if r.logger != nil {
			r.logger.Warn("audit_save_failed", "request_id", record.RequestID, "err", err)
		}
	}
}

// Close 는 배치 플러셔를 중지하고 잔여 기록을 플러시한다.
func (r *Recorder) Close() {
	if r == nil || r.batcher == nil {
		return
	}
	r.batcher.stop()
}

func toRecord(result pipeline.Result) DecisionRecord {
	stages, err := json.Marshal(result.Stages)
	if err != nil || len(stages) == 0 {
		stages = []byte("[]")
	}

	sum := sha256.Sum256([]byte(result.View.Raw))
	return DecisionRecord{
		RequestID: result.RequestID,
		InputHash: hex.EncodeToString(sum[:]),
		Verdict:   string(result.Verdict),
		State:     string(result.State),
		PolicyID:  result.PolicyID,
		Reason:    result.Reason,
		Stages:    string(stages),
		ElapsedMS: result.ElapsedMS,
		CreatedAt: result.ReceivedAt,
	}
}

// batcher 는 판정 기록을 모아 DB에 배치로 플러시한다.
type batcher struct {
	repo              recordSaver
	logger            *slog.Logger
	flushInterval     time.Duration
	flushTimeout      time.Duration
	maxPendingRecords int

	mu      sync.Mutex
	pending []DecisionRecord

	wakeup chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	consecutiveFlushFailures int
	nextFlushAllowedAt       time.Time
}

func newBatcher(cfg config.DatabaseConfig, repo recordSaver, logger *slog.Logger) *batcher {
	interval := time.Duration(cfg.AuditBatchFlushIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	flushTimeout := defaultFlushTimeout
	if cfg.AuditBatchFlushTimeoutSecs > 0 {
		flushTimeout = time.Duration(cfg.AuditBatchFlushTimeoutSecs) * time.Second
	}
	maxPending := cfg.AuditBatchMaxPendingRecords
	if maxPending <= 0 {
		maxPending = 1
	}
	return &batcher{
		repo:              repo,
		logger:            logger,
		flushInterval:     interval,
		flushTimeout:      flushTimeout,
		maxPendingRecords: maxPending,
		wakeup:            make(chan struct{}, 1),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}
}

func (b *batcher) start() {
	go b.loop()
}

func (b *batcher) stop() {
	close(b.stopCh)
	<-b.doneCh
}

func (b *batcher) add(record DecisionRecord) {
	b.mu.Lock()
	b.pending = append(b.pending, record)
	shouldFlush := len(b.pending) >= b.maxPendingRecords
	b.mu.Unlock()

	if shouldFlush {
		b.signal()
	}
}

func (b *batcher) loop() {
	ticker := time.NewTicker(b.flushInterval)
	defer func() {
		ticker.Stop()
		close(b.doneCh)
	}()

	for {
		select {
		case <-ticker.C:
			b.flush(false)
		case <-b.wakeup:
			b.flush(false)
		case <-b.stopCh:
			b.flush(true)
			return
		}
	}
}

func (b *batcher) signal() {
	select {
	case b.wakeup <- struct{}{}:
	default:
	}
}

func (b *batcher) flush(isShutdown bool) {
	if !isShutdown && !b.nextFlushAllowedAt.IsZero() && time.Now().Before(b.nextFlushAllowedAt) {
		return
	}

	b.mu.Lock()
	snapshot := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.flushTimeout)
	err := b.repo.SaveBatch(ctx, snapshot)
	cancel()

	if err != nil {
		b.registerFailure(err, len(snapshot))
		if !isShutdown {
			b.requeue(snapshot)
		}
		return
	}

	b.consecutiveFlushFailures = 0
	b.nextFlushAllowedAt = time.Time{}
}

func (b *batcher) requeue(records []DecisionRecord) {
	b.mu.Lock()
	b.pending = append(records, b.pending...)
	// 무한 적재 방지: 최대치의 4배를 넘으면 오래된 것부터 버린다.
	if limit := b.maxPendingRecords * 4; len(b.pending) > limit {
		b.pending = b.pending[len(b.pending)-limit:]
	}
	b.mu.Unlock()
}

func (b *batcher) registerFailure(err error, count int) {
	b.consecutiveFlushFailures++
	backoff := b.flushInterval * time.Duration(1<<max(0, b.consecutiveFlushFailures-1))
	if maxBackoff := b.flushInterval * 16; backoff > maxBackoff {
		backoff = maxBackoff
	}
	b.nextFlushAllowedAt = time.Now().Add(backoff)

	if b.logger != nil {
		b.logger.Warn(
			"audit_batch_flush_failed",
			"failures", b.consecutiveFlushFailures,
			"backoff", backoff,
			"records", count,
			"err", err,
		)
	}
}
