package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// stageStats 는 단계별 호출 통계다.
type stageStats struct {
	calls      int64
	errors     int64
	durationMs int64
}

// Store 는 파이프라인 판정 통계를 저장한다. 모든 카운터는 원자적이다.
type Store struct {
	totalRequests int64
	totalSafe     int64
	totalUnsafe   int64
	totalErrors   int64
	cacheHits     int64
	totalTokens   int64

	mu     sync.RWMutex
	stages map[string]*stageStats
}

// NewStore 는 통계 저장소를 생성한다.
func NewStore() *Store {
	return &Store{stages: make(map[string]*stageStats)}
}

// RecordVerdict 는 최종 판정 한 건을 기록한다. verdict 는 SAFE/UNSAFE/ERROR.
func (s *Store) RecordVerdict(verdict string) {
	atomic.AddInt64(&s.totalRequests, 1)
	switch verdict {
	case "SAFE":
		atomic.AddInt64(&s.totalSafe, 1)
	case "UNSAFE":
		atomic.AddInt64(&s.totalUnsafe, 1)
	default:
		atomic.AddInt64(&s.totalErrors, 1)
	}
}

// RecordStage 는 단계별 수행 시간과 실패 여부를 기록한다.
func (s *Store) RecordStage(stage string, duration time.Duration, failed bool) {
	stats := s.stage(stage)
	atomic.AddInt64(&stats.calls, 1)
	atomic.AddInt64(&stats.durationMs, duration.Milliseconds())
	if failed {
		atomic.AddInt64(&stats.errors, 1)
	}
}

// RecordCacheHit 은 판정 캐시 적중을 기록한다.
func (s *Store) RecordCacheHit() {
	atomic.AddInt64(&s.cacheHits, 1)
}

// RecordTokens 는 누적 토큰 사용량을 기록한다.
func (s *Store) RecordTokens(total int) {
	atomic.AddInt64(&s.totalTokens, int64(total))
}

func (s *Store) stage(name string) *stageStats {
	s.mu.RLock()
	stats, ok := s.stages[name]
	s.mu.RUnlock()
	if ok {
		return stats
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if stats, ok = s.stages[name]; ok {
		return stats
	}
	stats = &stageStats{}
	s.stages[name] = stats
	return stats
}

// Snapshot 는 통계 스냅샷을 반환한다.
func (s *Store) Snapshot() map[string]float64 {
	snapshot := map[string]float64{
		"total_requests": float64(atomic.LoadInt64(&s.totalRequests)),
		"total_safe":     float64(atomic.LoadInt64(&s.totalSafe)),
		"total_unsafe":   float64(atomic.LoadInt64(&s.totalUnsafe)),
		"total_errors":   float64(atomic.LoadInt64(&s.totalErrors)),
		"cache_hits":     float64(atomic.LoadInt64(&s.cacheHits)),
		"total_tokens":   float64(atomic.LoadInt64(&s.totalTokens)),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, stats := range s.stages {
		calls := atomic.LoadInt64(&stats.calls)
		durationMs := atomic.LoadInt64(&stats.durationMs)
		snapshot["stage_"+name+"_calls"] = float64(calls)
		snapshot["stage_"+name+"_errors"] = float64(atomic.LoadInt64(&stats.errors))
		if calls > 0 {
			snapshot["stage_"+name+"_avg_ms"] = float64(durationMs) / float64(calls)
		}
	}
	return snapshot
}
