package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/park285/svalinn-gateway-go/internal/config"
)

// Repository 는 감사 기록 DB 접근을 담당한다.
// 연결은 첫 사용 시점에 수립되고 스키마를 보장한다.
type Repository struct {
	cfg    config.DatabaseConfig
	logger *slog.Logger
	mu     sync.Mutex
	db     *gorm.DB
	sqlDB  *sql.DB
}

// NewRepository 는 감사 저장소를 생성한다.
func NewRepository(cfg config.DatabaseConfig, logger *slog.Logger) *Repository {
	return &Repository{cfg: cfg, logger: logger}
}

// SaveBatch 는 판정 기록 묶음을 저장한다.
func (r *Repository) SaveBatch(ctx context.Context, records []DecisionRecord) error {
	if len(records) == 0 {
		return nil
	}
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).CreateInBatches(records, 100).Error
}

// RecentDecisions 는 최근 판정 기록을 조회한다. (운영 조회용)
func (r *Repository) RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var rows []DecisionRecord
	if err := db.WithContext(ctx).Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountByVerdict 는 특정 시점 이후의 판정별 건수를 집계한다.
func (r *Repository) CountByVerdict(ctx context.Context, since time.Time) (map[string]int64, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	type row struct {
		Verdict string
		Count   int64
	}
	var rows []row
	if err := db.WithContext(ctx).
		Model(&DecisionRecord{}).
		Select("verdict, count(*) as count").
		Where("created_at >= ?", since).
		Group("verdict").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Verdict] = r.Count
	}
	return counts, nil
}

// Ping 은 DB 연결을 확인한다.
func (r *Repository) Ping(ctx context.Context) error {
	_, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	sqlDB := r.sqlDB
	r.mu.Unlock()
	if sqlDB == nil {
		return errors.New("audit db not connected")
	}
	return sqlDB.PingContext(ctx)
}

// Close 는 DB 연결을 닫는다.
func (r *Repository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sqlDB == nil {
		return
	}
	_ = r.sqlDB.Close()
	r.sqlDB = nil
	r.db = nil
}

func (r *Repository) getDB(ctx context.Context) (*gorm.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		return r.db, nil
	}
	if !r.cfg.Enabled {
		return nil, errors.New("audit db disabled")
	}

	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	db, err := gorm.Open(postgres.Open(r.cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if schemaErr := ensureAuditSchema(db); schemaErr != nil {
		return nil, fmt.Errorf("prepare audit db: %w", schemaErr)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get audit db handle: %w", err)
	}

	sqlDB.SetMaxIdleConns(r.cfg.MinPool)
	sqlDB.SetMaxOpenConns(r.cfg.MaxPool)
	if r.cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(r.cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}
	if r.cfg.ConnMaxIdleTimeMinutes > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(r.cfg.ConnMaxIdleTimeMinutes) * time.Minute)
	}

	if r.logger != nil {
		r.logger.Info("audit_db_connected", "host", r.cfg.Host, "name", r.cfg.Name)
	}

	r.db = db
	r.sqlDB = sqlDB
	return db, nil
}

func ensureAuditSchema(db *gorm.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if err := db.Exec(`
			CREATE TABLE IF NOT EXISTS decision_audit (
				id BIGSERIAL PRIMARY KEY,
				request_id VARCHAR(64) NOT NULL,
				input_hash VARCHAR(80) NOT NULL,
				verdict VARCHAR(16) NOT NULL,
				state VARCHAR(24) NOT NULL,
				policy_id VARCHAR(64) NOT NULL DEFAULT '',
				reason TEXT NOT NULL DEFAULT '',
				stages JSONB NOT NULL DEFAULT '[]',
				elapsed_ms BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)
		`).Error; err != nil {
		return fmt.Errorf("create decision_audit table: %w", err)
	}

	if err := db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_decision_audit_input_hash
			ON decision_audit (input_hash)
		`).Error; err != nil {
		return fmt.Errorf("create decision_audit input_hash index: %w", err)
	}

	return nil
}
