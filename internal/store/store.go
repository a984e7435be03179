package store

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	"github.com/park285/svalinn-gateway-go/internal/cache"
	"github.com/park285/svalinn-gateway-go/internal/config"
	"github.com/park285/svalinn-gateway-go/internal/guardian"
	"github.com/park285/svalinn-gateway-go/internal/pipeline"
)

var (
	// ErrNotFound 는 캐시된 판정이 없을 때 반환된다.
	ErrNotFound = errors.New("verdict not found")
)

type storeBackend int

const (
	backendMemory storeBackend = iota
	backendValkey
)

// Store 는 판정 결과 캐시다. 같은 입력의 재검사를 건너뛰기 위해 사용한다.
// Valkey 백엔드가 기본이고, 비활성 시 프로세스 내 메모리로 폴백한다.
// 값은 zstd 로 압축된 JSON 이다.
type Store struct {
	cfg     config.VerdictStoreConfig
	backend storeBackend
	client  valkey.Client
	memory  *cache.TTLCache[string, []byte]
}

// New 는 판정 캐시를 생성한다.
// Enabled=false 이고 Required=true 면 기동을 실패시킨다.
func New(cfg config.VerdictStoreConfig) (*Store, error) {
	if !cfg.Enabled {
		if cfg.Required {
			return nil, errors.New("verdict store required but disabled")
		}
		return newMemoryStore(cfg), nil
	}

	conn, err := parseStoreURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse verdict store url: %w", err)
	}

	var tlsConfig *tls.Config
	if conn.useTLS {
		host, _, splitErr := net.SplitHostPort(conn.addr)
		if splitErr != nil {
			return nil, fmt.Errorf("parse verdict store addr: %w", splitErr)
		}
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		TLSConfig:    tlsConfig,
		Username:     conn.username,
		Password:     conn.password,
		InitAddress:  []string{conn.addr},
		SelectDB:     conn.selectDB,
		DisableCache: cfg.DisableCache,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}

	return &Store{cfg: cfg, backend: backendValkey, client: client}, nil
}

func newMemoryStore(cfg config.VerdictStoreConfig) *Store {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Store{
		cfg:     cfg,
		backend: backendMemory,
		memory:  cache.NewTTLCache[string, []byte](maxEntries, ttlOf(cfg)),
	}
}

func ttlOf(cfg config.VerdictStoreConfig) time.Duration {
	minutes := cfg.TTLMinutes
	if minutes <= 0 {
		minutes = 10
	}
	return time.Duration(minutes) * time.Minute
}

// Key 는 입력 원문을 키로 해시한다. 원문은 저장소 키에 노출되지 않는다.
func Key(input string) string {
	sum := sha256.Sum256([]byte(input))
	return "verdict:" + hex.EncodeToString(sum[:])
}

// Get 은 입력에 대한 캐시된 판정을 조회한다.
func (s *Store) Get(ctx context.Context, input string) (pipeline.Result, error) {
	key := Key(input)

	var compressed []byte
	switch s.backend {
	case backendMemory:
		value, ok := s.memory.Get(key)
		if !ok {
			return pipeline.Result{}, ErrNotFound
		}
		compressed = value
	default:
		cmd := s.client.B().Get().Key(key).Build()
		value, err := s.client.Do(ctx, cmd).AsBytes()
		if err != nil {
			if valkey.IsValkeyNil(err) {
				return pipeline.Result{}, ErrNotFound
			}
			return pipeline.Result{}, fmt.Errorf("get verdict: %w", err)
		}
		compressed = value
	}

	data, err := decompressZstd(compressed)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("decode verdict: %w", err)
	}

	var result pipeline.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return pipeline.Result{}, fmt.Errorf("unmarshal verdict: %w", err)
	}
	return result, nil
}

// Set 은 판정 결과를 TTL 과 함께 저장한다.
// ERROR 판정은 일시 장애일 수 있으므로 캐시하지 않는다.
func (s *Store) Set(ctx context.Context, input string, result pipeline.Result) error {
	if result.Verdict == guardian.KindError {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	compressed, err := compressZstd(data)
	if err != nil {
		return fmt.Errorf("compress verdict: %w", err)
	}

	key := Key(input)
	if s.backend == backendMemory {
		s.memory.Set(key, compressed)
		return nil
	}

	cmd := s.client.B().Set().Key(key).Value(valkey.BinaryString(compressed)).Ex(ttlOf(s.cfg)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set verdict: %w", err)
	}
	return nil
}

// Ping 은 백엔드 연결을 확인한다.
func (s *Store) Ping(ctx context.Context) error {
	if s.backend == backendMemory {
		return nil
	}
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping valkey: %w", err)
	}
	return nil
}

// Backend 는 사용 중인 백엔드 이름을 반환한다. (헬스 체크 용)
func (s *Store) Backend() string {
	if s.backend == backendValkey {
		return "valkey"
	}
	return "memory"
}

// Close 는 Valkey 연결을 종료한다.
func (s *Store) Close() {
	if s == nil {
		return
	}
	if s.backend == backendValkey && s.client != nil {
		s.client.Close()
	}
}
