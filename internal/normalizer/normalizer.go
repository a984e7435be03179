package normalizer

import (
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/park285/svalinn-gateway-go/internal/cache"
	"github.com/park285/svalinn-gateway-go/internal/config"
)

// 역난독화 단계 이름.
const (
	StepFoldUnicode     = "fold_unicode"
	StepComposeJamo     = "compose_jamo"
	StepStripInvisible  = "strip_invisible"
	StepDecodeLeetspeak = "decode_leetspeak"
	StepDecodeBase64    = "decode_base64"
	StepStripEmoji      = "strip_emoji"
	StepSqueezeRepeats  = "squeeze_repeats"
)

// stepWeights: 난독화 점수 가중치.
// 디코딩 계열(base64, leetspeak)이 단순 접기보다 무겁다.
var stepWeights = map[string]float64{
	StepFoldUnicode:     0.15,
	StepComposeJamo:     0.10,
	StepStripInvisible:  0.15,
	StepDecodeLeetspeak: 0.25,
	StepDecodeBase64:    0.50,
	StepStripEmoji:      0.10,
	StepSqueezeRepeats:  0.05,
}

// View 는 정규화 결과다.
// Raw 와 Text 두 채널이 함께 입력 가디언에 전달된다.
type View struct {
	Raw   string   `json:"raw"`
	Text  string   `json:"text"`
	Steps []string `json:"steps"`
	Score float64  `json:"score"`
}

// Obfuscated 는 난독화 흔적이 발견되었는지 여부를 반환한다.
func (v View) Obfuscated() bool {
	return len(v.Steps) > 0
}

// Normalizer 는 난독화된 입력을 정규 형태로 되돌리는 역난독화 엔진이다.
// 어떤 입력에도 실패하지 않으며, 적용할 수 없는 변환은 건너뛴다.
type Normalizer struct {
	cfg    config.NormalizerConfig
	logger *slog.Logger
	cache  *cache.TTLCache[string, View]
	group  singleflight.Group
}

// New 는 역난독화 엔진을 생성한다.
func New(cfg config.NormalizerConfig, logger *slog.Logger) *Normalizer {
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	return &Normalizer{
		cfg:    cfg,
		logger: logger,
		cache:  cache.NewTTLCache[string, View](cfg.CacheMaxSize, cacheTTL),
	}
}

// Normalize 는 전체 역난독화 파이프라인을 적용한다.
// 단계 순서는 고정이다: 유니코드 접기 → 자모 조합 → 비가시 문자 제거 →
// leetspeak 디코딩 → 재귀 Base64 디코딩 → 이모지 제거 → 반복 축약.
func (n *Normalizer) Normalize(text string) View {
	if text == "" {
		return View{Raw: "", Text: "", Score: 0}
	}

	if cached, ok := n.cache.Get(text); ok {
		return cached
	}

	value, _, _ := n.group.Do(text, func() (any, error) {
		view := n.normalizeInternal(text)
		n.cache.Set(text, view)
		return view, nil
	})

	if view, ok := value.(View); ok {
		return view
	}
	return View{Raw: text, Text: text, Score: 0}
}

type step struct {
	name    string
	enabled bool
	apply   func(string) (string, bool)
}

func (n *Normalizer) normalizeInternal(text string) View {
	steps := []step{
		{StepFoldUnicode, n.cfg.FoldUnicode, foldUnicode},
		{StepComposeJamo, n.cfg.ComposeJamo, composeJamoSequences},
		{StepStripInvisible, n.cfg.StripInvisible, stripInvisible},
		{StepDecodeLeetspeak, n.cfg.DecodeLeetspeak, decodeLeetspeak},
		{StepDecodeBase64, n.cfg.DecodeBase64, n.decodeBase64},
		{StepStripEmoji, n.cfg.StripEmoji, stripEmoji},
		{StepSqueezeRepeats, n.cfg.SqueezeRepeats, squeezeRepeats},
	}

	current := text
	applied := make([]string, 0, len(steps))
	score := 0.0

	for _, s := range steps {
		if !s.enabled {
			continue
		}
		next, changed := s.apply(current)
		if changed {
			applied = append(applied, s.name)
			score += stepWeights[s.name]
		}
		current = next
	}

	view := View{
		Raw:   text,
		Text:  current,
		Steps: applied,
		Score: math.Min(score, 1.0),
	}

	if n.logger != nil && view.Obfuscated() {
		n.logger.Debug("input_deobfuscated", "steps", view.Steps, "score", view.Score)
	}
	return view
}

func (n *Normalizer) decodeBase64(text string) (string, bool) {
	budget := n.cfg.Base64MaxOutputKB * 1024
	return decodeBase64Runs(text, n.cfg.Base64MaxDepth, &budget)
}
