package guardian

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
)

type verdictPayload struct {
	Verdict   string `mapstructure:"verdict"`
	Reasoning string `mapstructure:"reasoning"`
	PolicyID  string `mapstructure:"policy_id"`
}

// parseVerdict 는 모델 출력에서 판정을 추출한다.
// JSON 응답을 우선 시도하고, 실패하면 키워드 스캔으로 폴백한다.
// 둘 다 실패하면 ERROR 판정과 오류를 함께 반환한다.
func parseVerdict(output string) (Verdict, error) {
	if payload, ok := extractJSONObject(output); ok {
		var raw map[string]any
		if err := json.Unmarshal([]byte(payload), &raw); err == nil {
			var parsed verdictPayload
			if err := mapstructure.WeakDecode(raw, &parsed); err == nil {
				if kind, ok := normalizeKind(parsed.Verdict); ok {
					return Verdict{
						Kind:      kind,
						Reasoning: parsed.Reasoning,
						PolicyID:  parsed.PolicyID,
					}, nil
				}
			}
		}
	}

	if kind, ok := scanKeywords(output); ok {
		return Verdict{Kind: kind, Reasoning: strings.TrimSpace(output)}, nil
	}

	return Verdict{Kind: KindError, Reasoning: "unparseable model output"},
		fmt.Errorf("parse verdict: unrecognized output %q", truncate(output, 80))
}

// extractJSONObject 는 출력에서 첫 '{' 부터 마지막 '}' 까지를 잘라낸다.
// 코드펜스나 설명 문장에 감싸인 JSON 응답을 허용하기 위함이다.
func extractJSONObject(output string) (string, bool) {
	start := strings.IndexByte(output, '{')
	end := strings.LastIndexByte(output, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return output[start : end+1], true
}

func normalizeKind(verdict string) (Kind, bool) {
	switch strings.ToUpper(strings.TrimSpace(verdict)) {
	case "SAFE", "COMPLIANT", "OK", "PASS":
		return KindSafe, true
	case "UNSAFE", "VIOLATION", "BLOCK", "BLOCKED", "MALICIOUS":
		return KindUnsafe, true
	default:
		return KindError, false
	}
}

// scanKeywords 는 구조화되지 않은 출력의 폴백 판정이다.
// UNSAFE 가 SAFE 를 부분 문자열로 포함하므로 차단 키워드를 먼저 본다.
func scanKeywords(output string) (Kind, bool) {
	upper := strings.ToUpper(output)
	for _, keyword := range []string{"UNSAFE", "VIOLATION", "BLOCK", "MALICIOUS"} {
		if strings.Contains(upper, keyword) {
			return KindUnsafe, true
		}
	}
	for _, keyword := range []string{"SAFE", "COMPLIANT"} {
		if strings.Contains(upper, keyword) {
			return KindSafe, true
		}
	}
	return KindError, false
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
