package normalizer

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// minBase64Len: 이보다 짧은 시퀀스는 우연한 영단어일 가능성이 높아 무시한다.
const minBase64Len = 20

// isBase64Char: Base64 문자셋 검사 (A-Za-z0-9+/-_)
func isBase64Char(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '+' || c == '/' || c == '-' || c == '_'
}

// decodeBase64Runs 는 본문에 숨겨진 Base64 페이로드를 찾아 평문으로 펼친다.
// 수동 스캐너로 후보 시퀀스를 추출하고, 디코딩 결과가 '읽을 수 있는
// 텍스트'일 때만 "[decoded: ...]" 마커로 치환한다. 중첩 인코딩은 depth
// 한도까지 재귀적으로 펼치며, budget(총 출력 바이트)을 초과하는 계층은
// 디코딩하지 않고 마지막으로 성공한 계층을 유지한다.
func decodeBase64Runs(text string, depth int, budget *int) (string, bool) {
	if depth <= 0 || budget == nil || *budget <= 0 {
		return text, false
	}

	n := len(text)
	i := 0
	changed := false

	var builder strings.Builder
	builder.Grow(n)

	for i < n {
		if !isBase64Char(text[i]) {
			builder.WriteByte(text[i])
			i++
			continue
		}

		start := i
		for i < n && isBase64Char(text[i]) {
			i++
		}
		paddingCount := 0
		for i < n && text[i] == '=' && paddingCount < 2 {
			i++
			paddingCount++
		}

		run := text[start:i]
		if len(run) < minBase64Len {
			builder.WriteString(run)
			continue
		}

		decodedBytes, err := tryDecodeBase64(run)
		if err != nil || !isReadableText(decodedBytes) {
			builder.WriteString(run)
			continue
		}

		// 출력 한도 검사: 초과하면 이 계층은 펼치지 않는다 (Base64 폭탄 방지)
		if len(decodedBytes) > *budget {
			builder.WriteString(run)
			continue
		}
		*budget -= len(decodedBytes)

		inner, _ := decodeBase64Runs(string(decodedBytes), depth-1, budget)
		builder.WriteString("[decoded: ")
		builder.WriteString(inner)
		builder.WriteString("]")
		changed = true
	}

	if !changed {
		return text, false
	}
	return builder.String(), true
}

// tryDecodeBase64: URL-Safe 문자 치환 및 패딩 보정 후 디코딩 (Zero-Alloc 최적화)
func tryDecodeBase64(s string) ([]byte, error) {
	n := len(s)
	if n == 0 {
		return nil, fmt.Errorf("base64 decode: empty input")
	}

	// 패딩 계산: Base64 길이는 4의 배수여야 함
	padNeeded := (4 - n%4) % 4

	buf := make([]byte, n+padNeeded)
	for i := 0; i < n; i++ {
		switch s[i] {
		case '-':
			buf[i] = '+'
		case '_':
			buf[i] = '/'
		default:
			buf[i] = s[i]
		}
	}
	for i := 0; i < padNeeded; i++ {
		buf[n+i] = '='
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(buf)))
	written, err := base64.StdEncoding.Decode(decoded, buf)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return decoded[:written], nil
}

// isReadableText: 바이트 배열이 사람이 읽을 수 있는 텍스트인지 판별
// UTF-8 유효성 검사 + 출력 가능 문자 비율 검사를 단일 루프로 수행한다.
func isReadableText(data []byte) bool {
	n := len(data)
	if n == 0 {
		return false
	}

	printableCount := 0
	totalChars := 0
	i := 0

	for i < n {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			// 유효하지 않은 UTF-8 → 바이너리 데이터
			return false
		}
		i += size
		totalChars++

		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printableCount++
		}
	}

	// 전체 문자의 90% 이상이 읽을 수 있는 문자라면 '의도된 텍스트'로 판단
	return totalChars > 0 && printableCount*100 > totalChars*90
}
