package normalizer

import (
	"strings"
	"unicode"
)

// leetPatterns: 여러 문자로 구성된 leetspeak 표기.
// 단일 문자 치환보다 먼저 적용해야 한다. (`|)` 를 `i` + `)` 로 쪼개면 안 됨)
var leetPatterns = []struct {
	from string
	to   string
}{
	{`\/`, "v"},
	{`|)`, "d"},
	{`(|`, "d"},
	{`|<`, "k"},
}

// leetRunes: 단일 문자 leetspeak 치환 테이블.
// 치환 결과는 모두 일반 알파벳이므로 디코딩은 멱등이다.
var leetRunes = map[rune]rune{
	'@': 'a', '4': 'a', '^': 'a',
	'8': 'b',
	'(': 'c', '[': 'c', '<': 'c', '{': 'c',
	'3': 'e', '€': 'e',
	'6': 'g', '9': 'g',
	'#': 'h',
	'!': 'i', '1': 'l', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's', '§': 's',
	'7': 't', '+': 't',
	'%': 'x',
	'2': 'z',
}

// decodeLeetspeak 는 leetspeak 표기를 일반 알파벳으로 되돌린다.
// 단어 단위로 소문자화 후 치환하되, 치환이 없는 단어는 대소문자까지
// 원문 그대로 둔다. 숫자로만 구성된 단어("2025")와 Base64 후보로 보이는
// 단어도 건드리지 않는다. Base64 는 대소문자를 구분하므로 후보 구간을
// 소문자화하면 이후 디코딩이 깨진다.
func decodeLeetspeak(text string) (string, bool) {
	var builder strings.Builder
	builder.Grow(len(text))

	substituted := false
	var token strings.Builder
	flushToken := func() {
		if token.Len() == 0 {
			return
		}
		decoded, changed := decodeLeetToken(token.String())
		if changed {
			substituted = true
		}
		builder.WriteString(decoded)
		token.Reset()
	}

	for _, r := range text {
		if unicode.IsSpace(r) {
			flushToken()
			builder.WriteRune(r)
			continue
		}
		token.WriteRune(r)
	}
	flushToken()

	return builder.String(), substituted
}

func decodeLeetToken(token string) (string, bool) {
	if isDigitsOnly(token) || isBase64Candidate(token) {
		return token, false
	}

	lowered := strings.ToLower(token)
	replaced := lowered
	for _, p := range leetPatterns {
		replaced = strings.ReplaceAll(replaced, p.from, p.to)
	}

	var builder strings.Builder
	builder.Grow(len(replaced))
	for _, r := range replaced {
		if mapped, ok := leetRunes[r]; ok {
			builder.WriteRune(mapped)
			continue
		}
		builder.WriteRune(r)
	}

	decoded := builder.String()
	if decoded == lowered {
		// 치환이 없으면 원문 단어를 그대로 반환한다. 소문자화만 일어난
		// 단어를 바꿔 놓으면 Steps 에 남지 않는 변형이 생긴다.
		return token, false
	}
	return decoded, true
}

func isDigitsOnly(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// isBase64Candidate: Base64 페이로드로 보이는 단어인지 검사.
// leetspeak 치환이 숫자를 알파벳으로 바꿔버리면 이후의 Base64 디코딩이
// 불가능해지므로, 후보 구간은 원문 그대로 통과시킨다.
func isBase64Candidate(token string) bool {
	if len(token) < minBase64Len {
		return false
	}
	for i := 0; i < len(token); i++ {
		if !isBase64Char(token[i]) && token[i] != '=' {
			return false
		}
	}
	return true
}
