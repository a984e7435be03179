package normalizer

import (
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"
	"github.com/mtibben/confusables"
	"github.com/ymw0407/jamo/pkg/jamo"
	"golang.org/x/text/unicode/norm"
)

// jamoTable: 한글 자모 범위를 통합한 테이블
// unicode.Is()를 사용하면 이진 탐색을 수행하여 매우 빠릅니다.
var jamoTable = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x1100, Hi: 0x11FF, Stride: 1}, // Hangul Jamo
		{Lo: 0x3130, Hi: 0x318F, Stride: 1}, // Hangul Compatibility Jamo
		{Lo: 0xA960, Hi: 0xA97F, Stride: 1}, // Hangul Jamo Extended-A
		{Lo: 0xD7B0, Hi: 0xD7FF, Stride: 1}, // Hangul Jamo Extended-B
	},
}

// hangulTable: 완성형 한글 범위 (가-힣)
var hangulTable = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0xAC00, Hi: 0xD7A3, Stride: 1},
	},
}

// isASCIIOnly: 문자열이 ASCII만 포함하는지 확인 (Zero Allocation)
func isASCIIOnly(text string) bool {
	for i := 0; i < len(text); i++ {
		if text[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// foldUnicode 는 Homoglyph 문자를 ASCII skeleton 으로 접는다.
// NFD 입력 우회 방지를 위해 먼저 NFC로 정규화한 뒤,
// 한글(완성형/자모)은 보존하면서 나머지 구간에만 skeleton + NFKC 를 적용한다.
func foldUnicode(text string) (string, bool) {
	// [Fast Path] ASCII만 포함된 경우 Skeleton 변환 불필요
	if isASCIIOnly(text) {
		return text, false
	}

	nfcText := norm.NFC.String(text)
	folded := foldWithKoreanPreserved(nfcText)
	return folded, folded != text
}

func foldWithKoreanPreserved(text string) string {
	var result strings.Builder
	var nonKoreanBuffer strings.Builder
	result.Grow(len(text))

	flushNonKorean := func() {
		if nonKoreanBuffer.Len() == 0 {
			return
		}
		skeleton := confusables.Skeleton(nonKoreanBuffer.String())
		result.WriteString(norm.NFKC.String(skeleton))
		nonKoreanBuffer.Reset()
	}

	for _, r := range text {
		if unicode.Is(hangulTable, r) || unicode.Is(jamoTable, r) {
			flushNonKorean()
			result.WriteRune(r)
		} else {
			nonKoreanBuffer.WriteRune(r)
		}
	}
	flushNonKorean()

	return result.String()
}

// composeJamoSequences: 혼합 문자열에서 연속 자모 시퀀스를 완성형으로 조합합니다.
// 예: "시스템 ㅍㅡㄹㅗㅁㅍㅡㅌㅡ" → "시스템 프롬프트"
// 조합에 실패한 자모는 원본 그대로 유지됩니다.
func composeJamoSequences(text string) (string, bool) {
	var result strings.Builder
	var jamoBuffer strings.Builder
	result.Grow(len(text))

	flushJamo := func() {
		if jamoBuffer.Len() == 0 {
			return
		}
		jamoStr := jamoBuffer.String()
		composed, err := jamo.ComposeHangeul(jamoStr)
		if err == nil && len(composed) > 0 {
			// 첫 번째 조합 결과 사용 (가장 일반적인 해석)
			result.WriteString(composed[0])
		} else {
			result.WriteString(jamoStr)
		}
		jamoBuffer.Reset()
	}

	for _, r := range text {
		if unicode.Is(jamoTable, r) {
			jamoBuffer.WriteRune(r)
		} else {
			flushJamo()
			result.WriteRune(r)
		}
	}
	flushJamo()

	composed := result.String()
	return composed, composed != text
}

// stripInvisible 은 zero-width 문자와 제어 문자를 제거한다.
// 개행/탭/CR 은 구조적 의미가 있으므로 보존한다.
func stripInvisible(text string) (string, bool) {
	hasInvisible := false
	for _, r := range text {
		if isInvisibleRune(r) {
			hasInvisible = true
			break
		}
	}
	if !hasInvisible {
		return text, false
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range text {
		if isInvisibleRune(r) {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String(), true
}

func isInvisibleRune(r rune) bool {
	if r == '\n' || r == '\t' || r == '\r' {
		return false
	}
	return unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Cc, r)
}

// stripEmoji 는 이모지와 장식용 기호(So)를 제거한다.
// gomoji 라이브러리를 사용하여 최신 유니코드 이모지 표준을 자동 지원합니다.
func stripEmoji(text string) (string, bool) {
	cleaned := text
	if gomoji.ContainsEmoji(cleaned) {
		cleaned = gomoji.RemoveEmojis(cleaned)
	}

	hasSymbol := false
	for _, r := range cleaned {
		if unicode.Is(unicode.So, r) {
			hasSymbol = true
			break
		}
	}
	if hasSymbol {
		var builder strings.Builder
		builder.Grow(len(cleaned))
		for _, r := range cleaned {
			if unicode.Is(unicode.So, r) {
				continue
			}
			builder.WriteRune(r)
		}
		cleaned = builder.String()
	}

	return cleaned, cleaned != text
}

// squeezeRepeats 는 3회 이상 반복되는 동일 문자를 2회로 축약하고
// 연속 공백을 단일 공백으로 합친다. (예: "헬프!!!!!" → "헬프!!")
// Go 정규식은 backreference 를 지원하지 않으므로 룬 단위로 직접 순회한다.
func squeezeRepeats(text string) (string, bool) {
	var builder strings.Builder
	builder.Grow(len(text))

	var prev rune
	repeat := 0
	for _, r := range text {
		if r == prev {
			repeat++
		} else {
			prev = r
			repeat = 1
		}
		if repeat > 2 {
			continue
		}
		builder.WriteRune(r)
	}

	squeezed := strings.Join(strings.Fields(builder.String()), " ")
	return squeezed, squeezed != text
}
