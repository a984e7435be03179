package guardian

// Kind 는 가디언 판정 결과다.
type Kind string

const (
	// KindSafe: 정책 위반 없음, 통과.
	KindSafe Kind = "SAFE"
	// KindUnsafe: 위반 탐지, 차단.
	KindUnsafe Kind = "UNSAFE"
	// KindError: 판정 불가. 파이프라인은 fail-closed 로 차단한다.
	KindError Kind = "ERROR"
)

// Verdict 는 판정과 근거를 담는다.
type Verdict struct {
	Kind      Kind   `json:"kind"`
	Reasoning string `json:"reasoning,omitempty"`
	PolicyID  string `json:"policy_id,omitempty"`
}

// Blocked 는 차단 판정 여부를 반환한다. ERROR 도 차단으로 본다.
func (v Verdict) Blocked() bool {
	return v.Kind != KindSafe
}
