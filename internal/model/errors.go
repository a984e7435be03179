package model

import "fmt"

// ResourceError 는 모델 등록/획득 단계의 자원 문제다.
// (미등록 키, 메모리 예산 초과, 로딩 실패 등)
type ResourceError struct {
	Model  string
	Reason string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("model resource %s: %s", e.Model, e.Reason)
}

// InferenceError 는 실행 중 엔진 실패다.
// 파이프라인은 이 오류를 fail-closed 로 처리한다.
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("model inference %s: %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
