package httperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/park285/svalinn-gateway-go/internal/gemini"
	"github.com/park285/svalinn-gateway-go/internal/model"
	"github.com/park285/svalinn-gateway-go/internal/policy"
)

// ErrorCode 는 API 오류 코드다.
type ErrorCode string

const (
	// ErrorCodeInternal 는 내부 오류 코드다.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeValidation 는 검증 오류 코드다.
	ErrorCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrorCodeUnauthorized 는 인증 오류 코드다.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeHTTPRateLimit 는 요청 제한 오류 코드다.
	ErrorCodeHTTPRateLimit ErrorCode = "HTTP_RATE_LIMIT"
	// ErrorCodeModelResource 는 모델 자원 오류 코드다.
	ErrorCodeModelResource ErrorCode = "MODEL_RESOURCE_ERROR"
	// ErrorCodeInference 는 추론 오류 코드다.
	ErrorCodeInference ErrorCode = "INFERENCE_ERROR"
	// ErrorCodeInferenceTimeout 는 추론 타임아웃 코드다.
	ErrorCodeInferenceTimeout ErrorCode = "INFERENCE_TIMEOUT"
	// ErrorCodePolicyConfig 는 정책 설정 오류 코드다.
	ErrorCodePolicyConfig ErrorCode = "POLICY_CONFIG_ERROR"
	// ErrorCodeInvalidInput 는 입력 오류 코드다.
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeMissingField 는 필드 누락 코드다.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"
)

// ErrorResponse 는 API 오류 응답 본문이다.
type ErrorResponse struct {
	ErrorCode string         `json:"error_code"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	RequestID *string        `json:"request_id"`
	Details   map[string]any `json:"details"`
}

// Error 는 내부 표준 오류 타입이다.
type Error struct {
	Code    ErrorCode
	Status  int
	Type    string
	Message string
	Details map[string]any
}

// Error 는 오류 메시지를 반환한다.
func (e *Error) Error() string {
	return e.Message
}

// Response 는 오류를 HTTP 응답으로 변환한다.
func Response(err error, requestID string) (int, ErrorResponse) {
	apiErr := FromError(err)
	if apiErr == nil {
		apiErr = NewInternalError("unknown error")
	}

	var requestIDPtr *string
	if requestID != "" {
		requestIDPtr = &requestID
	}

	return apiErr.Status, ErrorResponse{
		ErrorCode: string(apiErr.Code),
		ErrorType: apiErr.Type,
		Message:   apiErr.Message,
		RequestID: requestIDPtr,
		Details:   apiErr.Details,
	}
}

// FromError 는 오류를 내부 오류 타입으로 변환한다.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var resource *model.ResourceError
	if errors.As(err, &resource) {
		return NewModelResourceError(resource.Model, resource.Reason)
	}

	var inference *model.InferenceError
	if errors.As(err, &inference) {
		if errors.Is(inference.Err, context.DeadlineExceeded) {
			return NewInferenceTimeoutError("Guardian inference timed out")
		}
		return NewInferenceError(inference.Error())
	}

	var policyCfg *policy.ConfigError
	if errors.As(err, &policyCfg) {
		return NewPolicyConfigError(policyCfg.Error())
	}

	if errors.Is(err, gemini.ErrMissingAPIKey) {
		return NewInferenceError("Missing Gemini API key")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewInferenceTimeoutError("Request timed out")
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return NewValidationError(err)
	}

	return NewInternalError(err.Error())
}

// NewInternalError 는 내부 오류를 생성한다.
func NewInternalError(message string) *Error {
	return &Error{
		Code:    ErrorCodeInternal,
		Status:  http.StatusInternalServerError,
		Type:    "InternalError",
		Message: message,
		Details: nil,
	}
}

// NewValidationError 는 검증 오류를 생성한다.
func NewValidationError(err error) *Error {
	return &Error{
		Code:    ErrorCodeValidation,
		Status:  http.StatusUnprocessableEntity,
		Type:    "ValidationError",
		Message: "Input validation failed",
		Details: validationDetails(err),
	}
}

// NewMissingField 는 누락 필드 오류를 생성한다.
func NewMissingField(field string) *Error {
	return &Error{
		Code:    ErrorCodeMissingField,
		Status:  http.StatusBadRequest,
		Type:    "MissingFieldError",
		Message: fmt.Sprintf("Field '%s' required", field),
		Details: map[string]any{"field": field},
	}
}

// NewInvalidInput 는 입력 오류를 생성한다.
func NewInvalidInput(message string) *Error {
	return &Error{
		Code:    ErrorCodeInvalidInput,
		Status:  http.StatusBadRequest,
		Type:    "InvalidInputError",
		Message: message,
		Details: nil,
	}
}

// NewUnauthorized 는 인증 오류를 생성한다.
func NewUnauthorized(details map[string]any) *Error {
	return &Error{
		Code:    ErrorCodeUnauthorized,
		Status:  http.StatusUnauthorized,
		Type:    "UnauthorizedError",
		Message: "Invalid API key",
		Details: details,
	}
}

// NewRateLimitExceeded 는 요청 제한 오류를 생성한다.
func NewRateLimitExceeded(details map[string]any) *Error {
	return &Error{
		Code:    ErrorCodeHTTPRateLimit,
		Status:  http.StatusTooManyRequests,
		Type:    "HTTPRateLimitExceededError",
		Message: "Rate limit exceeded",
		Details: details,
	}
}

// NewModelResourceError 는 모델 자원 오류를 생성한다.
func NewModelResourceError(modelKey string, reason string) *Error {
	return &Error{
		Code:    ErrorCodeModelResource,
		Status:  http.StatusServiceUnavailable,
		Type:    "ModelResourceError",
		Message: fmt.Sprintf("Model '%s' unavailable: %s", modelKey, reason),
		Details: map[string]any{"model": modelKey},
	}
}

// NewInferenceError 는 추론 오류를 생성한다.
func NewInferenceError(message string) *Error {
	return &Error{
		Code:    ErrorCodeInference,
		Status:  http.StatusBadGateway,
		Type:    "InferenceError",
		Message: message,
		Details: nil,
	}
}

// NewInferenceTimeoutError 는 추론 타임아웃 오류를 생성한다.
func NewInferenceTimeoutError(message string) *Error {
	return &Error{
		Code:    ErrorCodeInferenceTimeout,
		Status:  http.StatusGatewayTimeout,
		Type:    "InferenceTimeoutError",
		Message: message,
		Details: nil,
	}
}

// NewPolicyConfigError 는 정책 설정 오류를 생성한다.
func NewPolicyConfigError(message string) *Error {
	return &Error{
		Code:    ErrorCodePolicyConfig,
		Status:  http.StatusInternalServerError,
		Type:    "PolicyConfigError",
		Message: message,
		Details: nil,
	}
}

// FieldError 는 필드 오류 상세 정보다.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

func validationDetails(err error) map[string]any {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]FieldError, 0, len(validationErrors))
		for _, validationErr := range validationErrors {
			fields = append(fields, FieldError{
				Field:   validationErr.Field(),
				Message: validationErr.Error(),
				Value:   validationErr.Value(),
			})
		}
		return map[string]any{"errors": fields}
	}

	return map[string]any{
		"errors": []FieldError{
			{
				Field:   "body",
				Message: err.Error(),
				Value:   nil,
			},
		},
	}
}
