package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Kind partitions completion failures by how callers should react. Quota
// exhaustion is permanent for the billing period and must never be retried;
// rate limiting and transient faults may be.
type Kind string

const (
	KindQuotaExceeded Kind = "quota_exceeded"
	KindRateLimited   Kind = "rate_limited"
	KindSchema        Kind = "schema"
	KindOther         Kind = "other"
)

// ServiceError describes a failed interaction with the completion service.
type ServiceError struct {
	Kind Kind
	Err  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("completion service error (%s): %v", e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Classify maps a raw client error onto the failure taxonomy. Anything that
// is not recognizably quota, rate-limit, or schema related lands in KindOther.
func Classify(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			if isQuotaCode(apiErr) {
				return &ServiceError{Kind: KindQuotaExceeded, Err: err}
			}
			return &ServiceError{Kind: KindRateLimited, Err: err}
		}
		return &ServiceError{Kind: KindOther, Err: err}
	}

	return &ServiceError{Kind: KindOther, Err: err}
}

// isQuotaCode distinguishes hard quota exhaustion from ordinary rate
// limiting. OpenAI signals both with 429 but marks quota with the
// insufficient_quota code.
func isQuotaCode(apiErr *openai.APIError) bool {
	if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
		return true
	}
	if apiErr.Type == "insufficient_quota" {
		return true
	}
	return strings.Contains(apiErr.Message, "quota")
}

// retryable reports whether another attempt could plausibly succeed.
func retryable(err *ServiceError) bool {
	switch err.Kind {
	case KindQuotaExceeded, KindSchema:
		return false
	default:
		return true
	}
}
