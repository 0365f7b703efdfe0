package channel

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSourceNotFound    = errors.New("source not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrTransient         = errors.New("transient platform error")
	ErrUnknown           = errors.New("unknown platform error")
)

// RateLimitedError carries the wait the platform asked for
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
}

// Is lets errors.Is(err, ErrRateLimited) match
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// Kind names a failure class
type Kind string

const (
	KindNone        Kind = ""
	KindUnavailable Kind = "unavailable"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindTransient   Kind = "transient"
	KindUnknown     Kind = "unknown"
)

// Classify maps any error onto the failure taxonomy; unrecognized errors are KindUnknown
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrSourceUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrSourceNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

// RetryAfter extracts the requested wait from a rate limit error
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// Describe renders an error the way per-source stats report it
func Describe(err error) string {
	switch Classify(err) {
	case KindNone:
		return ""
	case KindUnavailable:
		return "Private channel"
	case KindNotFound:
		return "Invalid channel"
	case KindRateLimited:
		return "Rate limited"
	case KindTransient:
		return "Transient error"
	default:
		return err.Error()
	}
}
