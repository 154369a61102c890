package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FetchErrorKind 采集失败类型
type FetchErrorKind int

const (
	FetchTimeout FetchErrorKind = iota + 1
	FetchConnectionError
	FetchHTTPError
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchTimeout:
		return "timeout"
	case FetchConnectionError:
		return "connection_error"
	case FetchHTTPError:
		return "http_error"
	default:
		return "unknown"
	}
}

// FetchError 单台台站采集失败
type FetchError struct {
	Kind       FetchErrorKind
	Address    string
	URL        string
	StatusCode int // 仅 FetchHTTPError 时有值
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPError {
		return fmt.Sprintf("fetch %s: unexpected status code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf 返回错误对应的失败类型，非 FetchError 返回 0
func KindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// classify 区分超时与连接错误
func classify(err error) FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FetchTimeout
	}
	return FetchConnectionError
}
