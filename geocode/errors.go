// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Upstream service names used in errors and cache namespaces.
const (
	ServiceNominatim = "nominatim"
	ServiceWikidata  = "wikidata"
)

// ServiceError is a fault talking to an upstream service. The resolver
// absorbs these (logs and moves to the next phrasing or tier) so a noisy
// upstream never aborts a batch run, but callers that care can tell a
// transport fault apart from a confirmed empty answer.
type ServiceError struct {
	Service string
	Kind    ErrorKind
	Message string
	Err     error
}

// ErrorKind classifies a ServiceError.
type ErrorKind int

const (
	// ErrorKindUnknown is an unclassified fault.
	ErrorKindUnknown ErrorKind = iota
	// ErrorKindRateLimited means the upstream pushed back (HTTP 429).
	ErrorKindRateLimited
	// ErrorKindTimeout is a network or server timeout.
	ErrorKindTimeout
	// ErrorKindNetwork is a connection-level failure.
	ErrorKindNetwork
	// ErrorKindHTTP is a non-OK status without a more specific meaning.
	ErrorKindHTTP
	// ErrorKindBadResponse means the body could not be decoded as expected.
	ErrorKindBadResponse
)

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether the error is an upstream rate-limit push-back.
func IsRateLimited(err error) bool {
	var serr *ServiceError
	if errors.As(err, &serr) {
		return serr.Kind == ErrorKindRateLimited
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429")
}

// IsTimeout reports whether the error is a timeout.
func IsTimeout(err error) bool {
	var serr *ServiceError
	if errors.As(err, &serr) {
		return serr.Kind == ErrorKindTimeout
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// IsBadResponse reports whether the error came from an undecodable body.
func IsBadResponse(err error) bool {
	var serr *ServiceError

	return errors.As(err, &serr) && serr.Kind == ErrorKindBadResponse
}

// ClassifyHTTPError maps a non-OK status code to a ServiceError.
func ClassifyHTTPError(service string, statusCode int) *ServiceError {
	switch statusCode {
	case http.StatusTooManyRequests:
		return &ServiceError{
			Service: service,
			Kind:    ErrorKindRateLimited,
			Message: "rate limited by upstream",
		}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &ServiceError{
			Service: service,
			Kind:    ErrorKindTimeout,
			Message: fmt.Sprintf("upstream timeout (status %d)", statusCode),
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return &ServiceError{
			Service: service,
			Kind:    ErrorKindNetwork,
			Message: fmt.Sprintf("service unavailable (status %d)", statusCode),
		}
	default:
		return &ServiceError{
			Service: service,
			Kind:    ErrorKindHTTP,
			Message: fmt.Sprintf("HTTP %d", statusCode),
		}
	}
}

// classifyTransportError wraps a client-side request failure.
func classifyTransportError(service string, err error) *ServiceError {
	kind := ErrorKindNetwork

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = ErrorKindTimeout
	} else if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrorKindTimeout
	}

	return &ServiceError{
		Service: service,
		Kind:    kind,
		Message: "request failed",
		Err:     err,
	}
}
