package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoPosition      = errors.New("no open position")
	ErrInvalidSymbol   = errors.New("invalid symbol")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrClosedMarket    = errors.New("market is closed for the symbol")
)

// Venue error code for insufficient account balance
const CodeInsufficientBalance = "51008"

// APIError is an error returned by the venue API with a vendor code
type APIError struct {
	Code      string
	Message   string
	Temporary bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue error %s: %s", e.Code, e.Message)
}

// ParseError marks a malformed advisor response
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("advisor response parse: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsInsufficientBalance reports whether err is the venue's
// insufficient balance rejection
func IsInsufficientBalance(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == CodeInsufficientBalance
	}
	return err != nil && strings.Contains(err.Error(), CodeInsufficientBalance)
}

// IsRetryable reports whether the operation may be retried.
// Insufficient balance and parse failures are not transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsInsufficientBalance(err) {
		return false
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary
	}
	// Transport level failures carry no vendor code
	return true
}
