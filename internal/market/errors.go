package market

import (
	"errors"
	"fmt"
)

// ErrPriceUnavailable matches every *PriceError through errors.Is.
var ErrPriceUnavailable = errors.New("price unavailable")

// ErrorKind classifies why a price could not be produced.
type ErrorKind string

const (
	KindRateLimited    ErrorKind = "rate_limited"
	KindSymbolNotFound ErrorKind = "symbol_not_found"
	KindNetwork        ErrorKind = "network_error"
	KindUpstream       ErrorKind = "upstream_error"
	KindScrapeFailure  ErrorKind = "scrape_failure"
	KindInvalidSymbol  ErrorKind = "invalid_symbol"
)

// PriceError is returned by every price lookup that fails.
type PriceError struct {
	Kind    ErrorKind
	Symbol  string
	Message string
	Cause   error
}

func (e *PriceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Symbol, e.Message)
}

func (e *PriceError) Unwrap() error { return e.Cause }

func (e *PriceError) Is(target error) bool { return target == ErrPriceUnavailable }

// KindOf returns the kind of the first *PriceError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var pe *PriceError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func newPriceError(kind ErrorKind, symbol, message string, cause error) *PriceError {
	return &PriceError{Kind: kind, Symbol: symbol, Message: message, Cause: cause}
}
