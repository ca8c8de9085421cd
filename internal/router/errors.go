package router

import (
	"errors"
	"fmt"

	"github.com/liquidroute/liquidroute/internal/market"
)

// InsufficientLiquidityError means the merged book cannot cover enough of
// the order. Callers may retry later or relax constraints.
type InsufficientLiquidityError struct {
	Symbol    string
	Side      market.Side
	Requested float64
	Available float64
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("insufficient liquidity for %s %s: available %.4f of requested %.4f",
		e.Side, e.Symbol, e.Available, e.Requested)
}

// ExchangeError is an upstream data or connectivity fault. It is surfaced to
// the caller, not retried internally.
type ExchangeError struct {
	Venue string
	Err   error
}

func (e *ExchangeError) Error() string {
	if e.Venue != "" {
		return fmt.Sprintf("exchange error on %s: %v", e.Venue, e.Err)
	}
	return fmt.Sprintf("exchange error: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// ValidationError is a malformed order or configuration. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// errStaleData marks an internally detected stale snapshot. It triggers a
// recompute and is never surfaced to callers.
var errStaleData = errors.New("stale liquidity snapshot")

// IsInsufficientLiquidity reports whether err is an insufficient-liquidity
// rejection.
func IsInsufficientLiquidity(err error) bool {
	var target *InsufficientLiquidityError
	return errors.As(err, &target)
}

// IsValidation reports whether err is an order validation failure.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
