package limits

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckEntry_WithinLimits(t *testing.T) {
	limiter := NewPositionLimiter(d(10000), d(50000))

	if err := limiter.CheckEntry("NSE_FNO:49081", d(5000), nil); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckEntry_PerInstrumentExceeded(t *testing.T) {
	limiter := NewPositionLimiter(d(10000), d(50000))

	existing := map[string]decimal.Decimal{
		"NSE_FNO:49081": d(9500),
	}

	err := limiter.CheckEntry("NSE_FNO:49081", d(1000), existing)
	if err != ErrPerInstrumentLimitExceeded {
		t.Errorf("expected ErrPerInstrumentLimitExceeded, got %v", err)
	}
}

func TestCheckEntry_AtLimitAllowed(t *testing.T) {
	limiter := NewPositionLimiter(d(10000), d(50000))

	existing := map[string]decimal.Decimal{
		"NSE_FNO:49081": d(9000),
	}

	// Exactly at the cap is allowed; one rupee past it is not.
	if err := limiter.CheckEntry("NSE_FNO:49081", d(1000), existing); err != nil {
		t.Errorf("entry at the cap should pass: %v", err)
	}
	if err := limiter.CheckEntry("NSE_FNO:49081", d(1001), existing); err != ErrPerInstrumentLimitExceeded {
		t.Errorf("expected ErrPerInstrumentLimitExceeded, got %v", err)
	}
}

func TestCheckEntry_SessionExceeded(t *testing.T) {
	limiter := NewPositionLimiter(d(10000), d(20000))

	existing := map[string]decimal.Decimal{
		"NSE_FNO:49081": d(9000),
		"NSE_FNO:49082": d(9000),
	}

	err := limiter.CheckEntry("NSE_FNO:49083", d(5000), existing)
	if err != ErrSessionLimitExceeded {
		t.Errorf("expected ErrSessionLimitExceeded, got %v", err)
	}
}

func TestCheckEntry_ZeroLimitDisablesCheck(t *testing.T) {
	limiter := NewPositionLimiter(decimal.Zero, decimal.Zero)

	existing := map[string]decimal.Decimal{
		"NSE_FNO:49081": d(1e9),
	}

	if err := limiter.CheckEntry("NSE_FNO:49081", d(1e9), existing); err != nil {
		t.Errorf("disabled limiter should allow anything, got %v", err)
	}
}
