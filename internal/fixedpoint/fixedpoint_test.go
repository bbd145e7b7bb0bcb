package fixedpoint

import (
	"math/big"
	"testing"
)

func TestNormalizeSixDecimals(t *testing.T) {
	got, err := Normalize(big.NewInt(1000), 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want, _ := new(big.Int).SetString("1000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("normalize mismatch: %s != %s", got, want)
	}
}

func TestRoundTripLosslessUpTo18(t *testing.T) {
	amount := big.NewInt(123456789)
	for decimals := uint8(0); decimals <= 18; decimals++ {
		normalized, err := Normalize(amount, decimals)
		if err != nil {
			t.Fatalf("normalize decimals=%d: %v", decimals, err)
		}
		back, err := Denormalize(normalized, decimals)
		if err != nil {
			t.Fatalf("denormalize decimals=%d: %v", decimals, err)
		}
		if back.Cmp(amount) != 0 {
			t.Fatalf("round trip decimals=%d: %s != %s", decimals, back, amount)
		}
	}
}

func TestRoundTripTruncatesAbove18(t *testing.T) {
	// 24-decimal token: the low 6 digits do not survive normalization.
	amount, _ := new(big.Int).SetString("1000000123456", 10)
	normalized, err := Normalize(amount, 24)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	back, err := Denormalize(normalized, 24)
	if err != nil {
		t.Fatalf("denormalize: %v", err)
	}
	if back.Cmp(amount) > 0 {
		t.Fatalf("round trip gained value: %s > %s", back, amount)
	}
	want, _ := new(big.Int).SetString("1000000000000", 10)
	if back.Cmp(want) != 0 {
		t.Fatalf("truncation mismatch: %s != %s", back, want)
	}
}

func TestNormalizeRejectsNegative(t *testing.T) {
	if _, err := Normalize(big.NewInt(-1), 18); err == nil {
		t.Fatalf("expected error for negative amount")
	}
	if _, err := Denormalize(big.NewInt(-1), 6); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestRatio(t *testing.T) {
	got := Ratio(big.NewInt(3), big.NewInt(4))
	want, _ := new(big.Int).SetString("750000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("ratio mismatch: %s != %s", got, want)
	}
}

func TestMulDivZeroDenominator(t *testing.T) {
	got := MulDiv(big.NewInt(3), big.NewInt(4), big.NewInt(0))
	if got.Sign() != 0 {
		t.Fatalf("expected zero, got %s", got)
	}
}
