package money

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeRateStore struct {
	rates map[string]decimal.Decimal
	calls int
}

func (f *fakeRateStore) FindRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, bool, error) {
	f.calls++
	r, ok := f.rates[rateKey(from, to, date)]
	return r, ok, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestConverterUsesStoredRateAndMemoizes(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeRateStore{rates: map[string]decimal.Decimal{rateKey("USD", "BRL", day): d("5.00")}}
	c := NewConverter(store)

	for i := 0; i < 3; i++ {
		got, err := c.Convert(context.Background(), New(d("100"), "usd"), "BRL", day, nil)
		if err != nil {
			t.Fatalf("convert: %v", err)
		}
		if !got.Equal(New(d("500"), "BRL")) {
			t.Fatalf("got %s %s, want 500 BRL", got.Amount, got.Currency)
		}
	}
	if store.calls != 1 {
		t.Fatalf("expected one store lookup, got %d", store.calls)
	}
}

func TestConverterFallbackAndConversionError(t *testing.T) {
	day := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	c := NewConverter(&fakeRateStore{rates: map[string]decimal.Decimal{}})

	fallback := d("0.2")
	got, err := c.Convert(context.Background(), New(d("50"), "BRL"), "USD", day, &fallback)
	if err != nil {
		t.Fatalf("convert with fallback: %v", err)
	}
	if !got.Amount.Equal(d("10")) {
		t.Fatalf("fallback conversion = %s, want 10", got.Amount)
	}

	_, err = c.Convert(context.Background(), New(d("50"), "BRL"), "USD", day, nil)
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if convErr.From != "BRL" || convErr.To != "USD" || !convErr.Date.Equal(day) {
		t.Fatalf("unexpected error payload: %+v", convErr)
	}
	if !errors.Is(err, ErrConversion) {
		t.Fatalf("ConversionError should match ErrConversion")
	}
}

func TestConverterSameCurrencyIsIdentity(t *testing.T) {
	c := NewConverter(&fakeRateStore{})
	got, err := c.Convert(context.Background(), New(d("12.34"), "EUR"), "eur", time.Now(), nil)
	if err != nil || !got.Equal(New(d("12.34"), "EUR")) {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestMoneyArithmeticAndFormatting(t *testing.T) {
	a := New(d("1234.5"), "BRL")
	if _, err := a.Add(New(d("1"), "USD")); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
	sum, err := a.Add(New(d("0.5"), "BRL"))
	if err != nil || !sum.Amount.Equal(d("1235")) {
		t.Fatalf("sum = %v, %v", sum.Amount, err)
	}
	if a.Precision() != 2 {
		t.Fatalf("BRL precision = %d", a.Precision())
	}
	if !New(d("1.005"), "USD").Round().Amount.Equal(d("1.01")) {
		t.Fatalf("round to minor unit failed")
	}
	if s := a.String(); !strings.Contains(s, "1.234,50") {
		t.Fatalf("formatted %q", s)
	}
	if !IsKnownCurrency("brl") || IsKnownCurrency("XXZ") {
		t.Fatalf("currency lookup mismatch")
	}
}
