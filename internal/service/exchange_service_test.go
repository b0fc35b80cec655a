package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestQuoteExchange(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		values     []string
		target     string
		rate       string
		fee        string
		net        string
		difference string
		can        bool
	}{
		{name: "surplus", values: []string{"10", "15"}, target: "20", rate: "0.05", fee: "1.25", net: "23.75", difference: "3.75", can: true},
		{name: "exact", values: []string{"10", "11.05"}, target: "20", rate: "0.05", fee: "1.05", net: "20", difference: "0", can: true},
		{name: "short", values: []string{"5", "5"}, target: "10", rate: "0.05", fee: "0.5", net: "9.5", difference: "-0.5", can: false},
		{name: "fee rounded to cents", values: []string{"0.33"}, target: "0.1", rate: "0.05", fee: "0.02", net: "0.31", difference: "0.21", can: true},
		{name: "no fee", values: []string{"1.10", "2.20"}, target: "3.30", rate: "0", fee: "0", net: "3.3", difference: "0", can: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			values := make([]decimal.Decimal, 0, len(tc.values))
			for _, v := range tc.values {
				values = append(values, dec(v))
			}

			got := QuoteExchange(values, dec(tc.target), dec(tc.rate))
			if !got.Fee.Equal(dec(tc.fee)) {
				t.Fatalf("fee: expected %s, got %s", tc.fee, got.Fee)
			}
			if !got.NetValue.Equal(dec(tc.net)) {
				t.Fatalf("net: expected %s, got %s", tc.net, got.NetValue)
			}
			if !got.Difference.Equal(dec(tc.difference)) {
				t.Fatalf("difference: expected %s, got %s", tc.difference, got.Difference)
			}
			if got.CanExchange != tc.can {
				t.Fatalf("can exchange: expected %v, got %v", tc.can, got.CanExchange)
			}
			if !got.TotalSourceValue.Sub(got.Fee).Equal(got.NetValue) {
				t.Fatal("net must equal total minus fee")
			}
		})
	}
}

func TestValidateExchangeSources(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()

	if err := validateExchangeSources([]uuid.UUID{a, b}); err != nil {
		t.Fatalf("expected valid sources, got %v", err)
	}
	if KindOf(validateExchangeSources(nil)) != KindInvalidInput {
		t.Fatal("empty source list must be rejected")
	}
	if KindOf(validateExchangeSources([]uuid.UUID{a, a})) != KindInvalidInput {
		t.Fatal("duplicate ids must be rejected")
	}
	if KindOf(validateExchangeSources([]uuid.UUID{uuid.Nil})) != KindInvalidInput {
		t.Fatal("nil id must be rejected")
	}

	many := make([]uuid.UUID, exchangeMaxSources+1)
	for i := range many {
		many[i] = uuid.New()
	}
	if KindOf(validateExchangeSources(many)) != KindInvalidInput {
		t.Fatal("oversized source list must be rejected")
	}
}

func TestNewExchangeService_FeeRateBounds(t *testing.T) {
	t.Parallel()

	if got := NewExchangeService(nil, nil, nil, ExchangeServiceConfig{FeeRate: dec("0.1")}, nil).FeeRate(); !got.Equal(dec("0.1")) {
		t.Fatalf("expected configured rate, got %s", got)
	}
	if got := NewExchangeService(nil, nil, nil, ExchangeServiceConfig{FeeRate: dec("1")}, nil).FeeRate(); !got.Equal(defaultExchangeFeeRate) {
		t.Fatalf("expected default rate for out-of-range config, got %s", got)
	}
}
