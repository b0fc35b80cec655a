package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lootbox-hub/internal/lottery"
	"lootbox-hub/internal/model"
)

func TestCheckCouponRedeemable(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	limit := int64(3)

	cases := []struct {
		name   string
		coupon model.Coupon
		want   error
	}{
		{name: "active", coupon: model.Coupon{Status: model.CouponStatusActive, ExpiresAt: &future, MaxUses: &limit, TimesUsed: 2}},
		{name: "disabled", coupon: model.Coupon{Status: model.CouponStatusDisabled}, want: ErrInvalidCoupon},
		{name: "expired", coupon: model.Coupon{Status: model.CouponStatusActive, ExpiresAt: &past}, want: ErrCouponExpired},
		{name: "expires now", coupon: model.Coupon{Status: model.CouponStatusActive, ExpiresAt: &now}, want: ErrCouponExpired},
		{name: "limit reached", coupon: model.Coupon{Status: model.CouponStatusActive, MaxUses: &limit, TimesUsed: 3}, want: ErrCouponLimitReached},
		{name: "unlimited", coupon: model.Coupon{Status: model.CouponStatusActive, TimesUsed: 1_000_000}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := checkCouponRedeemable(&tc.coupon, now)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected coupon to be redeemable, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if KindOf(err) != KindPolicyViolation {
				t.Fatalf("expected policy violation, got %s", KindOf(err))
			}
		})
	}
}

func TestCouponHelpers(t *testing.T) {
	t.Parallel()

	if got := normalizeCouponCode("  welcome10 "); got != "WELCOME10" {
		t.Fatalf("expected WELCOME10, got %q", got)
	}

	id := uuid.New()
	if got := couponSourceID(id); got != "coupon_"+id.String() {
		t.Fatalf("unexpected source id %q", got)
	}

	outcomes := map[string]error{
		"redeemed":       nil,
		"replay_blocked": policyViolation(ErrCouponAlreadyUsed, nil),
		"expired":        policyViolation(ErrCouponExpired, nil),
		"limit_reached":  policyViolation(ErrCouponLimitReached, nil),
		"invalid":        policyViolation(ErrInvalidCoupon, nil),
		"failed":         errors.New("db down"),
	}
	for want, err := range outcomes {
		if got := couponOutcome(err); got != want {
			t.Fatalf("couponOutcome(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestValidateCouponInput(t *testing.T) {
	t.Parallel()

	svc := NewCouponService(nil, nil, nil, nil, CouponServiceConfig{}, nil)
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	url := "https://example.com/creator"
	maxUses := int64(100)
	valid := CreateCouponInput{
		Code:           " launch-2026 ",
		InfluencerName: "Creator",
		InfluencerURL:  &url,
		MinimumDeposit: decimal.RequireFromString("10.005"),
		MaxUses:        &maxUses,
		Entries:        []lottery.Entry{{ItemID: uuid.New(), Weight: 1}},
	}

	coupon, err := svc.validateCouponInput(valid)
	if err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
	if coupon.Code != "LAUNCH-2026" {
		t.Fatalf("expected upper-cased code, got %q", coupon.Code)
	}
	if !coupon.MinimumDeposit.Equal(decimal.RequireFromString("10.01")) {
		t.Fatalf("expected deposit rounded to cents, got %s", coupon.MinimumDeposit)
	}

	badURL := "javascript:alert(1)"
	zero := int64(0)
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	invalid := []CreateCouponInput{
		{Code: "x", InfluencerName: "Creator"},
		{Code: "HAS SPACE", InfluencerName: "Creator"},
		{Code: "VALID", InfluencerName: ""},
		{Code: "VALID", InfluencerName: "Creator", InfluencerURL: &badURL},
		{Code: "VALID", InfluencerName: "Creator", MinimumDeposit: decimal.NewFromInt(-1)},
		{Code: "VALID", InfluencerName: "Creator", MaxUses: &zero},
		{Code: "VALID", InfluencerName: "Creator", ExpiresAt: &past},
	}
	for i, input := range invalid {
		if _, err := svc.validateCouponInput(input); KindOf(err) != KindInvalidInput {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}
