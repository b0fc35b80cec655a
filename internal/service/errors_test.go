package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		err      error
		kind     ErrorKind
		sentinel error
		code     string
	}{
		{name: "not found", err: notFound(ErrLootboxNotFound), kind: KindNotFound, sentinel: ErrLootboxNotFound, code: "LOOTBOX_NOT_FOUND"},
		{name: "state", err: invalidState(ErrAlreadyWithdrawn, nil), kind: KindInvalidState, sentinel: ErrAlreadyWithdrawn, code: "ITEM_ALREADY_WITHDRAWN"},
		{name: "policy", err: policyViolation(ErrInsufficientFunds, map[string]any{"shortfall": "1.00"}), kind: KindPolicyViolation, sentinel: ErrInsufficientFunds, code: "INSUFFICIENT_FUNDS"},
		{name: "forbidden", err: forbidden(), kind: KindForbidden, sentinel: ErrForbidden, code: "OPERATION_NOT_PERMITTED"},
		{name: "input", err: invalidInput(ErrInvalidInput, "bad"), kind: KindInvalidInput, sentinel: ErrInvalidInput, code: "INVALID_INPUT"},
		{name: "invariant", err: invariantViolation(ErrNoCandidateSelected, nil, nil), kind: KindInvariantViolation, sentinel: ErrNoCandidateSelected, code: "WEIGHTED_SELECTION_PRODUCED_NO_CANDIDATE"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := KindOf(tc.err); got != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, got)
			}
			if !errors.Is(tc.err, tc.sentinel) {
				t.Fatalf("expected errors.Is to match %v", tc.sentinel)
			}
			var typed *Error
			if !errors.As(tc.err, &typed) {
				t.Fatal("expected *Error")
			}
			if typed.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, typed.Code)
			}
		})
	}
}

func TestInvariantViolationKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("weights sum to zero")
	err := invariantViolation(ErrNoCandidateSelected, cause, map[string]any{"source": "box"})

	if !errors.Is(err, cause) || !errors.Is(err, ErrNoCandidateSelected) {
		t.Fatalf("expected both sentinel and cause to match: %v", err)
	}
	if DetailsOf(err)["source"] != "box" {
		t.Fatalf("expected details to survive, got %v", DetailsOf(err))
	}

	wrapped := fmt.Errorf("open: %w", err)
	if KindOf(wrapped) != KindInvariantViolation {
		t.Fatalf("expected kind through wrapping, got %s", KindOf(wrapped))
	}
}

func TestKindOf_UntypedIsInternal(t *testing.T) {
	t.Parallel()

	if KindOf(nil) != "" {
		t.Fatal("nil error must have no kind")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("untyped error must be internal")
	}
}

func TestNewActor_Capabilities(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	other := uuid.New()

	user, err := NewActor(owner.String(), "user")
	if err != nil {
		t.Fatalf("NewActor returned error: %v", err)
	}
	if !user.Can(CapSelf) || user.Elevated() {
		t.Fatalf("plain user capabilities wrong: %08b", user.Capabilities)
	}
	if !user.CanAccess(owner) || user.CanAccess(other) {
		t.Fatal("plain user must only access own records")
	}
	if KindOf(user.requireOperator()) != KindForbidden {
		t.Fatal("plain user must not pass operator check")
	}

	moderator, _ := NewActor(other.String(), " Moderator ")
	if !moderator.Elevated() || moderator.Can(CapAdmin) {
		t.Fatalf("moderator capabilities wrong: %08b", moderator.Capabilities)
	}
	if !moderator.CanAccess(owner) {
		t.Fatal("moderator must access other users' records")
	}
	if moderator.requireAdmin() == nil {
		t.Fatal("moderator must not pass admin check")
	}

	admin, _ := NewActor(uuid.NewString(), "admin")
	if admin.requireAdmin() != nil || admin.requireOperator() != nil {
		t.Fatal("admin must pass operator and admin checks")
	}

	if _, err := NewActor("not-a-uuid", "admin"); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := NewActor(uuid.Nil.String(), "user"); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID for nil uuid, got %v", err)
	}

	var anonymous Actor
	if anonymous.requireSelf() == nil {
		t.Fatal("zero actor must fail identity check")
	}
}
