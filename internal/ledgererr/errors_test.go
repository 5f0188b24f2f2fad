package ledgererr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"sentinel", ErrAlreadyPaid, CodeAlreadyPaid},
		{"wrapped", fmt.Errorf("pay split: %w", ErrNotAParticipant), CodeNotAParticipant},
		{"double wrapped", fmt.Errorf("a: %w", fmt.Errorf("b: %w", ErrDecode)), CodeDecodeError},
		{"foreign", errors.New("disk full"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsGuard(t *testing.T) {
	if !IsGuard(ErrInsufficientFunds) {
		t.Error("InsufficientFunds should be a guard failure")
	}
	if IsGuard(ErrSplitNotFound) {
		t.Error("SplitNotFound should be structural")
	}
	if IsGuard(errors.New("boom")) {
		t.Error("foreign errors are not guard failures")
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	all := []*Error{
		ErrSplitIDTooLong, ErrNoParticipants, ErrTooManyParticipants, ErrInvalidAmount,
		ErrDuplicateParticipant, ErrNotAParticipant, ErrAlreadyPaid, ErrNotFullyPaid,
		ErrUnauthorized, ErrInsufficientFunds, ErrDecode, ErrAddressMismatch,
		ErrSplitNotFound, ErrSplitExists, ErrBalanceOverflow,
	}
	seen := make(map[Code]bool)
	for _, e := range all {
		if seen[e.Code()] {
			t.Errorf("duplicate code %q", e.Code())
		}
		seen[e.Code()] = true
		for _, other := range all {
			if e != other && errors.Is(e, other) {
				t.Errorf("%q matches %q", e.Code(), other.Code())
			}
		}
	}
}
