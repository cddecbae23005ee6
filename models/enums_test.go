package models

import "testing"

func TestParseFeeAction(t *testing.T) {
	cases := []struct {
		in       string
		expected FeeAction
		wantErr  bool
	}{
		{"TRANSFER", FeeActionTransfer, false},
		{"NEW_FEE", FeeActionNewFee, false},
		{"SPLIT", FeeActionSplit, false},
		{"transfer", "", true},
		{"", "", true},
		{"MERGE", "", true},
	}
	for _, tc := range cases {
		got, err := ParseFeeAction(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseFeeAction(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseFeeAction(%q) error: %v", tc.in, err)
		}
		if got != tc.expected {
			t.Fatalf("ParseFeeAction(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestFeeStatusIsOpen(t *testing.T) {
	open := []FeeStatus{FeeStatusPending, FeeStatusActive}
	closed := []FeeStatus{FeeStatusPaid, FeeStatusInactive, FeeStatusCancelled}
	for _, s := range open {
		if !s.IsOpen() {
			t.Fatalf("%s should be open", s)
		}
	}
	for _, s := range closed {
		if s.IsOpen() {
			t.Fatalf("%s should be closed", s)
		}
	}
}

func TestPaymentStatusCountsTowardPaid(t *testing.T) {
	if !PaymentStatusConfirmed.CountsTowardPaid() || !PaymentStatusPending.CountsTowardPaid() {
		t.Fatalf("confirmed and pending payments must count toward totalPaid")
	}
	if PaymentStatusCancelled.CountsTowardPaid() || PaymentStatusInactive.CountsTowardPaid() {
		t.Fatalf("cancelled and inactive payments must not count toward totalPaid")
	}
}
