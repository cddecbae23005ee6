package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/waywedesign-cochin/smk-api/models"
)

func TestNewFeeBalance(t *testing.T) {
	cases := []struct {
		baseFee   string
		totalPaid string
		expected  string
	}{
		{"800", "500", "300"},
		{"800", "0", "800"},
		{"800", "800", "0"},
		{"500", "800", "0"},
		{"1200.50", "200.25", "1000.25"},
	}
	for _, tc := range cases {
		got := NewFeeBalance(decimal.RequireFromString(tc.baseFee), decimal.RequireFromString(tc.totalPaid))
		if !got.Equal(decimal.RequireFromString(tc.expected)) {
			t.Fatalf("NewFeeBalance(%s, %s) expected %s, got %s", tc.baseFee, tc.totalPaid, tc.expected, got)
		}
	}
}

func TestSplitOverpaid(t *testing.T) {
	cases := []struct {
		totalPaid string
		baseFee   string
		expected  bool
	}{
		{"900", "800", true},
		{"800", "800", false},
		{"500", "800", false},
		{"800.01", "800", true},
	}
	for _, tc := range cases {
		got := SplitOverpaid(decimal.RequireFromString(tc.totalPaid), decimal.RequireFromString(tc.baseFee))
		if got != tc.expected {
			t.Fatalf("SplitOverpaid(%s, %s) expected %v, got %v", tc.totalPaid, tc.baseFee, tc.expected, got)
		}
	}
}

func TestSplitClosingStatus(t *testing.T) {
	cases := []struct {
		name        string
		oldBalance  string
		totalPaid   string
		oldFinalFee string
		expected    models.FeeStatus
	}{
		{"fully settled balance", "0", "1000", "1000", models.FeeStatusPaid},
		{"paid at least final fee", "100", "1000", "1000", models.FeeStatusPaid},
		{"abandoned with balance", "300", "500", "800", models.FeeStatusInactive},
		{"nothing paid", "800", "0", "800", models.FeeStatusInactive},
	}
	for _, tc := range cases {
		got := SplitClosingStatus(
			decimal.RequireFromString(tc.oldBalance),
			decimal.RequireFromString(tc.totalPaid),
			decimal.RequireFromString(tc.oldFinalFee),
		)
		if got != tc.expected {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}
