package model

import "testing"

func TestPaymentStatusTerminal(t *testing.T) {
	cases := []struct {
		status PaymentStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusApproved, true},
		{StatusRejected, true},
		{StatusCancelled, true},
		{StatusError, false},
		{PaymentStatus("in_process"), false},
	}
	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.want {
			t.Errorf("Terminal(%q) = %v, want %v", tc.status, got, tc.want)
		}
	}
}
