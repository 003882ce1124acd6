package core

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDetectTransaction(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want string // empty when nothing should be detected
	}{
		{"TD purchase", "TD Alert: Purchase of $45.67 CAD at GROCERY STORE", "45.67"},
		{"RBC charge", "RBC: Your card was charged $123.45 at AMAZON", "123.45"},
		{"amount before CAD", "Transaction of 89.99 CAD at COSTCO", "89.99"},
		{"French dollar suffix", "Achat de 52.30$ chez METRO", "52.30"},
		{"thousands separator", "Alert: $1,234.56 CAD spent at BEST BUY", "1234.56"},
		{"Interac", "Interac purchase of $15.00 at TIM HORTONS", "15.00"},
		{"ATM withdrawal", "ATM withdrawal of $200.00", "200"},
		{"French decimal comma", "Achat de 45,67$ chez IGA", "45.67"},
		{"payment", "Payment of $75.50 processed", "75.50"},
		{"CAD prefix", "Notification: CAD 99.99 at SHELL", "99.99"},
		{"labelled amount", "Montant: 12.40 chez SAQ", "12.40"},
		{"short message without keyword", "$8.25 at CAFE", "8.25"},
		{"direct deposit", "Direct deposit of $2,500.00 received", ""},
		{"refund", "Refund of $45.00 has been credited to your account", ""},
		{"e-transfer", "e-Transfer received of $100.00 from JOHN", ""},
		{"chat", "Hey, want to grab lunch tomorrow?", ""},
		{"zero amount", "Purchase of $0.00 at TEST", ""},
		{"long message without keyword", "$8.25 " + strings.Repeat("x", 200), ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DetectTransaction(tc.msg)
			if tc.want == "" {
				if ok {
					t.Fatalf("detected %s in %q", got.Amount, tc.msg)
				}
				return
			}
			if !ok {
				t.Fatalf("nothing detected in %q", tc.msg)
			}
			if !got.Amount.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("amount = %s, want %s", got.Amount, tc.want)
			}
			if got.Raw != tc.msg {
				t.Errorf("raw = %q, want the message unchanged", got.Raw)
			}
		})
	}
}
