package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DetectedTransaction is a spend found in a bank notification.
type DetectedTransaction struct {
	Amount decimal.Decimal
	Raw    string
}

// Messages containing any of these describe money coming in.
var creditKeywords = []string{
	"deposit",
	"refund",
	"credit",
	"received",
	"e-transfer received",
	"direct deposit",
	"reimbursement",
	"cashback",
}

var debitKeywords = []string{
	"purchase", "achat", "transaction", "charged", "spent",
	"withdrawal", "retrait", "payment", "paiement", "debit",
	"preauthorized", "pos ", "interac", "tap ", "contactless",
	"alert", "alerte", "notification",
}

// Tried in order; the first match wins.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s?([\d,]+\.\d{2})`),
	regexp.MustCompile(`([\d,]+\.\d{2})\s?\$`),
	regexp.MustCompile(`(?i)CAD\s?([\d,]+\.\d{2})`),
	regexp.MustCompile(`(?i)([\d,]+\.\d{2})\s?CAD`),
	regexp.MustCompile(`([\d ]+,\d{2})\s?\$`),
	regexp.MustCompile(`(?i)(?:amount|montant)\s*:?\s*\$?\s?([\d,]+\.\d{2})`),
}

// Short messages with an amount are accepted without a debit keyword.
const shortMessageLen = 200

// DetectTransaction looks for a spent amount in a bank SMS or push
// notification. Credits such as deposits and refunds are ignored.
func DetectTransaction(msg string) (DetectedTransaction, bool) {
	lower := strings.ToLower(msg)
	for _, kw := range creditKeywords {
		if strings.Contains(lower, kw) {
			return DetectedTransaction{}, false
		}
	}

	amount, ok := findAmount(msg)
	if !ok || !amount.IsPositive() {
		return DetectedTransaction{}, false
	}

	if !containsAny(lower, debitKeywords) && len(msg) >= shortMessageLen {
		return DetectedTransaction{}, false
	}
	return DetectedTransaction{Amount: amount, Raw: msg}, true
}

func findAmount(msg string) (decimal.Decimal, bool) {
	for _, re := range amountPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		if d, ok := parseDetectedAmount(m[1]); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

// parseDetectedAmount reads "1,234.56" as well as the French "1 234,56".
func parseDetectedAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, " ", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
