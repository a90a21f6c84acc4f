package service

import (
	"net/mail"
	"strings"

	"ridepay/internal/model"
)

const maxEmailLength = 50

// Payer is the identity sent to the gateway with a checkout.
type Payer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

func BuildPayer(user *model.User, emailDomain string) Payer {
	first, last := SplitName(user.FullName)
	return Payer{
		FirstName: first,
		LastName:  last,
		Email:     NormalizeEmail(user.Email, user.ID, emailDomain),
		Phone:     NormalizePhone(user.PhoneNumber),
	}
}

// NormalizePhone rewrites an Ethiopian mobile number into the local
// 0XXXXXXXXX form. Numbers it cannot recognise come back empty.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "251"):
		digits = "0" + digits[3:]
	case len(digits) == 9:
		digits = "0" + digits
	}

	if len(digits) != 10 || digits[0] != '0' || (digits[1] != '9' && digits[1] != '7') {
		return ""
	}
	return digits
}

// NormalizeEmail keeps a well-formed address of at most 50 characters and
// otherwise substitutes a synthetic one derived from the user id.
func NormalizeEmail(raw, userID, domain string) string {
	raw = strings.TrimSpace(raw)
	if raw != "" && len(raw) <= maxEmailLength {
		if addr, err := mail.ParseAddress(raw); err == nil && addr.Address == raw {
			return raw
		}
	}

	prefix := strings.ReplaceAll(userID, "-", "")
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	if prefix == "" {
		prefix = "user"
	}
	return "wallet-" + strings.ToLower(prefix) + "@" + domain
}

// SplitName splits a full name into first name and the remainder.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "Wallet", "User"
	case 1:
		return parts[0], parts[0]
	}
	return parts[0], strings.Join(parts[1:], " ")
}
