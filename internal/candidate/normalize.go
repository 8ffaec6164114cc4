package candidate

import (
	"strings"
	"unicode"
)

// defaultCountryCode is collapsed into the national "0" prefix so that
// "+44 7911 123456", "0044 7911 123456" and "07911 123456" all normalize
// to the same canonical value.
const defaultCountryCode = "44"

// NormalizePhone strips punctuation and spacing from a raw phone number and
// collapses country-code variants to one canonical national form. Empty or
// digit-free input normalizes to "".
func NormalizePhone(raw string) string {
	var digits strings.Builder
	hasPlus := false
	for i, r := range strings.TrimSpace(raw) {
		if r == '+' && i == 0 {
			hasPlus = true
			continue
		}
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}

	number := digits.String()
	if number == "" {
		return ""
	}

	if strings.HasPrefix(number, "00"+defaultCountryCode) {
		return "0" + number[len("00"+defaultCountryCode):]
	}
	if hasPlus && strings.HasPrefix(number, defaultCountryCode) {
		return "0" + number[len(defaultCountryCode):]
	}
	// A bare country-code prefix without "+" still shows up in pasted data.
	if !strings.HasPrefix(number, "0") && strings.HasPrefix(number, defaultCountryCode) && len(number) > len(defaultCountryCode)+6 {
		return "0" + number[len(defaultCountryCode):]
	}
	return number
}

// DuplicateKey derives the deterministic dedup fingerprint from the name and
// phone. It is case-insensitive and whitespace-collapsed but sensitive to
// name order: first and last name occupy distinct slots.
func DuplicateKey(firstName, lastName, phone string) string {
	return normalizeNamePart(firstName) + "|" + normalizeNamePart(lastName) + "|" + NormalizePhone(phone)
}

func normalizeNamePart(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
