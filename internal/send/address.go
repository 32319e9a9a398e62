package send

import (
	"fmt"
	"strings"
)

// NormalizeAddress validates a target address loosely and returns its
// canonical form: an optional leading '+' followed by 7-20 digits, all
// formatting stripped.
func NormalizeAddress(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrAddressInvalid)
	}

	plus := strings.HasPrefix(s, "+")

	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	n := digits.Len()
	if n < 7 || n > 20 {
		return "", fmt.Errorf("%w: %q has %d digits, want 7-20", ErrAddressInvalid, raw, n)
	}

	if plus {
		return "+" + digits.String(), nil
	}
	return digits.String(), nil
}
