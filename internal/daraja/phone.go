// Phone number canonicalization.
//
// Daraja only accepts payer numbers in international format without a plus
// sign (2547XXXXXXXX). Clients submit whatever their users typed, so the
// accepted shapes are:
//   - national:     0712345678            (leading 0 + 9 digits)
//   - subscriber:   712345678             (9 digits, no leading 0)
//   - international 254712345678 / +254712345678
//
// Whitespace, hyphens, and a leading '+' are stripped before matching.
package daraja

import "strings"

// countryCode is the Kenyan dialing prefix Daraja expects.
const countryCode = "254"

// NormalizePhone maps a raw caller-supplied phone number to the canonical
// 254XXXXXXXXX form. It is a pure function; any input that does not match one
// of the accepted shapes yields ErrInvalidPhone.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteByte(byte(r))
		case r == ' ' || r == '\t' || r == '-':
			// separators are ignored
		case r == '+' && b.Len() == 0:
			// leading plus is ignored
		default:
			return "", ErrInvalidPhone
		}
	}
	s := b.String()

	switch {
	case len(s) == 12 && strings.HasPrefix(s, countryCode):
		return s, nil
	case len(s) == 10 && s[0] == '0':
		return countryCode + s[1:], nil
	case len(s) == 9 && s[0] != '0':
		return countryCode + s, nil
	}
	return "", ErrInvalidPhone
}
