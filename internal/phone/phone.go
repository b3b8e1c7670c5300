// Package phone holds the normalized phone number type shared by the
// dispatch pipeline and the contact book.
package phone

import "strings"

// Number is a phone number in wire form: "+" followed by country code and
// subscriber digits. It is produced by Normalize and treated as opaque by
// everything downstream.
type Number string

func (n Number) String() string { return string(n) }

// Normalize maps free-form input to wire form:
//   - input already starting with "+" is passed through unchanged
//   - anything else gets defaultPrefix prepended
//
// No digit or length validation happens here. An empty input comes back as
// the bare prefix; rejecting that is the interactive layer's job, not the
// normalizer's.
func Normalize(raw, defaultPrefix string) Number {
	if strings.HasPrefix(raw, "+") {
		return Number(raw)
	}
	return Number(defaultPrefix + raw)
}
