package dump

import (
	"errors"
	"strings"
)

// nullMarker is the COPY text representation of SQL NULL.
const nullMarker = `\N`

var errBadEscape = errors.New("bad escape sequence")

// decodeField turns one raw COPY text field into its value. null is true for
// the NULL marker.
func decodeField(raw string) (value string, null bool, err error) {
	if raw == nullMarker {
		return "", true, nil
	}
	if strings.IndexByte(raw, '\\') < 0 {
		return raw, false, nil
	}

	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(raw) {
			return "", false, errBadEscape
		}
		switch e := raw[i]; e {
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'v':
			b.WriteByte('\v')
		case 'x':
			v, n := hexValue(raw[i+1:])
			if n == 0 {
				// no hex digit follows: the x stands for itself
				b.WriteByte('x')
				continue
			}
			b.WriteByte(v)
			i += n
		default:
			if e >= '0' && e <= '7' {
				v, n := octalValue(raw[i:])
				b.WriteByte(v)
				i += n - 1
				continue
			}
			// Any other escaped character stands for itself, including '\\'.
			b.WriteByte(e)
		}
	}
	return b.String(), false, nil
}

// hexValue reads up to two hex digits.
func hexValue(s string) (byte, int) {
	var v byte
	n := 0
	for n < 2 && n < len(s) {
		d, ok := hexDigit(s[n])
		if !ok {
			break
		}
		v = v<<4 | d
		n++
	}
	return v, n
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// octalValue reads one to three octal digits.
func octalValue(s string) (byte, int) {
	var v byte
	n := 0
	for n < 3 && n < len(s) && s[n] >= '0' && s[n] <= '7' {
		v = v<<3 | (s[n] - '0')
		n++
	}
	return v, n
}
