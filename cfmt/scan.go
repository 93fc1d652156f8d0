package cfmt

import (
	"math"
	"strconv"
	"strings"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
)

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\f' || c == '\r'
}

// Scan parses input according to a C scanf format, storing results through
// the pointer arguments supplied by args. It returns the number of assigned
// conversions, or -1 if the input ended before the first conversion.
func Scan(mem soruntime.Memory, input, format string, args Args) (int, error) {
	pos, assigned := 0, 0
	matchedAny := false
	skip := func() {
		for pos < len(input) && isSpace(input[pos]) {
			pos++
		}
	}
	eof := func() (int, error) {
		if !matchedAny && assigned == 0 {
			return -1, nil
		}
		return assigned, nil
	}

	for i := 0; i < len(format); i++ {
		c := format[i]
		if isSpace(c) {
			skip()
			continue
		}
		if c != '%' || (i+1 < len(format) && format[i+1] == '%') {
			if c == '%' {
				i++
				skip()
			}
			if pos >= len(input) {
				return eof()
			}
			if input[pos] != c {
				return assigned, nil
			}
			pos++
			continue
		}

		i++
		suppress := false
		if i < len(format) && format[i] == '*' {
			suppress = true
			i++
		}
		width := 0
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			width = width*10 + int(format[i]-'0')
			i++
		}
		start := i
		for i < len(format) && strings.IndexByte("hlLqjzt", format[i]) >= 0 {
			i++
		}
		length := format[start:i]
		if i >= len(format) {
			return assigned, errors.New(errors.PhaseShim, errors.KindInvalidInput).
				Detail("truncated conversion in %q", format).Build()
		}
		verb := format[i]

		if verb == 'n' {
			if !suppress {
				if err := store(mem, args, length, 'd', uint64(pos)); err != nil {
					return assigned, err
				}
			}
			continue
		}
		if verb != 'c' && verb != '[' {
			skip()
		}
		if pos >= len(input) {
			return eof()
		}
		limit := len(input)
		if width > 0 && pos+width < limit {
			limit = pos + width
		}

		var (
			token string
			value uint64
			err   error
		)
		switch verb {
		case 'd', 'i', 'u', 'x', 'X', 'o', 'p':
			base := map[byte]int{'d': 10, 'u': 10, 'i': 0, 'x': 16, 'X': 16, 'p': 16, 'o': 8}[verb]
			token = scanInteger(input[pos:limit], base)
			if token == "" {
				return assigned, nil
			}
			value, err = parseInteger(token, base)
		case 'f', 'F', 'e', 'E', 'g', 'G', 'a', 'A':
			token = scanFloat(input[pos:limit])
			if token == "" {
				return assigned, nil
			}
			var f float64
			f, err = strconv.ParseFloat(token, 64)
			if err != nil && !strings.Contains(err.Error(), "range") {
				return assigned, nil
			}
			err = nil
			if length == "l" || length == "L" {
				value = math.Float64bits(f)
			} else {
				value = uint64(math.Float32bits(float32(f)))
			}
		case 's':
			end := pos
			for end < limit && !isSpace(input[end]) {
				end++
			}
			token = input[pos:end]
		case 'c':
			if width == 0 {
				limit = pos + 1
			}
			token = input[pos:limit]
		case '[':
			return assigned, errors.Unsupported(errors.PhaseShim, "scanf %[ conversion")
		default:
			return assigned, errors.New(errors.PhaseShim, errors.KindInvalidInput).
				Detail("unknown conversion %%%c", verb).Build()
		}
		if err != nil {
			return assigned, nil
		}
		pos += len(token)
		matchedAny = true
		if suppress {
			continue
		}

		switch verb {
		case 's', 'c':
			ptr, err := args.Int32()
			if err != nil {
				return assigned, err
			}
			data := []byte(token)
			if verb == 's' {
				data = append(data, 0)
			}
			if err := mem.Write(uint32(ptr), data); err != nil {
				return assigned, err
			}
		default:
			if err := store(mem, args, length, verb, value); err != nil {
				return assigned, err
			}
		}
		assigned++
	}
	return assigned, nil
}

// store writes value through the next pointer argument, sized by length.
func store(mem soruntime.Memory, args Args, length string, verb byte, value uint64) error {
	p, err := args.Int32()
	if err != nil {
		return err
	}
	ptr := uint32(p)
	float := strings.IndexByte("fFeEgGaA", verb) >= 0
	switch {
	case float && (length == "l" || length == "L"):
		return mem.WriteU64(ptr, value)
	case float:
		return mem.WriteU32(ptr, uint32(value))
	case length == "hh":
		return mem.WriteU8(ptr, uint8(value))
	case length == "h":
		return mem.WriteU16(ptr, uint16(value))
	case length == "ll" || length == "q" || length == "j" || length == "L":
		return mem.WriteU64(ptr, value)
	default:
		return mem.WriteU32(ptr, uint32(value))
	}
}

func scanInteger(s string, base int) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digitsStart := i
	if (base == 0 || base == 16) && i+1 < len(s) && s[i] == '0' && (s[i+1] == 'x' || s[i+1] == 'X') {
		if i+2 < len(s) && isDigit(s[i+2], 16) {
			i += 2
			base = 16
		}
	} else if base == 0 && i < len(s) && s[i] == '0' {
		base = 8
	}
	if base == 0 {
		base = 10
	}
	for i < len(s) && isDigit(s[i], base) {
		i++
	}
	if i == digitsStart {
		return ""
	}
	return s[:i]
}

func parseInteger(token string, base int) (uint64, error) {
	neg := false
	t := token
	if t[0] == '+' || t[0] == '-' {
		neg = t[0] == '-'
		t = t[1:]
	}
	v, err := strconv.ParseUint(t, base, 64)
	if err != nil {
		return 0, err
	}
	if neg {
		v = -v
	}
	return v, nil
}

func isDigit(c byte, base int) bool {
	var d int
	switch {
	case c >= '0' && c <= '9':
		d = int(c - '0')
	case c >= 'a' && c <= 'z':
		d = int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		d = int(c-'A') + 10
	default:
		return false
	}
	return d < base
}

func scanFloat(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	rest := strings.ToLower(s[i:])
	for _, word := range []string{"infinity", "inf", "nan"} {
		if strings.HasPrefix(rest, word) {
			return s[:i+len(word)]
		}
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && s[j] >= '0' && s[j] <= '9' {
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			i = j
		}
	}
	return s[:i]
}
