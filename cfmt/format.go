package cfmt

import (
	"fmt"
	"strconv"
	"strings"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/memory"
)

type spec struct {
	flags     string
	width     int
	precision int // -1 when absent
	length    string
	verb      byte
}

func (s *spec) goFormat(verb byte) string {
	var b strings.Builder
	b.WriteByte('%')
	b.WriteString(s.flags)
	if s.width > 0 {
		b.WriteString(strconv.Itoa(s.width))
	}
	if s.precision >= 0 {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(s.precision))
	}
	b.WriteByte(verb)
	return b.String()
}

// Format renders format with arguments from args. String and %n arguments
// are pointers into mem.
func Format(mem soruntime.Memory, format string, args Args) (string, error) {
	var out strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			out.WriteByte(c)
			continue
		}
		i++
		if i >= len(format) {
			out.WriteByte('%')
			break
		}
		if format[i] == '%' {
			out.WriteByte('%')
			continue
		}

		s := spec{precision: -1}
		for i < len(format) && strings.IndexByte("-+ #0", format[i]) >= 0 {
			if strings.IndexByte(s.flags, format[i]) < 0 {
				s.flags += string(format[i])
			}
			i++
		}
		if i < len(format) && format[i] == '*' {
			w, err := args.Int32()
			if err != nil {
				return "", err
			}
			if w < 0 {
				s.flags += "-"
				w = -w
			}
			s.width = int(w)
			i++
		} else {
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				s.width = s.width*10 + int(format[i]-'0')
				i++
			}
		}
		if i < len(format) && format[i] == '.' {
			i++
			s.precision = 0
			if i < len(format) && format[i] == '*' {
				p, err := args.Int32()
				if err != nil {
					return "", err
				}
				s.precision = int(p)
				if p < 0 {
					s.precision = -1
				}
				i++
			} else {
				for i < len(format) && format[i] >= '0' && format[i] <= '9' {
					s.precision = s.precision*10 + int(format[i]-'0')
					i++
				}
			}
		}
		for i < len(format) && strings.IndexByte("hlLqjzt", format[i]) >= 0 {
			s.length += string(format[i])
			i++
		}
		if i >= len(format) {
			return out.String(), errors.New(errors.PhaseShim, errors.KindInvalidInput).
				Detail("truncated conversion in %q", format).Build()
		}
		s.verb = format[i]

		if err := convert(&out, mem, &s, args); err != nil {
			return out.String(), err
		}
	}
	return out.String(), nil
}

func wide(length string) bool {
	return length == "ll" || length == "q" || length == "j" || length == "L"
}

func readSigned(s *spec, args Args) (int64, error) {
	if wide(s.length) {
		return args.Int64()
	}
	v, err := args.Int32()
	switch s.length {
	case "hh":
		return int64(int8(v)), err
	case "h":
		return int64(int16(v)), err
	}
	return int64(v), err
}

func readUnsigned(s *spec, args Args) (uint64, error) {
	if wide(s.length) {
		v, err := args.Int64()
		return uint64(v), err
	}
	v, err := args.Int32()
	switch s.length {
	case "hh":
		return uint64(uint8(v)), err
	case "h":
		return uint64(uint16(v)), err
	}
	return uint64(uint32(v)), err
}

func convert(out *strings.Builder, mem soruntime.Memory, s *spec, args Args) error {
	switch s.verb {
	case 'd', 'i':
		v, err := readSigned(s, args)
		if err != nil {
			return err
		}
		writeInt(out, s, strconv.FormatInt(abs(v), 10), v < 0)
	case 'u':
		v, err := readUnsigned(s, args)
		if err != nil {
			return err
		}
		writeInt(out, s, strconv.FormatUint(v, 10), false)
	case 'o', 'x', 'X':
		v, err := readUnsigned(s, args)
		if err != nil {
			return err
		}
		s.flags = strings.ReplaceAll(strings.ReplaceAll(s.flags, "+", ""), " ", "")
		if v == 0 {
			// C prints no prefix for zero
			s.flags = strings.ReplaceAll(s.flags, "#", "")
		}
		fmt.Fprintf(out, s.goFormat(s.verb), v)
	case 'c':
		v, err := args.Int32()
		if err != nil {
			return err
		}
		s.precision = -1
		fmt.Fprintf(out, s.goFormat('s'), string([]byte{byte(v)}))
	case 's':
		v, err := args.Int32()
		if err != nil {
			return err
		}
		str := "(null)"
		if v != 0 {
			if str, err = memory.ReadCString(mem, uint32(v)); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, s.goFormat('s'), str)
	case 'p':
		v, err := args.Int32()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%*s", widthFor(s), "0x"+strconv.FormatUint(uint64(uint32(v)), 16))
	case 'f', 'F', 'e', 'E', 'g', 'G', 'a', 'A':
		v, err := args.Float64()
		if err != nil {
			return err
		}
		verb := s.verb
		switch verb {
		case 'F':
			verb = 'f'
		case 'a':
			verb = 'x'
		case 'A':
			verb = 'X'
		}
		if s.precision < 0 && verb != 'x' && verb != 'X' {
			s.precision = 6
		}
		fmt.Fprintf(out, s.goFormat(verb), v)
	case 'n':
		v, err := args.Int32()
		if err != nil {
			return err
		}
		if v != 0 {
			if err := mem.WriteU32(uint32(v), uint32(out.Len())); err != nil {
				return err
			}
		}
	default:
		return errors.New(errors.PhaseShim, errors.KindUnsupported).
			Detail("conversion %%%c", s.verb).Build()
	}
	return nil
}

func widthFor(s *spec) int {
	if strings.Contains(s.flags, "-") {
		return -s.width
	}
	return s.width
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// writeInt applies C integer rules: precision is a minimum digit count and
// disables zero padding.
func writeInt(out *strings.Builder, s *spec, digits string, neg bool) {
	if s.precision >= 0 {
		if s.precision == 0 && digits == "0" {
			digits = ""
		}
		for len(digits) < s.precision {
			digits = "0" + digits
		}
	}
	sign := ""
	switch {
	case neg:
		sign = "-"
	case strings.Contains(s.flags, "+"):
		sign = "+"
	case strings.Contains(s.flags, " "):
		sign = " "
	}
	body := sign + digits
	pad := s.width - len(body)
	switch {
	case pad <= 0:
		out.WriteString(body)
	case strings.Contains(s.flags, "-"):
		out.WriteString(body)
		out.WriteString(strings.Repeat(" ", pad))
	case strings.Contains(s.flags, "0") && s.precision < 0:
		out.WriteString(sign)
		out.WriteString(strings.Repeat("0", pad))
		out.WriteString(digits)
	default:
		out.WriteString(strings.Repeat(" ", pad))
		out.WriteString(body)
	}
}
