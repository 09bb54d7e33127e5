// Package legacyarray reads and writes the length-prefixed array text format
// used by the old storefront export for matrix attribute lists, term maps and
// breakpoint lists.
//
// Grammar:
//
//	N;                       null
//	b:<0|1>;                 bool
//	i:<int>;                 integer
//	d:<float>;               double
//	s:<bytes>:"<payload>";   string, <bytes> is the payload length in bytes
//	a:<count>:{<key><value>...}
//
// Array keys are integers or strings. An array whose keys are exactly
// 0..count-1 in encounter order decodes to []Value, anything else to
// map[string]Value.
package legacyarray

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is one of nil, bool, int64, float64, string, []Value or map[string]Value.
type Value = any

// DecodeError reports malformed input and the byte offset it was found at.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("legacyarray: %s at offset %d", e.Reason, e.Offset)
}

// Decode parses text into a Value. Trailing bytes other than whitespace are
// rejected so a value is never silently truncated.
func Decode(text string) (Value, error) {
	r := &reader{buf: text}
	v, err := r.value()
	if err != nil {
		return nil, err
	}
	if rest := strings.TrimSpace(r.buf[r.pos:]); rest != "" {
		return nil, r.fail("trailing data")
	}
	return v, nil
}

type reader struct {
	buf string
	pos int
}

func (r *reader) fail(format string, args ...any) *DecodeError {
	return &DecodeError{Offset: r.pos, Reason: fmt.Sprintf(format, args...)}
}

func (r *reader) value() (Value, error) {
	if r.pos >= len(r.buf) {
		return nil, r.fail("unexpected end of input")
	}

	tag := r.buf[r.pos]
	r.pos++

	switch tag {
	case 'N':
		if err := r.expect(';'); err != nil {
			return nil, err
		}
		return nil, nil

	case 'b':
		if err := r.expect(':'); err != nil {
			return nil, err
		}
		n, err := r.integer(';')
		if err != nil {
			return nil, err
		}
		if n != 0 && n != 1 {
			return nil, r.fail("invalid bool %d", n)
		}
		return n == 1, nil

	case 'i':
		if err := r.expect(':'); err != nil {
			return nil, err
		}
		return r.integer(';')

	case 'd':
		if err := r.expect(':'); err != nil {
			return nil, err
		}
		start := r.pos
		tok, err := r.until(';')
		if err != nil {
			return nil, err
		}
		f, perr := strconv.ParseFloat(tok, 64)
		if perr != nil {
			return nil, &DecodeError{Offset: start, Reason: fmt.Sprintf("invalid double %q", tok)}
		}
		return f, nil

	case 's':
		if err := r.expect(':'); err != nil {
			return nil, err
		}
		return r.str()

	case 'a':
		if err := r.expect(':'); err != nil {
			return nil, err
		}
		return r.array()
	}

	r.pos--
	return nil, r.fail("unknown type tag %q", tag)
}

func (r *reader) expect(c byte) error {
	if r.pos >= len(r.buf) {
		return r.fail("expected %q, got end of input", c)
	}
	if r.buf[r.pos] != c {
		return r.fail("expected %q, got %q", c, r.buf[r.pos])
	}
	r.pos++
	return nil
}

// until returns the bytes up to delim and moves the cursor past it.
func (r *reader) until(delim byte) (string, error) {
	idx := strings.IndexByte(r.buf[r.pos:], delim)
	if idx < 0 {
		return "", r.fail("unterminated token, missing %q", delim)
	}
	tok := r.buf[r.pos : r.pos+idx]
	r.pos += idx + 1
	return tok, nil
}

func (r *reader) integer(delim byte) (int64, error) {
	start := r.pos
	tok, err := r.until(delim)
	if err != nil {
		return 0, err
	}
	n, perr := strconv.ParseInt(tok, 10, 64)
	if perr != nil {
		return 0, &DecodeError{Offset: start, Reason: fmt.Sprintf("invalid integer %q", tok)}
	}
	return n, nil
}

func (r *reader) str() (string, error) {
	start := r.pos
	n, err := r.integer(':')
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", &DecodeError{Offset: start, Reason: fmt.Sprintf("negative string length %d", n)}
	}
	if err := r.expect('"'); err != nil {
		return "", err
	}
	if int64(len(r.buf)-r.pos) < n {
		return "", r.fail("string length %d exceeds remaining input", n)
	}
	s := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	if err := r.expect('"'); err != nil {
		return "", err
	}
	if err := r.expect(';'); err != nil {
		return "", err
	}
	return s, nil
}

type entry struct {
	key    Value
	value  Value
	offset int
}

func (r *reader) array() (Value, error) {
	start := r.pos
	count, err := r.integer(':')
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, &DecodeError{Offset: start, Reason: fmt.Sprintf("negative element count %d", count)}
	}
	if err := r.expect('{'); err != nil {
		return nil, err
	}

	// Every element needs at least four bytes, so a count beyond that is
	// malformed and must not drive the allocation.
	capacity := count
	if limit := int64(len(r.buf)-r.pos) / 4; capacity > limit {
		capacity = limit
	}
	entries := make([]entry, 0, capacity)

	for i := int64(0); i < count; i++ {
		keyPos := r.pos
		key, err := r.value()
		if err != nil {
			return nil, err
		}
		switch key.(type) {
		case int64, string:
		default:
			return nil, &DecodeError{Offset: keyPos, Reason: fmt.Sprintf("invalid array key of type %T", key)}
		}

		val, err := r.value()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{key: key, value: val, offset: keyPos})
	}

	if err := r.expect('}'); err != nil {
		return nil, err
	}

	if dense(entries) {
		seq := make([]Value, len(entries))
		for i, e := range entries {
			seq[i] = e.value
		}
		return seq, nil
	}

	m := make(map[string]Value, len(entries))
	for _, e := range entries {
		k := keyString(e.key)
		if _, dup := m[k]; dup {
			return nil, &DecodeError{Offset: e.offset, Reason: fmt.Sprintf("duplicate array key %q", k)}
		}
		m[k] = e.value
	}
	return m, nil
}

func dense(entries []entry) bool {
	for i, e := range entries {
		n, ok := e.key.(int64)
		if !ok || n != int64(i) {
			return false
		}
	}
	return true
}

func keyString(k Value) string {
	switch v := k.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	}
	return fmt.Sprint(k)
}
