package legacyarray

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Encode writes v in the legacy array format. Sequences get keys 0..n-1, map
// keys are written in sorted order with numeric keys as integers.
func Encode(v Value) (string, error) {
	var b strings.Builder
	if err := encode(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func encode(b *strings.Builder, v Value) error {
	switch x := v.(type) {
	case nil:
		b.WriteString("N;")
	case bool:
		if x {
			b.WriteString("b:1;")
		} else {
			b.WriteString("b:0;")
		}
	case int:
		fmt.Fprintf(b, "i:%d;", x)
	case int64:
		fmt.Fprintf(b, "i:%d;", x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("legacyarray: cannot encode non-finite double %v", x)
		}
		b.WriteString("d:")
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		b.WriteByte(';')
	case string:
		writeString(b, x)
	case []string:
		fmt.Fprintf(b, "a:%d:{", len(x))
		for i, s := range x {
			fmt.Fprintf(b, "i:%d;", i)
			writeString(b, s)
		}
		b.WriteByte('}')
	case []Value:
		fmt.Fprintf(b, "a:%d:{", len(x))
		for i, item := range x {
			fmt.Fprintf(b, "i:%d;", i)
			if err := encode(b, item); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case map[string]Value:
		fmt.Fprintf(b, "a:%d:{", len(x))
		for _, k := range sortedKeys(x) {
			writeKey(b, k)
			if err := encode(b, x[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case map[string][]string:
		fmt.Fprintf(b, "a:%d:{", len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sortKeys(keys)
		for _, k := range keys {
			writeKey(b, k)
			if err := encode(b, x[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("legacyarray: cannot encode %T", v)
	}
	return nil
}

func writeString(b *strings.Builder, s string) {
	fmt.Fprintf(b, "s:%d:\"", len(s))
	b.WriteString(s)
	b.WriteString("\";")
}

func writeKey(b *strings.Builder, k string) {
	if n, err := strconv.ParseInt(k, 10, 64); err == nil && strconv.FormatInt(n, 10) == k {
		fmt.Fprintf(b, "i:%d;", n)
		return
	}
	writeString(b, k)
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// sortKeys orders integer keys numerically ahead of string keys, which sort
// lexicographically.
func sortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		ni, errI := strconv.ParseInt(keys[i], 10, 64)
		nj, errJ := strconv.ParseInt(keys[j], 10, 64)
		switch {
		case errI == nil && errJ == nil:
			return ni < nj
		case errI == nil:
			return true
		case errJ == nil:
			return false
		}
		return keys[i] < keys[j]
	})
}
