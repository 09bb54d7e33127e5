package legacyarray

import (
	"fmt"
	"strconv"
)

// Scalar renders a decoded scalar as the string form used for ids and keys.
func Scalar(v Value) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	}
	return "", fmt.Errorf("legacyarray: %T is not a scalar", v)
}

// Strings flattens a decoded list of scalars. Maps are accepted too and read
// in key order, since sparse lists decode as maps.
func Strings(v Value) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []Value:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, err := Scalar(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case map[string]Value:
		keys := sortedKeys(x)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			s, err := Scalar(x[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out = append(out, s)
		}
		return out, nil
	}

	s, err := Scalar(v)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

// StringLists reads a decoded map of key -> list of scalars, as stored for
// attribute -> term id assignments.
func StringLists(v Value) (map[string][]string, error) {
	out := make(map[string][]string)
	switch x := v.(type) {
	case nil:
		return out, nil
	case map[string]Value:
		for k, item := range x {
			list, err := Strings(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = list
		}
		return out, nil
	case []Value:
		for i, item := range x {
			list, err := Strings(item)
			if err != nil {
				return nil, fmt.Errorf("key %d: %w", i, err)
			}
			out[strconv.Itoa(i)] = list
		}
		return out, nil
	}
	return nil, fmt.Errorf("legacyarray: %T is not a map", v)
}
