package restic

import "fmt"

// toInt coerces a JSON-decoded value to an integer. restic emits some
// integral counters as floats; those truncate.
func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("expected a number, got %T (%v)", v, v)
}

// toFloat coerces a JSON-decoded value to a float.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("expected a number, got %T (%v)", v, v)
}

func toString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T (%v)", v, v)
	}
	return s, nil
}

func toStrings(v any) ([]string, error) {
	switch l := v.(type) {
	case []string:
		return l, nil
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, err := toString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of strings, got %T (%v)", v, v)
}

// validatePositive rejects negative numbers; zero is accepted.
func validatePositive(v float64) error {
	if v < 0 {
		return fmt.Errorf("expected positive number: %v", v)
	}
	return nil
}

// validatePercent rejects ratios outside [0, 1].
func validatePercent(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("not a valid percent: %v", v)
	}
	return nil
}

func validateNonEmpty(s string) error {
	if s == "" {
		return fmt.Errorf("expected non-empty string")
	}
	return nil
}
