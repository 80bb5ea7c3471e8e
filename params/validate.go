package params

import (
	"fmt"
	"time"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func positive(name string, v float64) error {
	if !(v > 0) {
		return invalid("%s must be > 0, got %v", name, v)
	}
	return nil
}

func positiveDuration(name string, d time.Duration) error {
	if d <= 0 {
		return invalid("%s must be > 0, got %v", name, d)
	}
	return nil
}

func unit(name string, v float64) error {
	if !(v >= 0 && v <= 1) {
		return invalid("%s must be in [0,1], got %v", name, v)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
