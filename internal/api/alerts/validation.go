package alerts

import (
	"errors"
	"strings"
)

func ValidateResolvedBy(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("resolved_by is required")
	}
	if len(name) > 100 {
		return errors.New("resolved_by must be 100 characters or less")
	}
	return nil
}
