package domain

import (
	"errors"
	"strings"
)

// Caller is the authenticated principal handed to the core by the
// authentication layer.
type Caller struct {
	ID string
}

func (c Caller) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return WrapError(ErrUnauthorized, "caller", errors.New("missing caller id"))
	}
	return nil
}
