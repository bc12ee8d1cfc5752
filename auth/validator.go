package auth

import (
	"chat-sync/errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// PrivateRoomRequest is what a user types to create or join a private room.
type PrivateRoomRequest struct {
	Name   string `validate:"required,max=50"`
	Secret string `validate:"required,min=4,max=72"`
}

// ValidatePrivateRoom rejects blank names and weak or oversized secrets.
func ValidatePrivateRoom(req PrivateRoomRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	if strings.TrimSpace(req.Secret) == "" {
		return fmt.Errorf("%w: blank secret", errors.ErrValidation)
	}
	return nil
}
