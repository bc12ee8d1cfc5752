package domain

import (
	"chat-sync/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// MessageDraft is what a user typed before it becomes a Message.
type MessageDraft struct {
	Content string `validate:"required,max=500"`
}

// ValidateDraft rejects empty and oversized bodies before any network call.
func ValidateDraft(content string) (string, error) {
	draft := MessageDraft{Content: NormalizeContent(content)}
	if err := validate.Struct(draft); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return draft.Content, nil
}
