package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	maxGameNameLength        = 60
	maxGameDescriptionLength = 500
	maxUserIDLength          = 128
)

var validatorOnce sync.Once

func registerValidators() {
	validatorOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = engine.RegisterValidation("gamename", func(fl validator.FieldLevel) bool {
			_, err := validateGameName(fl.Field().String())
			return err == nil
		})
		_ = engine.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
			return validateUserID(fl.Field().String()) == nil
		})
	})
}

func validateGameName(name string) (string, error) {
	return validateText("name", name, maxGameNameLength)
}

func validateDescription(text string) (string, error) {
	trimmed := normalizeText(text)
	if trimmed == "" {
		return "", nil
	}
	return validateText("description", trimmed, maxGameDescriptionLength)
}

// validateUserID accepts the opaque ids issued by the identity provider.
func validateUserID(id string) error {
	if id == "" {
		return errors.New("user id is required")
	}
	if len(id) > maxUserIDLength {
		return fmt.Errorf("user id must be %d characters or fewer", maxUserIDLength)
	}
	for _, r := range id {
		if r <= ' ' || r > '~' {
			return errors.New("user id contains unsupported characters")
		}
		switch r {
		case '<', '>', '"', '\'', '&', '/', '\\':
			return errors.New("user id contains unsupported characters")
		}
	}
	return nil
}

func validateText(label, text string, maxLen int) (string, error) {
	trimmed := normalizeText(text)
	if trimmed == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	if len(trimmed) > maxLen {
		return "", fmt.Errorf("%s must be %d characters or fewer", label, maxLen)
	}
	if !isSafeText(trimmed) {
		return "", fmt.Errorf("%s contains unsupported characters", label)
	}
	return trimmed, nil
}

func normalizeText(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	return strings.Join(fields, " ")
}

func isSafeText(text string) bool {
	for _, r := range text {
		if r > 127 {
			return false
		}
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			continue
		}
		switch r {
		case ' ', '-', '_', '\'', '.', ',', '!', '?', ':', '(', ')', '#':
			continue
		default:
			return false
		}
	}
	return true
}
