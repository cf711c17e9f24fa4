package service

import (
	"errors"
	"fmt"

	repo "habitTracker/internal/repository"
)

const (
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeVersionConflict = "VERSION_CONFLICT"
	CodeUnauthorized    = "UNAUTHORIZED"
)

type Resource string

const (
	ResourceTask       Resource = "задача"
	ResourceHabit      Resource = "привычка"
	ResourceHabitEvent Resource = "отметка привычки"
)

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

type Detail struct {
	Key     string
	Payload any
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:     key,
		Payload: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	busErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}

	for _, detail := range details {
		busErr.Details[detail.Key] = detail.Payload
	}

	return busErr
}

func NewNotFound(resource Resource, id string) *BusinessError {
	return &BusinessError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s не найден(а)", resource, id),
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func NewValidationError(field, reason string) *BusinessError {
	return &BusinessError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("Неверное значение поля '%s': %s", field, reason),
		Details: map[string]any{
			"field":  field,
			"reason": reason,
		},
	}
}

func NewVersionConflict(resource Resource, id string, expected int) *BusinessError {
	return &BusinessError{
		Code:    CodeVersionConflict,
		Message: fmt.Sprintf("%s %s была изменена параллельно", resource, id),
		Details: map[string]any{
			"resource":         resource,
			"id":               id,
			"expected_version": expected,
		},
	}
}

func NewUnauthorized(reason string) *BusinessError {
	return &BusinessError{
		Code:    CodeUnauthorized,
		Message: "Unauthorized",
		Details: map[string]any{"reason": reason},
	}
}

func AsBusinessError(err error) (*BusinessError, bool) {
	var busErr *BusinessError
	if errors.As(err, &busErr) {
		return busErr, true
	}
	return nil, false
}

// fromRepo переводит ошибки хранилища в бизнес-ошибки; остальное оборачивает
func fromRepo(err error, resource Resource, id string, version int, action string) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		busErr := NewNotFound(resource, id)
		busErr.Err = err
		return busErr
	case errors.Is(err, repo.ErrVersionConflict):
		busErr := NewVersionConflict(resource, id, version)
		busErr.Err = err
		return busErr
	}
	return fmt.Errorf("%s: %w", action, err)
}
