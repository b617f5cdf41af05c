// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/auction-system/internal/model"
)

// ErrMissingField возвращается, если в действии отсутствует обязательное поле.
var ErrMissingField = errors.New("missing required field")

// ValidateAction проверяет наличие обязательных полей действия в зависимости от его типа.
func ValidateAction(a *model.Action) error {
	switch a.Type {
	case model.ActionTypeBid:
		if a.ItemID == "" {
			return fmt.Errorf("%w: itemId", ErrMissingField)
		}
		if a.UserID == "" {
			return fmt.Errorf("%w: userId", ErrMissingField)
		}
		if a.Amount <= 0 {
			return fmt.Errorf("%w: amount", ErrMissingField)
		}
	case model.ActionTypePurchaseRequest:
		if a.ItemID == "" {
			return fmt.Errorf("%w: itemId", ErrMissingField)
		}
		if a.UserID == "" {
			return fmt.Errorf("%w: userId", ErrMissingField)
		}
	case model.ActionTypeAcceptRequest:
		if a.ItemID == "" {
			return fmt.Errorf("%w: itemId", ErrMissingField)
		}
		if a.UserID == "" {
			return fmt.Errorf("%w: userId", ErrMissingField)
		}
		if a.RefActionID == "" {
			return fmt.Errorf("%w: refActionId", ErrMissingField)
		}
	}

	return nil
}
