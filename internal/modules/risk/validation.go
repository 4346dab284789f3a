package risk

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidatePositions checks the shape of a position snapshot once, at the boundary,
// so calculators can read fields without re-checking them.
func ValidatePositions(positions []Position) error {
	for i, p := range positions {
		if err := validate.Struct(p); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
				fe := fieldErrs[0]
				return newValidationError(
					fmt.Sprintf("positions[%d].%s", i, fe.Field()),
					"failed %q constraint (value %v)", fe.Tag(), fe.Value(),
				)
			}
			return fmt.Errorf("failed to validate position %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks the `validate` tags of a request struct.
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return newValidationError(fe.Field(), "failed %q constraint (value %v)", fe.Tag(), fe.Value())
		}
		return fmt.Errorf("failed to validate request: %w", err)
	}
	return nil
}
