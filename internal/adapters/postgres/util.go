package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/securebank/scoring-engine/internal/domain"
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func isAuthorizationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "authentication failed") ||
		strings.Contains(msg, "sqlstate 28") ||
		strings.Contains(msg, "sqlstate 42501")
}

// storeError folds driver errors into the pipeline taxonomy. Unknown store
// failures classify as transient: retrying an unknown failure is safe, while
// mislabeling a recoverable one permanent loses the record to the DLQ.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrTransientStore, err)
	case isAuthorizationFailure(err):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrPermanentStore, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrTransientStore, err)
	}
}
