package charge

import (
	"fmt"

	"github.com/AnuragDani/subscription-charger/internal/models"
)

// MutationFailedError reports that a charge outcome could not be fully applied.
// The gateway call itself already happened; only the local bookkeeping is incomplete.
type MutationFailedError struct {
	SubscriptionID string
	TransactionID  string
	Outcome        models.Outcome
	Err            error
}

func (e *MutationFailedError) Error() string {
	return fmt.Sprintf("failed to apply %s charge of subscription %s (transaction %s): %v",
		e.Outcome, e.SubscriptionID, e.TransactionID, e.Err)
}

func (e *MutationFailedError) Unwrap() error {
	return e.Err
}
