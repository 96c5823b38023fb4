package httpapi

import (
	"context"
	"time"

	"github.com/tinoosan/walletledger/internal/service/budget"
	"github.com/tinoosan/walletledger/internal/service/recurring"
)

// Pinger reports whether the backing store can serve requests.
type Pinger interface {
	Ready(ctx context.Context) error
}

// RecurringRunner runs one scheduler pass.
type RecurringRunner interface {
	RunDue(ctx context.Context, today time.Time) (recurring.Report, error)
}

// BudgetReporter lists the status of every active budget.
type BudgetReporter interface {
	Statuses(ctx context.Context) ([]budget.Status, error)
}
