package credits

import "context"

// Operation enumerates billable generation kinds.
type Operation string

const (
	OperationImage Operation = "image_generation"
	OperationVideo Operation = "video_generation"
)

// Costs maps operations to credit prices.
type Costs struct {
	Image int
	Video int
}

func DefaultCosts() Costs {
	return Costs{Image: 1, Video: 4}
}

// For returns the price of one operation.
func (c Costs) For(op Operation) int {
	if op == OperationVideo {
		return c.Video
	}
	return c.Image
}

// Charge is the outcome of an atomic check-and-deduct.
type Charge struct {
	OK      bool
	Amount  int
	Balance int
	Message string
}

// Ledger is the service of record for a user's spendable balance; the sole
// source of truth for charge/refund accounting.
//
// CheckAndDeduct is atomic and fails closed: it either deducts the full
// operation cost or nothing. Idempotency is not assumed; callers must not
// double-charge or double-refund. Refund is best-effort: implementations
// absorb and report their own failures, a failed refund must never fail the
// item it belongs to.
type Ledger interface {
	CheckAndDeduct(ctx context.Context, userID string, op Operation) (Charge, error)
	Refund(ctx context.Context, userID string, amount int) error
}
