package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
)

// VoucherNumberer issues VCH<YYYY><MM><seq> numbers
type VoucherNumberer interface {
	// Next must run inside the transaction that inserts the voucher
	Next(ctx context.Context) (string, error)
}

type voucherNumberer struct {
	vouchers port.VoucherRepository
	now      func() time.Time
}

// NewVoucherNumberer creates a numberer backed by the per-month counter.
// now may be nil to use the wall clock.
func NewVoucherNumberer(vouchers port.VoucherRepository, now func() time.Time) VoucherNumberer {
	if now == nil {
		now = time.Now
	}
	return &voucherNumberer{vouchers: vouchers, now: now}
}

func (n *voucherNumberer) Next(ctx context.Context) (string, error) {
	period := n.now().Format("200601")

	seq, err := n.vouchers.NextSequence(ctx, period)
	if err != nil {
		return "", fmt.Errorf("next voucher sequence: %w", err)
	}
	return FormatVoucherNumber(period, seq), nil
}

// FormatVoucherNumber renders a period (YYYYMM) and sequence as a voucher number
func FormatVoucherNumber(period string, seq int) string {
	return fmt.Sprintf("%s%s%04d", entity.VoucherNumberPrefix, period, seq)
}
