package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

// TransactionSheet is the worksheet name of the export
const TransactionSheet = "Transactions"

var transactionHeader = []interface{}{
	"Voucher No", "Form Type", "Employee", "Amount", "Status",
	"Approved At", "Completed At", "Transaction Date", "Remarks",
}

// TransactionExporter writes approved and completed vouchers to an Excel workbook
type TransactionExporter interface {
	Export(ctx context.Context, actor entity.Actor, w io.Writer) (int, error)
}

type transactionExporterImpl struct {
	voucherRepo port.VoucherRepository
	logger      Logger
}

// NewTransactionExporter creates a new TransactionExporter
func NewTransactionExporter(voucherRepo port.VoucherRepository, logger Logger) TransactionExporter {
	return &transactionExporterImpl{voucherRepo: voucherRepo, logger: logger}
}

// Export writes the workbook to w and returns the number of data rows
func (e *transactionExporterImpl) Export(ctx context.Context, actor entity.Actor, w io.Writer) (int, error) {
	if !actor.IsAdmin() {
		return 0, apperr.Forbidden(msgAdminOnly)
	}

	var vouchers []*entity.Voucher
	for _, status := range []string{entity.VoucherStatusApproved, entity.VoucherStatusCompleted} {
		rows, err := e.voucherRepo.List(ctx, entity.AllScope(), entity.VoucherFilter{Status: status})
		if err != nil {
			return 0, apperr.Internal(err, "list %s vouchers", status)
		}
		vouchers = append(vouchers, rows...)
	}
	sort.SliceStable(vouchers, func(i, j int) bool {
		return vouchers[i].VoucherNo < vouchers[j].VoucherNo
	})

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), TransactionSheet); err != nil {
		return 0, apperr.Internal(err, "name sheet")
	}
	if err := f.SetSheetRow(TransactionSheet, "A1", &transactionHeader); err != nil {
		return 0, apperr.Internal(err, "write header")
	}

	for i, v := range vouchers {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, apperr.Internal(err, "cell name")
		}
		row := []interface{}{
			v.VoucherNo,
			v.FormType.String(),
			v.EmployeeName,
			v.TotalAmount,
			v.Status,
			formatTime(v.ApprovedAt),
			formatTime(v.CompletedAt),
			formatDate(v.TransactionDate),
			v.Remarks,
		}
		if err := f.SetSheetRow(TransactionSheet, cell, &row); err != nil {
			return 0, apperr.Internal(err, "write row %d", i+2)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return 0, apperr.Internal(err, "write workbook")
	}

	e.logger.Info("Transactions exported", "actor_id", actor.ID, "rows", len(vouchers))
	return len(vouchers), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// ExportFilename names an export taken at t
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("transactions-%s.xlsx", t.Format("20060102-150405"))
}
