package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/pkg/database"
	"go.uber.org/zap"
)

const voucherColumns = `id, voucher_no, form_type, request_id, employee_id, employee_name, manager_id,
	form_data, total_amount, proofs, status, approved_by, approved_at, rejected_by, rejected_at,
	rejection_reason, completed_by, completed_at, transaction_date, remarks, version, created_at, updated_at`

// VoucherRepository implements port.VoucherRepository
type VoucherRepository struct {
	base
	logger *zap.Logger
}

// NewVoucherRepository creates a new voucher repository
func NewVoucherRepository(db *sql.DB, logger *zap.Logger) *VoucherRepository {
	return &VoucherRepository{
		base:   base{db: db},
		logger: logger,
	}
}

// Create inserts a voucher with version 1
func (r *VoucherRepository) Create(ctx context.Context, voucher *entity.Voucher) error {
	proofs, err := encodeJSON(nonNilStrings(voucher.Proofs))
	if err != nil {
		return fmt.Errorf("encode proofs: %w", err)
	}

	if voucher.CreatedAt.IsZero() {
		voucher.CreatedAt = time.Now().UTC()
	}
	voucher.UpdatedAt = voucher.CreatedAt
	voucher.Version = 1

	result, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO vouchers (
			voucher_no, form_type, request_id, employee_id, employee_name, manager_id,
			form_data, total_amount, proofs, status, remarks, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		voucher.VoucherNo,
		string(voucher.FormType),
		voucher.RequestID,
		voucher.EmployeeID,
		voucher.EmployeeName,
		nullInt64(voucher.ManagerID),
		string(rawJSON(string(voucher.FormData))),
		voucher.TotalAmount,
		proofs,
		voucher.Status,
		voucher.Remarks,
		voucher.Version,
		voucher.CreatedAt,
		voucher.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create voucher", zap.String("voucher_no", voucher.VoucherNo), zap.Error(err))
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("voucher %s: %w", voucher.VoucherNo, port.ErrDuplicate)
		}
		return fmt.Errorf("failed to create voucher: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	voucher.ID = id
	return nil
}

// GetByID retrieves a voucher by ID
func (r *VoucherRepository) GetByID(ctx context.Context, id int64) (*entity.Voucher, error) {
	row := r.conn(ctx).QueryRowContext(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = ?`, id)
	return r.scanOne(row, zap.Int64("id", id))
}

// GetByRequest retrieves the voucher projected from a category request
func (r *VoucherRepository) GetByRequest(ctx context.Context, formType entity.FormType, requestID int64) (*entity.Voucher, error) {
	row := r.conn(ctx).QueryRowContext(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE form_type = ? AND request_id = ?`,
		string(formType), requestID)
	return r.scanOne(row, zap.Int64("request_id", requestID))
}

// List returns vouchers inside scope matching filter, newest first
func (r *VoucherRepository) List(ctx context.Context, scope entity.Scope, filter entity.VoucherFilter) ([]*entity.Voucher, error) {
	if scope.Empty() {
		return []*entity.Voucher{}, nil
	}

	where, args := scopeClause(scope, "employee_id")
	conditions := []string{where}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.FormType != "" {
		conditions = append(conditions, "form_type = ?")
		args = append(args, string(filter.FormType))
	}

	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list vouchers", zap.Error(err))
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	defer rows.Close()

	vouchers := []*entity.Voucher{}
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

// UpdateState writes status and approval metadata guarded by voucher.Version
func (r *VoucherRepository) UpdateState(ctx context.Context, voucher *entity.Voucher) error {
	now := time.Now().UTC()

	result, err := r.conn(ctx).ExecContext(ctx, `
		UPDATE vouchers
		SET status = ?, approved_by = ?, approved_at = ?, rejected_by = ?, rejected_at = ?,
			rejection_reason = ?, completed_by = ?, completed_at = ?, transaction_date = ?,
			remarks = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		voucher.Status,
		nullInt64(voucher.ApprovedBy),
		nullTime(voucher.ApprovedAt),
		nullInt64(voucher.RejectedBy),
		nullTime(voucher.RejectedAt),
		voucher.RejectionReason,
		nullInt64(voucher.CompletedBy),
		nullTime(voucher.CompletedAt),
		nullTime(voucher.TransactionDate),
		voucher.Remarks,
		now,
		voucher.ID,
		voucher.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update voucher state", zap.Int64("id", voucher.ID), zap.Error(err))
		return fmt.Errorf("failed to update voucher: %w", err)
	}
	if err := checkVersioned(result); err != nil {
		return err
	}

	voucher.Version++
	voucher.UpdatedAt = now
	return nil
}

// NextSequence increments the counter for period in a single upsert.
// A new counter starts after the highest voucher number already issued
// for the period, so numbering continues across data written before it.
func (r *VoucherRepository) NextSequence(ctx context.Context, period string) (int, error) {
	conn := r.conn(ctx)
	prefix := entity.VoucherNumberPrefix + period

	var last sql.NullString
	err := conn.QueryRowContext(ctx,
		`SELECT MAX(voucher_no) FROM vouchers WHERE voucher_no LIKE ?`, prefix+"%").Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to read last voucher number: %w", err)
	}

	seed := 0
	if last.Valid {
		if n, err := strconv.Atoi(strings.TrimPrefix(last.String, prefix)); err == nil {
			seed = n
		}
	}

	var seq int
	err = conn.QueryRowContext(ctx, `
		INSERT INTO voucher_sequences (period, last_seq) VALUES (?, ?)
		ON CONFLICT(period) DO UPDATE SET last_seq = last_seq + 1
		RETURNING last_seq
	`, period, seed+1).Scan(&seq)
	if err != nil {
		r.logger.Error("Failed to advance voucher sequence", zap.String("period", period), zap.Error(err))
		return 0, fmt.Errorf("failed to advance voucher sequence: %w", err)
	}
	return seq, nil
}

func (r *VoucherRepository) scanOne(row *sql.Row, field zap.Field) (*entity.Voucher, error) {
	v, err := scanVoucher(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get voucher", field, zap.Error(err))
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	return v, nil
}

func scanVoucher(s scanner) (*entity.Voucher, error) {
	var v entity.Voucher
	var formType, formData, proofs string
	var managerID, approvedBy, rejectedBy, completedBy sql.NullInt64
	var approvedAt, rejectedAt, completedAt, transactionDate, createdAt, updatedAt sql.NullTime

	if err := s.Scan(
		&v.ID,
		&v.VoucherNo,
		&formType,
		&v.RequestID,
		&v.EmployeeID,
		&v.EmployeeName,
		&managerID,
		&formData,
		&v.TotalAmount,
		&proofs,
		&v.Status,
		&approvedBy,
		&approvedAt,
		&rejectedBy,
		&rejectedAt,
		&v.RejectionReason,
		&completedBy,
		&completedAt,
		&transactionDate,
		&v.Remarks,
		&v.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	v.FormType = entity.FormType(formType)
	v.TotalAmount = entity.Finite(v.TotalAmount)
	v.FormData = rawJSON(formData)
	v.Proofs = decodeStrings(proofs)
	v.ManagerID = int64Ptr(managerID)
	v.ApprovedBy = int64Ptr(approvedBy)
	v.ApprovedAt = timePtr(approvedAt)
	v.RejectedBy = int64Ptr(rejectedBy)
	v.RejectedAt = timePtr(rejectedAt)
	v.CompletedBy = int64Ptr(completedBy)
	v.CompletedAt = timePtr(completedAt)
	v.TransactionDate = timePtr(transactionDate)
	if createdAt.Valid {
		v.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		v.UpdatedAt = updatedAt.Time
	}
	return &v, nil
}

// Verify interface compliance
var _ port.VoucherRepository = (*VoucherRepository)(nil)
