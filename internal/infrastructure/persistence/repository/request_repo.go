package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"go.uber.org/zap"
)

// RequestRepository implements port.RequestRepository over the category tables
type RequestRepository struct {
	base
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		base:   base{db: db},
		logger: logger,
	}
}

func (c category) selectColumns() string {
	return fmt.Sprintf(`r.id, r.user_id, r.employee_name, r.%s, r.status, r.form_data, r.bills, r.proofs,
		r.approved_by, r.approved_at, r.rejected_by, r.rejected_at, r.rejection_reason, r.remarks,
		r.version, r.created_at, r.updated_at, COALESCE(u.name, '')`, c.amountColumn)
}

// Create inserts a request in its category table with version 1
func (r *RequestRepository) Create(ctx context.Context, req *entity.Request) error {
	cat, err := categoryFor(req.FormType)
	if err != nil {
		return err
	}

	keys, err := cat.keyValues(req.FormData)
	if err != nil {
		return err
	}
	bills, err := encodeJSON(nonNilBills(req.Bills))
	if err != nil {
		return fmt.Errorf("encode bills: %w", err)
	}
	proofs, err := encodeJSON(nonNilStrings(req.Proofs))
	if err != nil {
		return fmt.Errorf("encode proofs: %w", err)
	}

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.UpdatedAt = req.CreatedAt
	req.Version = 1

	columns := []string{"user_id", "employee_name", cat.amountColumn, "status", "form_data", "bills", "proofs",
		"remarks", "version", "created_at", "updated_at"}
	args := []interface{}{req.UserID, req.EmployeeName, req.Amount, req.Status, string(rawJSON(string(req.FormData))),
		bills, proofs, req.Remarks, req.Version, req.CreatedAt, req.UpdatedAt}
	for i, k := range cat.keys {
		columns = append(columns, k.column)
		args = append(args, keys[i])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		cat.table, strings.Join(columns, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))

	result, err := r.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to create request",
			zap.String("form_type", string(req.FormType)),
			zap.Int64("user_id", req.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create %s request: %w", req.FormType, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	return nil
}

// GetByID retrieves a request by category and ID
func (r *RequestRepository) GetByID(ctx context.Context, formType entity.FormType, id int64) (*entity.Request, error) {
	cat, err := categoryFor(formType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s r LEFT JOIN users u ON u.id = r.user_id WHERE r.id = ?`,
		cat.selectColumns(), cat.table)

	req, err := scanRequest(r.conn(ctx).QueryRowContext(ctx, query, id), formType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request",
			zap.String("form_type", string(formType)),
			zap.Int64("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// List returns the category's requests inside scope, newest first
func (r *RequestRepository) List(ctx context.Context, formType entity.FormType, scope entity.Scope) ([]*entity.Request, error) {
	cat, err := categoryFor(formType)
	if err != nil {
		return nil, err
	}
	if scope.Empty() {
		return []*entity.Request{}, nil
	}

	where, args := scopeClause(scope, "r.user_id")
	query := fmt.Sprintf(`SELECT %s FROM %s r LEFT JOIN users u ON u.id = r.user_id WHERE %s
		ORDER BY r.created_at DESC, r.id DESC`, cat.selectColumns(), cat.table, where)

	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.String("form_type", string(formType)), zap.Error(err))
		return nil, fmt.Errorf("failed to list %s requests: %w", formType, err)
	}
	defer rows.Close()

	requests := []*entity.Request{}
	for rows.Next() {
		req, err := scanRequest(rows, formType)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// UpdateState writes status and approval metadata guarded by req.Version
func (r *RequestRepository) UpdateState(ctx context.Context, req *entity.Request) error {
	cat, err := categoryFor(req.FormType)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, approved_by = ?, approved_at = ?, rejected_by = ?, rejected_at = ?,
			rejection_reason = ?, remarks = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, cat.table)

	result, err := r.conn(ctx).ExecContext(ctx, query,
		req.Status,
		nullInt64(req.ApprovedBy),
		nullTime(req.ApprovedAt),
		nullInt64(req.RejectedBy),
		nullTime(req.RejectedAt),
		req.RejectionReason,
		req.Remarks,
		now,
		req.ID,
		req.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update request state",
			zap.String("form_type", string(req.FormType)),
			zap.Int64("id", req.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update request: %w", err)
	}
	if err := checkVersioned(result); err != nil {
		return err
	}

	req.Version++
	req.UpdatedAt = now
	return nil
}

func scanRequest(s scanner, formType entity.FormType) (*entity.Request, error) {
	var req entity.Request
	var formData, bills, proofs string
	var approvedBy, rejectedBy sql.NullInt64
	var approvedAt, rejectedAt, createdAt, updatedAt sql.NullTime

	if err := s.Scan(
		&req.ID,
		&req.UserID,
		&req.EmployeeName,
		&req.Amount,
		&req.Status,
		&formData,
		&bills,
		&proofs,
		&approvedBy,
		&approvedAt,
		&rejectedBy,
		&rejectedAt,
		&req.RejectionReason,
		&req.Remarks,
		&req.Version,
		&createdAt,
		&updatedAt,
		&req.OwnerName,
	); err != nil {
		return nil, err
	}

	req.FormType = formType
	req.Amount = entity.Finite(req.Amount)
	req.FormData = rawJSON(formData)
	req.Bills = decodeBills(bills)
	req.Proofs = decodeStrings(proofs)
	req.ApprovedBy = int64Ptr(approvedBy)
	req.ApprovedAt = timePtr(approvedAt)
	req.RejectedBy = int64Ptr(rejectedBy)
	req.RejectedAt = timePtr(rejectedAt)
	if createdAt.Valid {
		req.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		req.UpdatedAt = updatedAt.Time
	}
	return &req, nil
}

func nonNilBills(b []entity.Bill) []entity.Bill {
	if b == nil {
		return []entity.Bill{}
	}
	return b
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
