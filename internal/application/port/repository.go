package port

import (
	"context"
	"errors"

	"github.com/garyjia/expense-portal/internal/domain/entity"
)

// ErrStaleVersion is returned by versioned updates when the stored row
// has moved past the version the caller loaded
var ErrStaleVersion = errors.New("record was modified by another request")

// ErrDuplicate is returned by Create when a unique key is already taken
var ErrDuplicate = errors.New("record already exists")

// UserRepository defines persistence operations for User.
// Lookups return nil, nil when the user does not exist.
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)

	// ListByManager returns the team of a manager: users whose manager_id is managerID
	ListByManager(ctx context.Context, managerID int64) ([]*entity.User, error)
}

// RequestRepository defines persistence operations for the five category tables.
// Every call names the category; an unknown form type is an error.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.Request) error

	// GetByID returns the request joined with its owner's account name, or nil, nil
	GetByID(ctx context.Context, formType entity.FormType, id int64) (*entity.Request, error)

	// List returns the requests of one category inside scope, newest first.
	// An empty scope returns no rows without querying.
	List(ctx context.Context, formType entity.FormType, scope entity.Scope) ([]*entity.Request, error)

	// UpdateState writes the status and approval metadata of req when the
	// stored version still equals req.Version, then bumps req.Version.
	// A version mismatch returns ErrStaleVersion.
	UpdateState(ctx context.Context, req *entity.Request) error
}

// VoucherRepository defines persistence operations for Voucher
type VoucherRepository interface {
	Create(ctx context.Context, voucher *entity.Voucher) error
	GetByID(ctx context.Context, id int64) (*entity.Voucher, error)

	// GetByRequest returns the voucher projected from a category request, or nil, nil
	GetByRequest(ctx context.Context, formType entity.FormType, requestID int64) (*entity.Voucher, error)

	// List returns vouchers inside scope matching filter, newest first
	List(ctx context.Context, scope entity.Scope, filter entity.VoucherFilter) ([]*entity.Voucher, error)

	// UpdateState has the same version contract as RequestRepository.UpdateState
	UpdateState(ctx context.Context, voucher *entity.Voucher) error

	// NextSequence atomically increments and returns the voucher counter for
	// period (YYYYMM). Must run inside the transaction that inserts the voucher.
	NextSequence(ctx context.Context, period string) (int, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
