package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-portal/internal/domain/entity"
)

// ExtractedBill is the flat field set OCR reads off a bill image.
// Callers merge it into a form payload before submitting.
type ExtractedBill struct {
	VendorName  string  `json:"vendorName"`
	BillNumber  string  `json:"billNumber"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Proof       string  `json:"proof,omitempty"`
}

// OCRExtractor reads bill fields from an image or PDF
type OCRExtractor interface {
	ExtractBill(ctx context.Context, content []byte, mimeType string) (*ExtractedBill, error)
}

// Message is a notification addressed to a portal user
type Message struct {
	Title string
	Body  string
}

// Notifier delivers messages to users out of band
type Notifier interface {
	Notify(ctx context.Context, recipient *entity.User, msg Message) error
}

// TokenIssuer issues and verifies bearer credentials carrying the caller tuple
type TokenIssuer interface {
	Issue(actor entity.Actor) (token string, expiresAt time.Time, err error)
	Parse(token string) (*entity.Actor, error)
}
