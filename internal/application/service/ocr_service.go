package service

import (
	"context"
	"errors"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

// ErrOCRDisabled is returned when no extractor is configured
var ErrOCRDisabled = errors.New("ocr not configured")

// OCRService pre-fills bill fields from an uploaded image. The upload is kept
// as a proof so the returned fields can be merged into a form as-is.
type OCRService interface {
	Extract(ctx context.Context, actor entity.Actor, filename string, content []byte) (*port.ExtractedBill, error)
}

type ocrServiceImpl struct {
	extractor port.OCRExtractor
	proofs    ProofService
	logger    Logger
}

// NewOCRService creates a new OCRService. A nil extractor disables extraction.
func NewOCRService(extractor port.OCRExtractor, proofs ProofService, logger Logger) OCRService {
	return &ocrServiceImpl{extractor: extractor, proofs: proofs, logger: logger}
}

func (s *ocrServiceImpl) Extract(ctx context.Context, actor entity.Actor, filename string, content []byte) (*port.ExtractedBill, error) {
	if s.extractor == nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, ErrOCRDisabled, "ocr not configured")
	}

	mimeType := MimeTypeOf(filename)
	if mimeType == "" {
		return nil, apperr.Validation("unsupported file type for %q", filename)
	}

	proofPath, err := s.proofs.Upload(ctx, actor, filename, content)
	if err != nil {
		return nil, err
	}

	bill, err := s.extractor.ExtractBill(ctx, content, mimeType)
	if err != nil {
		s.logger.Error("Bill extraction failed", "error", err, "user_id", actor.ID, "proof", proofPath)
		return nil, apperr.Internal(err, "extract bill")
	}
	bill.Proof = proofPath

	s.logger.Info("Bill extracted",
		"user_id", actor.ID,
		"proof", proofPath,
		"vendor", bill.VendorName,
		"amount", bill.Amount,
	)
	return bill, nil
}
