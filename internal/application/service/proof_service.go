package service

import (
	"context"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

// ProofDir is the storage prefix of uploaded proofs
const ProofDir = "proofs"

// allowed proof extensions
var proofExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
}

// ProofService stores bill images and PDFs and hands back their paths.
// Paths are echoed into proofs lists unchecked.
type ProofService interface {
	Upload(ctx context.Context, actor entity.Actor, filename string, content []byte) (string, error)
	Read(ctx context.Context, actor entity.Actor, proofPath string) ([]byte, string, error)
}

type proofServiceImpl struct {
	storage    port.FileStorage
	visibility VisibilityResolver
	maxBytes   int64
	logger     Logger
}

// NewProofService creates a new ProofService. maxBytes <= 0 disables the size limit.
func NewProofService(storage port.FileStorage, visibility VisibilityResolver, maxBytes int64, logger Logger) ProofService {
	return &proofServiceImpl{
		storage:    storage,
		visibility: visibility,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Upload stores content under proofs/<userID>/<uuid><ext>
func (s *proofServiceImpl) Upload(ctx context.Context, actor entity.Actor, filename string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", apperr.Validation("empty file")
	}
	if s.maxBytes > 0 && int64(len(content)) > s.maxBytes {
		return "", apperr.Validation("file exceeds %d bytes", s.maxBytes)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := proofExtensions[ext]; !ok {
		return "", apperr.Validation("unsupported file type %q", ext)
	}

	proofPath := path.Join(ProofDir, strconv.FormatInt(actor.ID, 10), uuid.NewString()+ext)
	if err := s.storage.Save(ctx, proofPath, content); err != nil {
		s.logger.Error("Failed to store proof", "error", err, "user_id", actor.ID, "filename", filename)
		return "", apperr.Internal(err, "store proof")
	}

	s.logger.Info("Proof uploaded", "user_id", actor.ID, "path", proofPath, "size", len(content))
	return proofPath, nil
}

// Read returns the proof bytes and content type. The owner is the second
// path segment; the caller must be able to see that owner's rows.
func (s *proofServiceImpl) Read(ctx context.Context, actor entity.Actor, proofPath string) ([]byte, string, error) {
	owner, err := proofOwner(proofPath)
	if err != nil {
		return nil, "", err
	}

	ok, err := s.visibility.CanView(ctx, actor, owner)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", apperr.Forbidden("proof is outside your visibility")
	}

	if !s.storage.Exists(ctx, proofPath) {
		return nil, "", apperr.NotFound("proof %s not found", proofPath)
	}
	content, err := s.storage.Read(ctx, proofPath)
	if err != nil {
		return nil, "", apperr.Internal(err, "read proof")
	}
	return content, proofExtensions[strings.ToLower(path.Ext(proofPath))], nil
}

func proofOwner(proofPath string) (int64, error) {
	parts := strings.Split(path.Clean(proofPath), "/")
	if len(parts) != 3 || parts[0] != ProofDir {
		return 0, apperr.Validation("invalid proof path %q", proofPath)
	}
	owner, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindValidation, err, "invalid proof path %q", proofPath)
	}
	return owner, nil
}

// MimeTypeOf returns the content type for a proof filename, or "" when unsupported
func MimeTypeOf(filename string) string {
	return proofExtensions[strings.ToLower(filepath.Ext(filename))]
}
