package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusport/achievement-api/internal/dto"
	appErrors "github.com/campusport/achievement-api/pkg/errors"
	"github.com/campusport/achievement-api/pkg/storage"
)

type evidenceStore interface {
	SaveStream(ref string, r io.Reader) (string, error)
	Open(ref string) (*os.File, error)
}

// EvidenceLimits bounds uploads.
type EvidenceLimits struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// EvidenceService is the blob storage collaborator: it accepts uploads,
// stores the bytes, and hands back an opaque reference plus a signed download
// token. Claims only ever hold the reference.
type EvidenceService struct {
	store  evidenceStore
	signer *storage.SignedURLSigner
	limits EvidenceLimits
	logger *zap.Logger
}

// NewEvidenceService constructs the service.
func NewEvidenceService(store evidenceStore, signer *storage.SignedURLSigner, limits EvidenceLimits, logger *zap.Logger) *EvidenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvidenceService{store: store, signer: signer, limits: limits, logger: logger}
}

// Upload stores an evidence blob and returns its reference.
func (s *EvidenceService) Upload(originalName, mimeType string, size int64, r io.Reader) (*dto.EvidenceUploadResponse, error) {
	if strings.TrimSpace(originalName) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	if strings.TrimSpace(mimeType) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "mime type is required")
	}
	if size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file must not be empty")
	}
	if s.limits.MaxFileSizeBytes > 0 && size > s.limits.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds max size of %d bytes", s.limits.MaxFileSizeBytes))
	}
	if len(s.limits.AllowedMIMEs) > 0 && !mimeAllowed(s.limits.AllowedMIMEs, mimeType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("mime type %s not allowed", mimeType))
	}

	fileID := uuid.NewString()
	ref := filepath.Join(time.Now().UTC().Format("2006/01"), fileID+sanitizeExt(originalName))
	if _, err := s.store.SaveStream(ref, io.LimitReader(r, size)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence file")
	}

	resp := &dto.EvidenceUploadResponse{
		StorageRef:   ref,
		OriginalName: originalName,
		MimeType:     mimeType,
		SizeBytes:    size,
	}
	if s.signer != nil {
		token, _, err := s.signer.Generate(fileID, ref)
		if err != nil {
			s.logger.Warn("failed to sign evidence download url", zap.Error(err))
		} else {
			resp.DownloadURL = "/evidence/" + token
		}
	}
	return resp, nil
}

// EvidenceDownload holds an open handle for streaming a stored file.
type EvidenceDownload struct {
	File      *os.File
	SizeBytes int64
	ExpiresAt time.Time
}

// ResolveDownload validates a signed token and opens the referenced file.
func (s *EvidenceService) ResolveDownload(token string) (*EvidenceDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "evidence signing not configured")
	}
	_, ref, expiresAt, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(ref)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "evidence file not found")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat evidence file")
	}
	return &EvidenceDownload{File: file, SizeBytes: info.Size(), ExpiresAt: expiresAt}, nil
}

func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}
