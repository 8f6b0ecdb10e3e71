package dto

import "github.com/campusport/achievement-api/internal/models"

// EvidenceRef is a client-supplied reference to an already-uploaded evidence
// blob. The upload endpoint returns these values; the submission only records
// them.
type EvidenceRef struct {
	StorageRef   string `json:"storageRef"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	SizeBytes    int64  `json:"sizeBytes"`
}

// SubmitClaimRequest is the student submission payload. Identity fields
// (student id, name, email, institution) are never part of it; they come from
// the verified token.
type SubmitClaimRequest struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Date        string               `json:"date"`
	Category    models.ClaimCategory `json:"category"`
	Evidence    []EvidenceRef        `json:"evidence"`
}

// ReviewClaimRequest carries a reviewer decision.
type ReviewClaimRequest struct {
	Decision models.ReviewDecision `json:"decision"`
	Comments string                `json:"comments"`
}

// ClaimQuery constrains claim listing.
type ClaimQuery struct {
	Status []models.ClaimStatus
	Limit  int
	Offset int
}

// EvidenceUploadResponse describes a stored evidence blob.
type EvidenceUploadResponse struct {
	StorageRef   string `json:"storageRef"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	SizeBytes    int64  `json:"sizeBytes"`
	DownloadURL  string `json:"downloadUrl,omitempty"`
}
