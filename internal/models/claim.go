package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ClaimStatus captures the lifecycle of an achievement claim. PENDING is the
// only non-terminal state; VERIFIED and REJECTED admit no further transition.
type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "PENDING"
	ClaimStatusVerified ClaimStatus = "VERIFIED"
	ClaimStatusRejected ClaimStatus = "REJECTED"
)

// Terminal reports whether the status admits no further transition.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimStatusVerified || s == ClaimStatusRejected
}

// ClaimCategory enumerates supported achievement categories.
type ClaimCategory string

const (
	CategoryAcademic        ClaimCategory = "ACADEMIC"
	CategoryExtracurricular ClaimCategory = "EXTRACURRICULAR"
	CategoryCertification   ClaimCategory = "CERTIFICATION"
	CategoryProject         ClaimCategory = "PROJECT"
	CategoryAward           ClaimCategory = "AWARD"
	CategoryOther           ClaimCategory = "OTHER"
)

// ValidCategory reports whether the category is one of the enumerated values.
func ValidCategory(c ClaimCategory) bool {
	switch c {
	case CategoryAcademic, CategoryExtracurricular, CategoryCertification,
		CategoryProject, CategoryAward, CategoryOther:
		return true
	}
	return false
}

// ReviewDecision is the reviewer-facing action vocabulary.
type ReviewDecision string

const (
	DecisionVerify ReviewDecision = "VERIFY"
	DecisionReject ReviewDecision = "REJECT"
)

// Status maps a decision to the resulting terminal status.
func (d ReviewDecision) Status() (ClaimStatus, bool) {
	switch d {
	case DecisionVerify:
		return ClaimStatusVerified, true
	case DecisionReject:
		return ClaimStatusRejected, true
	}
	return "", false
}

// EvidenceFile references an uploaded evidence blob. The record stores only
// the reference, never the bytes.
type EvidenceFile struct {
	StorageRef   string    `json:"storageRef"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// EvidenceList is the JSONB column holding the ordered evidence references.
type EvidenceList []EvidenceFile

// Value implements driver.Valuer for JSONB storage. The value is a string so
// lib/pq sends it as text rather than bytea.
func (e EvidenceList) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner for JSONB storage.
func (e *EvidenceList) Scan(src interface{}) error {
	if src == nil {
		*e = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported evidence list source type %T", src)
	}
	return json.Unmarshal(raw, e)
}

// AchievementClaim is the entity of record for the verification workflow.
// Everything except the review columns is write-once at submission.
type AchievementClaim struct {
	ID             string        `db:"id" json:"id"`
	StudentID      string        `db:"student_id" json:"studentId"`
	StudentName    string        `db:"student_name" json:"studentName"`
	StudentEmail   string        `db:"student_email" json:"studentEmail"`
	Institution    string        `db:"institution" json:"institution"`
	Title          string        `db:"title" json:"title"`
	Description    string        `db:"description" json:"description"`
	Date           string        `db:"achieved_on" json:"date"`
	Category       ClaimCategory `db:"category" json:"category"`
	EvidenceFiles  EvidenceList  `db:"evidence_files" json:"evidenceFiles"`
	Status         ClaimStatus   `db:"status" json:"status"`
	ReviewedBy     *string       `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time    `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewComments *string       `db:"review_comments" json:"reviewComments,omitempty"`
	SubmittedAt    time.Time     `db:"submitted_at" json:"submittedAt"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// ClaimFilter constrains listing queries.
type ClaimFilter struct {
	StudentID   string
	Institution string
	Status      []ClaimStatus
	Limit       int
	Offset      int
}
