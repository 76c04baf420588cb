package model

import (
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates the possible states of a test.
type TestStatus string

const (
	TestStatusDraft    TestStatus = "DRAFT"
	TestStatusActive   TestStatus = "ACTIVE"
	TestStatusInactive TestStatus = "INACTIVE"
)

// MaterialType distinguishes external links from privately stored files.
type MaterialType string

const (
	MaterialTypeLink MaterialType = "LINK"
	MaterialTypeFile MaterialType = "FILE"
)

// Test represents a timed assessment authored by an administrator.
type Test struct {
	ID              uuid.UUID    `json:"id"`
	AdminID         int          `json:"admin_id"`
	Name            string       `json:"name"`
	DurationMinutes int          `json:"duration_minutes"`
	MaterialType    MaterialType `json:"material_type"`
	// MaterialRef is an external URL for LINK material or a path inside the
	// private material store for FILE material.
	MaterialRef     string     `json:"material_ref"`
	Status          TestStatus `json:"status"`
	CandidateEmails []string   `json:"candidate_emails"`
	AllowUploads    bool       `json:"allow_uploads"`
	UploadLimitMB   *int       `json:"upload_limit_mb,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TestSummary is a test with aggregate session counts for the admin list view.
type TestSummary struct {
	Test
	SessionCount   int `json:"session_count"`
	CompletedCount int `json:"completed_count"`
}

// CreateTestRequest is the payload for creating a new test.
type CreateTestRequest struct {
	Name            string   `json:"name" binding:"required,min=3,max=255"`
	DurationMinutes int      `json:"duration_minutes" binding:"required,min=1,max=480"`
	MaterialType    string   `json:"material_type" binding:"required,oneof=LINK FILE"`
	MaterialRef     string   `json:"material_ref" binding:"required,max=2048"`
	CandidateEmails []string `json:"candidate_emails" binding:"required,min=1,dive,email"`
	AllowUploads    bool     `json:"allow_uploads"`
	UploadLimitMB   *int     `json:"upload_limit_mb" binding:"omitempty,min=1,max=100"`
	// Activate runs the activation path immediately after creation, so the
	// one-shot create-and-invite flow provisions sessions in a single call.
	Activate bool `json:"activate"`
}

// UpdateTestRequest is the payload for updating an existing test.
type UpdateTestRequest struct {
	Name            string   `json:"name" binding:"omitempty,min=3,max=255"`
	DurationMinutes int      `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	MaterialType    string   `json:"material_type" binding:"omitempty,oneof=LINK FILE"`
	MaterialRef     string   `json:"material_ref" binding:"omitempty,max=2048"`
	CandidateEmails []string `json:"candidate_emails" binding:"omitempty,min=1,dive,email"`
	AllowUploads    *bool    `json:"allow_uploads" binding:"omitempty"`
	UploadLimitMB   *int     `json:"upload_limit_mb" binding:"omitempty,min=1,max=100"`
}
