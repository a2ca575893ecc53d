package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ContainerModel struct {
	ID         string `gorm:"primaryKey"`
	CaseID     string `gorm:"not null;index"`
	CompanyID  string `gorm:"not null;index"`
	Filename   string `gorm:"not null"`
	StorageKey string `gorm:"not null"`
	SizeBytes  int64
	Status     string         `gorm:"not null;index"`
	Metadata   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

type EvidenceModel struct {
	ID                string `gorm:"primaryKey"`
	ContainerID       string `gorm:"not null;index"`
	CaseID            string `gorm:"not null;index:idx_evidence_case_created,priority:1"`
	MessageID         string `gorm:"index"`
	InReplyTo         string
	ReferencesRaw     string `gorm:"column:references_raw;type:text"`
	ConversationIndex string
	Subject           string `gorm:"type:text"`
	ThreadTopic       string `gorm:"type:text"`
	SenderName        string
	SenderEmail       string `gorm:"index"`
	Recipients        datatypes.JSON `gorm:"type:jsonb"`
	Date              *time.Time     `gorm:"index"`
	FolderPath        string         `gorm:"type:text"`
	Body              string         `gorm:"type:text"`
	BodyFormat        string         `gorm:"not null"`
	Attachments       datatypes.JSON `gorm:"type:jsonb"`
	HasAttachments    bool
	Importance        *int
	ThreadID          *string   `gorm:"index"`
	CreatedAt         time.Time `gorm:"not null;index:idx_evidence_case_created,priority:2"`
}

type AttachmentModel struct {
	ID               string `gorm:"primaryKey"`
	ContainerID      string `gorm:"not null;index"`
	CaseID           string `gorm:"not null;index"`
	CompanyID        string `gorm:"not null"`
	Hash             string `gorm:"not null;index"`
	StorageKey       string `gorm:"not null"`
	Filename         string `gorm:"not null"`
	OriginalFilename string
	SizeBytes        int64  `gorm:"not null"`
	ContentType      string `gorm:"not null"`
	Inline           bool
	ContentID        string
	CreatedAt        time.Time `gorm:"not null"`
}

// recipients is the JSON shape of EvidenceModel.Recipients.
type recipients struct {
	To  []string `json:"to,omitempty"`
	Cc  []string `json:"cc,omitempty"`
	Bcc []string `json:"bcc,omitempty"`
}
