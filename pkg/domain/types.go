package domain

import (
	"fmt"
	"strings"
	"time"
)

// ContainerStatus is the lifecycle of an uploaded mail-archive container.
type ContainerStatus string

const (
	ContainerNew        ContainerStatus = "new"
	ContainerProcessing ContainerStatus = "processing"
	ContainerReady      ContainerStatus = "ready"
	ContainerFailed     ContainerStatus = "failed"
)

// CanTransition reports whether moving from s to next keeps the lifecycle
// monotonic: new -> processing -> ready|failed.
func (s ContainerStatus) CanTransition(next ContainerStatus) bool {
	switch s {
	case ContainerNew:
		return next == ContainerProcessing
	case ContainerProcessing:
		return next == ContainerReady || next == ContainerFailed
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s ContainerStatus) Terminal() bool {
	return s == ContainerReady || s == ContainerFailed
}

// SourceContainer is an uploaded PST file owned by a case.
type SourceContainer struct {
	ID         string          `json:"id"`
	CaseID     string          `json:"caseId"`
	CompanyID  string          `json:"companyId"`
	Filename   string          `json:"filename"`
	StorageKey string          `json:"-"`
	SizeBytes  int64           `json:"sizeBytes"`
	Status     ContainerStatus `json:"status"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// BodyFormat tags the representation chosen for a message body.
type BodyFormat string

const (
	BodyHTML BodyFormat = "html"
	BodyText BodyFormat = "text"
	BodyRTF  BodyFormat = "rtf"
)

// AttachmentRef summarizes one attachment occurrence on a message.
type AttachmentRef struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Inline      bool   `json:"is_inline"`
	ContentID   string `json:"content_id,omitempty"`
	Duplicate   bool   `json:"is_duplicate,omitempty"`
	StorageKey  string `json:"s3_key,omitempty"`
	Hash        string `json:"hash,omitempty"`
}

// Evidence is the persisted record of one extracted email.
type Evidence struct {
	ID                   string          `json:"id"`
	ContainerID          string          `json:"containerId"`
	CaseID               string          `json:"caseId"`
	MessageID            string          `json:"messageId,omitempty"`
	InReplyTo            string          `json:"inReplyTo,omitempty"`
	References           string          `json:"references,omitempty"`
	ConversationIndex    []byte          `json:"-"`
	ConversationIndexHex string          `json:"conversationIndex,omitempty"`
	Subject              string          `json:"subject"`
	ThreadTopic          string          `json:"threadTopic,omitempty"`
	SenderName           string          `json:"senderName,omitempty"`
	SenderEmail          string          `json:"from"`
	To                   []string        `json:"to,omitempty"`
	Cc                   []string        `json:"cc,omitempty"`
	Bcc                  []string        `json:"bcc,omitempty"`
	Date                 *time.Time      `json:"date,omitempty"`
	FolderPath           string          `json:"folderPath"`
	Body                 string          `json:"body"`
	BodyFormat           BodyFormat      `json:"bodyFormat"`
	Attachments          []AttachmentRef `json:"attachments,omitempty"`
	HasAttachments       bool            `json:"hasAttachments"`
	Importance           *int            `json:"importance,omitempty"`
	ThreadID             string          `json:"threadId,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
}

// ReferenceIDs splits the References header into message ids with angle
// brackets removed.
func (e Evidence) ReferenceIDs() []string {
	return SplitReferences(e.References)
}

// SplitReferences tokenizes a whitespace-separated message-id list.
func SplitReferences(raw string) []string {
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if id := strings.Trim(f, "<>,"); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// TrimAngle strips one pair of surrounding angle brackets.
func TrimAngle(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") {
		return strings.TrimSpace(v[1 : len(v)-1])
	}
	return v
}

// AttachmentDocument is one unique attachment payload stored in object storage.
type AttachmentDocument struct {
	ID               string    `json:"id"`
	ContainerID      string    `json:"containerId"`
	CaseID           string    `json:"caseId"`
	CompanyID        string    `json:"companyId"`
	Hash             string    `json:"hash"`
	StorageKey       string    `json:"storageKey"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"originalFilename,omitempty"`
	SizeBytes        int64     `json:"sizeBytes"`
	ContentType      string    `json:"contentType"`
	Inline           bool      `json:"inline"`
	ContentID        string    `json:"contentId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ItemScope names what kind of item failed during a run.
type ItemScope string

const (
	ScopeFolder     ItemScope = "folder"
	ScopeMessage    ItemScope = "message"
	ScopeAttachment ItemScope = "attachment"
)

// ItemError is a recoverable failure of a single folder, message or attachment.
type ItemError struct {
	Scope   ItemScope `json:"scope"`
	Folder  string    `json:"folder"`
	Index   int       `json:"index"`
	Message string    `json:"message"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s %d in %s: %s", e.Scope, e.Index, e.Folder, e.Message)
}

// RunStatistics is accumulated during a run and persisted into the
// container metadata when the run ends.
type RunStatistics struct {
	TotalEmails       int         `json:"total_emails"`
	TotalAttachments  int         `json:"total_attachments"`
	UniqueAttachments int         `json:"unique_attachments"`
	ThreadsIdentified int         `json:"threads_identified"`
	SizeSaved         int64       `json:"size_saved"`
	ProcessingTime    float64     `json:"processing_time"`
	Errors            []ItemError `json:"errors"`
}

// LogAttrs flattens the counters for structured logging.
func (s RunStatistics) LogAttrs() []any {
	return []any{
		"totalEmails", s.TotalEmails,
		"totalAttachments", s.TotalAttachments,
		"uniqueAttachments", s.UniqueAttachments,
		"threadsIdentified", s.ThreadsIdentified,
		"sizeSaved", s.SizeSaved,
		"processingTime", s.ProcessingTime,
		"errors", len(s.Errors),
	}
}
