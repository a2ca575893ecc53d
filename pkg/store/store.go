package store

import (
	"errors"

	"vericase/pkg/domain"
)

// ErrInvalidTransition is returned when a container status change would move
// the lifecycle backwards or skip a step.
var ErrInvalidTransition = errors.New("invalid container status transition")

// ErrNotFound is returned by mutations addressed at a missing row.
var ErrNotFound = errors.New("not found")

// ProcessingKey is the container metadata key holding run data.
const ProcessingKey = "pst_processing"

// Store defines persistence operations for containers, evidence and
// attachment documents.
type Store interface {
	// containers
	SaveContainer(domain.SourceContainer) error
	GetContainer(id string) (domain.SourceContainer, bool, error)
	// TransitionContainer moves a container to next and merges patch into
	// its pst_processing metadata in one step.
	TransitionContainer(id string, next domain.ContainerStatus, patch map[string]any) (domain.SourceContainer, error)
	// PatchProcessing merges patch into pst_processing without a status change.
	PatchProcessing(id string, patch map[string]any) error

	// evidence
	CreateEvidence(domain.Evidence) error
	ListCaseEvidence(caseID string) ([]domain.Evidence, error)
	CountContainerEvidence(containerID string) (int, error)
	// SetThreadIDs writes thread ids only to rows whose thread_id is empty and
	// returns the number of rows changed.
	SetThreadIDs(assignments map[string]string) (int, error)
	CountContainerThreads(containerID string) (int, error)

	// attachments
	CreateAttachment(domain.AttachmentDocument) error
	ListContainerAttachments(containerID string) ([]domain.AttachmentDocument, error)
}

// mergeProcessing returns a copy of metadata with patch merged into the
// pst_processing object.
func mergeProcessing(metadata map[string]any, patch map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	proc := map[string]any{}
	if existing, ok := out[ProcessingKey].(map[string]any); ok {
		for k, v := range existing {
			proc[k] = v
		}
	}
	for k, v := range patch {
		proc[k] = v
	}
	out[ProcessingKey] = proc
	return out
}
