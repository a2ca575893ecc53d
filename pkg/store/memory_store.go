package store

import (
	"fmt"
	"sync"
	"time"

	"vericase/pkg/domain"
)

// MemoryStore is an in-process Store that keeps insertion order.
type MemoryStore struct {
	mu          sync.RWMutex
	containers  map[string]domain.SourceContainer
	evidence    []domain.Evidence
	evidenceIdx map[string]int
	attachments []domain.AttachmentDocument
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		containers:  make(map[string]domain.SourceContainer),
		evidenceIdx: make(map[string]int),
	}
}

func (s *MemoryStore) SaveContainer(c domain.SourceContainer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Metadata = copyMetadata(c.Metadata)
	s.containers[c.ID] = c
	return nil
}

func (s *MemoryStore) GetContainer(id string) (domain.SourceContainer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.containers[id]
	return c, ok, nil
}

func (s *MemoryStore) TransitionContainer(id string, next domain.ContainerStatus, patch map[string]any) (domain.SourceContainer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[id]
	if !ok {
		return domain.SourceContainer{}, ErrNotFound
	}
	if !c.Status.CanTransition(next) {
		return domain.SourceContainer{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
	}
	c.Status = next
	c.Metadata = mergeProcessing(c.Metadata, patch)
	c.UpdatedAt = time.Now().UTC()
	s.containers[id] = c
	return c, nil
}

func (s *MemoryStore) PatchProcessing(id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[id]
	if !ok {
		return ErrNotFound
	}
	c.Metadata = mergeProcessing(c.Metadata, patch)
	c.UpdatedAt = time.Now().UTC()
	s.containers[id] = c
	return nil
}

func (s *MemoryStore) CreateEvidence(e domain.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.evidenceIdx[e.ID]; exists {
		return fmt.Errorf("evidence %s already exists", e.ID)
	}
	s.evidenceIdx[e.ID] = len(s.evidence)
	s.evidence = append(s.evidence, e)
	return nil
}

func (s *MemoryStore) ListCaseEvidence(caseID string) ([]domain.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Evidence
	for _, e := range s.evidence {
		if e.CaseID == caseID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (s *MemoryStore) CountContainerEvidence(containerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.evidence {
		if e.ContainerID == containerID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SetThreadIDs(assignments map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for id, threadID := range assignments {
		i, ok := s.evidenceIdx[id]
		if !ok || s.evidence[i].ThreadID != "" {
			continue
		}
		s.evidence[i].ThreadID = threadID
		changed++
	}
	return changed, nil
}

func (s *MemoryStore) CountContainerThreads(containerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, e := range s.evidence {
		if e.ContainerID == containerID && e.ThreadID != "" {
			seen[e.ThreadID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (s *MemoryStore) CreateAttachment(a domain.AttachmentDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments = append(s.attachments, a)
	return nil
}

func (s *MemoryStore) ListContainerAttachments(containerID string) ([]domain.AttachmentDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.AttachmentDocument
	for _, a := range s.attachments {
		if a.ContainerID == containerID {
			res = append(res, a)
		}
	}
	return res, nil
}

// Evidence returns a record by id.
func (s *MemoryStore) Evidence(id string) (domain.Evidence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.evidenceIdx[id]
	if !ok {
		return domain.Evidence{}, false
	}
	return s.evidence[i], true
}

func copyMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
