package store

import (
	"errors"
	"testing"
	"time"

	"vericase/pkg/domain"
)

func newContainer(id string) domain.SourceContainer {
	now := time.Now().UTC()
	return domain.SourceContainer{
		ID:         id,
		CaseID:     "case-1",
		CompanyID:  "co-1",
		Filename:   "mailbox.pst",
		StorageKey: "uploads/mailbox.pst",
		Status:     domain.ContainerNew,
		Metadata:   map[string]any{"uploaded_by": "alice"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestTransitionContainerMonotonic(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SaveContainer(newContainer("c1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.TransitionContainer("c1", domain.ContainerReady, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition new->ready, got %v", err)
	}
	c, err := s.TransitionContainer("c1", domain.ContainerProcessing, map[string]any{"status": "processing", "run_id": "r1"})
	if err != nil {
		t.Fatalf("new->processing: %v", err)
	}
	if c.Status != domain.ContainerProcessing {
		t.Fatalf("expected processing, got %s", c.Status)
	}
	if _, err := s.TransitionContainer("c1", domain.ContainerReady, map[string]any{"status": "completed"}); err != nil {
		t.Fatalf("processing->ready: %v", err)
	}
	if _, err := s.TransitionContainer("c1", domain.ContainerFailed, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition ready->failed, got %v", err)
	}
	if _, err := s.TransitionContainer("missing", domain.ContainerProcessing, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProcessingMetadataMerges(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveContainer(newContainer("c1"))
	if _, err := s.TransitionContainer("c1", domain.ContainerProcessing, map[string]any{"run_id": "r1"}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := s.PatchProcessing("c1", map[string]any{"progress": map[string]any{"processed": 5, "total": 10}}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	c, _, _ := s.GetContainer("c1")
	if c.Metadata["uploaded_by"] != "alice" {
		t.Fatalf("expected unrelated metadata kept, got %v", c.Metadata)
	}
	proc, ok := c.Metadata[ProcessingKey].(map[string]any)
	if !ok {
		t.Fatalf("expected %s object, got %T", ProcessingKey, c.Metadata[ProcessingKey])
	}
	if proc["run_id"] != "r1" || proc["progress"] == nil {
		t.Fatalf("unexpected processing metadata: %v", proc)
	}
}

func TestSetThreadIDsOnlyFillsEmpty(t *testing.T) {
	s := NewMemoryStore()
	_ = s.CreateEvidence(domain.Evidence{ID: "e1", CaseID: "case-1", ContainerID: "c1"})
	_ = s.CreateEvidence(domain.Evidence{ID: "e2", CaseID: "case-1", ContainerID: "c1", ThreadID: "thread_existing"})
	_ = s.CreateEvidence(domain.Evidence{ID: "e3", CaseID: "case-2", ContainerID: "c2"})

	changed, err := s.SetThreadIDs(map[string]string{"e1": "thread_a", "e2": "thread_b", "missing": "thread_c"})
	if err != nil {
		t.Fatalf("set thread ids: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected 1 row changed, got %d", changed)
	}
	e2, _ := s.Evidence("e2")
	if e2.ThreadID != "thread_existing" {
		t.Fatalf("thread id overwritten: %s", e2.ThreadID)
	}
	threads, _ := s.CountContainerThreads("c1")
	if threads != 2 {
		t.Fatalf("expected 2 threads, got %d", threads)
	}
	list, _ := s.ListCaseEvidence("case-1")
	if len(list) != 2 || list[0].ID != "e1" || list[1].ID != "e2" {
		t.Fatalf("unexpected case evidence order: %+v", list)
	}
	if n, _ := s.CountContainerEvidence("c2"); n != 1 {
		t.Fatalf("expected 1 record for c2, got %d", n)
	}
}

func TestCreateEvidenceRejectsDuplicateID(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateEvidence(domain.Evidence{ID: "e1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateEvidence(domain.Evidence{ID: "e1"}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
