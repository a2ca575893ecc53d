// Package attachment stores attachment payloads once per distinct content
// within a run.
package attachment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"vericase/internal/util"
	"vericase/pkg/domain"
	"vericase/pkg/storage"
	"vericase/services/ingest/internal/container"
)

// ErrEmpty is returned for attachments without payload bytes.
var ErrEmpty = errors.New("attachment has no data")

const maxFilenameLen = 200

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DocumentWriter persists attachment documents.
type DocumentWriter interface {
	CreateAttachment(domain.AttachmentDocument) error
}

// Scope identifies the run an attachment store belongs to.
type Scope struct {
	ContainerID string
	CaseID      string
	CompanyID   string
}

// Store deduplicates by sha256 within one run. It is not safe for
// concurrent use; a run is single-threaded.
type Store struct {
	objects storage.ObjectStore
	docs    DocumentWriter
	scope   Scope
	logger  *slog.Logger

	seen  map[string]string
	total int
}

// NewStore returns a Store with an empty dedup table.
func NewStore(objects storage.ObjectStore, docs DocumentWriter, scope Scope, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		objects: objects,
		docs:    docs,
		scope:   scope,
		logger:  logger,
		seen:    make(map[string]string),
	}
}

// Total counts successfully processed occurrences, duplicates included.
func (s *Store) Total() int { return s.total }

// Unique counts distinct payloads stored in this run.
func (s *Store) Unique() int { return len(s.seen) }

// Process stores att (or reuses an earlier identical payload) and returns
// the summary to embed in the owning record.
func (s *Store) Process(ctx context.Context, att container.Attachment, index int) (domain.AttachmentRef, error) {
	rawName, _ := att.Name()
	filename := SanitizeFilename(rawName, fmt.Sprintf("attachment_%d", index))

	data, err := att.ReadAll()
	if err != nil {
		return domain.AttachmentRef{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if len(data) == 0 {
		return domain.AttachmentRef{}, fmt.Errorf("read %s: %w", filename, ErrEmpty)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	contentID, _ := att.ContentID()
	contentID = strings.Trim(strings.TrimSpace(contentID), "<>")
	contentType := detectContentType(att, data)

	ref := domain.AttachmentRef{
		Filename:    filename,
		Size:        int64(len(data)),
		ContentType: contentType,
		Inline:      contentID != "",
		ContentID:   contentID,
	}

	if docID, ok := s.seen[hash]; ok {
		s.total++
		ref.DocumentID = docID
		ref.Duplicate = true
		s.logger.Debug("duplicate attachment", "filename", filename, "hash", hash[:8], "documentId", docID)
		return ref, nil
	}

	key := StorageKey(s.scope.CompanyID, s.scope.CaseID, hash, filename)
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return domain.AttachmentRef{}, fmt.Errorf("upload %s: %w", filename, err)
	}

	doc := domain.AttachmentDocument{
		ID:               util.NewID(),
		ContainerID:      s.scope.ContainerID,
		CaseID:           s.scope.CaseID,
		CompanyID:        s.scope.CompanyID,
		Hash:             hash,
		StorageKey:       key,
		Filename:         filename,
		OriginalFilename: rawName,
		SizeBytes:        int64(len(data)),
		ContentType:      contentType,
		Inline:           ref.Inline,
		ContentID:        contentID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.docs.CreateAttachment(doc); err != nil {
		return domain.AttachmentRef{}, fmt.Errorf("record %s: %w", filename, err)
	}

	s.seen[hash] = doc.ID
	s.total++
	ref.DocumentID = doc.ID
	ref.StorageKey = key
	ref.Hash = hash
	return ref, nil
}

func detectContentType(att container.Attachment, data []byte) string {
	if mt, ok := att.MimeType(); ok {
		if mt = strings.TrimSpace(mt); mt != "" {
			return mt
		}
	}
	return mimetype.Detect(data).String()
}

// SanitizeFilename reduces name to a safe basename. Path separators,
// control characters and anything outside [A-Za-z0-9._-] become '_';
// leading and trailing '.' and '_' are trimmed. An empty result yields fallback.
func SanitizeFilename(name, fallback string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if len(name) > maxFilenameLen {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.TrimRight(name[:maxFilenameLen-len(ext)], "._") + ext
	}
	if name == "" {
		return fallback
	}
	return name
}

// StorageKey builds attachments/{company}/{case}/{hash[:8]}_{filename}.
func StorageKey(companyID, caseID, hash, filename string) string {
	if companyID == "" {
		companyID = "unassigned"
	}
	prefix := hash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("attachments/%s/%s/%s_%s", companyID, caseID, prefix, filename)
}
