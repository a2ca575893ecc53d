package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"vericase/pkg/domain"
)

const migrateLockID int64 = 51714931

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ContainerModel{}, &EvidenceModel{}, &AttachmentModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveContainer stores or updates a container.
func (s *GormStore) SaveContainer(c domain.SourceContainer) error {
	model, err := containerToModel(c)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"case_id", "company_id", "filename", "storage_key", "size_bytes", "status", "metadata", "updated_at"}),
	}).Create(&model).Error
}

// GetContainer returns a container by ID.
func (s *GormStore) GetContainer(id string) (domain.SourceContainer, bool, error) {
	var model ContainerModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SourceContainer{}, false, nil
		}
		return domain.SourceContainer{}, false, err
	}
	c, err := containerFromModel(model)
	if err != nil {
		return domain.SourceContainer{}, false, err
	}
	return c, true, nil
}

// TransitionContainer locks the row, checks the lifecycle and writes the new
// status together with the merged metadata.
func (s *GormStore) TransitionContainer(id string, next domain.ContainerStatus, patch map[string]any) (domain.SourceContainer, error) {
	var out domain.SourceContainer
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model ContainerModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		current, err := containerFromModel(model)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
		}
		metadata := mergeProcessing(current.Metadata, patch)
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		now := time.Now().UTC()
		if err := tx.Model(&ContainerModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":     string(next),
			"metadata":   datatypes.JSON(raw),
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		current.Status = next
		current.Metadata = metadata
		current.UpdatedAt = now
		out = current
		return nil
	})
	return out, err
}

// PatchProcessing merges patch into the container's pst_processing metadata.
func (s *GormStore) PatchProcessing(id string, patch map[string]any) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var model ContainerModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		current, err := decodeMetadata(model.Metadata)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(mergeProcessing(current, patch))
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		return tx.Model(&ContainerModel{}).Where("id = ?", id).Updates(map[string]any{
			"metadata":   datatypes.JSON(raw),
			"updated_at": time.Now().UTC(),
		}).Error
	})
}

// CreateEvidence inserts one message record.
func (s *GormStore) CreateEvidence(e domain.Evidence) error {
	model, err := evidenceToModel(e)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// ListCaseEvidence returns every record of a case in creation order.
func (s *GormStore) ListCaseEvidence(caseID string) ([]domain.Evidence, error) {
	var models []EvidenceModel
	if err := s.db.Where("case_id = ?", caseID).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Evidence, 0, len(models))
	for _, m := range models {
		e, err := evidenceFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// CountContainerEvidence returns the number of records extracted from a container.
func (s *GormStore) CountContainerEvidence(containerID string) (int, error) {
	var count int64
	if err := s.db.Model(&EvidenceModel{}).Where("container_id = ?", containerID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SetThreadIDs backfills thread ids; rows that already carry one are left alone.
func (s *GormStore) SetThreadIDs(assignments map[string]string) (int, error) {
	if len(assignments) == 0 {
		return 0, nil
	}
	var changed int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for id, threadID := range assignments {
			res := tx.Model(&EvidenceModel{}).
				Where("id = ? AND thread_id IS NULL", id).
				Update("thread_id", threadID)
			if res.Error != nil {
				return res.Error
			}
			changed += res.RowsAffected
		}
		return nil
	})
	return int(changed), err
}

// CountContainerThreads returns the number of distinct threads touched by a
// container's records.
func (s *GormStore) CountContainerThreads(containerID string) (int, error) {
	var count int64
	if err := s.db.Model(&EvidenceModel{}).
		Where("container_id = ? AND thread_id IS NOT NULL", containerID).
		Distinct("thread_id").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CreateAttachment inserts one unique attachment document.
func (s *GormStore) CreateAttachment(a domain.AttachmentDocument) error {
	model := attachmentToModel(a)
	return s.db.Create(&model).Error
}

// ListContainerAttachments returns the documents created for a container.
func (s *GormStore) ListContainerAttachments(containerID string) ([]domain.AttachmentDocument, error) {
	var models []AttachmentModel
	if err := s.db.Where("container_id = ?", containerID).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AttachmentDocument, 0, len(models))
	for _, m := range models {
		res = append(res, attachmentFromModel(m))
	}
	return res, nil
}

func containerToModel(c domain.SourceContainer) (ContainerModel, error) {
	raw, err := json.Marshal(c.Metadata)
	if err != nil {
		return ContainerModel{}, fmt.Errorf("encode metadata: %w", err)
	}
	return ContainerModel{
		ID:         c.ID,
		CaseID:     c.CaseID,
		CompanyID:  c.CompanyID,
		Filename:   c.Filename,
		StorageKey: c.StorageKey,
		SizeBytes:  c.SizeBytes,
		Status:     string(c.Status),
		Metadata:   datatypes.JSON(raw),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}, nil
}

func containerFromModel(m ContainerModel) (domain.SourceContainer, error) {
	metadata, err := decodeMetadata(m.Metadata)
	if err != nil {
		return domain.SourceContainer{}, err
	}
	return domain.SourceContainer{
		ID:         m.ID,
		CaseID:     m.CaseID,
		CompanyID:  m.CompanyID,
		Filename:   m.Filename,
		StorageKey: m.StorageKey,
		SizeBytes:  m.SizeBytes,
		Status:     domain.ContainerStatus(m.Status),
		Metadata:   metadata,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}

func decodeMetadata(raw datatypes.JSON) (map[string]any, error) {
	metadata := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return metadata, nil
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return metadata, nil
}

func evidenceToModel(e domain.Evidence) (EvidenceModel, error) {
	rcpt, err := json.Marshal(recipients{To: e.To, Cc: e.Cc, Bcc: e.Bcc})
	if err != nil {
		return EvidenceModel{}, fmt.Errorf("encode recipients: %w", err)
	}
	atts, err := json.Marshal(e.Attachments)
	if err != nil {
		return EvidenceModel{}, fmt.Errorf("encode attachments: %w", err)
	}
	convIndex := e.ConversationIndexHex
	if convIndex == "" && len(e.ConversationIndex) > 0 {
		convIndex = hex.EncodeToString(e.ConversationIndex)
	}
	var threadID *string
	if e.ThreadID != "" {
		t := e.ThreadID
		threadID = &t
	}
	return EvidenceModel{
		ID:                e.ID,
		ContainerID:       e.ContainerID,
		CaseID:            e.CaseID,
		MessageID:         e.MessageID,
		InReplyTo:         e.InReplyTo,
		ReferencesRaw:     e.References,
		ConversationIndex: convIndex,
		Subject:           e.Subject,
		ThreadTopic:       e.ThreadTopic,
		SenderName:        e.SenderName,
		SenderEmail:       e.SenderEmail,
		Recipients:        datatypes.JSON(rcpt),
		Date:              e.Date,
		FolderPath:        e.FolderPath,
		Body:              e.Body,
		BodyFormat:        string(e.BodyFormat),
		Attachments:       datatypes.JSON(atts),
		HasAttachments:    e.HasAttachments,
		Importance:        e.Importance,
		ThreadID:          threadID,
		CreatedAt:         e.CreatedAt,
	}, nil
}

func evidenceFromModel(m EvidenceModel) (domain.Evidence, error) {
	var rcpt recipients
	if len(m.Recipients) > 0 {
		if err := json.Unmarshal(m.Recipients, &rcpt); err != nil {
			return domain.Evidence{}, fmt.Errorf("decode recipients: %w", err)
		}
	}
	var atts []domain.AttachmentRef
	if len(m.Attachments) > 0 && string(m.Attachments) != "null" {
		if err := json.Unmarshal(m.Attachments, &atts); err != nil {
			return domain.Evidence{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	e := domain.Evidence{
		ID:                   m.ID,
		ContainerID:          m.ContainerID,
		CaseID:               m.CaseID,
		MessageID:            m.MessageID,
		InReplyTo:            m.InReplyTo,
		References:           m.ReferencesRaw,
		ConversationIndexHex: m.ConversationIndex,
		Subject:              m.Subject,
		ThreadTopic:          m.ThreadTopic,
		SenderName:           m.SenderName,
		SenderEmail:          m.SenderEmail,
		To:                   rcpt.To,
		Cc:                   rcpt.Cc,
		Bcc:                  rcpt.Bcc,
		Date:                 m.Date,
		FolderPath:           m.FolderPath,
		Body:                 m.Body,
		BodyFormat:           domain.BodyFormat(m.BodyFormat),
		Attachments:          atts,
		HasAttachments:       m.HasAttachments,
		Importance:           m.Importance,
		CreatedAt:            m.CreatedAt,
	}
	if m.ConversationIndex != "" {
		if raw, err := hex.DecodeString(m.ConversationIndex); err == nil {
			e.ConversationIndex = raw
		}
	}
	if m.ThreadID != nil {
		e.ThreadID = *m.ThreadID
	}
	return e, nil
}

func attachmentToModel(a domain.AttachmentDocument) AttachmentModel {
	return AttachmentModel{
		ID:               a.ID,
		ContainerID:      a.ContainerID,
		CaseID:           a.CaseID,
		CompanyID:        a.CompanyID,
		Hash:             a.Hash,
		StorageKey:       a.StorageKey,
		Filename:         a.Filename,
		OriginalFilename: a.OriginalFilename,
		SizeBytes:        a.SizeBytes,
		ContentType:      a.ContentType,
		Inline:           a.Inline,
		ContentID:        a.ContentID,
		CreatedAt:        a.CreatedAt,
	}
}

func attachmentFromModel(m AttachmentModel) domain.AttachmentDocument {
	return domain.AttachmentDocument{
		ID:               m.ID,
		ContainerID:      m.ContainerID,
		CaseID:           m.CaseID,
		CompanyID:        m.CompanyID,
		Hash:             m.Hash,
		StorageKey:       m.StorageKey,
		Filename:         m.Filename,
		OriginalFilename: m.OriginalFilename,
		SizeBytes:        m.SizeBytes,
		ContentType:      m.ContentType,
		Inline:           m.Inline,
		ContentID:        m.ContentID,
		CreatedAt:        m.CreatedAt,
	}
}
