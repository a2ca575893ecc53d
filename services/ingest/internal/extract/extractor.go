// Package extract walks a container's folder tree and turns every message
// into an evidence record.
package extract

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"vericase/pkg/domain"
	"vericase/services/ingest/internal/container"
)

// RootName names a root folder that carries no name of its own.
const RootName = "Root"

// AttachmentHandler stores one attachment occurrence and returns its summary.
type AttachmentHandler interface {
	Process(ctx context.Context, att container.Attachment, index int) (domain.AttachmentRef, error)
}

// Sink persists one extracted record. A returned error fails that message only.
type Sink func(ctx context.Context, ev domain.Evidence) error

// Options configures an Extractor.
type Options struct {
	Attachments   AttachmentHandler
	Logger        *slog.Logger
	ProgressEvery int
	// Progress is called with the running count of persisted messages.
	Progress func(processed int)
}

// Report accumulates the outcome of one traversal.
type Report struct {
	Emails int
	// Attachments counts attachment occurrences on persisted messages only.
	Attachments int
	SizeSaved   int64
	Errors      []domain.ItemError
}

func (r *Report) fail(scope domain.ItemScope, folder string, index int, format string, args ...any) {
	r.Errors = append(r.Errors, domain.ItemError{
		Scope:   scope,
		Folder:  folder,
		Index:   index,
		Message: fmt.Sprintf(format, args...),
	})
}

// Extractor performs depth-first traversal; a folder's messages are visited
// before its subfolders.
type Extractor struct {
	attachments   AttachmentHandler
	logger        *slog.Logger
	progressEvery int
	progress      func(int)
}

// New constructs an Extractor.
func New(opts Options) *Extractor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = 100
	}
	return &Extractor{
		attachments:   opts.Attachments,
		logger:        logger,
		progressEvery: every,
		progress:      opts.Progress,
	}
}

// Run extracts every message below root and hands each record to sink.
func (e *Extractor) Run(ctx context.Context, root container.Folder, sink Sink) Report {
	var report Report
	e.walk(ctx, root, "", 0, sink, &report)
	return report
}

func (e *Extractor) walk(ctx context.Context, folder container.Folder, parent string, index int, sink Sink, report *Report) {
	path := parent
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("folder traversal panic", "folder", path, "index", index, "panic", r)
			report.fail(domain.ScopeFolder, path, index, "panic: %v", r)
		}
	}()

	name := strings.TrimSpace(folder.Name())
	if name == "" && parent == "" {
		name = RootName
	}
	if parent == "" {
		path = name
	} else {
		path = parent + "/" + name
	}

	count := folder.MessageCount()
	e.logger.Info("processing folder", "folder", path, "messages", count)
	for i := 0; i < count; i++ {
		ev, err := e.extractMessage(ctx, folder, path, i, report)
		if err != nil {
			e.logger.Warn("message extraction failed", "folder", path, "index", i, "err", err)
			report.fail(domain.ScopeMessage, path, i, "%v", err)
			continue
		}
		if err := sink(ctx, ev); err != nil {
			e.logger.Warn("message persist failed", "folder", path, "index", i, "err", err)
			report.fail(domain.ScopeMessage, path, i, "persist: %v", err)
			continue
		}
		report.Emails++
		report.Attachments += len(ev.Attachments)
		report.SizeSaved += int64(len(ev.Body)) + envelopeSize(ev)
		if report.Emails%e.progressEvery == 0 && e.progress != nil {
			e.progress(report.Emails)
		}
	}

	for i := 0; i < folder.SubFolderCount(); i++ {
		sub, err := folder.SubFolder(i)
		if err != nil {
			e.logger.Warn("subfolder open failed", "folder", path, "index", i, "err", err)
			report.fail(domain.ScopeFolder, path, i, "%v", err)
			continue
		}
		e.walk(ctx, sub, path, i, sink, report)
	}
}

func (e *Extractor) extractMessage(ctx context.Context, folder container.Folder, path string, index int, report *Report) (ev domain.Evidence, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	msg, err := folder.Message(index)
	if err != nil {
		return domain.Evidence{}, err
	}
	ev = BuildEvidence(msg, path)
	if n := msg.AttachmentCount(); n > 0 {
		ev.HasAttachments = true
		ev.Attachments = e.processAttachments(ctx, msg, n, path, index, report)
	}
	return ev, nil
}

func (e *Extractor) processAttachments(ctx context.Context, msg container.Message, n int, path string, index int, report *Report) []domain.AttachmentRef {
	if e.attachments == nil {
		return nil
	}
	refs := make([]domain.AttachmentRef, 0, n)
	for i := 0; i < n; i++ {
		ref, err := e.processAttachment(ctx, msg, i)
		if err != nil {
			e.logger.Warn("attachment skipped", "folder", path, "message", index, "attachment", i, "err", err)
			report.fail(domain.ScopeAttachment, path, index, "attachment %d: %v", i, err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

func (e *Extractor) processAttachment(ctx context.Context, msg container.Message, i int) (ref domain.AttachmentRef, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	att, err := msg.Attachment(i)
	if err != nil {
		return domain.AttachmentRef{}, err
	}
	return e.attachments.Process(ctx, att, i)
}

// BuildEvidence maps message attributes onto a record. Identity fields
// (ID, container, case) are left for the caller.
func BuildEvidence(msg container.Message, folderPath string) domain.Evidence {
	headers, _ := msg.TransportHeaders()
	subject, _ := msg.Subject()
	senderName, _ := msg.SenderName()

	ev := domain.Evidence{
		Subject:    subject,
		SenderName: senderName,
		FolderPath: folderPath,
	}

	ev.MessageID = headerOrProperty(headers, "Message-ID", msg.InternetMessageID)
	ev.InReplyTo = headerOrProperty(headers, "In-Reply-To", msg.InReplyToID)
	if refs, ok := rawHeader(headers, "References"); ok {
		ev.References = refs
	} else if refs, ok := msg.InternetReferences(); ok {
		ev.References = strings.TrimSpace(refs)
	}

	ev.SenderEmail = senderEmail(msg, headers, senderName)

	displayTo, _ := msg.DisplayTo()
	ev.To = recipients(displayTo, headers, "To")
	displayCc, _ := msg.DisplayCc()
	ev.Cc = recipients(displayCc, headers, "Cc")
	displayBcc, _ := msg.DisplayBcc()
	ev.Bcc = recipients(displayBcc, headers, "Bcc")

	if t, ok := msg.DeliveryTime(); ok {
		ev.Date = &t
	} else if t, ok := msg.SubmitTime(); ok {
		ev.Date = &t
	} else if t, ok := msg.CreationTime(); ok {
		ev.Date = &t
	}

	if raw, ok := msg.ConversationIndex(); ok {
		ev.ConversationIndex = raw
		ev.ConversationIndexHex = hex.EncodeToString(raw)
	}

	if topic, ok := HeaderValue(headers, "Thread-Topic"); ok {
		ev.ThreadTopic = topic
	} else {
		ev.ThreadTopic = subject
	}

	if v, ok := msg.Importance(); ok {
		ev.Importance = &v
	}

	toDisplay := displayTo
	if toDisplay == "" {
		toDisplay, _ = rawHeader(headers, "To")
	}
	ev.Body, ev.BodyFormat = SelectBody(msg, ev.SenderEmail, toDisplay, subject)
	return ev
}

func headerOrProperty(headers, name string, prop func() (string, bool)) string {
	if v, ok := HeaderValue(headers, name); ok {
		return v
	}
	if v, ok := prop(); ok {
		return domain.TrimAngle(v)
	}
	return ""
}

func senderEmail(msg container.Message, headers, senderName string) string {
	if addr, ok := SenderFromHeaders(headers); ok {
		return addr
	}
	if addr, ok := msg.SenderEmail(); ok && strings.Contains(addr, "@") {
		return strings.TrimSpace(addr)
	}
	return senderName
}

func recipients(display, headers, header string) []string {
	if strings.TrimSpace(display) != "" {
		return ParseRecipients(display)
	}
	v, _ := rawHeader(headers, header)
	return ParseRecipients(v)
}

func envelopeSize(ev domain.Evidence) int64 {
	ev.Body = ""
	ev.Attachments = nil
	raw, err := json.Marshal(ev)
	if err != nil {
		return 0
	}
	return int64(len(raw))
}
