package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html"
	"vericase/pkg/domain"
	"vericase/pkg/search"
)

// maxContentRunes bounds the body text sent to the search index.
const maxContentRunes = 10000

func (a *App) ensureIndex(ctx context.Context, logger *slog.Logger) {
	if a.search == nil {
		return
	}
	if err := a.search.EnsureIndex(ctx); err != nil {
		logger.Warn("search index unavailable", "err", err)
	}
}

func (a *App) publish(ctx context.Context, ev domain.Evidence, logger *slog.Logger) {
	if a.search == nil {
		return
	}
	if err := a.search.IndexDocument(ctx, searchDocument(ev, time.Now().UTC())); err != nil {
		a.metrics.observeSearchFailure()
		logger.Warn("search publish failed", "evidenceId", ev.ID, "err", err)
	}
}

func searchDocument(ev domain.Evidence, now time.Time) search.Document {
	doc := search.Document{
		ID:               search.DocumentID(ev.ID),
		Type:             "email",
		CaseID:           ev.CaseID,
		ContainerID:      ev.ContainerID,
		ThreadID:         ev.ThreadID,
		MessageID:        ev.MessageID,
		InReplyTo:        ev.InReplyTo,
		From:             ev.SenderEmail,
		To:               nonNil(ev.To),
		Cc:               nonNil(ev.Cc),
		Subject:          ev.Subject,
		Content:          truncateRunes(plainText(ev.Body, ev.BodyFormat), maxContentRunes),
		FolderPath:       ev.FolderPath,
		HasAttachments:   ev.HasAttachments,
		AttachmentsCount: len(ev.Attachments),
		IndexedAt:        now.Format(time.RFC3339),
	}
	if ev.Date != nil {
		doc.Date = ev.Date.UTC().Format(time.RFC3339)
	}
	return doc
}

func plainText(body string, format domain.BodyFormat) string {
	if format == domain.BodyHTML {
		if node, err := html.Parse(strings.NewReader(body)); err == nil {
			body = extractText(node)
		}
	}
	return normalizeText(body)
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" || node.Data == "head" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li" || node.Data == "tr") {
			buf.WriteString(" ")
		}
	}
	walk(n)
	return buf.String()
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
