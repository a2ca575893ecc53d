package extract

import (
	"fmt"

	"vericase/pkg/domain"
	"vericase/services/ingest/internal/container"
)

// SelectBody picks the first non-empty body in html, text, rtf order. When
// none is present a short envelope summary is returned as text.
func SelectBody(msg container.Message, from, to, subject string) (string, domain.BodyFormat) {
	if v, ok := msg.HTMLBody(); ok && v != "" {
		return v, domain.BodyHTML
	}
	if v, ok := msg.TextBody(); ok && v != "" {
		return v, domain.BodyText
	}
	if v, ok := msg.RTFBody(); ok && v != "" {
		return v, domain.BodyRTF
	}
	return placeholderBody(from, to, subject), domain.BodyText
}

func placeholderBody(from, to, subject string) string {
	return fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\n\n[No body content available]", from, to, subject)
}
