package extract

import (
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
	"vericase/pkg/domain"
)

var senderPattern = regexp.MustCompile(`(?i)From:\s*(?:.*?<)?([a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+)`)

// rawHeader returns the value of the first line of headers that starts
// with "name:". The match on name is case-sensitive.
func rawHeader(headers, name string) (string, bool) {
	if headers == "" || name == "" {
		return "", false
	}
	prefix := name + ":"
	for _, line := range strings.Split(headers, "\n") {
		if strings.HasPrefix(line, prefix) {
			v := strings.TrimSpace(line[len(prefix):])
			return v, v != ""
		}
	}
	return "", false
}

// HeaderValue is rawHeader with one pair of surrounding angle brackets removed.
func HeaderValue(headers, name string) (string, bool) {
	v, ok := rawHeader(headers, name)
	if !ok {
		return "", false
	}
	v = domain.TrimAngle(v)
	return v, v != ""
}

// SenderFromHeaders finds the From address in a transport header blob.
func SenderFromHeaders(headers string) (string, bool) {
	m := senderPattern.FindStringSubmatch(headers)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// ParseRecipients turns a display or header recipient string into a list.
// Parseable address lists become lower-cased, de-duplicated addresses;
// anything else is split on ';' and trimmed.
func ParseRecipients(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if addrs, err := mail.ParseAddressList(strings.ReplaceAll(raw, ";", ",")); err == nil && len(addrs) > 0 {
		seen := make(map[string]struct{}, len(addrs))
		out := make([]string, 0, len(addrs))
		for _, a := range addrs {
			addr := strings.ToLower(strings.TrimSpace(a.Address))
			if addr == "" {
				continue
			}
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
		if len(out) > 0 {
			return out
		}
	}
	seen := map[string]struct{}{}
	var out []string
	for _, part := range strings.Split(raw, ";") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part == "" {
			continue
		}
		key := strings.ToLower(part)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, part)
	}
	return out
}
