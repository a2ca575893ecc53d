package extract

import (
	"reflect"
	"testing"

	"vericase/pkg/domain"
	"vericase/services/ingest/internal/container"
)

const sampleHeaders = "Received: from mx.example.com\r\n" +
	"Message-ID: <a@x>\r\n" +
	"In-Reply-To: <parent@x>\r\n" +
	"References: <root@x> <parent@x>\r\n" +
	"From: \"Project Manager\" <PM@Example.com>\r\n" +
	"To: site@example.com\r\n" +
	"Thread-Topic: Site Visit\r\n" +
	"message-id: <lower@x>\r\n"

func TestHeaderValue(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"strips angle brackets", "Message-ID", "a@x", true},
		{"strips carriage return", "Thread-Topic", "Site Visit", true},
		{"first match wins", "In-Reply-To", "parent@x", true},
		{"case sensitive", "MESSAGE-ID", "", false},
		{"missing", "X-Missing", "", false},
	}
	for _, tc := range cases {
		got, ok := HeaderValue(sampleHeaders, tc.header)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s: got %q %v, want %q %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
	if refs, _ := rawHeader(sampleHeaders, "References"); refs != "<root@x> <parent@x>" {
		t.Fatalf("raw references altered: %q", refs)
	}
	if _, ok := HeaderValue("", "Message-ID"); ok {
		t.Fatalf("expected absent for empty headers")
	}
}

func TestSenderFromHeaders(t *testing.T) {
	cases := []struct {
		headers string
		want    string
		ok      bool
	}{
		{sampleHeaders, "PM@Example.com", true},
		{"from: bare@example.org\n", "bare@example.org", true},
		{"From: Someone Without Address\n", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := SenderFromHeaders(tc.headers)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("headers %q: got %q %v, want %q %v", tc.headers, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseRecipients(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"A@Example.com; b@example.com; a@example.com", []string{"a@example.com", "b@example.com"}},
		{"\"Jane Doe\" <Jane@Example.com>, John <john@example.com>", []string{"jane@example.com", "john@example.com"}},
		{"Jane Doe; John Smith ; jane doe", []string{"Jane Doe", "John Smith"}},
	}
	for _, tc := range cases {
		got := ParseRecipients(tc.raw)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ParseRecipients(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestSelectBodyPriority(t *testing.T) {
	cases := []struct {
		name   string
		msg    *container.MemoryMessage
		body   string
		format domain.BodyFormat
	}{
		{"html wins", &container.MemoryMessage{HTML: "<p>hi</p>", Text: "hi", RTF: "{\\rtf1 hi}"}, "<p>hi</p>", domain.BodyHTML},
		{"text second", &container.MemoryMessage{Text: "hi", RTF: "{\\rtf1 hi}"}, "hi", domain.BodyText},
		{"rtf third", &container.MemoryMessage{RTF: "{\\rtf1 hi}"}, "{\\rtf1 hi}", domain.BodyRTF},
		{"placeholder", &container.MemoryMessage{}, "From: a@x\nTo: b@x\nSubject: Hello\n\n[No body content available]", domain.BodyText},
	}
	for _, tc := range cases {
		body, format := SelectBody(tc.msg, "a@x", "b@x", "Hello")
		if body != tc.body || format != tc.format {
			t.Fatalf("%s: got %q/%s, want %q/%s", tc.name, body, format, tc.body, tc.format)
		}
	}
}
