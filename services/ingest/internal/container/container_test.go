package container

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	pst "github.com/mooijtech/go-pst/v6/pkg"
	"github.com/mooijtech/go-pst/v6/pkg/properties"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

func TestPSTOpenerRejectsNonPST(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailbox.pst")
	if err := os.WriteFile(path, []byte("definitely not a pst file"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_, err := NewPSTOpener().Open(path)
	if !errors.Is(err, ErrCannotOpen) {
		t.Fatalf("expected ErrCannotOpen, got %v", err)
	}
}

func TestPSTOpenerMissingFile(t *testing.T) {
	_, err := NewPSTOpener().Open(filepath.Join(t.TempDir(), "missing.pst"))
	if !errors.Is(err, ErrCannotOpen) {
		t.Fatalf("expected ErrCannotOpen, got %v", err)
	}
}

func TestMemoryOpenerRequiresDownloadedFile(t *testing.T) {
	opener := &MemoryOpener{Container: &MemoryContainer{RootFolder: &MemoryFolder{}}}
	if _, err := opener.Open(filepath.Join(t.TempDir(), "nope.pst")); !errors.Is(err, ErrCannotOpen) {
		t.Fatalf("expected ErrCannotOpen for missing path, got %v", err)
	}
	opener.Err = errors.New("encrypted")
	path := filepath.Join(t.TempDir(), "x.pst")
	_ = os.WriteFile(path, []byte("x"), 0o600)
	if _, err := opener.Open(path); !errors.Is(err, ErrCannotOpen) {
		t.Fatalf("expected injected error wrapped in ErrCannotOpen, got %v", err)
	}
	if len(opener.Opened) != 2 {
		t.Fatalf("expected 2 recorded opens, got %v", opener.Opened)
	}
}

func TestMemoryMessageAbsentSentinels(t *testing.T) {
	m := &MemoryMessage{SubjectText: "Hello"}
	if v, ok := m.Subject(); !ok || v != "Hello" {
		t.Fatalf("expected subject present, got %q %v", v, ok)
	}
	if _, ok := m.HTMLBody(); ok {
		t.Fatalf("expected html body absent")
	}
	if _, ok := m.DeliveryTime(); ok {
		t.Fatalf("expected delivery time absent")
	}
	if _, ok := m.Importance(); ok {
		t.Fatalf("expected importance absent")
	}
	if _, ok := m.ConversationIndex(); ok {
		t.Fatalf("expected conversation index absent")
	}
}

func TestCountMessagesSkipsBrokenFolders(t *testing.T) {
	root := &MemoryFolder{
		Messages: []Message{&MemoryMessage{}, &MemoryMessage{}},
		SubFolders: []*MemoryFolder{
			{FolderName: "Inbox", Messages: []Message{&MemoryMessage{}}},
			{FolderName: "Broken", Messages: []Message{&MemoryMessage{}, &MemoryMessage{}}},
			{FolderName: "Sent", SubFolders: []*MemoryFolder{{Messages: []Message{&MemoryMessage{}}}}},
		},
		SubFolderErrs: map[int]error{1: errors.New("corrupt index")},
	}
	if got := CountMessages(root); got != 4 {
		t.Fatalf("expected 4 messages, got %d", got)
	}
	if CountMessages(nil) != 0 {
		t.Fatalf("expected 0 for nil folder")
	}
}

func TestTimeFromInt(t *testing.T) {
	want := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	filetime := want.UnixNano()/100 + filetimeEpochOffset
	cases := []struct {
		name string
		raw  int64
	}{
		{"filetime", filetime},
		{"unix nanos", want.UnixNano()},
		{"unix micros", want.UnixMicro()},
		{"unix millis", want.UnixMilli()},
		{"unix seconds", want.Unix()},
	}
	for _, tc := range cases {
		got, ok := timeFromInt(tc.raw)
		if !ok || !got.Equal(want) {
			t.Fatalf("%s: expected %v, got %v ok=%v", tc.name, want, got, ok)
		}
	}
	if _, ok := timeFromInt(0); ok {
		t.Fatalf("expected zero to be absent")
	}
}

func TestPropertySetProbesByName(t *testing.T) {
	msg := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String("subject-value"),
		Number:   proto.Int32(42),
		JsonName: proto.String(""),
	}
	props := newPropertySet(msg)
	if v, ok := props.String("missing", "json_name", "name"); !ok || v != "subject-value" {
		t.Fatalf("expected first non-empty string field, got %q %v", v, ok)
	}
	if v, ok := props.Int("number"); !ok || v != 42 {
		t.Fatalf("expected int field, got %d %v", v, ok)
	}
	if _, ok := props.String("type_name"); ok {
		t.Fatalf("expected unset field absent")
	}
	var empty propertySet
	if _, ok := empty.String("name"); ok {
		t.Fatalf("expected empty property set to report absent")
	}
}

func TestEmbeddedPropertiesFindsStructField(t *testing.T) {
	type wrapper struct {
		Identifier int
		descriptorpb.FieldDescriptorProto
	}
	w := &wrapper{}
	w.Name = proto.String("report.pdf")
	props := newPropertySet(embeddedProperties(w))
	if v, ok := props.String("name"); !ok || v != "report.pdf" {
		t.Fatalf("expected embedded property lookup, got %q %v", v, ok)
	}
	if embeddedProperties(42) != nil {
		t.Fatalf("expected nil for non-struct")
	}
}

func TestMemoryAttachmentReadAllCopies(t *testing.T) {
	a := &MemoryAttachment{Filename: "a.txt", Data: []byte("abc")}
	b, err := a.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	b[0] = 'z'
	if string(a.Data) != "abc" {
		t.Fatalf("ReadAll must not alias stored data")
	}
	if size, ok := a.Size(); !ok || size != 3 {
		t.Fatalf("unexpected size %d %v", size, ok)
	}
}

func TestPSTMessageReadsDecodedProperties(t *testing.T) {
	delivered := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	filetime := delivered.Unix()*10_000_000 + filetimeEpochOffset
	m := newPSTMessage(&pst.Message{Properties: &properties.Message{
		Subject:                 proto.String("Site visit"),
		SenderName:              proto.String("Alice"),
		TransportMessageHeaders: proto.String("Message-ID: <a@x>\r\n"),
		BodyHtml:                proto.String("<p>hi</p>"),
		Body:                    proto.String("hi"),
		InternetMessageId:       proto.String("<a@x>"),
		DisplayTo:               proto.String("Bob"),
		MessageDeliveryTime:     proto.Int64(filetime),
		Importance:              proto.Int32(2),
	}})

	checks := []struct {
		name string
		get  func() (string, bool)
		want string
	}{
		{"subject", m.Subject, "Site visit"},
		{"sender name", m.SenderName, "Alice"},
		{"headers", m.TransportHeaders, "Message-ID: <a@x>\r\n"},
		{"html", m.HTMLBody, "<p>hi</p>"},
		{"text", m.TextBody, "hi"},
		{"message id", m.InternetMessageID, "<a@x>"},
		{"display to", m.DisplayTo, "Bob"},
	}
	for _, c := range checks {
		if v, ok := c.get(); !ok || v != c.want {
			t.Fatalf("%s: expected %q, got %q %v", c.name, c.want, v, ok)
		}
	}
	if got, ok := m.DeliveryTime(); !ok || !got.Equal(delivered) {
		t.Fatalf("expected delivery time %v, got %v %v", delivered, got, ok)
	}
	if v, ok := m.Importance(); !ok || v != 2 {
		t.Fatalf("expected importance 2, got %d %v", v, ok)
	}
	if _, ok := m.InReplyToID(); ok {
		t.Fatalf("expected unset in-reply-to absent")
	}
	// no property context: raw reads report absent instead of panicking
	if _, ok := m.ConversationIndex(); ok {
		t.Fatalf("expected conversation index absent")
	}
	if _, ok := m.RTFBody(); ok {
		t.Fatalf("expected rtf body absent")
	}
}

func TestPSTMessageRawPropertyRecoversFromBrokenContext(t *testing.T) {
	m := newPSTMessage(&pst.Message{PropertyContext: &pst.PropertyContext{}})
	if _, ok := m.ConversationIndex(); ok {
		t.Fatalf("expected conversation index absent")
	}
	if _, ok := m.RTFBody(); ok {
		t.Fatalf("expected rtf body absent")
	}
	if _, ok := m.Subject(); ok {
		t.Fatalf("expected subject absent without properties")
	}
}

func TestPSTAttachmentReadsEmbeddedProperties(t *testing.T) {
	raw := &pst.Attachment{}
	raw.AttachLongFilename = proto.String("Programme rev B.pdf")
	raw.AttachFilename = proto.String("PROGRA~1.PDF")
	raw.AttachMimeTag = proto.String("application/pdf")
	raw.AttachContentId = proto.String("<img001@x>")
	raw.AttachSize = proto.Int32(2048)
	a := newPSTAttachment(raw)

	if v, ok := a.Name(); !ok || v != "Programme rev B.pdf" {
		t.Fatalf("expected long filename, got %q %v", v, ok)
	}
	if v, ok := a.MimeType(); !ok || v != "application/pdf" {
		t.Fatalf("expected mime tag, got %q %v", v, ok)
	}
	if v, ok := a.ContentID(); !ok || v != "<img001@x>" {
		t.Fatalf("expected content id, got %q %v", v, ok)
	}
	if v, ok := a.Size(); !ok || v != 2048 {
		t.Fatalf("expected size 2048, got %d %v", v, ok)
	}
}
