package container

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// MemoryOpener serves a fixed in-memory container. It still requires the
// path to exist so callers exercise their download step.
type MemoryOpener struct {
	Container *MemoryContainer
	Err       error
	Opened    []string
}

func (o *MemoryOpener) Open(path string) (Container, error) {
	o.Opened = append(o.Opened, path)
	if o.Err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotOpen, o.Err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotOpen, err)
	}
	if o.Container == nil {
		return nil, fmt.Errorf("%w: empty container", ErrCannotOpen)
	}
	return o.Container, nil
}

// MemoryContainer is a Container built from Go values.
type MemoryContainer struct {
	RootFolder *MemoryFolder
	Closed     bool
}

func (c *MemoryContainer) Root() (Folder, error) {
	if c.RootFolder == nil {
		return nil, errors.New("container has no root folder")
	}
	return c.RootFolder, nil
}

func (c *MemoryContainer) Close() error {
	c.Closed = true
	return nil
}

// MemoryFolder is an in-memory Folder. MessageErrs and SubFolderErrs inject
// failures at specific indexes.
type MemoryFolder struct {
	FolderName    string
	Messages      []Message
	SubFolders    []*MemoryFolder
	MessageErrs   map[int]error
	SubFolderErrs map[int]error
}

func (f *MemoryFolder) Name() string      { return f.FolderName }
func (f *MemoryFolder) MessageCount() int { return len(f.Messages) }

func (f *MemoryFolder) Message(i int) (Message, error) {
	if err, ok := f.MessageErrs[i]; ok {
		return nil, err
	}
	if i < 0 || i >= len(f.Messages) {
		return nil, fmt.Errorf("message index %d out of range", i)
	}
	return f.Messages[i], nil
}

func (f *MemoryFolder) SubFolderCount() int { return len(f.SubFolders) }

func (f *MemoryFolder) SubFolder(i int) (Folder, error) {
	if err, ok := f.SubFolderErrs[i]; ok {
		return nil, err
	}
	if i < 0 || i >= len(f.SubFolders) {
		return nil, fmt.Errorf("subfolder index %d out of range", i)
	}
	return f.SubFolders[i], nil
}

// MemoryMessage is an in-memory Message. Empty strings and zero times read
// as absent.
type MemoryMessage struct {
	SubjectText     string
	From            string
	FromEmail       string
	To              string
	Cc              string
	Bcc             string
	Headers         string
	HTML            string
	Text            string
	RTF             string
	ConvIndex       []byte
	Delivered       time.Time
	Submitted       time.Time
	Created         time.Time
	ImportanceLevel *int
	MessageIDProp   string
	InReplyToProp   string
	ReferencesProp  string
	Attachments     []*MemoryAttachment
}

func present(v string) (string, bool) { return v, v != "" }

func presentTime(t time.Time) (time.Time, bool) {
	if t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func (m *MemoryMessage) Subject() (string, bool)            { return present(m.SubjectText) }
func (m *MemoryMessage) SenderName() (string, bool)         { return present(m.From) }
func (m *MemoryMessage) SenderEmail() (string, bool)        { return present(m.FromEmail) }
func (m *MemoryMessage) DisplayTo() (string, bool)          { return present(m.To) }
func (m *MemoryMessage) DisplayCc() (string, bool)          { return present(m.Cc) }
func (m *MemoryMessage) DisplayBcc() (string, bool)         { return present(m.Bcc) }
func (m *MemoryMessage) TransportHeaders() (string, bool)   { return present(m.Headers) }
func (m *MemoryMessage) HTMLBody() (string, bool)           { return present(m.HTML) }
func (m *MemoryMessage) TextBody() (string, bool)           { return present(m.Text) }
func (m *MemoryMessage) RTFBody() (string, bool)            { return present(m.RTF) }
func (m *MemoryMessage) DeliveryTime() (time.Time, bool)    { return presentTime(m.Delivered) }
func (m *MemoryMessage) SubmitTime() (time.Time, bool)      { return presentTime(m.Submitted) }
func (m *MemoryMessage) CreationTime() (time.Time, bool)    { return presentTime(m.Created) }
func (m *MemoryMessage) InternetMessageID() (string, bool)  { return present(m.MessageIDProp) }
func (m *MemoryMessage) InReplyToID() (string, bool)        { return present(m.InReplyToProp) }
func (m *MemoryMessage) InternetReferences() (string, bool) { return present(m.ReferencesProp) }

func (m *MemoryMessage) ConversationIndex() ([]byte, bool) {
	return m.ConvIndex, len(m.ConvIndex) > 0
}

func (m *MemoryMessage) Importance() (int, bool) {
	if m.ImportanceLevel == nil {
		return 0, false
	}
	return *m.ImportanceLevel, true
}

func (m *MemoryMessage) AttachmentCount() int { return len(m.Attachments) }

func (m *MemoryMessage) Attachment(i int) (Attachment, error) {
	if i < 0 || i >= len(m.Attachments) {
		return nil, fmt.Errorf("attachment index %d out of range", i)
	}
	return m.Attachments[i], nil
}

// MemoryAttachment is an in-memory Attachment. ReadErr makes ReadAll fail.
type MemoryAttachment struct {
	Filename string
	Data     []byte
	Mime     string
	CID      string
	ReadErr  error
}

func (a *MemoryAttachment) Name() (string, bool)      { return present(a.Filename) }
func (a *MemoryAttachment) MimeType() (string, bool)  { return present(a.Mime) }
func (a *MemoryAttachment) ContentID() (string, bool) { return present(a.CID) }

func (a *MemoryAttachment) Size() (int64, bool) {
	return int64(len(a.Data)), a.Data != nil
}

func (a *MemoryAttachment) ReadAll() ([]byte, error) {
	if a.ReadErr != nil {
		return nil, a.ReadErr
	}
	out := make([]byte, len(a.Data))
	copy(out, a.Data)
	return out, nil
}
