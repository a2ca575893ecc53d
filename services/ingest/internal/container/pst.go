package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/emersion/go-message/charset"
	pst "github.com/mooijtech/go-pst/v6/pkg"
	"golang.org/x/text/encoding"
	"google.golang.org/protobuf/proto"
)

var registerCharsets sync.Once

// PidTagConversationIndex
const propConversationIndex uint16 = 0x0071

// pstMagic is the signature at offset 0 of every PST/OST file.
var pstMagic = []byte("!BDN")

// PSTOpener opens Outlook PST files with go-pst.
type PSTOpener struct{}

// NewPSTOpener returns an Opener for PST files.
func NewPSTOpener() *PSTOpener {
	registerCharsets.Do(func() {
		pst.ExtendCharsets(func(name string, enc encoding.Encoding) {
			charset.RegisterEncoding(name, enc)
		})
	})
	return &PSTOpener{}
}

func (o *PSTOpener) Open(path string) (c Container, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotOpen, err)
	}
	magic := make([]byte, len(pstMagic))
	if _, err := io.ReadFull(f, magic); err != nil || !bytes.Equal(magic, pstMagic) {
		_ = f.Close()
		return nil, fmt.Errorf("%w: not a PST file", ErrCannotOpen)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %w", ErrCannotOpen, err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = f.Close()
			c, err = nil, fmt.Errorf("%w: parser panic: %v", ErrCannotOpen, r)
		}
	}()
	file, err := pst.New(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %w", ErrCannotOpen, err)
	}
	return &pstContainer{reader: f, file: file}, nil
}

type pstContainer struct {
	reader *os.File
	file   *pst.File
}

func (c *pstContainer) Root() (f Folder, err error) {
	defer func() {
		if r := recover(); r != nil {
			f, err = nil, fmt.Errorf("read root folder: panic: %v", r)
		}
	}()
	root, err := c.file.GetRootFolder()
	if err != nil {
		return nil, fmt.Errorf("read root folder: %w", err)
	}
	folder := asFolder(root)
	if folder == nil {
		return nil, errors.New("read root folder: unexpected folder type")
	}
	return newPSTFolder(folder), nil
}

func (c *pstContainer) Close() error {
	switch cleaner := any(c.file).(type) {
	case interface{ Cleanup() error }:
		_ = cleaner.Cleanup()
	case interface{ Cleanup() }:
		cleaner.Cleanup()
	}
	return c.reader.Close()
}

func asFolder(v any) *pst.Folder {
	switch f := v.(type) {
	case *pst.Folder:
		return f
	case pst.Folder:
		return &f
	}
	return nil
}

// pstFolder gives indexed access over go-pst's forward-only message iterator.
type pstFolder struct {
	folder *pst.Folder

	subLoaded bool
	subs      []*pst.Folder
	subErr    error

	next    func() (any, bool, error)
	cursor  int
	iterErr error
}

func newPSTFolder(f *pst.Folder) *pstFolder {
	return &pstFolder{folder: f}
}

func (f *pstFolder) Name() string {
	return f.folder.Name
}

func (f *pstFolder) MessageCount() int {
	n, ok := intField(f.folder, "MessageCount")
	if !ok || n < 0 {
		return 0
	}
	return int(n)
}

func (f *pstFolder) loadSubFolders() {
	if f.subLoaded {
		return
	}
	f.subLoaded = true
	if has, ok := boolField(f.folder, "HasSubFolders"); ok && !has {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			f.subErr = fmt.Errorf("read subfolders: panic: %v", r)
		}
	}()
	subs, err := f.folder.GetSubFolders()
	if err != nil {
		f.subErr = fmt.Errorf("read subfolders: %w", err)
		return
	}
	for _, s := range subs {
		if folder := asFolder(s); folder != nil {
			f.subs = append(f.subs, folder)
		}
	}
}

func (f *pstFolder) SubFolderCount() int {
	f.loadSubFolders()
	if f.subErr != nil && len(f.subs) == 0 {
		// surfaced by SubFolder(0) so the walker records it
		return 1
	}
	return len(f.subs)
}

func (f *pstFolder) SubFolder(i int) (Folder, error) {
	f.loadSubFolders()
	if f.subErr != nil && len(f.subs) == 0 {
		return nil, f.subErr
	}
	if i < 0 || i >= len(f.subs) {
		return nil, fmt.Errorf("subfolder index %d out of range", i)
	}
	return newPSTFolder(f.subs[i]), nil
}

func (f *pstFolder) resetIterator() error {
	it, err := f.folder.GetMessageIterator()
	if errors.Is(err, pst.ErrMessagesNotFound) {
		f.iterErr = ErrFolderTruncated
		return f.iterErr
	}
	if err != nil {
		f.iterErr = fmt.Errorf("open message iterator: %w", err)
		return f.iterErr
	}
	f.next = func() (any, bool, error) {
		if !it.Next() {
			return nil, false, it.Err()
		}
		return it.Value(), true, nil
	}
	f.cursor = 0
	f.iterErr = nil
	return nil
}

func (f *pstFolder) Message(i int) (m Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			// the iterator state is unknown after a panic
			f.next = nil
			m, err = nil, fmt.Errorf("read message %d: panic: %v", i, r)
		}
	}()
	if i < 0 || i >= f.MessageCount() {
		return nil, fmt.Errorf("message index %d out of range", i)
	}
	if f.next == nil || i < f.cursor {
		if err := f.resetIterator(); err != nil {
			return nil, err
		}
	}
	for f.cursor <= i {
		msg, ok, err := f.next()
		if err != nil {
			return nil, fmt.Errorf("read message %d: %w", i, err)
		}
		if !ok {
			return nil, fmt.Errorf("read message %d: %w", i, ErrFolderTruncated)
		}
		f.cursor++
		if f.cursor-1 == i {
			return newPSTMessage(msg), nil
		}
	}
	return nil, fmt.Errorf("read message %d: %w", i, ErrFolderTruncated)
}

type pstMessage struct {
	msg   *pst.Message
	props propertySet

	attLoaded bool
	atts      []*pstAttachment
	attErr    error
}

func newPSTMessage(v any) *pstMessage {
	var msg *pst.Message
	switch m := v.(type) {
	case *pst.Message:
		msg = m
	case pst.Message:
		msg = &m
	}
	pm := &pstMessage{msg: msg}
	if msg != nil {
		if props, ok := msg.Properties.(proto.Message); ok {
			pm.props = newPropertySet(props)
		}
	}
	return pm
}

func (m *pstMessage) Subject() (string, bool) {
	return m.props.String("subject", "normalized_subject", "conversation_topic")
}

func (m *pstMessage) SenderName() (string, bool) {
	return m.props.String("sender_name", "sent_representing_name")
}

func (m *pstMessage) SenderEmail() (string, bool) {
	return m.props.String("sender_email_address", "sent_representing_email_address", "sender_smtp_address")
}

func (m *pstMessage) DisplayTo() (string, bool)  { return m.props.String("display_to") }
func (m *pstMessage) DisplayCc() (string, bool)  { return m.props.String("display_cc") }
func (m *pstMessage) DisplayBcc() (string, bool) { return m.props.String("display_bcc") }

func (m *pstMessage) TransportHeaders() (string, bool) {
	return m.props.String("transport_message_headers")
}

func (m *pstMessage) HTMLBody() (string, bool) {
	return m.props.String("body_html", "html")
}

func (m *pstMessage) TextBody() (string, bool) {
	return m.props.String("body")
}

func (m *pstMessage) RTFBody() (body string, ok bool) {
	if m.msg == nil || m.msg.PropertyContext == nil {
		return "", false
	}
	defer func() {
		if recover() != nil {
			body, ok = "", false
		}
	}()
	body, err := m.msg.GetBodyRTF()
	if err != nil || body == "" {
		return "", false
	}
	return body, true
}

func (m *pstMessage) ConversationIndex() ([]byte, bool) {
	return m.rawProperty(propConversationIndex)
}

// rawProperty reads a property go-pst does not decode into its schema.
func (m *pstMessage) rawProperty(id uint16) (data []byte, ok bool) {
	if m.msg == nil || m.msg.PropertyContext == nil {
		return nil, false
	}
	defer func() {
		if recover() != nil {
			data, ok = nil, false
		}
	}()
	reader, err := m.msg.PropertyContext.GetPropertyReader(id, m.msg.LocalDescriptors)
	if err != nil {
		return nil, false
	}
	size := reader.Size()
	if size <= 0 {
		return nil, false
	}
	data = make([]byte, size)
	if _, err := reader.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, false
	}
	return data, true
}

func (m *pstMessage) DeliveryTime() (time.Time, bool) {
	return m.props.Time("message_delivery_time")
}

func (m *pstMessage) SubmitTime() (time.Time, bool) {
	return m.props.Time("client_submit_time")
}

func (m *pstMessage) CreationTime() (time.Time, bool) {
	return m.props.Time("creation_time")
}

func (m *pstMessage) Importance() (int, bool) {
	v, ok := m.props.Int("importance")
	return int(v), ok
}

func (m *pstMessage) InternetMessageID() (string, bool) {
	return m.props.String("internet_message_id")
}

func (m *pstMessage) InReplyToID() (string, bool) {
	return m.props.String("in_reply_to_id")
}

func (m *pstMessage) InternetReferences() (string, bool) {
	return m.props.String("internet_references")
}

func (m *pstMessage) loadAttachments() {
	if m.attLoaded {
		return
	}
	m.attLoaded = true
	if m.msg == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.attErr = fmt.Errorf("read attachments: panic: %v", r)
		}
	}()
	it, err := m.msg.GetAttachmentIterator()
	if errors.Is(err, pst.ErrAttachmentsNotFound) {
		return
	}
	if err != nil {
		m.attErr = fmt.Errorf("read attachments: %w", err)
		return
	}
	for it.Next() {
		m.atts = append(m.atts, newPSTAttachment(it.Value()))
	}
	if err := it.Err(); err != nil {
		m.attErr = fmt.Errorf("read attachments: %w", err)
	}
}

func (m *pstMessage) AttachmentCount() int {
	m.loadAttachments()
	if m.attErr != nil {
		// the failing slot reports attErr through Attachment
		return len(m.atts) + 1
	}
	return len(m.atts)
}

func (m *pstMessage) Attachment(i int) (Attachment, error) {
	m.loadAttachments()
	if i >= 0 && i < len(m.atts) {
		return m.atts[i], nil
	}
	if m.attErr != nil && i == len(m.atts) {
		return nil, m.attErr
	}
	return nil, fmt.Errorf("attachment index %d out of range", i)
}

type pstAttachment struct {
	raw   any
	props propertySet
}

func newPSTAttachment(v any) *pstAttachment {
	return &pstAttachment{raw: v, props: newPropertySet(embeddedProperties(v))}
}

func (a *pstAttachment) Name() (string, bool) {
	return a.props.String("attach_long_filename", "attach_filename", "display_name")
}

func (a *pstAttachment) Size() (int64, bool) {
	return a.props.Int("attach_size", "attach_data_size")
}

func (a *pstAttachment) MimeType() (string, bool) {
	return a.props.String("attach_mime_tag")
}

func (a *pstAttachment) ContentID() (string, bool) {
	return a.props.String("attach_content_id")
}

func (a *pstAttachment) ReadAll() (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("read attachment bytes: panic: %v", r)
		}
	}()
	w, ok := a.raw.(io.WriterTo)
	if !ok {
		return nil, errors.New("attachment payload not readable")
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("read attachment bytes: %w", err)
	}
	return buf.Bytes(), nil
}
