// Package container adapts mail-archive files to a typed folder/message/attachment tree.
//
// Attribute accessors return (value, ok). ok is false when the attribute is
// absent or unreadable; accessors never panic or return errors. Structural
// access (Message, SubFolder, Attachment, ReadAll) returns errors.
package container

import (
	"errors"
	"time"
)

// ErrCannotOpen is wrapped by every Opener failure.
var ErrCannotOpen = errors.New("container cannot be opened")

// ErrFolderTruncated is returned when a folder yields fewer items than it advertised.
var ErrFolderTruncated = errors.New("folder ended before advertised count")

// Opener opens a container file from the local filesystem.
type Opener interface {
	Open(path string) (Container, error)
}

// Container is an opened archive.
type Container interface {
	Root() (Folder, error)
	Close() error
}

// Folder is one node of the archive's folder hierarchy.
type Folder interface {
	Name() string
	MessageCount() int
	Message(i int) (Message, error)
	SubFolderCount() int
	SubFolder(i int) (Folder, error)
}

// Message is one mail item.
type Message interface {
	Subject() (string, bool)
	SenderName() (string, bool)
	SenderEmail() (string, bool)
	DisplayTo() (string, bool)
	DisplayCc() (string, bool)
	DisplayBcc() (string, bool)
	TransportHeaders() (string, bool)
	HTMLBody() (string, bool)
	TextBody() (string, bool)
	RTFBody() (string, bool)
	ConversationIndex() ([]byte, bool)
	DeliveryTime() (time.Time, bool)
	SubmitTime() (time.Time, bool)
	CreationTime() (time.Time, bool)
	Importance() (int, bool)
	InternetMessageID() (string, bool)
	InReplyToID() (string, bool)
	InternetReferences() (string, bool)
	AttachmentCount() int
	Attachment(i int) (Attachment, error)
}

// Attachment is one file carried by a message.
type Attachment interface {
	Name() (string, bool)
	Size() (int64, bool)
	MimeType() (string, bool)
	ContentID() (string, bool)
	ReadAll() ([]byte, error)
}

// CountMessages walks the tree and sums advertised message counts. Folders
// that fail to open are skipped.
func CountMessages(f Folder) int {
	if f == nil {
		return 0
	}
	total := f.MessageCount()
	for i := 0; i < f.SubFolderCount(); i++ {
		sub, err := f.SubFolder(i)
		if err != nil {
			continue
		}
		total += CountMessages(sub)
	}
	return total
}
