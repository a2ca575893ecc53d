// Package thread groups evidence records into conversations.
package thread

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"vericase/pkg/domain"
)

// Prefix starts every thread id.
const Prefix = "thread_"

// conversationRootLen is the hex length of the conversation index header
// (reserved byte, FILETIME and GUID) shared by every message of a thread.
const conversationRootLen = 22

var replyPrefixes = []string{"re:", "fwd:", "fw:", "aw:"}

// DeriveThreadID mints a thread id from a message id.
func DeriveThreadID(messageID string) string {
	sum := md5.Sum([]byte(messageID))
	return Prefix + hex.EncodeToString(sum[:])[:12]
}

// NormalizeSubject case-folds a subject and strips any run of leading
// reply and forward prefixes.
func NormalizeSubject(subject string) string {
	s := strings.Join(strings.Fields(cases.Fold().String(subject)), " ")
	for {
		stripped := false
		for _, p := range replyPrefixes {
			if strings.HasPrefix(s, p) {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}

// ConversationRoot returns the thread root of a hex conversation index:
// its first 22 hex characters, or all of it when shorter.
func ConversationRoot(indexHex string) (string, bool) {
	indexHex = strings.ToLower(strings.TrimSpace(indexHex))
	if indexHex == "" {
		return "", false
	}
	if len(indexHex) > conversationRootLen {
		indexHex = indexHex[:conversationRootLen]
	}
	return indexHex, true
}

// Resolve assigns thread ids to the records that have none. It does not
// modify records; the result maps record id to thread id and includes only
// records that were unthreaded on input. For a fixed input (same records in
// the same order) the result is always the same.
//
// First match wins, per record in input order:
//  1. in-reply-to names a known message: inherit its thread, minting one
//     for the parent first when it has none
//  2. the first reference naming a threaded message
//  3. conversation index root shared with another record
//  4. an already threaded record with the same normalized subject
//  5. a new thread from the record's own message id
//
// Records without any of these stay unthreaded.
func Resolve(records []domain.Evidence) map[string]string {
	r := newResolver(records)
	for i := range records {
		if r.threadOf(i) != "" {
			continue
		}
		if tid := r.resolve(i); tid != "" {
			r.assign(i, tid)
		}
	}
	return r.result
}

type resolver struct {
	records  []domain.Evidence
	current  []string
	subjects []string
	byMsgID  map[string]int
	roots    map[string]string
	result   map[string]string
}

func newResolver(records []domain.Evidence) *resolver {
	r := &resolver{
		records:  records,
		current:  make([]string, len(records)),
		subjects: make([]string, len(records)),
		byMsgID:  make(map[string]int, len(records)),
		roots:    make(map[string]string),
		result:   make(map[string]string),
	}
	for i, rec := range records {
		r.current[i] = rec.ThreadID
		subject := rec.Subject
		if strings.TrimSpace(subject) == "" {
			subject = rec.ThreadTopic
		}
		r.subjects[i] = NormalizeSubject(subject)
		if id := domain.TrimAngle(rec.MessageID); id != "" {
			r.byMsgID[id] = i
		}
	}
	for _, rec := range records {
		if rec.ThreadID == "" {
			continue
		}
		if root, ok := ConversationRoot(rec.ConversationIndexHex); ok {
			if _, seen := r.roots[root]; !seen {
				r.roots[root] = rec.ThreadID
			}
		}
	}
	return r
}

func (r *resolver) threadOf(i int) string { return r.current[i] }

func (r *resolver) assign(i int, tid string) {
	r.current[i] = tid
	r.result[r.records[i].ID] = tid
	if root, ok := ConversationRoot(r.records[i].ConversationIndexHex); ok {
		if _, seen := r.roots[root]; !seen {
			r.roots[root] = tid
		}
	}
}

func (r *resolver) resolve(i int) string {
	rec := r.records[i]

	if parentID := domain.TrimAngle(rec.InReplyTo); parentID != "" {
		if p, ok := r.byMsgID[parentID]; ok && p != i {
			if tid := r.threadOf(p); tid != "" {
				return tid
			}
			tid := DeriveThreadID(parentID)
			r.assign(p, tid)
			return tid
		}
	}

	for _, ref := range rec.ReferenceIDs() {
		if p, ok := r.byMsgID[ref]; ok && p != i {
			if tid := r.threadOf(p); tid != "" {
				return tid
			}
		}
	}

	if root, ok := ConversationRoot(rec.ConversationIndexHex); ok {
		if tid, seen := r.roots[root]; seen {
			return tid
		}
		return Prefix + root
	}

	if subject := r.subjects[i]; subject != "" {
		for j := range r.records {
			if j != i && r.current[j] != "" && r.subjects[j] == subject {
				return r.current[j]
			}
		}
	}

	if id := domain.TrimAngle(rec.MessageID); id != "" {
		return DeriveThreadID(id)
	}
	return ""
}
