package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"vericase/services/ingest/internal/container"
)

func TestPrintTree(t *testing.T) {
	root := &container.MemoryFolder{
		Messages: []container.Message{&container.MemoryMessage{SubjectText: "Top"}},
		SubFolders: []*container.MemoryFolder{
			{
				FolderName: "Inbox",
				Messages: []container.Message{
					&container.MemoryMessage{SubjectText: "Kickoff", FromEmail: "pm@example.com", Delivered: time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)},
					&container.MemoryMessage{SubjectText: "Second"},
				},
				MessageErrs: map[int]error{1: errors.New("bad block")},
			},
		},
		SubFolderErrs: map[int]error{1: errors.New("corrupt index")},
	}
	root.SubFolders = append(root.SubFolders, &container.MemoryFolder{FolderName: "Broken"})

	var buf bytes.Buffer
	total := printTree(&buf, root, "", 0, 5)
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	out := buf.String()
	for _, want := range []string{
		"Root (1)",
		"  Inbox (2)",
		`2024-01-02 03:04  pm@example.com  "Kickoff"`,
		"! message 1: bad block",
		"! subfolder 1: corrupt index",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEnqueueAndStatusCommands(t *testing.T) {
	mr := miniredis.RunT(t)

	enqueue := newEnqueueCmd()
	var out bytes.Buffer
	enqueue.SetOut(&out)
	enqueue.SetArgs([]string{"--redis-addr", mr.Addr(), "--container", "c1", "--key", "uploads/c1.pst", "--case", "case-1"})
	if err := enqueue.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(out.String(), `"status": "queued"`) {
		t.Fatalf("unexpected enqueue output: %s", out.String())
	}

	keys := mr.Keys()
	var jobID string
	for _, k := range keys {
		if strings.HasPrefix(k, "job:") {
			jobID = k[strings.LastIndex(k, ":")+1:]
		}
	}
	if jobID == "" {
		t.Fatalf("job hash not written, keys=%v", keys)
	}

	status := newStatusCmd()
	out.Reset()
	status.SetOut(&out)
	status.SetArgs([]string{"--redis-addr", mr.Addr(), jobID})
	if err := status.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), `"containerId": "c1"`) {
		t.Fatalf("unexpected status output: %s", out.String())
	}

	missing := newStatusCmd()
	missing.SetOut(&out)
	missing.SetErr(&out)
	missing.SetArgs([]string{"--redis-addr", mr.Addr(), "nope"})
	if err := missing.ExecuteContext(context.Background()); err == nil {
		t.Fatalf("expected error for unknown job")
	}
}
