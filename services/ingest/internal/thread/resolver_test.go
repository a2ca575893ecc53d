package thread

import (
	"reflect"
	"strings"
	"testing"

	"vericase/pkg/domain"
)

func TestNormalizeSubject(t *testing.T) {
	cases := map[string]string{
		"RE: Site Visit":          "site visit",
		"Fwd: site visit":         "site visit",
		"re: RE: FW: Site  Visit": "site visit",
		"AW: Baustelle":           "baustelle",
		"Regarding the invoice":   "regarding the invoice",
		"RE:":                     "",
		"   ":                     "",
	}
	for in, want := range cases {
		if got := NormalizeSubject(in); got != want {
			t.Fatalf("NormalizeSubject(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeriveThreadID(t *testing.T) {
	id := DeriveThreadID("a@x")
	if !strings.HasPrefix(id, Prefix) || len(id) != len(Prefix)+12 {
		t.Fatalf("unexpected thread id %q", id)
	}
	if id != DeriveThreadID("a@x") || id == DeriveThreadID("b@x") {
		t.Fatalf("thread id must be a function of the message id")
	}
}

func TestResolveDirectReply(t *testing.T) {
	records := []domain.Evidence{
		{ID: "e1", MessageID: "a@x", Subject: "Programme"},
		{ID: "e2", MessageID: "b@x", InReplyTo: "<a@x>", Subject: "RE: Programme"},
	}
	got := Resolve(records)
	if got["e1"] == "" || got["e1"] != got["e2"] {
		t.Fatalf("reply must share the parent thread: %v", got)
	}
	if got["e1"] != DeriveThreadID("a@x") {
		t.Fatalf("expected thread minted from first message id, got %s", got["e1"])
	}
}

func TestResolveReplyBeforeParentMintsParentThread(t *testing.T) {
	records := []domain.Evidence{
		{ID: "reply", MessageID: "b@x", InReplyTo: "a@x"},
		{ID: "parent", MessageID: "a@x"},
	}
	got := Resolve(records)
	want := DeriveThreadID("a@x")
	if got["reply"] != want || got["parent"] != want {
		t.Fatalf("expected both on %s, got %v", want, got)
	}
}

func TestResolveInheritsThreadedParent(t *testing.T) {
	records := []domain.Evidence{
		{ID: "old", MessageID: "a@x", ThreadID: "thread_existing"},
		{ID: "new", MessageID: "b@x", InReplyTo: "a@x"},
	}
	got := Resolve(records)
	if _, ok := got["old"]; ok {
		t.Fatalf("already threaded records must not be reassigned")
	}
	if got["new"] != "thread_existing" {
		t.Fatalf("expected inherited thread, got %v", got)
	}
}

func TestResolveReferenceChain(t *testing.T) {
	records := []domain.Evidence{
		{ID: "root", MessageID: "root@x", ThreadID: "thread_root"},
		{ID: "late", MessageID: "c@x", References: "<missing@x> <root@x>\t<b@x>"},
	}
	got := Resolve(records)
	if got["late"] != "thread_root" {
		t.Fatalf("expected reference chain match, got %v", got)
	}
}

func TestResolveConversationIndexRoot(t *testing.T) {
	root := "01d5a2b3c4d5e6f7a8b9c0"
	records := []domain.Evidence{
		{ID: "e1", ConversationIndexHex: root + "0011aa", Subject: "Drawings"},
		{ID: "e2", ConversationIndexHex: strings.ToUpper(root) + "0022bb33", Subject: "Something else"},
		{ID: "e3", ConversationIndexHex: "ffffffffffffffffffffff00", MessageID: "z@x"},
	}
	got := Resolve(records)
	if got["e1"] != Prefix+root || got["e2"] != got["e1"] {
		t.Fatalf("expected shared conversation root thread, got %v", got)
	}
	if got["e3"] == got["e1"] {
		t.Fatalf("different root must not share a thread")
	}
}

func TestResolveShortConversationIndexSharesRoot(t *testing.T) {
	if root, ok := ConversationRoot(" 01D5A2 "); !ok || root != "01d5a2" {
		t.Fatalf("expected short index kept whole, got %q %v", root, ok)
	}
	if _, ok := ConversationRoot("  "); ok {
		t.Fatalf("expected blank index to have no root")
	}
	records := []domain.Evidence{
		{ID: "e1", ConversationIndexHex: "01d5a2", Subject: "Drawings"},
		{ID: "e2", ConversationIndexHex: "01D5A2", Subject: "Unrelated"},
	}
	got := Resolve(records)
	if got["e1"] != Prefix+"01d5a2" || got["e2"] != got["e1"] {
		t.Fatalf("expected truncated indices to share a thread, got %v", got)
	}
}

func TestResolveSubjectFallback(t *testing.T) {
	records := []domain.Evidence{
		{ID: "e1", MessageID: "a@x", Subject: "RE: Site Visit"},
		{ID: "e2", MessageID: "b@x", Subject: "Fwd: site visit"},
		{ID: "e3", MessageID: "c@x", Subject: "Invoice 42"},
	}
	got := Resolve(records)
	if got["e1"] == "" || got["e1"] != got["e2"] {
		t.Fatalf("normalized subjects must share a thread: %v", got)
	}
	if got["e3"] == got["e1"] {
		t.Fatalf("unrelated subject must start its own thread")
	}
}

func TestResolveLeavesBareRecordsUnthreaded(t *testing.T) {
	got := Resolve([]domain.Evidence{{ID: "e1"}, {ID: "e2", Subject: "RE:"}})
	if len(got) != 0 {
		t.Fatalf("expected no assignments, got %v", got)
	}
}

func TestResolveIsDeterministicAndRerunnable(t *testing.T) {
	records := []domain.Evidence{
		{ID: "e1", MessageID: "a@x", Subject: "Delay notice"},
		{ID: "e2", MessageID: "b@x", InReplyTo: "a@x"},
		{ID: "e3", MessageID: "c@x", References: "a@x b@x"},
		{ID: "e4", ConversationIndexHex: "0102030405060708090a0b0c"},
		{ID: "e5", MessageID: "d@x", Subject: "RE: delay notice"},
		{ID: "e6"},
	}
	first := Resolve(records)
	second := Resolve(records)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("assignments differ between runs:\n%v\n%v", first, second)
	}

	applied := make([]domain.Evidence, len(records))
	copy(applied, records)
	for i := range applied {
		if tid, ok := first[applied[i].ID]; ok {
			applied[i].ThreadID = tid
		}
	}
	if again := Resolve(applied); len(again) != 0 {
		t.Fatalf("rerun over threaded records must not reassign, got %v", again)
	}
	if records[0].ThreadID != "" {
		t.Fatalf("Resolve must not mutate its input")
	}
	if first["e5"] != first["e1"] || first["e3"] != first["e1"] {
		t.Fatalf("expected one conversation for e1/e2/e3/e5, got %v", first)
	}
}
