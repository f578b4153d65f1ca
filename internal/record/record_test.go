package record

import (
	"testing"
	"time"
)

func TestDig_NestedPath(t *testing.T) {
	m := map[string]any{
		"outputs": map[string]any{
			"messages": []any{"a", "b"},
		},
	}

	v, ok := Dig(m, "outputs", "messages")
	if !ok {
		t.Fatal("expected outputs.messages to be found")
	}
	if s, _ := v.([]any); len(s) != 2 {
		t.Errorf("expected 2 elements, got %v", v)
	}
}

func TestDig_MissingStep(t *testing.T) {
	m := map[string]any{"outputs": map[string]any{}}

	if _, ok := Dig(m, "outputs", "messages"); ok {
		t.Error("expected missing key to report absent")
	}
}

func TestDig_WrongTypeStep(t *testing.T) {
	m := map[string]any{"outputs": "not a map"}

	if _, ok := Dig(m, "outputs", "messages"); ok {
		t.Error("expected non-map step to report absent")
	}
}

func TestDigString_NonString(t *testing.T) {
	m := map[string]any{"content": 42}

	if _, ok := DigString(m, "content"); ok {
		t.Error("expected non-string leaf to report absent")
	}
}

func TestParseTimestamp_RFC3339(t *testing.T) {
	ts, ok := ParseTimestamp("2024-01-01T10:30:00Z")
	if !ok {
		t.Fatal("expected valid timestamp")
	}
	want := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("expected %v, got %v", want, ts)
	}
}

func TestParseTimestamp_WithOffset(t *testing.T) {
	ts, ok := ParseTimestamp("2024-01-01T12:00:00+02:00")
	if !ok {
		t.Fatal("expected valid timestamp")
	}
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("expected instant %v, got %v", want, ts)
	}
}

func TestParseTimestamp_Naive(t *testing.T) {
	ts, ok := ParseTimestamp("2024-01-01T10:30:00.123456")
	if !ok {
		t.Fatal("expected naive timestamp to parse")
	}
	if ts.Location() != time.UTC {
		t.Errorf("expected naive timestamp interpreted as UTC, got %v", ts.Location())
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, in := range []string{"", "not-a-time", "2024-13-99"} {
		if _, ok := ParseTimestamp(in); ok {
			t.Errorf("expected %q to be invalid", in)
		}
	}
}

func TestClone_DeepCopy(t *testing.T) {
	orig := Run{
		"thread_id": "u1-l1",
		"outputs": map[string]any{
			"messages": []any{map[string]any{"content": "hi"}},
		},
	}

	clone := orig.Clone()
	clone["thread_id"] = "changed"
	msgs, _ := DigSlice(clone, "outputs", "messages")
	msgs[0].(map[string]any)["content"] = "changed"

	if orig.ThreadID() != "u1-l1" {
		t.Error("clone mutation leaked into original thread_id")
	}
	origMsgs, _ := DigSlice(orig, "outputs", "messages")
	if c, _ := origMsgs[0].(map[string]any)["content"].(string); c != "hi" {
		t.Error("clone mutation leaked into original nested message")
	}
}
