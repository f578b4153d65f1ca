package thread

import "testing"

func TestParse_UserWithHyphens(t *testing.T) {
	user, lesson := Parse("abc-def-42")
	if user != "abc-def" || lesson != "42" {
		t.Errorf("expected (abc-def, 42), got (%s, %s)", user, lesson)
	}
}

func TestParse_Simple(t *testing.T) {
	user, lesson := Parse("u1-l1")
	if user != "u1" || lesson != "l1" {
		t.Errorf("expected (u1, l1), got (%s, %s)", user, lesson)
	}
}

func TestParse_NoHyphen(t *testing.T) {
	user, lesson := Parse("nohyphen")
	if user != "" || lesson != "" {
		t.Errorf("expected empty pair, got (%s, %s)", user, lesson)
	}
}

func TestParse_Empty(t *testing.T) {
	user, lesson := Parse("")
	if user != "" || lesson != "" {
		t.Errorf("expected empty pair, got (%s, %s)", user, lesson)
	}
}

func TestParse_EmptySide(t *testing.T) {
	for _, in := range []string{"-lesson", "user-", "-"} {
		user, lesson := Parse(in)
		if user != "" || lesson != "" {
			t.Errorf("Parse(%q): expected empty pair, got (%s, %s)", in, user, lesson)
		}
	}
}

func TestParse_WhitespaceTrimmed(t *testing.T) {
	user, lesson := Parse("u1 -l1")
	if user != "u1" || lesson != "l1" {
		t.Errorf("expected trimmed (u1, l1), got (%q, %q)", user, lesson)
	}
}
