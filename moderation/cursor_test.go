package moderation

import "testing"

func TestLiveCursorKeepsTokenOnEmptyResponse(t *testing.T) {
	c := NewLiveCursor()
	if c.Token() != "" {
		t.Fatalf("fresh cursor token = %q, want empty", c.Token())
	}

	c.Advance("tok-1")
	if c.Token() != "tok-1" {
		t.Fatalf("token = %q, want tok-1", c.Token())
	}

	// a live fetch without a continuation token means "nothing newer yet"
	c.Advance("")
	if c.Token() != "tok-1" {
		t.Errorf("token after empty advance = %q, want tok-1 retained", c.Token())
	}
	if c.Exhausted() {
		t.Error("live cursor must never exhaust")
	}

	c.Advance("tok-2")
	if c.Token() != "tok-2" {
		t.Errorf("token = %q, want tok-2", c.Token())
	}
}

func TestFiniteCursorExhaustsOnEmptyResponse(t *testing.T) {
	c := NewFiniteCursor()
	c.Advance("page-2")
	if c.Exhausted() {
		t.Fatal("cursor exhausted while tokens keep coming")
	}
	c.Advance("")
	if !c.Exhausted() {
		t.Error("finite cursor must exhaust once the provider stops returning tokens")
	}
}
