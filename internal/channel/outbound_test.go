package channel

import (
	"strings"
	"testing"
)

func TestSplitTextRespectsLimit(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 10) + "\n" + strings.Repeat("b", 10) + "\n" + strings.Repeat("c", 25)
	chunks := SplitText(text, 12)
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d: %q", len(chunks), chunks)
	}
	for _, c := range chunks {
		if runeLen(c) > 12 {
			t.Fatalf("chunk exceeds limit: %q", c)
		}
	}
}

func TestSplitTextPacksLines(t *testing.T) {
	t.Parallel()
	chunks := SplitText("one\ntwo\nthree", 8)
	if len(chunks) != 2 || chunks[0] != "one\ntwo" || chunks[1] != "three" {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
}

func TestSplitTextBreaksAtSpaces(t *testing.T) {
	t.Parallel()
	chunks := SplitText("xin chào anh chị ạ", 10)
	want := []string{"xin chào", "anh chị ạ"}
	if len(chunks) != len(want) {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d: got %q want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplitTextShortAndEmpty(t *testing.T) {
	t.Parallel()
	if got := SplitText("  hi  ", 10); len(got) != 1 || got[0] != "hi" {
		t.Fatalf("unexpected chunks: %q", got)
	}
	if got := SplitText("   ", 10); got != nil {
		t.Fatalf("expected nil, got %q", got)
	}
}

func TestSplitTextSkipsBlankSegments(t *testing.T) {
	t.Parallel()
	text := "ok\n" + strings.Repeat(" ", 12) + strings.Repeat("x", 20)
	chunks := SplitText(text, 10)
	want := []string{"ok", strings.Repeat("x", 10), strings.Repeat("x", 10)}
	if len(chunks) != len(want) {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d: got %q want %q", i, chunks[i], want[i])
		}
	}
}

func TestPolicyChunksMultibyte(t *testing.T) {
	t.Parallel()
	policy := OutboundPolicy{TextLimit: 4}
	for _, c := range policy.Chunks("xin chào bạn") {
		if runeLen(c) > 4 {
			t.Fatalf("chunk exceeds rune limit: %q", c)
		}
	}
}

func TestPolicyLimitImages(t *testing.T) {
	t.Parallel()
	images := []string{"a", "b", "c"}
	if got := (OutboundPolicy{MaxImages: 1}).LimitImages(images); len(got) != 1 || got[0] != "a" {
		t.Fatalf("unexpected images: %v", got)
	}
	if got := (OutboundPolicy{}).LimitImages(images); len(got) != 3 {
		t.Fatalf("uncapped policy trimmed images: %v", got)
	}
}
