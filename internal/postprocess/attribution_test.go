package postprocess

import "testing"

func TestAppendAttribution(t *testing.T) {
	got := AppendAttribution("the answer is 42", 3, 2)
	want := "the answer is 42\n-# recalled 3 memories · 2 search results"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAppendAttribution_SingularForms(t *testing.T) {
	got := AppendAttribution("reply", 1, 1)
	want := "reply\n-# recalled 1 memory · 1 search result"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAppendAttribution_ZeroCountsAppendNothing(t *testing.T) {
	if got := AppendAttribution("plain reply", 0, 0); got != "plain reply" {
		t.Errorf("got %q", got)
	}
}

func TestAppendAttribution_OnlySearch(t *testing.T) {
	got := AppendAttribution("reply", 0, 4)
	want := "reply\n-# 4 search results"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAppendAttribution_ReplacesExistingFooter(t *testing.T) {
	once := AppendAttribution("reply", 2, 0)
	again := AppendAttribution(once, 5, 1)
	want := "reply\n-# recalled 5 memories · 1 search result"
	if again != want {
		t.Errorf("got %q, want %q", again, want)
	}
}

func TestStripAttribution_Idempotent(t *testing.T) {
	footered := AppendAttribution("the reply text", 2, 1)

	once := StripAttribution(footered)
	if once != "the reply text" {
		t.Errorf("strip = %q", once)
	}
	if twice := StripAttribution(once); twice != once {
		t.Errorf("not idempotent: %q vs %q", twice, once)
	}
}

func TestStripAttribution_NoFooterIsNoop(t *testing.T) {
	for _, input := range []string{
		"plain text",
		"multi\nline\ntext",
		"text with -# mid-line marker",
	} {
		if got := StripAttribution(input); got != input {
			t.Errorf("StripAttribution(%q) = %q, want unchanged", input, got)
		}
	}
}
