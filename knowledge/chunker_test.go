package knowledge

import (
	"reflect"
	"testing"
)

func TestChunkText_Empty(t *testing.T) {
	if got := ChunkText("", DefaultChunkOptions()); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := ChunkText("   \n\n  ", DefaultChunkOptions()); got != nil {
		t.Errorf("expected nil for whitespace input, got %v", got)
	}
}

func TestChunkText_SingleSentenceWindows(t *testing.T) {
	text := "SurrealDB stores vectors. HNSW speeds search. Agents query memory."
	opts := ChunkOptions{SentencesPerChunk: 1, SentenceOverlap: 0}

	chunks := ChunkText(text, opts)
	want := []string{
		"SurrealDB stores vectors.",
		"HNSW speeds search.",
		"Agents query memory.",
	}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("got %v, want %v", chunks, want)
	}
}

func TestChunkText_Deterministic(t *testing.T) {
	text := "First sentence here. Second sentence follows! Third one asks? Fourth closes.\nA heading line\nFifth sentence."
	opts := DefaultChunkOptions()

	a := ChunkText(text, opts)
	b := ChunkText(text, opts)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("chunking not deterministic:\n%v\n%v", a, b)
	}
	if len(a) == 0 {
		t.Fatal("expected chunks")
	}
}

func TestChunkText_Overlap(t *testing.T) {
	text := "One. Two. Three. Four. Five."
	opts := ChunkOptions{SentencesPerChunk: 2, SentenceOverlap: 1}

	chunks := ChunkText(text, opts)
	want := []string{
		"One. Two.",
		"Two. Three.",
		"Three. Four.",
		"Four. Five.",
	}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("got %v, want %v", chunks, want)
	}
}

func TestSplitSentences_TerminatorsStayAttached(t *testing.T) {
	got := splitSentences("Is it done? Yes! Version 2.5 shipped.")
	want := []string{"Is it done?", "Yes!", "Version 2.5 shipped."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
