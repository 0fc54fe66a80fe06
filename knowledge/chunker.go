package knowledge

import (
	"strings"
	"unicode"
)

// Chunking defaults.
const (
	DefaultSentencesPerChunk = 3
	DefaultSentenceOverlap   = 1
)

// ChunkOptions configures the sentence-window chunker.
type ChunkOptions struct {
	// SentencesPerChunk is the window size in sentences.
	SentencesPerChunk int

	// SentenceOverlap is how many trailing sentences each chunk shares
	// with the next. Must be smaller than SentencesPerChunk.
	SentenceOverlap int
}

// DefaultChunkOptions returns the default chunking policy.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		SentencesPerChunk: DefaultSentencesPerChunk,
		SentenceOverlap:   DefaultSentenceOverlap,
	}
}

// ChunkText splits text into overlapping sentence windows. The split is
// deterministic: the same input always yields the same chunk boundaries and
// chunk text, so re-ingestion is reproducible. Empty input yields nil.
func ChunkText(text string, opts ChunkOptions) []string {
	if opts.SentencesPerChunk <= 0 {
		opts = DefaultChunkOptions()
	}
	if opts.SentenceOverlap >= opts.SentencesPerChunk {
		opts.SentenceOverlap = opts.SentencesPerChunk - 1
	}
	if opts.SentenceOverlap < 0 {
		opts.SentenceOverlap = 0
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	step := opts.SentencesPerChunk - opts.SentenceOverlap
	var chunks []string
	for start := 0; start < len(sentences); start += step {
		end := start + opts.SentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[start:end], " "))
		if end == len(sentences) {
			break
		}
	}
	return chunks
}

// splitSentences splits on ., ! and ? followed by whitespace or end of
// input. Terminators stay attached to their sentence. Newlines without a
// terminator also split, so headings and list items become sentences.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			atEnd := i == len(runes)-1
			if atEnd || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()

	return sentences
}
