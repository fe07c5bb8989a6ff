package splitter

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// TextSplitter wraps the langchaingo recursive character splitter used to
// break filing text into overlapping chunks for embedding.
type TextSplitter struct {
	splitter textsplitter.TextSplitter
}

// NewRecursiveCharacterTextSplitter creates a new recursive character text splitter
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return &TextSplitter{splitter: ts}
}

// SplitText splits text into chunks
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.splitter.SplitText(text)
}

// Locate returns the byte offset of each chunk within the original text.
// Chunks come back from the splitter as substrings of the source, and
// because of overlap a chunk can begin before the previous one ends, so the
// scan only advances one byte past each match. A chunk that cannot be found
// gets offset -1.
func Locate(text string, chunks []string) []int {
	offsets := make([]int, len(chunks))
	from := 0
	for i, chunk := range chunks {
		idx := strings.Index(text[from:], chunk)
		if idx < 0 {
			offsets[i] = -1
			continue
		}
		offsets[i] = from + idx
		from = offsets[i] + 1
	}
	return offsets
}
