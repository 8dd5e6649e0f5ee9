package ingestion

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

// Chunker splits text on sentence boundaries into pieces of at most size
// characters, repeating the last overlap sentences at the start of the next
// chunk. A single sentence longer than size becomes its own chunk.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

func (c *Chunker) Split(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	sentences, err := splitSentences(text)
	if err != nil {
		return nil, err
	}

	var (
		chunks  []string
		current []string
		length  int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))
		keep := c.overlap
		if keep >= len(current) {
			keep = len(current) - 1
		}
		current = append([]string(nil), current[len(current)-keep:]...)
		length = joinedLen(current)
	}

	for _, s := range sentences {
		added := len(s)
		if len(current) > 0 {
			added++
		}
		if length+added > c.size && len(current) > 0 {
			flush()
			// the overlap alone may still leave no room
			if len(current) > 0 && joinedLen(current)+1+len(s) > c.size {
				current = current[:0]
				length = 0
			}
			added = len(s)
			if len(current) > 0 {
				added++
			}
		}
		current = append(current, s)
		length += added
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks, nil
}

func splitSentences(text string) ([]string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(doc.Sentences()))
	for _, s := range doc.Sentences() {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func joinedLen(parts []string) int {
	if len(parts) == 0 {
		return 0
	}
	n := len(parts) - 1
	for _, p := range parts {
		n += len(p)
	}
	return n
}
