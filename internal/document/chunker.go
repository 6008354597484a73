package document

import (
	"strings"
	"unicode/utf8"

	"rag-service/internal/apperr"
)

const (
	// DefaultChunkSize is the target size for each chunk in characters.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of characters shared between
	// consecutive chunks.
	DefaultChunkOverlap = 200

	MinChunkSize    = 200
	MaxChunkSize    = 4000
	MaxChunkOverlap = 1000
)

// separators is the priority list for recursive splitting. The empty
// string is the terminal fallback: a hard cut every chunk-size characters.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk is a single window of cleaned document text with its offsets in
// the cleaned string.
type Chunk struct {
	Content     string
	StartOffset int
	EndOffset   int
	Index       int
}

// Chunker splits cleaned text into overlapping windows for embedding.
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
	cleaner      *Cleaner
}

// NewChunker creates a chunker, validating the size constraints.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return nil, apperr.BadRequest("chunk_size must be between 200 and 4000")
	}
	if chunkOverlap < 0 || chunkOverlap > MaxChunkOverlap {
		return nil, apperr.BadRequest("chunk_overlap must be between 0 and 1000")
	}
	if chunkOverlap >= chunkSize {
		return nil, apperr.BadRequest("chunk_overlap must be smaller than chunk_size")
	}
	return &Chunker{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		cleaner:      NewCleaner(),
	}, nil
}

// Cleaned exposes the normalized form of raw that offsets refer to.
func (c *Chunker) Cleaned(raw string) string {
	return c.cleaner.Clean(raw)
}

// ChunkText cleans the text and splits it into overlapping chunks with
// stable, strictly increasing offsets. Identical content appearing twice
// still receives distinct offsets because windows are cut positionally.
func (c *Chunker) ChunkText(raw string) []Chunk {
	cleaned := c.cleaner.Clean(raw)
	if cleaned == "" {
		return nil
	}
	if len(cleaned) <= c.ChunkSize {
		return []Chunk{{Content: cleaned, StartOffset: 0, EndOffset: len(cleaned), Index: 0}}
	}

	boundaries := c.splitBoundaries(cleaned, 0)

	var chunks []Chunk
	start := 0
	bi := 0
	for start < len(cleaned) {
		// Largest boundary still within the window.
		end := start
		for bi < len(boundaries) && boundaries[bi] <= start {
			bi++
		}
		j := bi
		for j < len(boundaries) && boundaries[j]-start <= c.ChunkSize {
			end = boundaries[j]
			j++
		}
		if end <= start {
			// No boundary fits; hard cut at a rune boundary. Leaf pieces
			// are at most chunk-size long, so this only guards degenerate
			// input.
			end = runeFloor(cleaned, start+c.ChunkSize)
			if end > len(cleaned) {
				end = len(cleaned)
			}
			if end <= start {
				end = start + c.ChunkSize
				if end > len(cleaned) {
					end = len(cleaned)
				}
			}
		}

		chunks = append(chunks, Chunk{
			Content:     cleaned[start:end],
			StartOffset: start,
			EndOffset:   end,
			Index:       len(chunks),
		})

		if end == len(cleaned) {
			break
		}
		next := runeFloor(cleaned, end-c.ChunkOverlap)
		if next <= start {
			_, size := utf8.DecodeRuneInString(cleaned[start:])
			next = start + size
		}
		start = next
		bi = 0
	}
	return chunks
}

// runeFloor backs a byte offset up to the nearest rune start so hard cuts
// never split a multi-byte rune.
func runeFloor(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// splitBoundaries recursively splits text and returns the sorted cut
// offsets (relative to base) of every leaf piece end, including len(text).
func (c *Chunker) splitBoundaries(text string, base int) []int {
	return c.split(text, base, 0)
}

func (c *Chunker) split(text string, base, sepIdx int) []int {
	sep := separators[sepIdx]

	var pieces []string
	if sep == "" {
		for len(text) > c.ChunkSize {
			cut := runeFloor(text, c.ChunkSize)
			if cut == 0 {
				cut = c.ChunkSize
			}
			pieces = append(pieces, text[:cut])
			text = text[cut:]
		}
		pieces = append(pieces, text)
	} else {
		pieces = strings.SplitAfter(text, sep)
	}

	var out []int
	offset := base
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if len(piece) > c.ChunkSize && sepIdx+1 < len(separators) {
			out = append(out, c.split(piece, offset, sepIdx+1)...)
		} else {
			out = append(out, offset+len(piece))
		}
		offset += len(piece)
	}
	return out
}
