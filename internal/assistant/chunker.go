package assistant

import (
	"strings"
	"unicode/utf8"

	"github.com/chirino/ufdr-service/internal/model"
)

const (
	DefaultChunkSize     = 3000
	DefaultChunkOverlap  = 300
	DefaultContextBudget = 200000
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter breaks text into chunks of at most ChunkSize characters, trying
// paragraph, line, word and finally character boundaries in that order.
// Consecutive chunks share up to ChunkOverlap characters.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
}

// Split returns the whitespace-trimmed, non-empty chunks of text.
func (s Splitter) Split(text string) []string {
	if s.ChunkSize <= 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		s.ChunkOverlap = 0
	}
	return s.split(text, defaultSeparators)
}

func (s Splitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var chunks, pending []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if runeLen(piece) < s.ChunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending)...)
			pending = nil
		}
		if len(rest) == 0 {
			if c := strings.TrimSpace(piece); c != "" {
				chunks = append(chunks, c)
			}
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending)...)
	}
	return chunks
}

// merge packs small pieces into chunks, carrying the tail of each chunk over
// into the next one as overlap.
func (s Splitter) merge(pieces []string) []string {
	var chunks, current []string
	total := 0
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.ChunkSize && len(current) > 0 {
			if c := strings.TrimSpace(strings.Join(current, "")); c != "" {
				chunks = append(chunks, c)
			}
			for total > s.ChunkOverlap || (total+n > s.ChunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if c := strings.TrimSpace(strings.Join(current, "")); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

// splitKeepSeparator splits text on sep, keeping sep at the start of every
// piece after the first. An empty sep splits into characters.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// Assembler renders matched artifacts into the prompt context.
type Assembler struct {
	Splitter Splitter
	// Budget is the maximum context length in bytes.
	Budget int
}

// Assemble renders each chunk of each artifact's text as "[type] chunk\n", in
// artifact order. It stops at the first chunk that would push the context past
// the budget, so the result never holds a partial chunk.
func (a Assembler) Assemble(artifacts []model.Artifact) string {
	budget := a.Budget
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	var b strings.Builder
	for _, art := range artifacts {
		text := art.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, chunk := range a.Splitter.Split(text) {
			piece := "[" + art.Type + "] " + chunk + "\n"
			if b.Len()+len(piece) > budget {
				return b.String()
			}
			b.WriteString(piece)
		}
	}
	return b.String()
}
