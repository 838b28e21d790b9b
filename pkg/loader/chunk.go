package loader

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// documentChunkTokens bounds the size of one document record so extraction
// prompts stay well inside the model context.
const documentChunkTokens = 1200

var chunkEncoder = sync.OnceValues(func() (*tiktoken.Tiktoken, error) {
	return tiktoken.GetEncoding("o200k_base")
})

// documentRecords turns one document into record texts. Short documents stay
// whole; long ones are split along paragraph boundaries into token-bounded
// chunks, with an oversized single paragraph split at sentence ends. The
// split is deterministic for a given text.
func documentRecords(text string) []string {
	enc, err := chunkEncoder()
	if err != nil {
		return []string{text}
	}
	count := func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}
	if count(text) <= documentChunkTokens {
		return []string{text}
	}

	pieces := []string{}
	for _, para := range splitParagraphs(text) {
		if count(para) <= documentChunkTokens {
			pieces = append(pieces, para)
			continue
		}
		pieces = append(pieces, packPieces(splitSentences(para), count)...)
	}

	return packPieces(pieces, count)
}

// packPieces greedily joins consecutive pieces while they fit the chunk
// budget. A single piece over budget is emitted alone rather than cut
// mid-sentence.
func packPieces(pieces []string, count func(string) int) []string {
	chunks := []string{}
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentTokens = 0
		}
	}

	for _, piece := range pieces {
		tokens := count(piece)
		if currentTokens > 0 && currentTokens+tokens > documentChunkTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(piece)
		currentTokens += tokens
	}
	flush()

	return chunks
}

func splitParagraphs(text string) []string {
	out := []string{}
	for _, para := range strings.Split(text, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			out = append(out, para)
		}
	}
	return out
}

// splitSentences breaks a paragraph at terminal punctuation followed by a
// space. Abbreviation-heavy text may split early; the chunker only needs
// boundaries, not grammatical precision.
func splitSentences(text string) []string {
	out := []string{}
	var current strings.Builder
	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])
		if text[i] == '.' || text[i] == '!' || text[i] == '?' {
			if i+1 >= len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				if s := strings.TrimSpace(current.String()); s != "" {
					out = append(out, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}
