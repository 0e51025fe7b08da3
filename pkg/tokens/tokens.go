// Package tokens estimates how many model tokens a piece of text costs.
package tokens

import (
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// The BPE ranks ship embedded in the binary, so encodings load without
// network access.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// DefaultEncoding is the BPE used for context budgeting.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens and cuts text to a token limit.
type Counter interface {
	Count(text string) int
	Truncate(text string, limit int) string
}

// New loads the named encoding. An unknown name falls back to a whitespace
// word counter.
func New(encoding string, logger *slog.Logger) Counter {
	if logger == nil {
		logger = slog.Default()
	}
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn("tokenizer unavailable, counting words", "encoding", encoding, "err", err)
		return Words{}
	}
	return &BPE{enc: enc}
}

// BPE counts with a tiktoken encoding.
type BPE struct {
	enc *tiktoken.Tiktoken
}

func (b *BPE) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(b.enc.Encode(text, nil, nil))
}

func (b *BPE) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	ids := b.enc.Encode(text, nil, nil)
	if len(ids) <= limit {
		return text
	}
	return strings.ToValidUTF8(b.enc.Decode(ids[:limit]), "")
}

// Words approximates tokens by whitespace-separated words.
type Words struct{}

func (Words) Count(text string) int { return len(strings.Fields(text)) }

// Truncate keeps the first limit words, preserving the original spacing
// between them.
func (Words) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	inWord := false
	for i, r := range text {
		space := r == ' ' || r == '\n' || r == '\t' || r == '\r' || r == '\v' || r == '\f'
		if !space && !inWord {
			if n == limit {
				return strings.TrimRight(text[:i], " \n\t\r\v\f")
			}
			n++
		}
		inWord = !space
	}
	return text
}
