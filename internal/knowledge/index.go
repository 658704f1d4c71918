// Package knowledge holds the lexical knowledge base the chatbot answers from.
package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/zentiam/leadbot/internal/taxonomy"
)

// DefaultChunkSize is the target chunk length in characters.
const DefaultChunkSize = 500

const minKeywordLen = 3

// Chunk is an immutable span of ingested text.
type Chunk struct {
	ID       string            `json:"id" bson:"_id"`
	DocID    string            `json:"doc_id" bson:"doc_id"`
	Seq      int64             `json:"seq" bson:"seq"`
	Text     string            `json:"text" bson:"text"`
	Keywords []string          `json:"keywords" bson:"keywords"`
	Metadata map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

type entry struct {
	chunk    Chunk
	keywords map[string]struct{}
}

// Index scores chunks by keyword overlap with a query.
type Index struct {
	mu        sync.RWMutex
	entries   []entry
	seq       int64
	chunkSize int
	stopwords map[string]struct{}
}

// NewIndex returns an empty index. A chunkSize <= 0 uses DefaultChunkSize.
func NewIndex(tx *taxonomy.Taxonomy, chunkSize int) *Index {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Index{
		chunkSize: chunkSize,
		stopwords: taxonomy.Set(tx.Stopwords),
	}
}

// Ingest chunks text and stores it under docID, replacing any chunks
// previously stored for the same document.
func (x *Index) Ingest(docID, text string, metadata map[string]string) []Chunk {
	pieces := SplitChunks(text, x.chunkSize)

	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeLocked(docID)
	out := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		x.seq++
		c := Chunk{
			ID:       fmt.Sprintf("%s_chunk_%d", docID, i),
			DocID:    docID,
			Seq:      x.seq,
			Text:     piece,
			Keywords: x.Keywords(piece),
			Metadata: copyMeta(metadata),
		}
		x.entries = append(x.entries, entry{chunk: c, keywords: taxonomy.Set(c.Keywords)})
		out = append(out, c)
	}
	return out
}

// Restore loads previously persisted chunks in Seq order.
func (x *Index) Restore(chunks []Chunk) {
	sorted := append([]Chunk(nil), chunks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	x.mu.Lock()
	defer x.mu.Unlock()

	for _, c := range sorted {
		if len(c.Keywords) == 0 {
			c.Keywords = x.Keywords(c.Text)
		}
		x.entries = append(x.entries, entry{chunk: c, keywords: taxonomy.Set(c.Keywords)})
		if c.Seq > x.seq {
			x.seq = c.Seq
		}
	}
}

// Remove deletes every chunk of docID and reports how many were removed.
func (x *Index) Remove(docID string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.removeLocked(docID)
}

func (x *Index) removeLocked(docID string) int {
	kept := x.entries[:0]
	removed := 0
	for _, e := range x.entries {
		if e.chunk.DocID == docID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	x.entries = kept
	return removed
}

// Query returns the text of up to k chunks ranked by the share of query
// keywords they contain. Ties keep insertion order. Chunks with no
// overlapping keyword are never returned.
func (x *Index) Query(text string, k int) []string {
	if k <= 0 {
		return nil
	}
	query := x.Keywords(text)
	if len(query) == 0 {
		return nil
	}

	type scored struct {
		text  string
		score float64
	}

	x.mu.RLock()
	var hits []scored
	for _, e := range x.entries {
		overlap := 0
		for _, kw := range query {
			if _, ok := e.keywords[kw]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			hits = append(hits, scored{text: e.chunk.Text, score: float64(overlap) / float64(len(query))})
		}
	}
	x.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.text
	}
	return out
}

// Len returns the number of stored chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Docs returns the number of chunks per document.
func (x *Index) Docs() map[string]int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[string]int)
	for _, e := range x.entries {
		out[e.chunk.DocID]++
	}
	return out
}

// Keywords returns the deduplicated, lower-cased alphanumeric tokens of
// text longer than two characters, minus stop-words.
func (x *Index) Keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < minKeywordLen {
			continue
		}
		if _, stop := x.stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// SplitChunks groups whole words until each chunk reaches size characters.
func SplitChunks(text string, size int) []string {
	var chunks []string
	var current []string
	n := 0
	for _, word := range strings.Fields(text) {
		current = append(current, word)
		n += len(word) + 1
		if n >= size {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			n = 0
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

func copyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
