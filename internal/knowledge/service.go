package knowledge

import (
	"context"
	"fmt"
	"log/slog"
)

// ChunkStore persists chunks so the index survives restarts.
type ChunkStore interface {
	// SaveChunks replaces every stored chunk of docID with chunks.
	SaveChunks(ctx context.Context, docID string, chunks []Chunk) error
	DeleteChunks(ctx context.Context, docID string) error
	LoadChunks(ctx context.Context) ([]Chunk, error)
}

// Service owns the index and its ingestion sources.
type Service struct {
	index   *Index
	store   ChunkStore
	crawler *Crawler
	log     *slog.Logger
}

// NewService wires an index to its persistence and crawler. store and
// crawler may be nil.
func NewService(index *Index, store ChunkStore, crawler *Crawler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{index: index, store: store, crawler: crawler, log: logger}
}

// Load restores persisted chunks into the index.
func (s *Service) Load(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	chunks, err := s.store.LoadChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}
	s.index.Restore(chunks)
	return len(chunks), nil
}

// Ingest indexes a document and persists its chunks.
func (s *Service) Ingest(ctx context.Context, doc Document) (int, error) {
	chunks := s.index.Ingest(doc.ID, doc.Text, doc.Metadata)
	if s.store != nil {
		if err := s.store.SaveChunks(ctx, doc.ID, chunks); err != nil {
			return len(chunks), fmt.Errorf("save chunks for %s: %w", doc.ID, err)
		}
	}
	s.log.Info("document ingested", "doc_id", doc.ID, "chunks", len(chunks), "source", doc.Metadata["source"])
	return len(chunks), nil
}

// IngestFile extracts and ingests an uploaded file. Unsupported extensions
// return ErrUnsupportedType.
func (s *Service) IngestFile(ctx context.Context, filename string, data []byte) (Document, int, error) {
	doc, err := DocumentFromFile(filename, data)
	if err != nil {
		return Document{}, 0, err
	}
	n, err := s.Ingest(ctx, doc)
	return doc, n, err
}

// CrawlSite crawls siteURL and ingests every page. It returns the number
// of pages and chunks ingested.
func (s *Service) CrawlSite(ctx context.Context, siteURL string) (int, int, error) {
	if s.crawler == nil {
		return 0, 0, fmt.Errorf("crawler not configured")
	}
	docs, err := s.crawler.Crawl(ctx, siteURL)
	if err != nil {
		return 0, 0, err
	}
	total := 0
	for _, d := range docs {
		n, err := s.Ingest(ctx, d)
		if err != nil {
			return len(docs), total, err
		}
		total += n
	}
	return len(docs), total, nil
}

// Remove drops a document from the index and the store.
func (s *Service) Remove(ctx context.Context, docID string) error {
	s.index.Remove(docID)
	if s.store == nil {
		return nil
	}
	return s.store.DeleteChunks(ctx, docID)
}

// Query returns up to k snippets for text.
func (s *Service) Query(_ context.Context, text string, k int) ([]string, error) {
	return s.index.Query(text, k), nil
}

// Stats reports index size.
func (s *Service) Stats() (chunks int, docs map[string]int) {
	return s.index.Len(), s.index.Docs()
}
