package promo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"promo-service/internal/models"
	"promo-service/internal/util"
)

type fileDocument struct {
	Codes map[string]*models.PromoCode `json:"codes"`
	Stats models.PromoStats            `json:"stats"`
}

// FileStore persists every code in one JSON document: each write reads
// the whole file, mutates it in memory, and writes it back. The mutex
// serializes writers within this process only; two processes sharing the
// file can still clobber each other's writes. That makes this a
// single-process fallback for development and small deployments, not a
// multi-writer store.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create promo store directory: %w", err)
		}
	}

	store := &FileStore{path: path}

	// Validate the document up front so a corrupt file fails startup
	// instead of the first request.
	if _, err := store.load(); err != nil {
		return nil, err
	}

	util.Info("File promo store initialized", zap.String("path", path))
	return store, nil
}

func (s *FileStore) load() (*fileDocument, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileDocument{Codes: make(map[string]*models.PromoCode)}, nil
		}
		return nil, fmt.Errorf("failed to read promo store file: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse promo store file: %w", err)
	}
	if doc.Codes == nil {
		doc.Codes = make(map[string]*models.PromoCode)
	}
	return &doc, nil
}

func (s *FileStore) save(doc *fileDocument) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal promo store: %w", err)
	}
	if err := os.WriteFile(s.path, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write promo store file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, code string) (*models.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	record, ok := doc.Codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *FileStore) Put(ctx context.Context, code *models.PromoCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	if _, exists := doc.Codes[code.Code]; !exists {
		doc.Stats.TotalCodes++
	}
	copied := *code
	doc.Codes[code.Code] = &copied

	return s.save(doc)
}

func (s *FileStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, exists := doc.Codes[code]; !exists {
		return ErrCodeNotFound
	}
	delete(doc.Codes, code)
	doc.Stats.TotalCodes--

	return s.save(doc)
}

func (s *FileStore) List(ctx context.Context) ([]*models.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	records := make([]*models.PromoCode, 0, len(doc.Codes))
	for _, record := range doc.Codes {
		copied := *record
		records = append(records, &copied)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Code < records[j].Code
	})
	return records, nil
}

func (s *FileStore) Stats(ctx context.Context) (*models.PromoStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	stats := doc.Stats
	return &stats, nil
}

func (s *FileStore) IncrementUsage(ctx context.Context, code string) (*models.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	record, ok := doc.Codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	if record.UsageExhausted() {
		return nil, ErrUsageLimitReached
	}

	record.UsedCount++
	record.UpdatedAt = time.Now().UTC()
	doc.Stats.TotalUsages++

	if err := s.save(doc); err != nil {
		return nil, err
	}

	copied := *record
	return &copied, nil
}
