// Package docs keeps an in-memory semantic index over local documents.
//
// Text is split into paragraph chunks and embedded with feature hashing, so
// no external embedding model is needed. Search ranks chunks by cosine
// similarity to the query.
package docs

import (
	"bytes"
	"cmp"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
)

const (
	embeddingDim     = 512
	defaultChunkSize = 800
)

// Match is an indexed chunk and its similarity to a query.
type Match struct {
	Filename string
	Text     string
	Score    float32
}

type entry struct {
	filename  string
	text      string
	embedding []float32
}

type Index struct {
	mu        sync.RWMutex
	entries   []entry
	chunkSize int
	logger    *slog.Logger
}

func NewIndex(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		chunkSize: defaultChunkSize,
		logger:    logger,
	}
}

// LoadDir indexes every .txt, .md and .pdf file directly under dir.
// A missing or empty directory is not an error.
func (idx *Index) LoadDir(dir string) error {
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		idx.logger.Info("docs directory not found, search will return no results", "dir", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("docs: read dir: %w", err)
	}

	before := idx.Len()
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		path := filepath.Join(dir, name)

		var text string
		switch strings.ToLower(filepath.Ext(name)) {
		case ".txt", ".md":
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("docs: read %q: %w", name, err)
			}
			text = string(data)
		case ".pdf":
			text, err = readPDF(path)
			if err != nil {
				return fmt.Errorf("docs: read pdf %q: %w", name, err)
			}
		default:
			continue
		}

		idx.Add(name, text)
	}

	idx.logger.Info("indexed documents", "dir", dir, "chunks", idx.Len()-before)
	return nil
}

// Add chunks and indexes text under filename.
func (idx *Index) Add(filename, text string) {
	chunks := splitChunks(text, idx.chunkSize)

	added := make([]entry, 0, len(chunks))
	for _, c := range chunks {
		added = append(added, entry{filename: filename, text: c, embedding: embed(c)})
	}

	idx.mu.Lock()
	idx.entries = append(idx.entries, added...)
	idx.mu.Unlock()
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Search returns at most topK chunks, best match first. Ties keep index order.
func (idx *Index) Search(query string, topK int) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.entries) == 0 || topK <= 0 {
		return nil
	}

	q := embed(query)
	matches := make([]Match, 0, len(idx.entries))
	for _, e := range idx.entries {
		matches = append(matches, Match{
			Filename: e.filename,
			Text:     e.text,
			Score:    cosineSimilarity(q, e.embedding),
		})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})

	return matches[:min(topK, len(matches))]
}

// embed converts text into a fixed-size unit vector using feature hashing.
func embed(text string) []float32 {
	vec := make([]float32, embeddingDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.TrimFunc(word, isPunct)
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%embeddingDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm = math.Sqrt(norm); norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func isPunct(r rune) bool {
	return strings.ContainsRune(".,;:!?\"'()[]{}", r)
}

// splitChunks groups paragraphs into chunks of at most maxLen bytes. A single
// paragraph longer than maxLen becomes its own chunk.
func splitChunks(text string, maxLen int) []string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")

	var (
		chunks  []string
		current strings.Builder
	)

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(p)+2 > maxLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
