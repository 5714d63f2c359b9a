package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// JSONLDocumentProvider streams documents from a JSONL file, one document
// record per line. Blank lines are skipped; a malformed line is a
// provider error (fatal configuration territory, surfaced to the run).
type JSONLDocumentProvider struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// NewJSONLDocumentProvider opens the configured document file.
func NewJSONLDocumentProvider(cfg *config.Config) (interfaces.DocumentProvider, error) {
	return OpenJSONLDocuments(cfg.Documents.Path)
}

// OpenJSONLDocuments opens a JSONL document file by path.
func OpenJSONLDocuments(path string) (*JSONLDocumentProvider, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open documents %s: %w", path, err)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	return &JSONLDocumentProvider{file: file, scanner: scanner}, nil
}

// Next returns the next document, or io.EOF at end of stream.
func (p *JSONLDocumentProvider) Next(ctx context.Context) (*types.Document, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return nil, fmt.Errorf("scan documents: %w", err)
			}
			return nil, io.EOF
		}
		p.line++
		text := strings.TrimSpace(p.scanner.Text())
		if text == "" {
			continue
		}
		var doc types.Document
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("parse document at line %d: %w", p.line, err)
		}
		if doc.DocID == "" {
			return nil, fmt.Errorf("document at line %d has no doc_id", p.line)
		}
		return &doc, nil
	}
}

// Close releases the underlying file.
func (p *JSONLDocumentProvider) Close() error {
	return p.file.Close()
}
