// Package importer turns external plain-text documents into notes. Sources
// (Google Drive, a watched inbox directory) have an explicit lifecycle and
// hand their text to an Importer.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/metrics"
	"github.com/starford/lattice/internal/models"
)

// DefaultTitle names imports whose source has no usable name.
const DefaultTitle = "Imported Note"

// ErrNotReady is returned by a source used before Init or after Teardown.
var ErrNotReady = errors.New("importer: source not ready")

// Source is an external document provider with an explicit lifecycle.
type Source interface {
	Name() string
	Init(ctx context.Context) error
	IsReady() bool
	Teardown() error
}

// Document is the plain text of one external file.
type Document struct {
	Title string
	Text  string
}

// Fetcher is a Source that can fetch a document by reference.
type Fetcher interface {
	Source
	Fetch(ctx context.Context, ref string) (Document, error)
}

// Store is the store operation imports go through.
type Store interface {
	ImportNote(title, plainText string) (models.Note, error)
}

// Importer creates notes from plain text.
type Importer struct {
	store  Store
	logger *slog.Logger
}

// New creates an Importer.
func New(store Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger}
}

// Import creates a note from title and plainText in the default space.
func (i *Importer) Import(title, plainText string) (models.Note, error) {
	return i.importAs("direct", title, plainText)
}

func (i *Importer) importAs(source, title, plainText string) (models.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	n, err := i.store.ImportNote(title, plainText)
	if err != nil {
		metrics.Imports.WithLabelValues(source, "error").Inc()
		i.logger.Warn("importer: import failed",
			slog.String("source", source), slog.String("title", title), slog.String("error", err.Error()))
		return models.Note{}, fmt.Errorf("importer: %s: %w", title, err)
	}
	metrics.Imports.WithLabelValues(source, "ok").Inc()
	i.logger.Info("importer: note imported",
		slog.String("source", source), slog.String("note_id", n.ID), slog.String("title", title))
	return n, nil
}

// ImportFrom fetches ref from src and imports it. Fetch failures are
// reported as apperr.ErrExternalService.
func (i *Importer) ImportFrom(ctx context.Context, src Fetcher, ref string) (models.Note, error) {
	if !src.IsReady() {
		metrics.Imports.WithLabelValues(src.Name(), "error").Inc()
		return models.Note{}, fmt.Errorf("importer: %s: %w: %w", src.Name(), ErrNotReady, apperr.ErrExternalService)
	}
	doc, err := src.Fetch(ctx, ref)
	if err != nil {
		metrics.Imports.WithLabelValues(src.Name(), "error").Inc()
		i.logger.Warn("importer: fetch failed",
			slog.String("source", src.Name()), slog.String("ref", ref), slog.String("error", err.Error()))
		if errors.Is(err, apperr.ErrExternalService) {
			return models.Note{}, fmt.Errorf("importer: fetch %s: %w", ref, err)
		}
		return models.Note{}, fmt.Errorf("importer: fetch %s: %v: %w", ref, err, apperr.ErrExternalService)
	}
	return i.importAs(src.Name(), doc.Title, doc.Text)
}

// TitleFromName strips directories and a short extension from a file name.
func TitleFromName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	if ext := filepath.Ext(base); len(ext) <= 6 && !strings.ContainsAny(ext, " \t") {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.TrimSpace(base)
}
