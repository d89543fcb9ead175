// Package evidence accumulates the audit trail of checklist evaluation: one
// reference per criterion evaluated, grouped by dimension, persisted as a
// flat file tree plus a manifest for downstream judges.
package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"repocheck/internal/metrics"
)

// SourceType categorizes how a piece of evidence was produced.
type SourceType string

const (
	SourceFileCheck   SourceType = "file_check"
	SourceCalculation SourceType = "calculation"
	SourceManual      SourceType = "manual"
)

// Reference is one audit entry describing what was read and observed during a
// single criterion evaluation.
type Reference struct {
	SourceType  SourceType `json:"source_type"`
	SourcePath  string     `json:"source_path"`
	Description string     `json:"description"`
	Confidence  float64    `json:"confidence"`
	RawData     string     `json:"raw_data"`
	Timestamp   time.Time  `json:"timestamp"`
}

// entryKey addresses one persisted evidence file.
type entryKey struct {
	dimension  string
	itemID     string
	sourceType SourceType
}

// Tracker accumulates references grouped by dimension and item.
type Tracker struct {
	entries map[entryKey][]Reference
	order   []entryKey
	log     *zap.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{entries: make(map[entryKey][]Reference), log: log}
}

// Add records one reference for an item.
func (t *Tracker) Add(dimension, itemID string, ref Reference) {
	key := entryKey{dimension: dimension, itemID: itemID, sourceType: ref.SourceType}
	if _, exists := t.entries[key]; !exists {
		t.order = append(t.order, key)
	}
	t.entries[key] = append(t.entries[key], ref)
}

// SummaryEntry is one line of the evidence summary consumed by the scoring
// mapper.
type SummaryEntry struct {
	ItemID        string  `json:"item_id"`
	Dimension     string  `json:"dimension"`
	SourceType    string  `json:"source_type"`
	Count         int     `json:"count"`
	MinConfidence float64 `json:"min_confidence"`
}

// Summary enumerates accumulated evidence in insertion order.
func (t *Tracker) Summary() []SummaryEntry {
	summary := make([]SummaryEntry, 0, len(t.order))
	for _, key := range t.order {
		refs := t.entries[key]
		min := 1.0
		for _, ref := range refs {
			if ref.Confidence < min {
				min = ref.Confidence
			}
		}
		summary = append(summary, SummaryEntry{
			ItemID:        key.itemID,
			Dimension:     key.dimension,
			SourceType:    string(key.sourceType),
			Count:         len(refs),
			MinConfidence: min,
		})
	}
	return summary
}

// Manifest enumerates all persisted evidence files.
type Manifest struct {
	GeneratedAt time.Time `json:"generated_at"`
	ItemCount   int       `json:"item_count"`
	Files       []string  `json:"files"`
}

// Persist writes the audit log under dir as
// evidence/<dimension>/<item_id>_<source_type>.json plus a manifest. The
// manifest timestamp comes from the caller, not the wall clock, so persisting
// the same evidence twice yields identical bytes.
func (t *Tracker) Persist(dir string, generatedAt time.Time) (*Manifest, error) {
	root := filepath.Join(dir, "evidence")

	manifest := &Manifest{
		GeneratedAt: generatedAt.UTC(),
		Files:       []string{},
	}

	items := make(map[string]bool)
	for _, key := range t.order {
		rel := filepath.Join(key.dimension, fmt.Sprintf("%s_%s.json", key.itemID, key.sourceType))
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create evidence directory: %w", err)
		}
		if err := metrics.WriteCanonicalFile(path, t.entries[key]); err != nil {
			return nil, fmt.Errorf("persist evidence %s: %w", rel, err)
		}
		manifest.Files = append(manifest.Files, filepath.ToSlash(rel))
		items[key.itemID] = true
	}

	sort.Strings(manifest.Files)
	manifest.ItemCount = len(items)

	if err := metrics.WriteCanonicalFile(filepath.Join(root, "manifest.json"), manifest); err != nil {
		return nil, fmt.Errorf("persist evidence manifest: %w", err)
	}

	t.log.Debug("evidence persisted",
		zap.Int("files", len(manifest.Files)), zap.Int("items", manifest.ItemCount))
	return manifest, nil
}
