// Package ingest validates and persists batches of candidate annotations.
package ingest

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/pbaille/fieldmap/internal/domain"
	"github.com/pbaille/fieldmap/internal/store"
)

// ItemError reports a rejected batch item by its position in the batch
type ItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Result is the outcome of one bulk save
type Result struct {
	SavedCount int                 `json:"saved_count"`
	Saved      []domain.Annotation `json:"saved"`
	Errors     []ItemError         `json:"errors"`
}

// Pipeline runs bulk saves against a store
type Pipeline struct {
	store *store.Store
	log   zerolog.Logger
}

// New creates a Pipeline
func New(s *store.Store, log zerolog.Logger) *Pipeline {
	return &Pipeline{store: s, log: log}
}

// Run validates every item and appends the valid ones. All items are checked
// against the same snapshot and the batch is written back once. A rejected
// item never stops the others; only a storage failure aborts the call.
func (p *Pipeline) Run(ctx context.Context, items []json.RawMessage) (*Result, error) {
	res := &Result{
		Saved:  []domain.Annotation{},
		Errors: []ItemError{},
	}

	err := p.store.Update(ctx, func(snap *store.Snapshot) error {
		for i, raw := range items {
			c := domain.ParseCandidate(raw)
			if err := domain.Validate(c, snap); err != nil {
				res.Errors = append(res.Errors, ItemError{Index: i, Error: reason(err)})
				continue
			}
			saved := p.store.Stamp(domain.NewAnnotation(c))
			snap.Append(saved)
			res.Saved = append(res.Saved, saved)
		}
		return nil
	})
	if err != nil {
		p.log.Error().Err(err).Int("items", len(items)).Msg("bulk save failed")
		return nil, err
	}

	res.SavedCount = len(res.Saved)
	p.log.Info().
		Int("items", len(items)).
		Int("saved", res.SavedCount).
		Int("rejected", len(res.Errors)).
		Msg("bulk save")
	return res, nil
}

func reason(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return err.Error()
}
