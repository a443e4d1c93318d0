package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harborview-partners/diligence-cli/internal/model"
	"github.com/harborview-partners/diligence-cli/pkg/docai"
)

// extractResult pairs a processed document with its position in the
// upload batch so output order is stable regardless of worker scheduling.
type extractResult struct {
	index int
	doc   model.ProcessedDocument
}

// ExtractPhase runs every classified document through the extraction
// service with a bounded worker pool. Documents whose extraction fails are
// dropped with a warning; the phase only errors when the context is
// canceled.
func ExtractPhase(
	ctx context.Context,
	docs []model.ClassifiedDocument,
	client docai.Client,
	workers int,
	timeout time.Duration,
	onProgress func(done, total int),
) ([]model.ProcessedDocument, []string, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(docs) {
		workers = len(docs)
	}

	log := zap.L()

	var (
		mu       sync.Mutex
		results  []extractResult
		warnings []string
		done     int
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, cd := range docs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			processed, err := extractOne(gCtx, client, cd, timeout)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				log.Warn("pipeline: document dropped",
					zap.String("document", cd.Upload.Name),
					zap.String("type", string(cd.Type)),
					zap.Error(err),
				)
				warnings = append(warnings, fmt.Sprintf("document %s dropped: extraction failed", cd.Upload.Name))
			} else {
				results = append(results, extractResult{index: i, doc: *processed})
			}
			if onProgress != nil {
				onProgress(done, len(docs))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, warnings, err
	}

	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })
	out := make([]model.ProcessedDocument, len(results))
	for i, r := range results {
		out[i] = r.doc
	}
	return out, warnings, nil
}

func extractOne(ctx context.Context, client docai.Client, cd model.ClassifiedDocument, timeout time.Duration) (*model.ProcessedDocument, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := client.Extract(callCtx, docai.ExtractRequest{
		Filename:     cd.Upload.Name,
		DocumentType: string(cd.Type),
		MediaType:    cd.Upload.MediaType,
		Content:      cd.Upload.Content,
	})
	if err != nil {
		return nil, &CollaboratorError{Service: "docai", Op: "extract", Err: err}
	}

	doc := model.ProcessedDocument{
		ID:              uuid.New().String(),
		Name:            cd.Upload.Name,
		Type:            cd.Type,
		SizeBytes:       cd.Upload.SizeBytes,
		ExtractedText:   resp.Text,
		ExtractedFields: resp.Fields,
		PageCount:       resp.PageCount,
		Confidence:      resp.Confidence,
		ProcessedAt:     time.Now().UTC(),
	}
	if err := validateExtraction(doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// validateExtraction rejects results the downstream reasoning stage
// cannot use.
func validateExtraction(doc model.ProcessedDocument) error {
	if strings.TrimSpace(doc.ExtractedText) == "" && len(doc.ExtractedFields) == 0 {
		return fmt.Errorf("extraction produced no text or fields for %s", doc.Name)
	}
	if doc.Confidence < 0 || doc.Confidence > 1 {
		return fmt.Errorf("extraction confidence %.2f out of range for %s", doc.Confidence, doc.Name)
	}
	return nil
}
