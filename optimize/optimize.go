package optimize

import (
	"context"
	"fmt"

	"pdfopt/filters"
	"pdfopt/ir/raw"
	"pdfopt/observability"
)

// Stats summarizes what one optimization pass changed.
type Stats struct {
	ImagesOptimized  int
	ImagesSkipped    int
	DuplicatesMerged int
}

type Optimizer struct {
	settings Settings
	pipeline *filters.Pipeline
	log      observability.Logger
}

func New(settings Settings) (*Optimizer, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{
		settings: settings,
		pipeline: filters.NewDefaultPipeline(filters.Limits{}),
		log:      observability.Default(settings.Logger),
	}, nil
}

// Optimize recompresses image streams in place and, when enabled, merges
// duplicate indirect objects. Per-image failures are absorbed and counted
// as skipped; only document-level problems return an error.
func (o *Optimizer) Optimize(ctx context.Context, doc *raw.Document) (*Stats, error) {
	stats := &Stats{}

	for _, cand := range Candidates(doc) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if !o.pipeline.Supported(cand.Filters) && !endsWithDCT(cand.Filters) {
			stats.ImagesSkipped++
			continue
		}
		rc, err := o.recompress(ctx, cand)
		if err != nil {
			o.log.Debug("image skipped",
				observability.Int("object", cand.Ref.Num),
				observability.Error("err", err))
			stats.ImagesSkipped++
			continue
		}
		// Strictly smaller or the original stays. A tie keeps the original
		// so repeated runs cannot oscillate.
		if int64(len(rc.data)) >= cand.Length {
			stats.ImagesSkipped++
			continue
		}
		applyRecompression(cand.Stream, rc)
		stats.ImagesOptimized++
	}

	if o.settings.DedupObjects {
		merged, err := o.dedupObjects(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("merge duplicate objects: %w", err)
		}
		stats.DuplicatesMerged = merged
	}

	o.log.Info("optimization pass complete",
		observability.Int(observability.MetricImageCount, stats.ImagesOptimized),
		observability.Int("skipped", stats.ImagesSkipped),
		observability.Int("merged", stats.DuplicatesMerged))
	return stats, nil
}

// Estimate performs the decode + trial encode for one candidate without
// touching the document, returning the byte size the image would have
// after recompression.
func (o *Optimizer) Estimate(ctx context.Context, cand ImageCandidate) (int64, error) {
	rc, err := o.recompress(ctx, cand)
	if err != nil {
		return 0, err
	}
	if int64(len(rc.data)) >= cand.Length {
		return cand.Length, nil
	}
	return int64(len(rc.data)), nil
}

func endsWithDCT(names []string) bool {
	return len(names) > 0 && names[len(names)-1] == "DCTDecode"
}
