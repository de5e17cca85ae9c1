// Package analyzer produces a read-only structural report for a parsed
// document: object and image counts, a content-size breakdown, and a
// per-image savings estimate computed by a dry-run trial encode. It never
// mutates the document.
package analyzer

import (
	"context"

	"pdfopt/ir/raw"
	"pdfopt/observability"
	"pdfopt/optimize"
)

// ImageEstimate reports the dry-run outcome for one image stream. When the
// image cannot be decoded the estimate is marked not estimable and the
// analysis continues.
type ImageEstimate struct {
	Ref           raw.ObjectRef
	Width         int
	Height        int
	ColorSpace    string
	CurrentSize   int64
	EstimatedSize int64
	Estimable     bool
}

// ContentBreakdown aggregates stream payload bytes by kind.
type ContentBreakdown struct {
	ImagesSize int64
	FontsSize  int64
	TextSize   int64
	OtherSize  int64
	TotalSize  int64
}

type Analysis struct {
	ObjectCount int
	ImageCount  int
	FontCount   int
	TextObjects int
	Breakdown   ContentBreakdown
	Images      []ImageEstimate

	// EstimatedSavings is the byte total the configured settings would
	// shave off estimable images.
	EstimatedSavings int64
}

type Analyzer struct {
	settings optimize.Settings
	log      observability.Logger
}

func New(settings optimize.Settings) (*Analyzer, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{settings: settings, log: observability.Default(settings.Logger)}, nil
}

func (a *Analyzer) Analyze(ctx context.Context, doc *raw.Document) (*Analysis, error) {
	out := &Analysis{ObjectCount: len(doc.Objects)}

	for _, obj := range doc.Objects {
		switch v := obj.(type) {
		case *raw.StreamObj:
			size := v.Length()
			switch {
			case isImage(v.Dict):
				out.Breakdown.ImagesSize += size
			case typeName(v.Dict) == "Font" || isFontFile(v.Dict):
				out.FontCount++
				out.Breakdown.FontsSize += size
			case looksLikeText(v.Dict, v.RawData()):
				out.TextObjects++
				out.Breakdown.TextSize += size
			default:
				out.Breakdown.OtherSize += size
			}
		case *raw.DictObj:
			if typeName(v) == "Font" {
				out.FontCount++
			}
		}
	}

	opt, err := optimize.New(a.settings)
	if err != nil {
		return nil, err
	}
	for _, cand := range optimize.Candidates(doc) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out.ImageCount++
		est := ImageEstimate{
			Ref:         cand.Ref,
			Width:       cand.Width,
			Height:      cand.Height,
			ColorSpace:  cand.ColorSpace,
			CurrentSize: cand.Length,
		}
		if size, err := opt.Estimate(ctx, cand); err == nil {
			est.EstimatedSize = size
			est.Estimable = true
			out.EstimatedSavings += cand.Length - size
		} else {
			a.log.Debug("image not estimable",
				observability.Int("object", cand.Ref.Num),
				observability.Error("err", err))
		}
		out.Images = append(out.Images, est)
	}

	out.Breakdown.TotalSize = out.Breakdown.ImagesSize + out.Breakdown.FontsSize +
		out.Breakdown.TextSize + out.Breakdown.OtherSize
	return out, nil
}

func typeName(d *raw.DictObj) string {
	if d == nil {
		return ""
	}
	v, ok := d.Get(raw.NameObj{Val: "Type"})
	if !ok {
		return ""
	}
	if n, ok := v.(raw.NameObj); ok {
		return n.Val
	}
	return ""
}

func isImage(d *raw.DictObj) bool {
	if d == nil {
		return false
	}
	v, ok := d.Get(raw.NameObj{Val: "Subtype"})
	if !ok {
		return false
	}
	n, ok := v.(raw.NameObj)
	return ok && n.Val == "Image"
}

// isFontFile spots embedded font programs, which carry FontFile-style
// length keys rather than /Type /Font.
func isFontFile(d *raw.DictObj) bool {
	if d == nil {
		return false
	}
	if _, ok := d.Get(raw.NameObj{Val: "Length1"}); ok {
		return true
	}
	if v, ok := d.Get(raw.NameObj{Val: "Subtype"}); ok {
		if n, ok := v.(raw.NameObj); ok && n.Val == "OpenType" {
			return true
		}
	}
	return false
}

// looksLikeText treats a stream containing a BT text operator as page
// content. Filtered payloads are compressed bytes where any 2-byte pattern
// shows up by chance, so only undecoded streams qualify, and BT must stand
// alone as an operator token.
func looksLikeText(d *raw.DictObj, data []byte) bool {
	if d != nil {
		if _, ok := d.Get(raw.NameObj{Val: "Filter"}); ok {
			return false
		}
	}
	for i := 0; i+1 < len(data); i++ {
		if data[i] != 'B' || data[i+1] != 'T' {
			continue
		}
		if i > 0 && !isOperatorBoundary(data[i-1]) {
			continue
		}
		if i+2 < len(data) && !isOperatorBoundary(data[i+2]) {
			continue
		}
		return true
	}
	return false
}

func isOperatorBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}
