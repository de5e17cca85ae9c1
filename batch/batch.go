// Package batch drives the optimization pipeline over many files with a
// bounded worker pool. A single file's failure is recorded in its Result
// and never aborts the rest of the batch.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pdfopt/observability"
	"pdfopt/optimize"
	"pdfopt/parser"
	"pdfopt/recovery"
	"pdfopt/writer"
)

type Config struct {
	// Workers bounds how many files are in flight at once; <=0 means 1.
	Workers int
	// OutputDir receives the optimized files, named after their inputs.
	// Empty means each output lands next to its input with an
	// ".optimized.pdf" suffix.
	OutputDir string
	// Overwrite permits replacing an existing file at the output path.
	Overwrite bool
	Settings  optimize.Settings
	Logger    observability.Logger
}

// Result is the per-file outcome, immutable once created.
type Result struct {
	Input          string
	Output         string
	OriginalSize   int64
	OptimizedSize  int64
	ImagesTouched  int
	ImagesSkipped  int
	ProcessingTime time.Duration
	Err            error
}

func (r Result) Ratio() float64 { return CompressionRatio(r.OriginalSize, r.OptimizedSize) }

// Summary aggregates a finished batch. Results are sorted by input path so
// repeated runs report identically.
type Summary struct {
	Results       []Result
	Succeeded     int
	Failed        int
	TotalOriginal int64
	TotalOptimize int64
	TotalImages   int
}

type Runner struct {
	cfg Config
	log observability.Logger
}

func NewRunner(cfg Config) (*Runner, error) {
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Runner{cfg: cfg, log: observability.Default(cfg.Logger)}, nil
}

// Run processes every input, at most Workers concurrently. The returned
// error covers environment failures only (output dir creation); per-file
// failures live in their Result.
func (r *Runner) Run(ctx context.Context, inputs []string) (*Summary, error) {
	if r.cfg.OutputDir != "" {
		if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	var mu sync.Mutex
	results := make([]Result, 0, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, input := range inputs {
		input := input
		g.Go(func() error {
			res := r.processFile(gctx, input)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			// Failures are isolated; never propagate into the group.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Input < results[j].Input })
	s := &Summary{Results: results}
	for _, res := range results {
		if res.Err != nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.TotalOriginal += res.OriginalSize
		s.TotalOptimize += res.OptimizedSize
		s.TotalImages += res.ImagesTouched
	}
	return s, nil
}

// OutputPath computes where the optimized copy of input goes under the
// runner's configuration.
func (r *Runner) OutputPath(input string) string {
	if r.cfg.OutputDir != "" {
		return filepath.Join(r.cfg.OutputDir, filepath.Base(input))
	}
	ext := filepath.Ext(input)
	return input[:len(input)-len(ext)] + ".optimized" + ext
}

func (r *Runner) processFile(ctx context.Context, input string) Result {
	started := time.Now()
	res := Result{Input: input, Output: r.OutputPath(input)}

	fail := func(err error) Result {
		res.Err = err
		r.log.Warn("file failed",
			observability.String("input", input),
			observability.Error("err", err))
		res.ProcessingTime = time.Since(started)
		return res
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return fail(err)
	}
	res.OriginalSize = int64(len(data))

	if !r.cfg.Overwrite {
		if _, err := os.Stat(res.Output); err == nil {
			return fail(fmt.Errorf("output exists: %s", res.Output))
		}
	}

	p := parser.New(parser.Config{
		Recovery: recovery.NewLenientStrategy(),
		Logger:   r.cfg.Logger,
	})
	doc, err := p.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return fail(err)
	}

	opt, err := optimize.New(r.cfg.Settings)
	if err != nil {
		return fail(err)
	}
	stats, err := opt.Optimize(ctx, doc)
	if err != nil {
		return fail(err)
	}
	res.ImagesTouched = stats.ImagesOptimized
	res.ImagesSkipped = stats.ImagesSkipped

	out, err := writer.New().Bytes(doc)
	if err != nil {
		return fail(err)
	}
	if err := os.WriteFile(res.Output, out, 0o644); err != nil {
		return fail(err)
	}
	res.OptimizedSize = int64(len(out))

	r.log.Info("file optimized",
		observability.String("input", input),
		observability.Int64("original", res.OriginalSize),
		observability.Int64("optimized", res.OptimizedSize),
		observability.Int("images", res.ImagesTouched))
	res.ProcessingTime = time.Since(started)
	return res
}
