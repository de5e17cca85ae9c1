// Command pdfopt optimizes PDF files by recompressing embedded images.
//
//	pdfopt optimize -in input.pdf -out output.pdf [-quality 80] [-preset web]
//	pdfopt analyze -in input.pdf
//	pdfopt batch -out-dir optimized [-workers 4] file1.pdf file2.pdf ...
//	pdfopt serve
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"pdfopt/analyzer"
	"pdfopt/api"
	"pdfopt/batch"
	"pdfopt/observability"
	"pdfopt/optimize"
	"pdfopt/parser"
	"pdfopt/recovery"
	"pdfopt/writer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	var err error
	switch os.Args[1] {
	case "optimize":
		err = runOptimize(os.Args[2:], logger)
	case "analyze":
		err = runAnalyze(os.Args[2:], logger)
	case "batch":
		err = runBatch(os.Args[2:], logger)
	case "serve":
		err = api.Serve(api.ConfigFromEnv(logger))
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pdfopt <optimize|analyze|batch|serve> [flags]")
}

func runOptimize(args []string, logger observability.Logger) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	in := fs.String("in", "", "input PDF path")
	out := fs.String("out", "", "output PDF path")
	quality := fs.Int("quality", 80, "image quality (0-100)")
	preset := fs.String("preset", "web", "preset: web, print, archive, max")
	overwrite := fs.Bool("overwrite", false, "overwrite an existing output file")
	fs.Parse(args)
	if *in == "" || *out == "" {
		return fmt.Errorf("optimize requires -in and -out")
	}

	settings, err := optimize.SettingsForPreset(*preset, *quality)
	if err != nil {
		return err
	}
	settings.Logger = logger

	if !*overwrite {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("output exists: %s (use -overwrite)", *out)
		}
	}

	ctx := context.Background()
	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}

	doc, err := parser.New(parser.Config{
		Recovery: recovery.NewLenientStrategy(),
		Logger:   logger,
	}).Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return err
	}

	opt, err := optimize.New(settings)
	if err != nil {
		return err
	}
	stats, err := opt.Optimize(ctx, doc)
	if err != nil {
		return err
	}

	result, err := writer.New().Bytes(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, result, 0o644); err != nil {
		return err
	}

	fmt.Println("Optimization Results:")
	fmt.Println("===================")
	fmt.Printf("Original size: %s\n", batch.FormatBytes(int64(len(data))))
	fmt.Printf("Optimized size: %s\n", batch.FormatBytes(int64(len(result))))
	fmt.Printf("Space saved: %.1f%%\n", batch.CompressionRatio(int64(len(data)), int64(len(result))))
	fmt.Printf("Images optimized: %d\n", stats.ImagesOptimized)
	return nil
}

func runAnalyze(args []string, logger observability.Logger) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	in := fs.String("in", "", "input PDF path")
	quality := fs.Int("quality", 80, "quality assumed for savings estimates")
	preset := fs.String("preset", "web", "preset assumed for savings estimates")
	fs.Parse(args)
	if *in == "" {
		return fmt.Errorf("analyze requires -in")
	}

	settings, err := optimize.SettingsForPreset(*preset, *quality)
	if err != nil {
		return err
	}
	settings.Logger = logger

	ctx := context.Background()
	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	doc, err := parser.New(parser.Config{
		Recovery: recovery.NewLenientStrategy(),
		Logger:   logger,
	}).Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return err
	}

	an, err := analyzer.New(settings)
	if err != nil {
		return err
	}
	report, err := an.Analyze(ctx, doc)
	if err != nil {
		return err
	}

	fmt.Println("PDF Analysis Results:")
	fmt.Println("====================")
	fmt.Printf("Total objects: %d\n", report.ObjectCount)
	fmt.Printf("Images: %d\n", report.ImageCount)
	fmt.Printf("Fonts: %d\n", report.FontCount)
	fmt.Printf("Text objects: %d\n", report.TextObjects)
	fmt.Println()
	fmt.Println("Content Breakdown:")
	fmt.Printf("Images: %s\n", batch.FormatBytes(report.Breakdown.ImagesSize))
	fmt.Printf("Fonts: %s\n", batch.FormatBytes(report.Breakdown.FontsSize))
	fmt.Printf("Text: %s\n", batch.FormatBytes(report.Breakdown.TextSize))
	fmt.Printf("Other: %s\n", batch.FormatBytes(report.Breakdown.OtherSize))
	fmt.Printf("Total: %s\n", batch.FormatBytes(report.Breakdown.TotalSize))
	fmt.Println()
	fmt.Printf("Estimated savings: %s\n", batch.FormatBytes(report.EstimatedSavings))
	return nil
}

func runBatch(args []string, logger observability.Logger) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	outDir := fs.String("out-dir", "", "output directory (default: <input>.optimized.pdf next to each input)")
	workers := fs.Int("workers", 4, "number of files processed concurrently")
	quality := fs.Int("quality", 80, "image quality (0-100)")
	preset := fs.String("preset", "web", "preset: web, print, archive, max")
	overwrite := fs.Bool("overwrite", false, "overwrite existing output files")
	fs.Parse(args)
	inputs := fs.Args()
	if len(inputs) == 0 {
		return fmt.Errorf("batch requires at least one input file")
	}
	if *workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", optimize.ErrInvalidParameter)
	}

	settings, err := optimize.SettingsForPreset(*preset, *quality)
	if err != nil {
		return err
	}

	runner, err := batch.NewRunner(batch.Config{
		Workers:   *workers,
		OutputDir: *outDir,
		Overwrite: *overwrite,
		Settings:  settings,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Batch processing %d files with %d workers\n", len(inputs), *workers)
	summary, err := runner.Run(context.Background(), inputs)
	if err != nil {
		return err
	}

	for _, res := range summary.Results {
		if res.Err != nil {
			fmt.Printf("✗ %s: %v\n", res.Input, res.Err)
			continue
		}
		fmt.Printf("✓ %s: saved %s\n", res.Input,
			batch.FormatBytes(res.OriginalSize-res.OptimizedSize))
	}
	fmt.Println()
	fmt.Println("Batch Summary:")
	fmt.Printf("Successful: %d, Failed: %d\n", summary.Succeeded, summary.Failed)
	fmt.Printf("Total original size: %s\n", batch.FormatBytes(summary.TotalOriginal))
	fmt.Printf("Total optimized size: %s\n", batch.FormatBytes(summary.TotalOptimize))
	fmt.Printf("Overall savings: %.1f%%\n",
		batch.CompressionRatio(summary.TotalOriginal, summary.TotalOptimize))
	fmt.Printf("Total images optimized: %d\n", summary.TotalImages)
	return nil
}
