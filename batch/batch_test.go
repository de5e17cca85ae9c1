package batch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"pdfopt/ir/raw"
	"pdfopt/optimize"
	"pdfopt/writer"
)

// writeTestPDF produces a small valid document on disk.
func writeTestPDF(t *testing.T, path string) {
	t.Helper()
	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), raw.Ref(2, 0))

	pages := raw.Dict()
	pages.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pages.Set(raw.NameLiteral("Kids"), raw.NewArray())
	pages.Set(raw.NameLiteral("Count"), raw.NumberInt(0))

	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))

	doc := &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{
			{Num: 1}: catalog,
			{Num: 2}: pages,
		},
		Trailer: trailer,
		Version: "1.4",
	}
	var buf bytes.Buffer
	if err := writer.New().Write(&buf, doc); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			dir := t.TempDir()
			outDir := filepath.Join(dir, "out")

			var inputs []string
			for i := 0; i < 5; i++ {
				p := filepath.Join(dir, fmt.Sprintf("doc%d.pdf", i))
				writeTestPDF(t, p)
				inputs = append(inputs, p)
			}
			bad := filepath.Join(dir, "broken.pdf")
			if err := os.WriteFile(bad, []byte("not a pdf"), 0o644); err != nil {
				t.Fatal(err)
			}
			inputs = append(inputs, bad)

			r, err := NewRunner(Config{
				Workers:   workers,
				OutputDir: outDir,
				Settings:  optimize.Settings{Quality: 80},
			})
			if err != nil {
				t.Fatal(err)
			}
			summary, err := r.Run(context.Background(), inputs)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if len(summary.Results) != 6 {
				t.Fatalf("results: %d", len(summary.Results))
			}
			if summary.Succeeded != 5 || summary.Failed != 1 {
				t.Fatalf("succeeded=%d failed=%d", summary.Succeeded, summary.Failed)
			}
			for _, res := range summary.Results {
				if res.Input == bad {
					if res.Err == nil {
						t.Fatal("broken input reported success")
					}
					continue
				}
				if res.Err != nil {
					t.Fatalf("%s: %v", res.Input, res.Err)
				}
				if _, err := os.Stat(res.Output); err != nil {
					t.Fatalf("missing output %s: %v", res.Output, err)
				}
			}
		})
	}
}

func TestRunResultsSortedByInput(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for _, name := range []string{"c.pdf", "a.pdf", "b.pdf"} {
		p := filepath.Join(dir, name)
		writeTestPDF(t, p)
		inputs = append(inputs, p)
	}
	r, err := NewRunner(Config{
		Workers:   3,
		OutputDir: filepath.Join(dir, "out"),
		Settings:  optimize.Settings{Quality: 80},
	})
	if err != nil {
		t.Fatal(err)
	}
	summary, err := r.Run(context.Background(), inputs)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(summary.Results); i++ {
		if summary.Results[i-1].Input > summary.Results[i].Input {
			t.Fatalf("results not sorted: %q before %q",
				summary.Results[i-1].Input, summary.Results[i].Input)
		}
	}
}

func TestRunRefusesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "doc.pdf")
	writeTestPDF(t, input)

	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Pre-existing file at the output path.
	existing := filepath.Join(outDir, "doc.pdf")
	if err := os.WriteFile(existing, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewRunner(Config{OutputDir: outDir, Settings: optimize.Settings{Quality: 80}})
	if err != nil {
		t.Fatal(err)
	}
	summary, err := r.Run(context.Background(), []string{input})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected failure, got %+v", summary.Results[0])
	}
	kept, err := os.ReadFile(existing)
	if err != nil || string(kept) != "keep me" {
		t.Fatalf("existing output was touched: %q %v", kept, err)
	}

	r2, err := NewRunner(Config{OutputDir: outDir, Overwrite: true, Settings: optimize.Settings{Quality: 80}})
	if err != nil {
		t.Fatal(err)
	}
	summary, err = r2.Run(context.Background(), []string{input})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("overwrite run failed: %+v", summary.Results[0])
	}
}

func TestOutputPath(t *testing.T) {
	withDir, err := NewRunner(Config{OutputDir: "/tmp/out", Settings: optimize.Settings{Quality: 80}})
	if err != nil {
		t.Fatal(err)
	}
	if got := withDir.OutputPath("/data/report.pdf"); got != filepath.Join("/tmp/out", "report.pdf") {
		t.Fatalf("with dir: %q", got)
	}
	inPlace, err := NewRunner(Config{Settings: optimize.Settings{Quality: 80}})
	if err != nil {
		t.Fatal(err)
	}
	if got := inPlace.OutputPath("/data/report.pdf"); got != "/data/report.optimized.pdf" {
		t.Fatalf("in place: %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}
	for _, tc := range cases {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCompressionRatio(t *testing.T) {
	if got := CompressionRatio(1000, 250); got != 75.0 {
		t.Fatalf("ratio: %v", got)
	}
	if got := CompressionRatio(0, 0); got != 0 {
		t.Fatalf("zero original: %v", got)
	}
	if got := CompressionRatio(100, 100); got != 0 {
		t.Fatalf("unchanged: %v", got)
	}
}
