package optimize

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"pdfopt/filters"
	"pdfopt/ir/raw"
)

func TestSettingsForPreset(t *testing.T) {
	cases := []struct {
		preset      string
		quality     int
		wantQuality int
		wantMaxDim  int
	}{
		{PresetWeb, 60, 60, 1920},
		{PresetPrint, 60, 85, 0},
		{PresetPrint, 90, 90, 0},
		{PresetArchive, 50, 50, 0},
		{PresetMax, 90, 70, 1024},
		{PresetMax, 40, 40, 1024},
	}
	for _, tc := range cases {
		s, err := SettingsForPreset(tc.preset, tc.quality)
		if err != nil {
			t.Fatalf("%s/%d: %v", tc.preset, tc.quality, err)
		}
		if s.Quality != tc.wantQuality || s.MaxDimension != tc.wantMaxDim {
			t.Fatalf("%s/%d: got quality=%d maxDim=%d, want %d/%d",
				tc.preset, tc.quality, s.Quality, s.MaxDimension, tc.wantQuality, tc.wantMaxDim)
		}
	}
}

func TestSettingsValidation(t *testing.T) {
	if _, err := SettingsForPreset(PresetWeb, 101); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("quality 101: %v", err)
	}
	if _, err := SettingsForPreset(PresetWeb, -1); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("quality -1: %v", err)
	}
	if _, err := SettingsForPreset("turbo", 50); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("unknown preset: %v", err)
	}
	if _, err := New(Settings{Quality: 200}); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("New with bad settings: %v", err)
	}
}

// noisyImage produces photographic-looking content that JPEG cannot store
// losslessly, so quality changes move the encoded size.
func noisyImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	seed := uint32(12345)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			seed = seed*1664525 + 1013904223
			img.Set(x, y, color.NRGBA{
				R: uint8(seed >> 24),
				G: uint8(seed >> 16),
				B: uint8(seed >> 8),
				A: 255,
			})
		}
	}
	return img
}

// jpegImageDoc builds a document whose single image stream is a JPEG
// encoded at the given quality.
func jpegImageDoc(t *testing.T, img image.Image, quality int) (*raw.Document, raw.ObjectRef) {
	t.Helper()
	data, err := filters.EncodeDCT(img, quality)
	if err != nil {
		t.Fatal(err)
	}

	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))

	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Image"))
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("DCTDecode"))
	dict.Set(raw.NameLiteral("Width"), raw.NumberInt(int64(img.Bounds().Dx())))
	dict.Set(raw.NameLiteral("Height"), raw.NumberInt(int64(img.Bounds().Dy())))
	dict.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(8))
	dict.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral("DeviceRGB"))
	st := raw.NewStream(dict, data)
	st.SetData(data)

	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))

	imgRef := raw.ObjectRef{Num: 2}
	doc := &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{
			{Num: 1}: catalog,
			imgRef:   st,
		},
		Trailer: trailer,
		Version: "1.4",
	}
	return doc, imgRef
}

func TestCandidates(t *testing.T) {
	doc, imgRef := jpegImageDoc(t, noisyImage(64, 64), 90)
	cands := Candidates(doc)
	if len(cands) != 1 {
		t.Fatalf("candidates: %d", len(cands))
	}
	c := cands[0]
	if c.Ref != imgRef || c.Width != 64 || c.Height != 64 || c.ColorSpace != "DeviceRGB" {
		t.Fatalf("candidate fields: %+v", c)
	}
	if len(c.Filters) != 1 || c.Filters[0] != "DCTDecode" {
		t.Fatalf("filters: %v", c.Filters)
	}
}

func TestOptimizeShrinksHighQualityJPEG(t *testing.T) {
	doc, imgRef := jpegImageDoc(t, noisyImage(128, 128), 95)
	original := doc.Objects[imgRef].(*raw.StreamObj).Length()

	opt, err := New(Settings{Quality: 40})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := opt.Optimize(context.Background(), doc)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if stats.ImagesOptimized != 1 {
		t.Fatalf("images optimized: %d (skipped %d)", stats.ImagesOptimized, stats.ImagesSkipped)
	}
	after := doc.Objects[imgRef].(*raw.StreamObj).Length()
	if after >= original {
		t.Fatalf("size did not shrink: %d -> %d", original, after)
	}
}

func TestOptimizeNeverGrows(t *testing.T) {
	for _, quality := range []int{0, 10, 50, 90, 100} {
		doc, imgRef := jpegImageDoc(t, noisyImage(48, 48), 30)
		original := doc.Objects[imgRef].(*raw.StreamObj).Length()

		opt, err := New(Settings{Quality: quality})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := opt.Optimize(context.Background(), doc); err != nil {
			t.Fatalf("quality %d: %v", quality, err)
		}
		after := doc.Objects[imgRef].(*raw.StreamObj).Length()
		if after > original {
			t.Fatalf("quality %d grew the image: %d -> %d", quality, original, after)
		}
	}
}

func TestOptimizeRepeatedPassesMonotonic(t *testing.T) {
	doc, imgRef := jpegImageDoc(t, noisyImage(64, 64), 95)
	opt, err := New(Settings{Quality: 50})
	if err != nil {
		t.Fatal(err)
	}
	prev := doc.Objects[imgRef].(*raw.StreamObj).Length()
	for pass := 0; pass < 3; pass++ {
		if _, err := opt.Optimize(context.Background(), doc); err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
		got := doc.Objects[imgRef].(*raw.StreamObj).Length()
		if got > prev {
			t.Fatalf("pass %d grew the image: %d -> %d", pass, prev, got)
		}
		prev = got
	}
}

func TestOptimizeDownsamples(t *testing.T) {
	doc, imgRef := jpegImageDoc(t, noisyImage(400, 200), 95)
	opt, err := New(Settings{Quality: 60, MaxDimension: 100})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := opt.Optimize(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ImagesOptimized != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	st := doc.Objects[imgRef].(*raw.StreamObj)
	w, _ := st.Dict.Get(raw.NameLiteral("Width"))
	h, _ := st.Dict.Get(raw.NameLiteral("Height"))
	if w.(raw.NumberObj).Int() != 100 || h.(raw.NumberObj).Int() != 50 {
		t.Fatalf("dimensions after downsample: %v x %v", w, h)
	}
}

func TestOptimizeSkipsIndexedColorSpace(t *testing.T) {
	doc, imgRef := jpegImageDoc(t, noisyImage(32, 32), 90)
	st := doc.Objects[imgRef].(*raw.StreamObj)
	// Uncompressed samples with an indexed palette: the color space is an
	// array, not a device name, so the image cannot be reinterpreted.
	st.SetData(bytes.Repeat([]byte{0x42}, 32*32))
	st.Dict.Delete("Filter")
	st.Dict.Set(raw.NameLiteral("ColorSpace"), raw.NewArray(
		raw.NameLiteral("Indexed"), raw.NameLiteral("DeviceRGB"),
		raw.NumberInt(255), raw.Str([]byte("palette"))))

	opt, err := New(Settings{Quality: 40})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := opt.Optimize(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ImagesOptimized != 0 || stats.ImagesSkipped != 1 {
		t.Fatalf("indexed image was not skipped: %+v", stats)
	}
}

func TestDedupMergesIdenticalObjects(t *testing.T) {
	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))

	makeFont := func() *raw.DictObj {
		d := raw.Dict()
		d.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
		d.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral("Helvetica"))
		return d
	}
	holder := raw.Dict()
	holder.Set(raw.NameLiteral("F1"), raw.Ref(2, 0))
	holder.Set(raw.NameLiteral("F2"), raw.Ref(3, 0))

	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))
	doc := &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{
			{Num: 1}: catalog,
			{Num: 2}: makeFont(),
			{Num: 3}: makeFont(),
			{Num: 4}: holder,
		},
		Trailer: trailer,
	}

	opt, err := New(Settings{Quality: 80, DedupObjects: true})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := opt.Optimize(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if stats.DuplicatesMerged != 1 {
		t.Fatalf("merged: %d", stats.DuplicatesMerged)
	}
	if _, exists := doc.Objects[raw.ObjectRef{Num: 3}]; exists {
		t.Fatal("duplicate object 3 still present")
	}
	f2, _ := holder.Get(raw.NameLiteral("F2"))
	if ref, ok := f2.(raw.RefObj); !ok || ref.R.Num != 2 {
		t.Fatalf("reference not rewritten: %+v", f2)
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("validate after dedup: %v", err)
	}
}

func TestEstimateDoesNotMutate(t *testing.T) {
	doc, imgRef := jpegImageDoc(t, noisyImage(64, 64), 95)
	before := doc.Objects[imgRef].(*raw.StreamObj).Length()

	opt, err := New(Settings{Quality: 40})
	if err != nil {
		t.Fatal(err)
	}
	cands := Candidates(doc)
	size, err := opt.Estimate(context.Background(), cands[0])
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if size > before {
		t.Fatalf("estimate above original: %d > %d", size, before)
	}
	if got := doc.Objects[imgRef].(*raw.StreamObj).Length(); got != before {
		t.Fatalf("estimate mutated the stream: %d -> %d", before, got)
	}
}
