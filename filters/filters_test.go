package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"context"
	"errors"
	"testing"
	"time"

	"pdfopt/ir/raw"
)

func TestFlateDecodeZlib(t *testing.T) {
	enc, err := EncodeFlate([]byte("hello world"))
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), enc, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("raw deflate payload"))
	w.Close()

	out, err := NewFlateDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "raw deflate payload" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	var comp bytes.Buffer
	w, _ := flate.NewWriter(&comp, flate.BestSpeed)
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	w.Write([]byte{1, 10, 12, 20})
	w.Close()

	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Colors"}, raw.NumberInt(1))
	params.Set(raw.NameObj{Val: "BitsPerComponent"}, raw.NumberInt(8))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(3))

	out, err := NewFlateDecoder().Decode(context.Background(), comp.Bytes(), params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	w.Write([]byte("lzw data here"))
	w.Close()

	out, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "lzw data here" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []byte
	}{
		{"plain", "48656C6C6F>", []byte("Hello")},
		{"whitespace", "48 65 6C\n6C 6F>", []byte("Hello")},
		{"odd pads zero", "48656C6C6F7>", []byte("Hellop")},
	}
	dec := NewASCIIHexDecoder()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := dec.Decode(context.Background(), []byte(tc.in), nil)
			if err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if !bytes.Equal(out, tc.want) {
				t.Fatalf("got %q want %q", out, tc.want)
			}
		})
	}
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURDZ~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello" {
		t.Fatalf("got %q want Hello", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// Literal run of 3 bytes, then 'X' replicated 4 times, then EOD.
	in := []byte{2, 'a', 'b', 'c', 253, 'X', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "abcXXXX" {
		t.Fatalf("got %q want abcXXXX", out)
	}
}

func TestPipelineChain(t *testing.T) {
	inner, err := EncodeFlate([]byte("chained payload"))
	if err != nil {
		t.Fatal(err)
	}
	hexed := make([]byte, 0, len(inner)*2+1)
	const digits = "0123456789ABCDEF"
	for _, b := range inner {
		hexed = append(hexed, digits[b>>4], digits[b&0xF])
	}
	hexed = append(hexed, '>')

	p := NewDefaultPipeline(Limits{})
	out, err := p.Decode(context.Background(), hexed, []string{"ASCIIHexDecode", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("chain decode error: %v", err)
	}
	if string(out) != "chained payload" {
		t.Fatalf("got %q", out)
	}
}

func TestPipelineUnsupportedFilter(t *testing.T) {
	p := NewDefaultPipeline(Limits{})
	_, err := p.Decode(context.Background(), []byte("x"), []string{"JBIG2Decode"}, nil)
	if !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("expected ErrUnsupportedFilter, got %v", err)
	}
	if p.Supported([]string{"JBIG2Decode"}) {
		t.Fatal("JBIG2Decode should not be supported")
	}
	if !p.Supported([]string{"FlateDecode", "ASCII85Decode"}) {
		t.Fatal("known filters reported unsupported")
	}
}

func TestPipelineDecodeTimeLimit(t *testing.T) {
	p := NewDefaultPipeline(Limits{MaxDecodeTime: time.Nanosecond})
	_, err := p.Decode(context.Background(), []byte("48656C6C6F>"), []string{"ASCIIHexDecode"}, nil)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode after deadline, got %v", err)
	}
}

func TestPipelineSizeLimit(t *testing.T) {
	enc, err := EncodeFlate(bytes.Repeat([]byte("A"), 4096))
	if err != nil {
		t.Fatal(err)
	}
	p := NewDefaultPipeline(Limits{MaxDecompressedSize: 128})
	if _, err := p.Decode(context.Background(), enc, []string{"FlateDecode"}, nil); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for oversized output, got %v", err)
	}
}
