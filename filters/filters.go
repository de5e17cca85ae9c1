package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"pdfopt/ir/raw"
)

// Sentinel errors for the codec taxonomy. Unknown filters are reported via
// ErrUnsupportedFilter so callers can pass the stream through untouched.
var (
	ErrUnsupportedFilter = errors.New("unsupported filter")
	ErrDecode            = errors.New("decode failed")
	ErrEncode            = errors.New("encode failed")
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary) ([]byte, error)
}

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with the provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// NewDefaultPipeline registers every filter the engine understands.
func NewDefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCIIHexDecoder(),
		NewASCII85Decoder(),
		NewRunLengthDecoder(),
		NewCCITTDecoder(),
	}, limits)
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Supported reports whether every filter in the chain has a decoder.
func (p *Pipeline) Supported(filterNames []string) bool {
	for _, name := range filterNames {
		if p.findDecoder(name) == nil {
			return false
		}
	}
	return true
}

// Decode applies each filter in chain order to reach the raw data. A
// MaxDecodeTime limit bounds the whole chain, not each stage.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	var deadline time.Time
	if p.limits.MaxDecodeTime > 0 {
		deadline = time.Now().Add(p.limits.MaxDecodeTime)
	}
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: decode time exceeds limit", ErrDecode)
		}
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(data)) > p.limits.MaxDecompressedSize {
			return nil, fmt.Errorf("%w: decompressed size exceeds limit", ErrDecode)
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
		}
		data = out
	}
	if p.limits.MaxDecompressedSize > 0 && int64(len(data)) > p.limits.MaxDecompressedSize {
		return nil, fmt.Errorf("%w: decompressed size exceeds limit", ErrDecode)
	}
	return data, nil
}

// flateDecoder implements FlateDecode. PDF Flate streams are zlib-wrapped;
// some producers emit raw deflate, so fall back when the header is absent.
type flateDecoder struct{}

func NewFlateDecoder() Decoder          { return flateDecoder{} }
func (flateDecoder) Name() string       { return "FlateDecode" }
func (flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var out bytes.Buffer
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		_, err = io.Copy(&out, zr)
		zr.Close()
	}
	if err != nil {
		out.Reset()
		fr := flate.NewReader(bytes.NewReader(in))
		defer fr.Close()
		if _, err := io.Copy(&out, fr); err != nil && out.Len() == 0 {
			return nil, err
		}
	}
	return applyPredictor(out.Bytes(), params)
}

// lzwDecoder implements LZWDecode with the MSB-first code order PDF uses.
type lzwDecoder struct{}

func NewLZWDecoder() Decoder    { return lzwDecoder{} }
func (lzwDecoder) Name() string { return "LZWDecode" }
func (lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil && out.Len() == 0 {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}

type asciiHexDecoder struct{}

func NewASCIIHexDecoder() Decoder    { return asciiHexDecoder{} }
func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var compact []byte
	for _, c := range in {
		if c == '>' {
			break
		}
		if isHexWhitespace(c) {
			continue
		}
		compact = append(compact, c)
	}
	// Odd length pads with 0.
	if len(compact)%2 == 1 {
		compact = append(compact, '0')
	}
	result := make([]byte, hex.DecodedLen(len(compact)))
	n, err := hex.Decode(result, compact)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}

func isHexWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

type ascii85Decoder struct{}

func NewASCII85Decoder() Decoder    { return ascii85Decoder{} }
func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func (ascii85Decoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	if bytes.HasPrefix(trimmed, []byte("<~")) {
		trimmed = trimmed[2:]
	}
	if idx := bytes.Index(trimmed, []byte("~>")); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	out := make([]byte, len(trimmed)*4/5+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// runLengthDecoder implements RunLengthDecode (PDF 7.4.5).
type runLengthDecoder struct{}

func NewRunLengthDecoder() Decoder    { return runLengthDecoder{} }
func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func (runLengthDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(in) {
		l := int(in[i])
		i++
		if l == 128 { // EOD
			break
		}
		if l < 128 {
			n := l + 1
			if i+n > len(in) {
				return nil, errors.New("runlength: literal run past end of data")
			}
			out.Write(in[i : i+n])
			i += n
			continue
		}
		if i >= len(in) {
			return nil, errors.New("runlength: replicated run past end of data")
		}
		n := 257 - l
		for j := 0; j < n; j++ {
			out.WriteByte(in[i])
		}
		i++
	}
	return out.Bytes(), nil
}
