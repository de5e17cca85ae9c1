package filters

import (
	"bytes"
	"context"
	"io"

	"golang.org/x/image/ccitt"

	"pdfopt/ir/raw"
)

// ccittDecoder implements CCITTFaxDecode for Group 3 1-D and Group 4
// streams, returning packed 1-bit rows.
type ccittDecoder struct{}

func NewCCITTDecoder() Decoder    { return ccittDecoder{} }
func (ccittDecoder) Name() string { return "CCITTFaxDecode" }

func (ccittDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	columns := paramInt(params, "Columns", 1728)
	rows := paramInt(params, "Rows", 0)
	k := paramInt(params, "K", 0)

	sf := ccitt.Group3
	if k < 0 {
		sf = ccitt.Group4
	}
	opts := &ccitt.Options{
		Align:  paramBool(params, "EncodedByteAlign"),
		Invert: !paramBool(params, "BlackIs1"),
	}
	if rows == 0 {
		// Height unknown from params; a generous bound keeps the reader
		// from under-allocating. Truncated output is trimmed by EOF.
		rows = len(in) * 8 / max(columns, 1)
		if rows == 0 {
			rows = 1
		}
	}
	r := ccitt.NewReader(bytes.NewReader(in), ccitt.MSB, sf, columns, rows, opts)
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil && out.Len() == 0 {
		return nil, err
	}
	return out.Bytes(), nil
}

func paramBool(d raw.Dictionary, key string) bool {
	if d == nil {
		return false
	}
	if v, ok := d.Get(raw.NameObj{Val: key}); ok {
		if b, ok := v.(raw.BoolObj); ok {
			return b.V
		}
	}
	return false
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
