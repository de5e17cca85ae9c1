package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"pdfopt/filters"
	"pdfopt/ir/raw"
	"pdfopt/scanner"
)

// parseStreamSection parses a cross-reference stream (PDF 1.5+): an
// indirect stream object whose decoded payload holds fixed-width entry
// rows described by /W, covering the subsections in /Index.
func parseStreamSection(ctx context.Context, data []byte, offset int64) (*table, error) {
	s := scanner.New(bytes.NewReader(data), scanner.Config{})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	tr := &tokenReader{s: s}

	// "<num> <gen> obj"
	for i := 0; i < 3; i++ {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		switch i {
		case 0, 1:
			if tok.Type != scanner.TokenNumber || !tok.IsInt {
				return nil, errors.New("xref stream: malformed object header")
			}
		case 2:
			if tok.Type != scanner.TokenKeyword || tok.Str != "obj" {
				return nil, errors.New("xref stream: expected obj keyword")
			}
		}
	}

	obj, err := parseObject(tr)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("xref stream: object is not a stream")
	}
	if length := dictInt(dict, "Length"); length > 0 {
		s.SetNextStreamLength(length)
	}
	tok, err := tr.next()
	if err != nil || tok.Type != scanner.TokenStream {
		return nil, errors.New("xref stream: missing stream payload")
	}

	payload := tok.Bytes
	names, params := filters.ExtractFilters(dict)
	if len(names) > 0 {
		decoded, err := filters.NewDefaultPipeline(filters.Limits{}).Decode(ctx, payload, names, params)
		if err != nil {
			return nil, fmt.Errorf("xref stream decode: %w", err)
		}
		payload = decoded
	}

	w, err := widths(dict)
	if err != nil {
		return nil, err
	}
	size := int(dictInt(dict, "Size"))
	index := indexPairs(dict, size)

	t := &table{entries: make(map[int]entry), kind: "stream", trailer: dict}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, errors.New("xref stream: zero-width rows")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowLen > len(payload) {
				return t, nil // truncated stream; keep what we have
			}
			f1 := fieldValue(payload[pos:pos+w[0]], 1) // type defaults to 1
			f2 := fieldValue(payload[pos+w[0]:pos+w[0]+w[1]], 0)
			f3 := fieldValue(payload[pos+w[0]+w[1]:pos+rowLen], 0)
			pos += rowLen

			num := start + j
			switch f1 {
			case 0:
				// free entry
			case 1:
				t.entries[num] = entry{offset: f2, gen: int(f3)}
			case 2:
				t.entries[num] = entry{inObjStream: true, streamNum: int(f2), streamIdx: int(f3)}
			}
		}
	}
	return t, nil
}

func widths(dict *raw.DictObj) ([3]int, error) {
	var w [3]int
	v, ok := dict.Get(raw.NameObj{Val: "W"})
	if !ok {
		return w, errors.New("xref stream: missing W")
	}
	arr, ok := v.(*raw.ArrayObj)
	if !ok || arr.Len() < 3 {
		return w, errors.New("xref stream: malformed W")
	}
	for i := 0; i < 3; i++ {
		n, ok := arr.Items[i].(raw.NumberObj)
		if !ok {
			return w, errors.New("xref stream: malformed W")
		}
		w[i] = int(n.Int())
	}
	return w, nil
}

func indexPairs(dict *raw.DictObj, size int) []int {
	if v, ok := dict.Get(raw.NameObj{Val: "Index"}); ok {
		if arr, ok := v.(*raw.ArrayObj); ok && arr.Len()%2 == 0 {
			out := make([]int, 0, arr.Len())
			for _, it := range arr.Items {
				n, ok := it.(raw.NumberObj)
				if !ok {
					return []int{0, size}
				}
				out = append(out, int(n.Int()))
			}
			return out
		}
	}
	return []int{0, size}
}

// fieldValue reads a big-endian integer; an empty field yields def.
func fieldValue(b []byte, def int64) int64 {
	if len(b) == 0 {
		return def
	}
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func dictInt(d *raw.DictObj, key string) int64 {
	if v, ok := d.Get(raw.NameObj{Val: key}); ok {
		if n, ok := v.(raw.NumberObj); ok {
			return n.Int()
		}
	}
	return 0
}
