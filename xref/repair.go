package xref

import (
	"context"
	"errors"
	"io"

	"pdfopt/ir/raw"
	"pdfopt/scanner"
)

// Repair scans the entire file to reconstruct the xref table. It looks for
// "<num> <gen> obj" patterns and keeps the last trailer dictionary it sees.
// Later definitions of an object number win, matching incremental-update
// semantics.
func Repair(ctx context.Context, r io.ReaderAt) (Table, error) {
	s := scanner.New(r, scanner.Config{})
	entries := make(map[int]entry)
	var lastTrailer *raw.DictObj

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Skip bytes that do not tokenize during a repair scan.
			continue
		}

		if tok.Type == scanner.TokenNumber && tok.IsInt {
			objNum := int(tok.Int)

			tokGen, err := s.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				continue
			}
			if tokGen.Type != scanner.TokenNumber || !tokGen.IsInt {
				continue
			}
			gen := int(tokGen.Int)

			tokObj, err := s.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				continue
			}
			if tokObj.Type == scanner.TokenKeyword && tokObj.Str == "obj" {
				entries[objNum] = entry{offset: tok.Pos, gen: gen}
				continue
			}
			// tokGen could itself start an object header; rewind to it so
			// sequences like "1 2 0 obj" are not missed.
			if err := s.SeekTo(tokGen.Pos); err != nil {
				return nil, err
			}
			continue
		}

		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			tr := &tokenReader{s: s}
			if obj, err := parseObject(tr); err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					lastTrailer = dict
				}
			}
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}
	if lastTrailer == nil {
		lastTrailer = raw.Dict()
		lastTrailer.Set(raw.NameObj{Val: "Size"}, raw.NumberInt(int64(len(entries)+1)))
	}
	return &table{entries: entries, trailer: lastTrailer, kind: "repair"}, nil
}
