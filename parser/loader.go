package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"pdfopt/filters"
	"pdfopt/ir/raw"
	"pdfopt/recovery"
	"pdfopt/scanner"
	"pdfopt/xref"
)

// objectLoader parses individual indirect objects located through an xref
// table, including objects packed inside object streams.
type objectLoader struct {
	reader   io.ReaderAt
	table    xref.Table
	limits   Limits
	recovery recovery.Strategy
	objstm   map[int]map[int]raw.Object
}

func newObjectLoader(r io.ReaderAt, table xref.Table, limits Limits, rec recovery.Strategy) *objectLoader {
	return &objectLoader{reader: r, table: table, limits: limits, recovery: rec}
}

func (o *objectLoader) scannerConfig() scanner.Config {
	return scanner.Config{
		Recovery:        o.recovery,
		MaxStringLength: o.limits.MaxStringLength,
		MaxArrayDepth:   o.limits.MaxArrayDepth,
		MaxDictDepth:    o.limits.MaxDictDepth,
		MaxStreamLength: o.limits.MaxStreamLength,
	}
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	offset, gen, found := o.table.Lookup(ref.Num)
	if !found {
		if osNum, idx, ok := o.table.ObjStream(ref.Num); ok {
			return o.loadFromObjectStream(ctx, ref, osNum, idx)
		}
		return nil, fmt.Errorf("object %d not found in xref", ref.Num)
	}
	return o.loadAtOffset(ref.Num, offset, gen)
}

// loadAtOffset builds a fresh scanner per load to avoid shared cursor
// complications.
func (o *objectLoader) loadAtOffset(objNum int, offset int64, gen int) (raw.Object, error) {
	s := scanner.New(o.reader, o.scannerConfig())
	return o.scanObject(s, objNum, offset, gen)
}

func (o *objectLoader) scanObject(s scanner.Scanner, objNum int, offset int64, gen int) (raw.Object, error) {
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	tr := newTokenReader(s)

	// Expect "<objNum> <gen> obj".
	tokNum, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tokNum.Type != scanner.TokenNumber || !tokNum.IsInt || int(tokNum.Int) != objNum {
		return nil, errors.New("object header number mismatch")
	}
	tokGen, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tokGen.Type != scanner.TokenNumber || !tokGen.IsInt || int(tokGen.Int) != gen {
		return nil, errors.New("object header generation mismatch")
	}
	tokObj, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tokObj.Type != scanner.TokenKeyword || tokObj.Str != "obj" {
		return nil, errors.New("expected obj keyword")
	}

	obj, err := parseObject(tr, o.recovery, objNum, gen)
	if err != nil {
		return nil, err
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		hint, err := o.resolveStreamLength(dict)
		if err != nil {
			return nil, err
		}
		if hint > 0 {
			tr.setStreamLengthHint(hint)
		} else {
			tr.clearStreamLengthHint()
		}
		if streamTok, err := tr.next(); err == nil && streamTok.Type == scanner.TokenStream {
			obj = raw.NewStream(dict, streamTok.Bytes)
		} else if err == nil {
			tr.unread(streamTok)
		}
	}
	return obj, nil
}

// loadFromObjectStream parses all objects packed into one object stream and
// caches them, since neighbors are usually requested right after.
func (o *objectLoader) loadFromObjectStream(ctx context.Context, ref raw.ObjectRef, objStreamNum, idx int) (raw.Object, error) {
	if o.objstm == nil {
		o.objstm = make(map[int]map[int]raw.Object)
	}
	if objs, ok := o.objstm[objStreamNum]; ok {
		if obj, ok := objs[ref.Num]; ok {
			return obj, nil
		}
		return nil, fmt.Errorf("object %d not found in object stream %d", ref.Num, objStreamNum)
	}
	offset, gen, ok := o.table.Lookup(objStreamNum)
	if !ok {
		return nil, errors.New("object stream entry missing")
	}
	streamObj, err := o.loadAtOffset(objStreamNum, offset, gen)
	if err != nil {
		return nil, err
	}
	st, ok := streamObj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("object stream is not a stream")
	}
	nObj := int(getIntFromDict(st.Dict, "N"))
	first := int(getIntFromDict(st.Dict, "First"))

	data := st.RawData()
	filterNames, filterParams := filters.ExtractFilters(st.Dict)
	if len(filterNames) > 0 {
		p := filters.NewDefaultPipeline(filters.Limits{
			MaxDecompressedSize: o.limits.MaxDecompressedSize,
			MaxDecodeTime:       o.limits.MaxDecodeTime,
		})
		decoded, err := p.Decode(ctx, data, filterNames, filterParams)
		if err != nil {
			return nil, err
		}
		data = decoded
	}
	if first < 0 || first > len(data) {
		return nil, errors.New("object stream First exceeds length")
	}

	// The header is nObj pairs of "objNum byteOffset".
	header := data[:first]
	body := data[first:]
	s := scanner.New(bytes.NewReader(header), o.scannerConfig())
	var pairs []int
	for len(pairs)/2 < nObj {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			continue
		}
		pairs = append(pairs, int(tok.Int))
	}

	objs := make(map[int]raw.Object)
	for i := 0; i < nObj; i++ {
		objNum := pairs[2*i]
		off := pairs[2*i+1]
		if off < 0 || off > len(body) {
			continue
		}
		sc := scanner.New(bytes.NewReader(body[off:]), o.scannerConfig())
		tr := newTokenReader(sc)
		obj, err := parseObject(tr, o.recovery, objNum, 0)
		if err != nil {
			return nil, err
		}
		objs[objNum] = obj
	}
	o.objstm[objStreamNum] = objs
	if obj, ok := objs[ref.Num]; ok {
		return obj, nil
	}
	return nil, fmt.Errorf("object %d not found in object stream %d", ref.Num, objStreamNum)
}

func (o *objectLoader) resolveStreamLength(dict *raw.DictObj) (int64, error) {
	if dict == nil {
		return 0, nil
	}
	val, ok := dict.Get(raw.NameLiteral("Length"))
	if !ok {
		return 0, nil
	}
	switch v := val.(type) {
	case raw.NumberObj:
		return v.Int(), nil
	case raw.RefObj:
		offset, gen, ok := o.table.Lookup(v.R.Num)
		if !ok {
			return 0, nil
		}
		obj, err := o.loadAtOffset(v.R.Num, offset, gen)
		if err != nil {
			return 0, err
		}
		if num, ok := obj.(raw.NumberObj); ok {
			return num.Int(), nil
		}
		return 0, fmt.Errorf("length reference %v is not numeric", v.R)
	default:
		return 0, nil
	}
}

func getIntFromDict(d *raw.DictObj, key string) int64 {
	if d == nil {
		return 0
	}
	if v, ok := d.Get(raw.NameObj{Val: key}); ok {
		if n, ok := v.(raw.NumberObj); ok {
			return n.Int()
		}
	}
	return 0
}

// tokenReader layers single-token lookahead and stream length hints over a
// scanner.

type streamLengthSetter interface{ SetNextStreamLength(int64) }

type tokenReader struct {
	s            interface{ Next() (scanner.Token, error) }
	buf          []scanner.Token
	lengthSetter streamLengthSetter
}

func newTokenReader(src interface{ Next() (scanner.Token, error) }) *tokenReader {
	tr := &tokenReader{s: src}
	if setter, ok := src.(streamLengthSetter); ok {
		tr.lengthSetter = setter
	}
	return tr
}

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

func (r *tokenReader) setStreamLengthHint(n int64) {
	if r.lengthSetter != nil && n > 0 {
		r.lengthSetter.SetNextStreamLength(n)
	}
}

func (r *tokenReader) clearStreamLengthHint() {
	if r.lengthSetter != nil {
		r.lengthSetter.SetNextStreamLength(-1)
	}
}

func parseObject(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes}, nil
	case scanner.TokenArray:
		return parseArray(tr, rec, objNum, gen)
	case scanner.TokenDict:
		return parseDict(tr, rec, objNum, gen)
	case scanner.TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	}
	return nil, fmt.Errorf("unexpected token %q", tok.Str)
}

func parseArray(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			break
		}
		tr.unread(tok)
		item, err := parseObject(tr, rec, objNum, gen)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
	return arr, nil
}

func parseDict(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			break
		}
		if tok.Type != scanner.TokenName {
			// A stray endobj usually means the closing ">>" is missing.
			if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" && rec != nil {
				err := errors.New("unexpected endobj in dict")
				action := rec.OnError(err, recovery.Location{ObjectNum: objNum, ObjectGen: gen, Component: "parser"})
				if action == recovery.ActionWarn || action == recovery.ActionFix {
					tr.unread(tok)
					break
				}
				return nil, err
			}
			return nil, errors.New("expected name in dict")
		}
		key := tok.Str
		val, err := parseObject(tr, rec, objNum, gen)
		if err != nil {
			return nil, err
		}
		d.Set(raw.NameObj{Val: key}, val)
	}
	return d, nil
}
