package xref

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"pdfopt/ir/raw"
	"pdfopt/recovery"
)

// Table holds object locations resolved from one or more xref sections.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	// ObjStream reports the containing object stream and index for
	// compressed entries.
	ObjStream(objNum int) (streamNum, idx int, ok bool)
	Objects() []int
	Trailer() *raw.DictObj
	Type() string
}

type ResolverConfig struct {
	MaxSections int
	Recovery    recovery.Strategy
}

// Resolver locates and parses xref information in a PDF.
type Resolver struct {
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MaxSections <= 0 {
		cfg.MaxSections = 64
	}
	return &Resolver{cfg: cfg}
}

type entry struct {
	offset int64
	gen    int
	// compressed entries live inside an object stream
	inObjStream bool
	streamNum   int
	streamIdx   int
}

type table struct {
	entries map[int]entry
	trailer *raw.DictObj
	kind    string
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.inObjStream {
		return 0, 0, false
	}
	return e.offset, e.gen, true
}

func (t *table) ObjStream(objNum int) (int, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || !e.inObjStream {
		return 0, 0, false
	}
	return e.streamNum, e.streamIdx, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (t *table) Trailer() *raw.DictObj { return t.trailer }
func (t *table) Type() string          { return t.kind }

// Resolve finds the last startxref pointer and follows the /Prev chain,
// merging sections so the most recent entry for each object wins.
func (x *Resolver) Resolve(ctx context.Context, r io.ReaderAt) (Table, error) {
	data := readAll(r)

	startxref := bytes.LastIndex(data, []byte("startxref"))
	if startxref < 0 {
		return nil, errors.New("startxref not found")
	}
	rest := data[startxref+len("startxref"):]
	lines := bufio.NewScanner(bytes.NewReader(rest))
	var offset int64 = -1
	for lines.Scan() {
		text := strings.TrimSpace(lines.Text())
		if text == "" {
			continue
		}
		val, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse startxref: %w", err)
		}
		offset = val
		break
	}
	if offset < 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("xref offset out of range: %d", offset)
	}

	merged := &table{entries: make(map[int]entry), kind: "table"}
	seen := make(map[int64]bool)
	for n := 0; n < x.cfg.MaxSections; n++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if offset < 0 || offset >= int64(len(data)) || seen[offset] {
			break
		}
		seen[offset] = true

		var sec *table
		var err error
		if isClassicSection(data[offset:]) {
			sec, err = parseClassicSection(data[offset:])
		} else {
			sec, err = parseStreamSection(ctx, data, offset)
			if err == nil {
				merged.kind = "stream"
			}
		}
		if err != nil {
			return nil, err
		}
		for num, e := range sec.entries {
			if _, ok := merged.entries[num]; !ok {
				merged.entries[num] = e
			}
		}
		if merged.trailer == nil {
			merged.trailer = sec.trailer
		}
		offset = prevOffset(sec.trailer)
	}
	if len(merged.entries) == 0 {
		return nil, errors.New("empty xref")
	}
	return merged, nil
}

func isClassicSection(data []byte) bool {
	trimmed := bytes.TrimLeft(data, "\x00\t\n\f\r ")
	return bytes.HasPrefix(trimmed, []byte("xref"))
}

func prevOffset(trailer *raw.DictObj) int64 {
	if trailer == nil {
		return -1
	}
	if v, ok := trailer.Get(raw.NameObj{Val: "Prev"}); ok {
		if n, ok := v.(raw.NumberObj); ok {
			return n.Int()
		}
	}
	return -1
}

// parseClassicSection reads an "xref" table plus its trailer dictionary.
func parseClassicSection(data []byte) (*table, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "xref" {
		return nil, errors.New("xref keyword not found at offset")
	}

	t := &table{entries: make(map[int]entry), kind: "table"}
	trailerAt := int64(bytes.Index(data, []byte("trailer")))

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "trailer") {
			break
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid xref subsection header: %q", line)
		}
		startObj, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("parse xref start: %w", err)
		}
		count, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("parse xref count: %w", err)
		}
		for i := 0; i < count; i++ {
			if !sc.Scan() {
				return nil, errors.New("unexpected end of xref section")
			}
			entryLine := strings.TrimSpace(sc.Text())
			if entryLine == "" {
				i--
				continue
			}
			fields := strings.Fields(entryLine)
			if len(fields) < 3 {
				return nil, fmt.Errorf("invalid xref entry: %q", entryLine)
			}
			off, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse xref offset: %w", err)
			}
			gen, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("parse xref gen: %w", err)
			}
			if fields[2] != "n" {
				continue // free entry
			}
			t.entries[startObj+i] = entry{offset: off, gen: gen}
		}
	}

	if trailerAt >= 0 {
		dict, err := parseTrailerDict(data[trailerAt+int64(len("trailer")):])
		if err == nil {
			t.trailer = dict
		}
	}
	return t, nil
}

func readAll(r io.ReaderAt) []byte {
	if br, ok := r.(*bytes.Reader); ok {
		buf := make([]byte, br.Size())
		if _, err := br.ReadAt(buf, 0); err == nil || errors.Is(err, io.EOF) {
			return buf
		}
	}
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	for off := int64(0); ; off += chunk {
		tmp := make([]byte, chunk)
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil || int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
