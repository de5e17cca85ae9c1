package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"pdfopt/ir/raw"
	"pdfopt/observability"
	"pdfopt/recovery"
	"pdfopt/xref"
)

var (
	// ErrMalformedContainer is returned when neither normal parsing nor
	// the repair scan yields a usable document.
	ErrMalformedContainer = errors.New("malformed pdf container")

	// ErrEncryptedDocument is returned for documents with an /Encrypt
	// entry. Encrypted files are rejected, never silently passed through.
	ErrEncryptedDocument = errors.New("encrypted document not supported")
)

type Config struct {
	Recovery recovery.Strategy
	XRef     xref.ResolverConfig
	Limits   Limits
	Logger   observability.Logger
}

// DocumentParser turns a byte container into a raw.Document. It first
// follows the cross-reference chain; if that fails, or yields a table
// through which the catalog cannot be loaded, it falls back to a full
// repair scan of the file.
type DocumentParser struct {
	cfg Config
	log observability.Logger
}

func New(cfg Config) *DocumentParser {
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewStrictStrategy()
	}
	return &DocumentParser{cfg: cfg, log: observability.Default(cfg.Logger)}
}

// Parse reads the whole document. Offsets in the result are discarded; the
// returned Document owns fresh in-memory objects only.
func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	started := time.Now()

	version := detectHeaderVersion(r)

	doc, err := p.parseViaXref(ctx, r)
	if err != nil {
		p.log.Warn("xref parse failed, running repair scan", observability.Error("err", err))
		doc, err = p.parseViaRepair(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
		}
	}

	doc.Version = version
	if doc.Version == "" {
		doc.Version = "1.4"
	}

	if doc.Trailer != nil {
		if _, ok := doc.Trailer.Get(raw.NameObj{Val: "Encrypt"}); ok {
			return nil, ErrEncryptedDocument
		}
	}

	if err := p.ensureRoot(doc); err != nil {
		return nil, err
	}
	p.populateMetadata(doc)

	p.log.Debug("document parsed",
		observability.Int(observability.MetricObjectCount, len(doc.Objects)),
		observability.Int64(observability.MetricParseTime, time.Since(started).Milliseconds()))
	return doc, nil
}

func (p *DocumentParser) parseViaXref(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	xcfg := p.cfg.XRef
	if xcfg.Recovery == nil {
		xcfg.Recovery = p.cfg.Recovery
	}
	table, err := xref.NewResolver(xcfg).Resolve(ctx, r)
	if err != nil {
		return nil, err
	}
	return p.loadObjects(ctx, r, table)
}

func (p *DocumentParser) parseViaRepair(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	table, err := xref.Repair(ctx, r)
	if err != nil {
		return nil, err
	}
	return p.loadObjects(ctx, r, table)
}

func (p *DocumentParser) loadObjects(ctx context.Context, r io.ReaderAt, table xref.Table) (*raw.Document, error) {
	nums := table.Objects()
	if p.cfg.Limits.MaxObjects > 0 && len(nums) > p.cfg.Limits.MaxObjects {
		return nil, fmt.Errorf("object count %d exceeds limit %d", len(nums), p.cfg.Limits.MaxObjects)
	}

	loader := newObjectLoader(r, table, p.cfg.Limits, p.cfg.Recovery)
	doc := &raw.Document{Objects: make(map[raw.ObjectRef]raw.Object), Trailer: table.Trailer()}

	var loaded, failed int
	for _, num := range nums {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		_, gen, found := table.Lookup(num)
		if !found {
			gen = 0
		}
		ref := raw.ObjectRef{Num: num, Gen: gen}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			failed++
			action := p.cfg.Recovery.OnError(err, recovery.Location{
				ObjectNum: num,
				ObjectGen: gen,
				Component: "parser",
			})
			if action == recovery.ActionFail {
				return nil, fmt.Errorf("load object %d %d: %w", num, gen, err)
			}
			continue
		}
		// Object streams and xref streams are containers of the index
		// itself; their contents are loaded individually and the output
		// always carries a classic table, so the shells are dropped.
		if isStructuralStream(obj) {
			continue
		}
		doc.Objects[ref] = obj
		loaded++
	}
	if loaded == 0 {
		return nil, errors.New("no objects loaded")
	}
	if failed > 0 {
		p.log.Warn("some objects skipped during load",
			observability.Int("loaded", loaded),
			observability.Int("failed", failed))
	}
	return doc, nil
}

func isStructuralStream(obj raw.Object) bool {
	st, ok := obj.(*raw.StreamObj)
	if !ok || st.Dict == nil {
		return false
	}
	t, ok := st.Dict.Get(raw.NameObj{Val: "Type"})
	if !ok {
		return false
	}
	name, ok := t.(raw.NameObj)
	return ok && (name.Val == "ObjStm" || name.Val == "XRef")
}

// ensureRoot verifies a catalog is reachable. After a repair scan the
// trailer may lack /Root; in that case we look for the catalog object
// directly and synthesize the trailer entry.
func (p *DocumentParser) ensureRoot(doc *raw.Document) error {
	if doc.Trailer == nil {
		doc.Trailer = raw.Dict()
	}
	if ref, ok := doc.Root(); ok {
		if _, present := doc.Objects[ref]; present {
			return nil
		}
	}
	for ref, obj := range doc.Objects {
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		t, ok := dict.Get(raw.NameObj{Val: "Type"})
		if !ok {
			continue
		}
		if name, ok := t.(raw.NameObj); ok && name.Val == "Catalog" {
			doc.Trailer.Set(raw.NameObj{Val: "Root"}, raw.RefObj{R: ref})
			return nil
		}
	}
	return fmt.Errorf("%w: no document catalog", ErrMalformedContainer)
}

func (p *DocumentParser) populateMetadata(doc *raw.Document) {
	info := doc.InfoDict()
	if info == nil {
		return
	}
	get := func(key string) string {
		v, ok := info.Get(raw.NameObj{Val: key})
		if !ok {
			return ""
		}
		s, ok := doc.Resolve(v).(raw.StringObj)
		if !ok {
			return ""
		}
		return decodeTextString(s.Bytes)
	}
	doc.Metadata = raw.DocumentMetadata{
		Title:    get("Title"),
		Author:   get("Author"),
		Creator:  get("Creator"),
		Producer: get("Producer"),
		Subject:  get("Subject"),
		Keywords: splitKeywords(get("Keywords")),
	}
}

var headerRe = regexp.MustCompile(`%PDF-(\d+\.\d+)`)

// detectHeaderVersion reads the %PDF-x.y marker. Some producers put junk
// before the header, so the first 1KB is searched rather than offset 0 only.
func detectHeaderVersion(r io.ReaderAt) string {
	buf := make([]byte, 1024)
	n, err := r.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return ""
	}
	m := headerRe.FindSubmatch(buf[:n])
	if m == nil {
		return ""
	}
	return string(m[1])
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range bytes.Split([]byte(s), []byte(",")) {
		kw := string(bytes.TrimSpace(part))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
