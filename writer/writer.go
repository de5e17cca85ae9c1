package writer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"pdfopt/ir/raw"
)

// Writer serializes a raw.Document into a valid container: header, objects
// in ascending number order, a classic cross-reference table, and a trailer
// preserving the original Root/Info references. Re-parsing the output must
// reproduce the same object graph modulo stream payloads.
type Writer struct{}

func New() *Writer { return &Writer{} }

// Bytes serializes doc into a fresh buffer.
func (w *Writer) Bytes(doc *raw.Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Write(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *Writer) Write(out io.Writer, doc *raw.Document) error {
	if doc == nil || len(doc.Objects) == 0 {
		return errors.New("empty document")
	}
	if _, ok := doc.Root(); !ok {
		return errors.New("document has no root")
	}

	var buf bytes.Buffer
	version := doc.Version
	if version == "" {
		version = "1.4"
	}
	fmt.Fprintf(&buf, "%%PDF-%s\n", version)
	// Binary comment so transfer tools treat the file as binary.
	buf.WriteString("%\xE2\xE3\xCF\xD3\n")

	ordered := make([]raw.ObjectRef, 0, len(doc.Objects))
	for ref := range doc.Objects {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Num != ordered[j].Num {
			return ordered[i].Num < ordered[j].Num
		}
		return ordered[i].Gen < ordered[j].Gen
	})

	offsets := make(map[int]entry, len(ordered))
	for _, ref := range ordered {
		obj := doc.Objects[ref]
		if st, ok := obj.(*raw.StreamObj); ok {
			syncStreamLength(st)
		}
		offsets[ref.Num] = entry{offset: int64(buf.Len()), gen: ref.Gen}
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
		serializeObject(&buf, obj)
		buf.WriteString("\nendobj\n")
	}

	xrefOffset := int64(buf.Len())
	maxNum := ordered[len(ordered)-1].Num
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxNum; i++ {
		if e, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", e.offset, e.gen)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := buildTrailer(doc, maxNum+1)
	buf.WriteString("trailer\n")
	serializeObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

type entry struct {
	offset int64
	gen    int
}

// buildTrailer keeps Root/Info/ID from the parsed trailer and recomputes
// Size. Prev and xref-stream keys are dropped since the output carries a
// single classic table.
func buildTrailer(doc *raw.Document, size int) *raw.DictObj {
	t := raw.Dict()
	t.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	if doc.Trailer != nil {
		for _, key := range []string{"Root", "Info", "ID"} {
			if v, ok := doc.Trailer.Get(raw.NameObj{Val: key}); ok {
				t.Set(raw.NameObj{Val: key}, v)
			}
		}
	}
	return t
}

func syncStreamLength(st *raw.StreamObj) {
	if st.Dict == nil {
		st.Dict = raw.Dict()
	}
	st.Dict.Set(raw.NameLiteral("Length"), raw.NumberInt(st.Length()))
}

func serializeObject(buf *bytes.Buffer, obj raw.Object) {
	switch v := obj.(type) {
	case raw.NameObj:
		writeName(buf, v.Val)
	case raw.NumberObj:
		if v.IsInteger() {
			buf.WriteString(strconv.FormatInt(v.Int(), 10))
		} else {
			buf.WriteString(strconv.FormatFloat(v.Float(), 'f', -1, 64))
		}
	case raw.BoolObj:
		if v.V {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case raw.NullObj:
		buf.WriteString("null")
	case raw.StringObj:
		writeString(buf, v.Bytes)
	case raw.RefObj:
		fmt.Fprintf(buf, "%d %d R", v.R.Num, v.R.Gen)
	case *raw.ArrayObj:
		buf.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			serializeObject(buf, it)
		}
		buf.WriteByte(']')
	case *raw.DictObj:
		writeDict(buf, v)
	case *raw.StreamObj:
		writeDict(buf, v.Dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	default:
		buf.WriteString("null")
	}
}

func writeDict(buf *bytes.Buffer, d *raw.DictObj) {
	buf.WriteString("<<")
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeName(buf, k)
		buf.WriteByte(' ')
		serializeObject(buf, d.KV[k])
		buf.WriteByte(' ')
	}
	buf.WriteString(">>")
}

// writeName escapes delimiter and non-printable bytes with the #xx form.
func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= 0x20 || c >= 0x7F || isNameEscape(c) {
			fmt.Fprintf(buf, "#%02X", c)
		} else {
			buf.WriteByte(c)
		}
	}
}

func isNameEscape(c byte) bool {
	switch c {
	case '#', '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// writeString emits a literal string with parens, backslashes and EOL
// bytes escaped; arbitrary binary payloads stay parseable.
func writeString(buf *bytes.Buffer, b []byte) {
	buf.WriteByte('(')
	for _, c := range b {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}
