package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"pdfopt/ir/raw"
	"pdfopt/recovery"
)

type testObject struct {
	num  int
	body string
}

// buildPDF assembles a document with a classic xref table from object
// bodies, in the order given.
func buildPDF(trailerExtra string, objs ...testObject) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	offsets := make(map[int]int)
	maxNum := 0
	for _, o := range objs {
		offsets[o.num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", o.num, o.body)
		if o.num > maxNum {
			maxNum = o.num
		}
	}
	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxNum; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R %s >>\n", maxNum+1, trailerExtra)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

func catalogAndPages() []testObject {
	return []testObject{
		{1, "<< /Type /Catalog /Pages 2 0 R >>"},
		{2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>"},
		{3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>"},
	}
}

func TestParseWellFormed(t *testing.T) {
	data := buildPDF("", catalogAndPages()...)
	doc, err := New(Config{}).Parse(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Version != "1.5" {
		t.Fatalf("version: %q", doc.Version)
	}
	if len(doc.Objects) != 3 {
		t.Fatalf("object count: %d", len(doc.Objects))
	}
	root, ok := doc.Root()
	if !ok || root.Num != 1 {
		t.Fatalf("root: %+v %v", root, ok)
	}
	catalog := doc.ResolveDict(raw.RefObj{R: root})
	if catalog == nil {
		t.Fatal("catalog unresolvable")
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseStreamObject(t *testing.T) {
	payload := "q 1 0 0 1 0 0 cm Q"
	objs := append(catalogAndPages(),
		testObject{4, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(payload), payload)})
	data := buildPDF("", objs...)

	doc, err := New(Config{}).Parse(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	st, ok := doc.Objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	if !ok {
		t.Fatalf("object 4 is not a stream: %T", doc.Objects[raw.ObjectRef{Num: 4}])
	}
	if string(st.RawData()) != payload {
		t.Fatalf("payload: %q", st.RawData())
	}
}

func TestParseIndirectStreamLength(t *testing.T) {
	payload := "indirect length payload"
	objs := append(catalogAndPages(),
		testObject{4, fmt.Sprintf("<< /Length 5 0 R >>\nstream\n%s\nendstream", payload)},
		testObject{5, fmt.Sprintf("%d", len(payload))})
	data := buildPDF("", objs...)

	doc, err := New(Config{}).Parse(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	st, ok := doc.Objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	if !ok {
		t.Fatal("object 4 is not a stream")
	}
	if string(st.RawData()) != payload {
		t.Fatalf("payload: %q", st.RawData())
	}
}

// buildXRefStreamPDF assembles a PDF 1.5 file whose catalog and pages live
// inside an object stream, indexed by a cross-reference stream.
func buildXRefStreamPDF() []byte {
	catalog := "<< /Type /Catalog /Pages 2 0 R >>"
	pages := "<< /Type /Pages /Kids [] /Count 0 >>"
	header := fmt.Sprintf("1 0 2 %d ", len(catalog)+1)
	payload := header + catalog + " " + pages

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	objStmOff := buf.Len()
	fmt.Fprintf(&buf, "3 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n",
		len(header), len(payload), payload)
	xrefOff := buf.Len()

	// W [1 2 1]: entry type, big-endian field 2, field 3.
	var rows []byte
	row := func(typ byte, f2 int, f3 byte) {
		rows = append(rows, typ, byte(f2>>8), byte(f2), f3)
	}
	row(0, 0, 0)         // free head
	row(2, 3, 0)         // object 1: index 0 of object stream 3
	row(2, 3, 1)         // object 2: index 1 of object stream 3
	row(1, objStmOff, 0) // object 3: the object stream
	row(1, xrefOff, 0)   // object 4: this xref stream

	fmt.Fprintf(&buf, "4 0 obj\n<< /Type /XRef /W [1 2 1] /Size 5 /Index [0 5] /Root 1 0 R /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

func TestParseXRefStreamWithObjectStream(t *testing.T) {
	data := buildXRefStreamPDF()
	doc, err := New(Config{}).Parse(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Version != "1.5" {
		t.Fatalf("version: %q", doc.Version)
	}
	// The object stream and xref stream are index containers; only their
	// members survive.
	if len(doc.Objects) != 2 {
		t.Fatalf("object count: %d", len(doc.Objects))
	}
	root, ok := doc.Root()
	if !ok || root.Num != 1 {
		t.Fatalf("root: %+v %v", root, ok)
	}
	catalog := doc.ResolveDict(raw.RefObj{R: root})
	if catalog == nil {
		t.Fatal("catalog unresolvable")
	}
	typ, _ := catalog.Get(raw.NameLiteral("Type"))
	if n, ok := typ.(raw.NameObj); !ok || n.Val != "Catalog" {
		t.Fatalf("catalog type: %+v", typ)
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 2}]; !ok {
		t.Fatal("pages object missing")
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseRecoveryFromCorruptXref(t *testing.T) {
	data := buildPDF("", catalogAndPages()...)
	// Destroy the startxref pointer so the normal path cannot work.
	corrupted := bytes.Replace(data, []byte("startxref"), []byte("xxxxxxxxx"), 1)

	doc, err := New(Config{Recovery: recovery.NewLenientStrategy()}).
		Parse(context.Background(), bytes.NewReader(corrupted))
	if err != nil {
		t.Fatalf("parse after corruption: %v", err)
	}
	root, ok := doc.Root()
	if !ok {
		t.Fatal("no root after recovery")
	}

	ref, _ := New(Config{}).Parse(context.Background(), bytes.NewReader(data))
	wantRoot, _ := ref.Root()
	if root != wantRoot {
		t.Fatalf("recovered root %v differs from original %v", root, wantRoot)
	}
}

func TestParseEncryptedRejected(t *testing.T) {
	objs := append(catalogAndPages(), testObject{4, "<< /Filter /Standard /V 2 >>"})
	data := buildPDF("/Encrypt 4 0 R", objs...)

	_, err := New(Config{}).Parse(context.Background(), bytes.NewReader(data))
	if !errors.Is(err, ErrEncryptedDocument) {
		t.Fatalf("expected ErrEncryptedDocument, got %v", err)
	}
}

func TestParseGarbageFails(t *testing.T) {
	_, err := New(Config{}).Parse(context.Background(), bytes.NewReader([]byte("this is not a pdf at all")))
	if !errors.Is(err, ErrMalformedContainer) {
		t.Fatalf("expected ErrMalformedContainer, got %v", err)
	}
}

func TestParseMetadata(t *testing.T) {
	// UTF-16BE title with BOM: "Hi"
	objs := append(catalogAndPages(),
		testObject{4, "<< /Title <FEFF00480069> /Author (Ada) >>"})
	data := buildPDF("/Info 4 0 R", objs...)

	doc, err := New(Config{}).Parse(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Metadata.Title != "Hi" {
		t.Fatalf("title: %q", doc.Metadata.Title)
	}
	if doc.Metadata.Author != "Ada" {
		t.Fatalf("author: %q", doc.Metadata.Author)
	}
}

func TestDecodeTextString(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want string
	}{
		{"ascii", []byte("plain"), "plain"},
		{"utf16be", []byte{0xFE, 0xFF, 0x00, 'O', 0x00, 'K'}, "OK"},
		{"latin1 fallback", []byte{0xE9}, "é"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := decodeTextString(tc.in); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
