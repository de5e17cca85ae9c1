package optimize

import (
	"testing"

	"pdfopt/ir/raw"
)

func TestHashObjectIgnoresInsertionOrder(t *testing.T) {
	a := raw.Dict()
	a.Set(raw.NameLiteral("A"), raw.NumberInt(1))
	a.Set(raw.NameLiteral("B"), raw.Str([]byte("x")))
	b := raw.Dict()
	b.Set(raw.NameLiteral("B"), raw.Str([]byte("x")))
	b.Set(raw.NameLiteral("A"), raw.NumberInt(1))
	if hashObject(a) != hashObject(b) {
		t.Fatal("insertion order changed the hash")
	}
}

func TestHashObjectDistinguishes(t *testing.T) {
	streamDict := raw.Dict()
	streamDict.Set(raw.NameLiteral("K"), raw.NumberInt(1))
	plainDict := raw.Dict()
	plainDict.Set(raw.NameLiteral("K"), raw.NumberInt(1))

	cases := []struct {
		name string
		a, b raw.Object
	}{
		{"int vs float", raw.NumberInt(1), raw.NumberFloat(1)},
		{"name vs string", raw.NameLiteral("AB"), raw.Str([]byte("AB"))},
		{"reference number", raw.Ref(1, 0), raw.Ref(2, 0)},
		{"reference generation", raw.Ref(1, 0), raw.Ref(1, 1)},
		{"booleans", raw.Bool(true), raw.Bool(false)},
		{"null vs empty string", raw.NullObj{}, raw.Str(nil)},
		{"string split points",
			raw.NewArray(raw.Str([]byte("ab")), raw.Str([]byte("c"))),
			raw.NewArray(raw.Str([]byte("a")), raw.Str([]byte("bc")))},
		{"dict vs stream", plainDict, raw.NewStream(streamDict, nil)},
	}
	for _, tc := range cases {
		if hashObject(tc.a) == hashObject(tc.b) {
			t.Fatalf("%s: values collide", tc.name)
		}
	}
}

func TestHashObjectStreamPayload(t *testing.T) {
	d1 := raw.Dict()
	d1.Set(raw.NameLiteral("Length"), raw.NumberInt(3))
	d2 := raw.Dict()
	d2.Set(raw.NameLiteral("Length"), raw.NumberInt(3))
	s1 := raw.NewStream(d1, []byte("abc"))
	s2 := raw.NewStream(d2, []byte("abd"))
	if hashObject(s1) == hashObject(s2) {
		t.Fatal("payload not part of the hash")
	}
	s3 := raw.NewStream(d2, []byte("abc"))
	if hashObject(s1) != hashObject(s3) {
		t.Fatal("equal streams hash differently")
	}
}
