package optimize

import (
	"sort"

	"pdfopt/filters"
	"pdfopt/ir/raw"
)

// ImageCandidate is a view over one stream object identified as image
// data. It is derived each pass, never stored on the document.
type ImageCandidate struct {
	Ref              raw.ObjectRef
	Stream           *raw.StreamObj
	Width            int
	Height           int
	ColorSpace       string
	BitsPerComponent int
	Filters          []string
	FilterParams     []raw.Dictionary
	Length           int64
}

// Candidates finds all image XObject streams in the document, in
// ascending object-number order so passes are deterministic.
func Candidates(doc *raw.Document) []ImageCandidate {
	var out []ImageCandidate
	for ref, obj := range doc.Objects {
		st, ok := obj.(*raw.StreamObj)
		if !ok || st.Dict == nil {
			continue
		}
		if !isImageStream(st.Dict) {
			continue
		}
		names, params := filters.ExtractFilters(st.Dict)
		out = append(out, ImageCandidate{
			Ref:              ref,
			Stream:           st,
			Width:            dictInt(doc, st.Dict, "Width"),
			Height:           dictInt(doc, st.Dict, "Height"),
			ColorSpace:       colorSpaceName(doc, st.Dict),
			BitsPerComponent: dictInt(doc, st.Dict, "BitsPerComponent"),
			Filters:          names,
			FilterParams:     params,
			Length:           st.Length(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Num < out[j].Ref.Num })
	return out
}

func isImageStream(dict *raw.DictObj) bool {
	v, ok := dict.Get(raw.NameObj{Val: "Subtype"})
	if !ok {
		return false
	}
	name, ok := v.(raw.NameObj)
	return ok && name.Val == "Image"
}

func dictInt(doc *raw.Document, dict *raw.DictObj, key string) int {
	v, ok := dict.Get(raw.NameObj{Val: key})
	if !ok {
		return 0
	}
	if n, ok := doc.Resolve(v).(raw.NumberObj); ok {
		return int(n.Int())
	}
	return 0
}

// colorSpaceName returns the device color space name, or "" for anything
// that is not a plain name (indexed palettes, ICC arrays, separations).
func colorSpaceName(doc *raw.Document, dict *raw.DictObj) string {
	v, ok := dict.Get(raw.NameObj{Val: "ColorSpace"})
	if !ok {
		return ""
	}
	if name, ok := doc.Resolve(v).(raw.NameObj); ok {
		return name.Val
	}
	return ""
}
