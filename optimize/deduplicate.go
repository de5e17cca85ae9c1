package optimize

import (
	"context"
	"sort"

	"pdfopt/ir/raw"
)

// dedupObjects merges identical indirect objects. The lowest-numbered copy
// survives; every reference to a duplicate is rewritten to it. Iterates
// until a fixed point so chains of duplicates collapse fully.
func (o *Optimizer) dedupObjects(ctx context.Context, doc *raw.Document) (int, error) {
	total := 0
	changed := true
	for changed {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		changed = false
		seen := make(map[string]raw.ObjectRef)
		replacements := make(map[raw.ObjectRef]raw.ObjectRef)

		refs := make([]raw.ObjectRef, 0, len(doc.Objects))
		for ref := range doc.Objects {
			refs = append(refs, ref)
		}
		sort.Slice(refs, func(i, j int) bool {
			if refs[i].Num != refs[j].Num {
				return refs[i].Num < refs[j].Num
			}
			return refs[i].Gen < refs[j].Gen
		})

		for _, ref := range refs {
			h := hashObject(doc.Objects[ref])
			if original, ok := seen[h]; ok {
				replacements[ref] = original
				changed = true
			} else {
				seen[h] = ref
			}
		}

		if len(replacements) > 0 {
			applyReplacements(doc, replacements)
			for dup := range replacements {
				delete(doc.Objects, dup)
			}
			total += len(replacements)
		}
	}
	return total, nil
}

func applyReplacements(doc *raw.Document, replacements map[raw.ObjectRef]raw.ObjectRef) {
	for _, obj := range doc.Objects {
		replaceRefsInObject(obj, replacements)
	}
	if doc.Trailer != nil {
		replaceRefsInObject(doc.Trailer, replacements)
	}
}

func replaceRefsInObject(obj raw.Object, replacements map[raw.ObjectRef]raw.ObjectRef) {
	switch t := obj.(type) {
	case *raw.ArrayObj:
		for i, val := range t.Items {
			if ref, ok := val.(raw.Reference); ok {
				if newRef, found := replacements[ref.Ref()]; found {
					t.Items[i] = raw.Ref(newRef.Num, newRef.Gen)
				}
			} else {
				replaceRefsInObject(val, replacements)
			}
		}
	case raw.Dictionary:
		for _, key := range t.Keys() {
			val, _ := t.Get(key)
			if ref, ok := val.(raw.Reference); ok {
				if newRef, found := replacements[ref.Ref()]; found {
					t.Set(key, raw.Ref(newRef.Num, newRef.Gen))
				}
			} else {
				replaceRefsInObject(val, replacements)
			}
		}
	case raw.Stream:
		replaceRefsInObject(t.Dictionary(), replacements)
	}
}
