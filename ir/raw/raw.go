package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Dictionary represents a PDF dictionary object.
type Dictionary interface {
	Object
	Get(key Name) (Object, bool)
	Set(key Name, value Object)
	Keys() []Name
	Len() int
}

// Array represents a PDF array object.
type Array interface {
	Object
	Get(index int) (Object, bool)
	Len() int
	Append(obj Object)
}

// Stream represents a raw (undecoded) PDF stream.
type Stream interface {
	Object
	Dictionary() Dictionary
	RawData() []byte
	Length() int64
}

// Name represents a PDF name object.
type Name interface {
	Object
	Value() string
}

// String represents a PDF string (literal or hex).
type String interface {
	Object
	Value() []byte
}

// Number represents a PDF numeric value.
type Number interface {
	Object
	Int() int64
	Float() float64
	IsInteger() bool
}

// Boolean represents a PDF boolean.
type Boolean interface {
	Object
	Value() bool
}

// Null represents the PDF null object.
type Null interface{ Object }

// Reference represents an indirect object reference. It never owns the
// referent; resolution is always a lookup in Document.Objects.
type Reference interface {
	Object
	Ref() ObjectRef
}

// DocumentMetadata contains common PDF info fields, decoded to UTF-8.
type DocumentMetadata struct {
	Title    string
	Author   string
	Creator  string
	Producer string
	Subject  string
	Keywords []string
}

// Document is the root container for raw PDF objects. The Objects map is
// the only owner of every object; references resolve through it.
type Document struct {
	Objects  map[ObjectRef]Object
	Trailer  *DictObj
	Version  string // e.g. "1.7"
	Metadata DocumentMetadata
}

// Root returns the catalog reference from the trailer.
func (d *Document) Root() (ObjectRef, bool) {
	return d.trailerRef("Root")
}

// Info returns the info dictionary reference from the trailer, if any.
func (d *Document) Info() (ObjectRef, bool) {
	return d.trailerRef("Info")
}

func (d *Document) trailerRef(key string) (ObjectRef, bool) {
	if d.Trailer == nil {
		return ObjectRef{}, false
	}
	obj, ok := d.Trailer.Get(NameObj{Val: key})
	if !ok {
		return ObjectRef{}, false
	}
	ref, ok := obj.(RefObj)
	if !ok {
		return ObjectRef{}, false
	}
	return ref.R, true
}

// Resolve follows reference chains until a non-reference object is reached.
// A dangling reference resolves to null.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		next, ok := d.Objects[ref.R]
		if !ok {
			return NullObj{}
		}
		obj = next
	}
	return NullObj{}
}

// ResolveDict resolves obj and returns it as a dictionary, following a
// stream to its dictionary if needed.
func (d *Document) ResolveDict(obj Object) *DictObj {
	switch v := d.Resolve(obj).(type) {
	case *DictObj:
		return v
	case *StreamObj:
		return v.Dict
	default:
		return nil
	}
}

// InfoDict returns the resolved document information dictionary.
func (d *Document) InfoDict() *DictObj {
	ref, ok := d.Info()
	if !ok {
		return nil
	}
	return d.ResolveDict(RefObj{R: ref})
}

// Validate checks that every reference reachable from any object resolves
// to a key in the Objects map.
func (d *Document) Validate() error {
	for ref, obj := range d.Objects {
		if err := d.checkRefs(obj); err != nil {
			return fmt.Errorf("object %s: %w", ref, err)
		}
	}
	if d.Trailer != nil {
		if err := d.checkRefs(d.Trailer); err != nil {
			return fmt.Errorf("trailer: %w", err)
		}
	}
	return nil
}

func (d *Document) checkRefs(obj Object) error {
	switch v := obj.(type) {
	case RefObj:
		if _, ok := d.Objects[v.R]; !ok {
			return fmt.Errorf("dangling reference %s", v.R)
		}
	case *ArrayObj:
		for _, it := range v.Items {
			if err := d.checkRefs(it); err != nil {
				return err
			}
		}
	case *DictObj:
		for _, val := range v.KV {
			if err := d.checkRefs(val); err != nil {
				return err
			}
		}
	case *StreamObj:
		if v.Dict != nil {
			return d.checkRefs(v.Dict)
		}
	}
	return nil
}

// MaxObjectNumber returns the highest object number in use.
func (d *Document) MaxObjectNumber() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max
}
