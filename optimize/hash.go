package optimize

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"pdfopt/ir/raw"
)

// hashObject fingerprints an object's full value, stream payloads included,
// so the dedup pass can compare objects without serializing them.
func hashObject(obj raw.Object) string {
	h := sha256.New()
	writeHash(h, obj)
	return hex.EncodeToString(h.Sum(nil))
}

// writeHash folds one object into h. Every variant gets a distinct tag byte
// and variable-length content carries a length prefix, so different values
// cannot collide on the same byte sequence.
func writeHash(h hash.Hash, obj raw.Object) {
	switch t := obj.(type) {
	case raw.NameObj:
		tagged(h, 'n', []byte(t.Val))
	case raw.NumberObj:
		if t.IsInt {
			h.Write([]byte{'i'})
			binary.Write(h, binary.BigEndian, t.I)
		} else {
			h.Write([]byte{'f'})
			binary.Write(h, binary.BigEndian, t.F)
		}
	case raw.BoolObj:
		if t.V {
			h.Write([]byte{'1'})
		} else {
			h.Write([]byte{'0'})
		}
	case raw.StringObj:
		tagged(h, 's', t.Bytes)
	case raw.RefObj:
		h.Write([]byte{'r'})
		binary.Write(h, binary.BigEndian, int64(t.R.Num))
		binary.Write(h, binary.BigEndian, int64(t.R.Gen))
	case *raw.ArrayObj:
		h.Write([]byte{'['})
		for _, item := range t.Items {
			writeHash(h, item)
		}
		h.Write([]byte{']'})
	case *raw.DictObj:
		if t == nil {
			h.Write([]byte{'z'})
			return
		}
		h.Write([]byte{'<'})
		keys := t.Keys()
		// Map order is random; sorted keys keep equal dicts hashing equal.
		sort.Slice(keys, func(i, j int) bool { return keys[i].Value() < keys[j].Value() })
		for _, k := range keys {
			tagged(h, 'k', []byte(k.Value()))
			v, _ := t.Get(k)
			writeHash(h, v)
		}
		h.Write([]byte{'>'})
	case *raw.StreamObj:
		h.Write([]byte{'S'})
		writeHash(h, t.Dict)
		tagged(h, 'd', t.RawData())
	case raw.NullObj:
		h.Write([]byte{'z'})
	default:
		h.Write([]byte{'?'})
	}
}

func tagged(h hash.Hash, tag byte, data []byte) {
	h.Write([]byte{tag})
	binary.Write(h, binary.BigEndian, int64(len(data)))
	h.Write(data)
}
