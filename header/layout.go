package header

// WordSize is the machine word size assumed by the collector (spec.md §6.4).
const WordSize = 8

// HeaderSize is the size, in bytes, of the opaque header immediately
// preceding every object's payload (spec.md §6.4). It is exactly one word:
// the header is a single tagged uint64, distinguished by its low bits, the
// same way the teacher packs multiple small fields into one machine word
// via bitfield tags rather than a multi-field struct.
const HeaderSize = WordSize

// FieldKind distinguishes a pointer-bearing field from raw payload bytes
// within a Layout.
type FieldKind int

const (
	// PointerField occupies exactly one word and is traversed by the
	// collector during marking.
	PointerField FieldKind = iota
	// DataField occupies Size raw bytes, rounded up to a word boundary so
	// that any PointerField following it lands on a word index.
	DataField
)

// Field describes one member of a struct-shaped allocation.
type Field struct {
	Kind FieldKind
	Size uintptr // only meaningful for DataField
}

// Layout is the pointer/data shape handed to CreateStructHeader, analogous
// to the C original's layout-descriptor string (e.g. "pp" for two pointer
// fields).
type Layout []Field

// wordSizeOf returns how many words f occupies.
func (f Field) wordSizeOf() uintptr {
	if f.Kind == PointerField {
		return 1
	}
	words := f.Size / WordSize
	if f.Size%WordSize != 0 {
		words++
	}
	return words
}

// payloadWords returns the total payload size of l, in words.
func (l Layout) payloadWords() uintptr {
	var words uintptr
	for _, f := range l {
		words += f.wordSizeOf()
	}
	return words
}

// pointerWordOffsets returns the word index (relative to the payload
// start) of every pointer field in l, in field order.
func (l Layout) pointerWordOffsets() []uintptr {
	var offsets []uintptr
	var word uintptr
	for _, f := range l {
		if f.Kind == PointerField {
			offsets = append(offsets, word)
		}
		word += f.wordSizeOf()
	}
	return offsets
}
