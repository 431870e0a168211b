// Package header implements the object header collaborator named in
// spec.md §6.2: the opaque metadata prefix that discriminates a struct
// allocation, a raw data allocation, or a forwarded (evacuated) object.
//
// The header is exactly one machine word (HeaderSize == WordSize). Rather
// than a multi-field Go struct, it is a single tagged uint64 packed with
// the teacher's bitfield package (adapted from mazarin's src/bitfield,
// there used to pack a page's Allocated/KernelPage flags into a uint32).
// The low two bits are the discriminant; the remaining 62 bits are
// interpreted differently per discriminant, the same way the C original
// reused one word for three different purposes depending on context.
package header

import (
	"fmt"

	"github.com/iansmith/mazarin-gc/bitfield"
)

// Kind is the header's discriminant (spec.md §3).
type Kind int

const (
	// StructRep headers describe a struct payload with pointer offsets.
	StructRep Kind = iota
	// DataRep headers describe a raw byte payload of known size.
	DataRep
	// ForwardingAddr headers mark an evacuated object; the payload has
	// moved, and the header holds the new user-visible address.
	ForwardingAddr
)

const (
	tagStruct     uint8 = 0
	tagData       uint8 = 1
	tagForwarding uint8 = 2

	// maxStructPayloadWords bounds a struct allocation's payload so its
	// size fits the 6-bit Size field below.
	maxStructPayloadWords = (1 << 6) - 1
	// maxStructPointerWord bounds which word offsets a pointer bitmap can
	// address; the bitmap itself is 55 bits wide.
	maxStructPointerWord = 55
	// maxDataPayloadBytes bounds a data allocation's payload so its size
	// fits the 12-bit Size field below. This comfortably exceeds
	// PAGE_SIZE - HeaderSize, the real limit enforced by the allocator.
	maxDataPayloadBytes = (1 << 12) - 1
)

var bitConfig = &bitfield.Config{NumBits: 64}

type structHeader struct {
	Tag   uint8  `bitfield:",2"`
	Found bool   `bitfield:",1"`
	Size  uint8  `bitfield:",6"` // payload size in words
	Ptrs  uint64 `bitfield:",55"`
}

type dataHeader struct {
	Tag  uint8  `bitfield:",2"`
	Size uint32 `bitfield:",12"` // payload size in bytes
}

type forwardHeader struct {
	Tag   uint8  `bitfield:",2"`
	AddrW uint64 `bitfield:",62"` // destination address / WordSize
}

// Memory is the raw byte-addressable region headers are read from and
// written into. heap.Heap implements this directly over its backing
// arena; the header package never allocates or owns memory itself,
// keeping it the "opaque capability" spec.md §9 calls for.
type Memory interface {
	ReadWord(addr uintptr) uint64
	WriteWord(addr uintptr, v uint64)
	CopyBytes(dst, src uintptr, n uintptr)
}

func headerAddr(p uintptr) uintptr { return p - HeaderSize }

func tagOf(word uint64) uint8 {
	return uint8(word & 0b11)
}

// Type reports p's header discriminant.
func Type(mem Memory, p uintptr) Kind {
	switch tagOf(mem.ReadWord(headerAddr(p))) {
	case tagData:
		return DataRep
	case tagForwarding:
		return ForwardingAddr
	default:
		return StructRep
	}
}

func readStruct(mem Memory, p uintptr) structHeader {
	var h structHeader
	_ = bitfield.Unpack(mem.ReadWord(headerAddr(p)), &h, bitConfig)
	return h
}

func writeStruct(mem Memory, p uintptr, h structHeader) {
	h.Tag = tagStruct
	packed, err := bitfield.Pack(&h, bitConfig)
	if err != nil {
		panic(fmt.Sprintf("header: struct header does not fit one word: %v", err))
	}
	mem.WriteWord(headerAddr(p), packed)
}

func readData(mem Memory, p uintptr) dataHeader {
	var h dataHeader
	_ = bitfield.Unpack(mem.ReadWord(headerAddr(p)), &h, bitConfig)
	return h
}

func readForward(mem Memory, p uintptr) forwardHeader {
	var h forwardHeader
	_ = bitfield.Unpack(mem.ReadWord(headerAddr(p)), &h, bitConfig)
	return h
}

// StructPointerCount returns the number of pointer fields in p's layout.
func StructPointerCount(mem Memory, p uintptr) int {
	h := readStruct(mem, p)
	n := 0
	for i := 0; i < maxStructPointerWord; i++ {
		if h.Ptrs&(1<<uint(i)) != 0 {
			n++
		}
	}
	return n
}

// StructPointers fills out with the address of each pointer slot in p's
// payload (not the values stored there), in ascending offset order.
// Returns false if p is not StructRep.
func StructPointers(mem Memory, p uintptr, out []uintptr) bool {
	if Type(mem, p) != StructRep {
		return false
	}
	h := readStruct(mem, p)
	i := 0
	for word := 0; word < maxStructPointerWord; word++ {
		if h.Ptrs&(1<<uint(word)) == 0 {
			continue
		}
		if i >= len(out) {
			return false
		}
		out[i] = p + uintptr(word)*WordSize
		i++
	}
	return true
}

// MarkFound sets p's "already visited" mark.
func MarkFound(mem Memory, p uintptr) {
	h := readStruct(mem, p)
	h.Found = true
	writeStruct(mem, p, h)
}

// ClearFound clears p's "already visited" mark.
func ClearFound(mem Memory, p uintptr) {
	h := readStruct(mem, p)
	h.Found = false
	writeStruct(mem, p, h)
}

// IsFound reports p's "already visited" mark.
func IsFound(mem Memory, p uintptr) bool {
	return readStruct(mem, p).Found
}

// SizeOfNewStruct returns the total size (header + payload) a struct
// allocation for layout will occupy.
func SizeOfNewStruct(layout Layout) uintptr {
	return HeaderSize + layout.payloadWords()*WordSize
}

// SizeOfNewData returns the total size (header + payload) a data
// allocation of bytes will occupy.
func SizeOfNewData(bytes uintptr) uintptr {
	words := bytes / WordSize
	if bytes%WordSize != 0 {
		words++
	}
	return HeaderSize + words*WordSize
}

// SizeOfExisting returns the total size (header + payload) of the live
// object at p.
func SizeOfExisting(mem Memory, p uintptr) uintptr {
	return HeaderSize + DataSizeOfExisting(mem, p)
}

// DataSizeOfExisting returns the payload size of the live object at p.
func DataSizeOfExisting(mem Memory, p uintptr) uintptr {
	switch Type(mem, p) {
	case DataRep:
		return uintptr(readData(mem, p).Size)
	case StructRep:
		return uintptr(readStruct(mem, p).Size) * WordSize
	default:
		return 0
	}
}

// CreateStructHeader writes a StructRep header for layout at rawDst (the
// start of the raw allocation, header included) and returns the
// user-visible pointer (just past the header).
func CreateStructHeader(layout Layout, mem Memory, rawDst uintptr) (uintptr, error) {
	words := layout.payloadWords()
	if words > maxStructPayloadWords {
		return 0, fmt.Errorf("header: struct payload of %d words exceeds the %d-word limit", words, maxStructPayloadWords)
	}

	var ptrs uint64
	for _, off := range layout.pointerWordOffsets() {
		if off >= maxStructPointerWord {
			return 0, fmt.Errorf("header: pointer at word offset %d exceeds the %d-word addressable range", off, maxStructPointerWord)
		}
		ptrs |= 1 << off
	}

	p := rawDst + HeaderSize
	writeStruct(mem, p, structHeader{Size: uint8(words), Ptrs: ptrs})
	return p, nil
}

// CreateDataHeader writes a DataRep header for a bytes-byte payload at
// rawDst and returns the user-visible pointer.
func CreateDataHeader(bytes uintptr, mem Memory, rawDst uintptr) (uintptr, error) {
	if bytes > maxDataPayloadBytes {
		return 0, fmt.Errorf("header: data payload of %d bytes exceeds the %d-byte limit", bytes, maxDataPayloadBytes)
	}
	p := rawDst + HeaderSize
	packed, err := bitfield.Pack(&dataHeader{Tag: tagData, Size: uint32(bytes)}, bitConfig)
	if err != nil {
		return 0, err
	}
	mem.WriteWord(headerAddr(p), packed)
	return p, nil
}

// CopyHeader copies src's header (struct or data) to rawDst and returns
// the new user-visible pointer. It does not forward src; pair with
// ForwardHeader to complete a relocation.
func CopyHeader(mem Memory, src, rawDst uintptr) uintptr {
	word := mem.ReadWord(headerAddr(src))
	dst := rawDst + HeaderSize
	mem.WriteWord(headerAddr(dst), word)
	return dst
}

// ForwardHeader overwrites src's header with a ForwardingAddr header
// pointing at userDst. userDst must be word-aligned.
func ForwardHeader(mem Memory, src, userDst uintptr) {
	packed, err := bitfield.Pack(&forwardHeader{Tag: tagForwarding, AddrW: uint64(userDst / WordSize)}, bitConfig)
	if err != nil {
		panic(fmt.Sprintf("header: forwarding address does not fit one word: %v", err))
	}
	mem.WriteWord(headerAddr(src), packed)
}

// ForwardingAddress returns the new address a ForwardingAddr header at p
// points to. Only valid when Type(mem, p) == ForwardingAddr.
func ForwardingAddress(mem Memory, p uintptr) uintptr {
	return uintptr(readForward(mem, p).AddrW) * WordSize
}
