// Command mazarin-gc-demo exercises allocation, rooting, and collection
// against a small heap, the way the teacher's kernel entrypoint exercises
// kmalloc/kfree against its own heap at boot.
package main

import (
	"log"
	"unsafe"

	"github.com/iansmith/mazarin-gc/header"
	"github.com/iansmith/mazarin-gc/heap"
)

func main() {
	h, err := heap.Init(heap.Config{
		Bytes:       8 * heap.PageSize,
		GCThreshold: 0.8,
	})
	if err != nil {
		log.Fatalf("heap init: %v", err)
	}

	node, err := h.AllocStruct(header.Layout{{Kind: header.PointerField}})
	if err != nil {
		log.Fatalf("alloc struct: %v", err)
	}

	payload, err := h.Strdup("mazarin")
	if err != nil {
		log.Fatalf("strdup: %v", err)
	}
	h.WriteWord(node, uint64(payload))

	mark := h.Roots().Mark()
	h.Roots().Push(unsafe.Pointer(&node))
	defer h.Roots().PopTo(mark)

	before := h.Used()
	reclaimed := h.GC()
	log.Printf("gc reclaimed %d bytes (used before=%d, after=%d)", reclaimed, before, h.Used())

	s := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(h.ReadWord(node)))), 8)
	log.Printf("surviving payload: %q", s)
}
