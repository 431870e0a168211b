package stackroots

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindNextPtrFiltersByRange(t *testing.T) {
	s := New()

	inHeap := uintptr(0x2000)
	outOfHeap := uintptr(0x9000)

	root1 := inHeap
	root2 := outOfHeap
	root3 := inHeap + 64

	s.Push(unsafe.Pointer(&root1))
	s.Push(unsafe.Pointer(&root2))
	s.Push(unsafe.Pointer(&root3))
	top := s.Mark()

	bottom := 0
	var found []uintptr
	for {
		slot, ok := s.FindNextPtr(&bottom, top, 0x1000, 0x8000)
		if !ok {
			break
		}
		found = append(found, *(*uintptr)(slot))
	}

	require.Len(t, found, 2)
	assert.Equal(t, inHeap, found[0])
	assert.Equal(t, inHeap+64, found[1])
	assert.Equal(t, top, bottom, "bottom walks all the way to top")
}

func TestPushPopToMark(t *testing.T) {
	s := New()
	root := uintptr(0x1234)
	mark := s.Mark()
	s.Push(unsafe.Pointer(&root))
	assert.Equal(t, mark+1, s.Mark())

	s.PopTo(mark)
	assert.Equal(t, mark, s.Mark())
}

func TestFindNextPtrEmptyRange(t *testing.T) {
	s := New()
	bottom := 0
	_, ok := s.FindNextPtr(&bottom, 0, 0x1000, 0x8000)
	assert.False(t, ok)
}
