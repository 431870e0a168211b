package pagetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageInvariantsOnBump(t *testing.T) {
	p := New(0x1000, 2048)
	assert.Equal(t, uintptr(0x1000), p.Bump)
	assert.Equal(t, uintptr(2048), p.Avail())
	assert.Equal(t, uintptr(0), p.Used())

	ptr := p.Bumped(64)
	assert.Equal(t, uintptr(0x1000), ptr)
	assert.Equal(t, uintptr(64), p.Used())
	assert.Equal(t, uintptr(2048-64), p.Avail())

	assert.True(t, p.Start <= p.Bump && p.Bump <= p.Start+p.Size)
}

func TestPageReset(t *testing.T) {
	p := New(0x1000, 2048)
	p.State = Transition
	p.Bumped(100)

	p.Reset()
	assert.Equal(t, Passive, p.State)
	assert.Equal(t, p.Start, p.Bump)
}

func TestPageContains(t *testing.T) {
	p := New(0x1000, 2048)
	assert.True(t, p.Contains(0x1000))
	assert.True(t, p.Contains(0x1000+2047))
	assert.False(t, p.Contains(0x1000+2048))
	assert.False(t, p.Contains(0x0FFF))
}

func TestTablePartitioning(t *testing.T) {
	tbl := NewTable(0x1000, 4*2048, 2048)
	require.Len(t, tbl.Pages, 4)
	for i, p := range tbl.Pages {
		assert.Equal(t, Passive, p.State)
		assert.Equal(t, uintptr(0x1000)+uintptr(i)*2048, p.Start)
	}
}

func TestTableNextActiveAndPassiveHelpers(t *testing.T) {
	tbl := NewTable(0x1000, 4*2048, 2048)
	assert.Equal(t, -1, tbl.NextActive(0))
	assert.Equal(t, 4, tbl.CountPassive())

	tbl.Pages[2].State = Active
	assert.Equal(t, 2, tbl.NextActive(0))
	assert.Equal(t, -1, tbl.NextActive(3))
	assert.Equal(t, 3, tbl.CountPassive())

	fp := tbl.FirstPassive()
	require.NotNil(t, fp)
	assert.Equal(t, tbl.Pages[0], fp)
}

func TestTableIndexOf(t *testing.T) {
	tbl := NewTable(0x1000, 4*2048, 2048)
	assert.Equal(t, 0, tbl.IndexOf(0x1000))
	assert.Equal(t, 1, tbl.IndexOf(0x1000+2048))
	assert.Equal(t, 3, tbl.IndexOf(0x1000+3*2048+10))
}

func TestEachTransitionToPassiveResetsInOrder(t *testing.T) {
	tbl := NewTable(0x1000, 3*2048, 2048)
	tbl.Pages[0].State = Transition
	tbl.Pages[1].State = Active
	tbl.Pages[2].State = Transition
	tbl.Pages[0].Bumped(16)
	tbl.Pages[2].Bumped(32)

	var visited []int
	tbl.EachTransitionToPassive(func(p *Page) {
		visited = append(visited, tbl.IndexOf(p.Start))
	})

	assert.Equal(t, []int{0, 2}, visited)
	assert.Equal(t, Passive, tbl.Pages[0].State)
	assert.Equal(t, Active, tbl.Pages[1].State)
	assert.Equal(t, Passive, tbl.Pages[2].State)
	assert.Equal(t, tbl.Pages[0].Start, tbl.Pages[0].Bump)
}

func TestUsedAndAvailSumToSize(t *testing.T) {
	tbl := NewTable(0x1000, 4*2048, 2048)
	tbl.Pages[0].State = Active
	tbl.Pages[0].Bumped(100)
	tbl.Pages[1].State = Active
	tbl.Pages[1].Bumped(50)

	assert.Equal(t, uintptr(150), tbl.Used())
	assert.Equal(t, uintptr(4*2048-150), tbl.Avail())
	assert.Equal(t, uintptr(4*2048), tbl.Used()+tbl.Avail())
}
