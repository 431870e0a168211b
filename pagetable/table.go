package pagetable

// Table is the heap's fixed array of page descriptors.
type Table struct {
	Pages    []*Page
	PageSize uintptr
}

// NewTable partitions [regionStart, regionStart+regionBytes) into
// regionBytes/pageSize Passive pages, in ascending address order.
func NewTable(regionStart, regionBytes, pageSize uintptr) *Table {
	n := regionBytes / pageSize
	pages := make([]*Page, n)
	for i := uintptr(0); i < n; i++ {
		pages[i] = New(regionStart+i*pageSize, pageSize)
	}
	return &Table{Pages: pages, PageSize: pageSize}
}

// IndexOf returns the index of the page containing addr.
func (t *Table) IndexOf(addr uintptr) int {
	return int((addr - t.Pages[0].Start) / t.PageSize)
}

// NextActive returns the index of the first Active page at or after from,
// or -1 if none remain.
func (t *Table) NextActive(from int) int {
	for i := from; i < len(t.Pages); i++ {
		if t.Pages[i].State == Active {
			return i
		}
	}
	return -1
}

// CountPassive returns the number of Passive pages.
func (t *Table) CountPassive() int {
	n := 0
	for _, p := range t.Pages {
		if p.State == Passive {
			n++
		}
	}
	return n
}

// FirstPassive returns the first Passive page, or nil if none remain.
func (t *Table) FirstPassive() *Page {
	for _, p := range t.Pages {
		if p.State == Passive {
			return p
		}
	}
	return nil
}

// EachTransitionToPassive resets every Transition page to Passive, in
// ascending index order, calling fn on each just before it is reset.
func (t *Table) EachTransitionToPassive(fn func(*Page)) {
	for _, p := range t.Pages {
		if p.State != Transition {
			continue
		}
		fn(p)
		p.Reset()
	}
}

// SetAllActiveTo transitions every Active page to the given state.
func (t *Table) SetAllActiveTo(s State) {
	for _, p := range t.Pages {
		if p.State == Active {
			p.State = s
		}
	}
}

// SetAllOfStateTo transitions every page currently in from to to.
func (t *Table) SetAllOfStateTo(from, to State) {
	for _, p := range t.Pages {
		if p.State == from {
			p.State = to
		}
	}
}

// Avail returns the sum of Avail() across every page.
func (t *Table) Avail() uintptr {
	var avail uintptr
	for _, p := range t.Pages {
		avail += p.Avail()
	}
	return avail
}

// Used returns the sum of Used() across every page.
func (t *Table) Used() uintptr {
	var used uintptr
	for _, p := range t.Pages {
		used += p.Used()
	}
	return used
}
