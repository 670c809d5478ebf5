package view

import (
	"strconv"
	"sync"
)

func processIDKey(pid int) string { return strconv.Itoa(pid) }

// Item is one candidate value in a FieldFilter: a writer name, a
// level name, a tag, and so on.
type Item struct {
	Value     string
	Group     string
	Selected  bool
	ValueUsed bool // whether Value appears in at least one record in the unfiltered set
}

// FieldFilter is an include-by-selection filter over one field: when
// no item is selected, every value passes (the filter is inert);
// once at least one item is selected, only rows whose value matches a
// selected item pass.
type FieldFilter struct {
	DisableFilterOnReset bool
	UnselectItemsOnReset bool

	mu       sync.Mutex
	items    map[string]*Item
	order    []string
	selected int
}

func NewFieldFilter() *FieldFilter {
	return &FieldFilter{items: make(map[string]*Item)}
}

// accumulateItems merges newly observed values into the filter's item
// list, preserving items whose last matching record has since been
// removed — so a UI checkbox doesn't disappear on prune — while
// refreshing ValueUsed against the current unfiltered set.
func (f *FieldFilter) accumulateItems(present map[string]struct{}, groupOf func(string) string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for v := range present {
		it, ok := f.items[v]
		if !ok {
			group := ""
			if groupOf != nil {
				group = groupOf(v)
			}
			it = &Item{Value: v, Group: group}
			f.items[v] = it
			f.order = append(f.order, v)
		}
		it.ValueUsed = true
	}
	for v, it := range f.items {
		if _, ok := present[v]; !ok {
			it.ValueUsed = false
		}
	}
}

func (f *FieldFilter) Items() []Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Item, 0, len(f.order))
	for _, v := range f.order {
		out = append(out, *f.items[v])
	}
	return out
}

func (f *FieldFilter) Select(value string, selected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[value]
	if !ok {
		it = &Item{Value: value}
		f.items[value] = it
		f.order = append(f.order, value)
	}
	if it.Selected == selected {
		return
	}
	it.Selected = selected
	if selected {
		f.selected++
	} else {
		f.selected--
	}
}

// Reset applies the filter's configured post-reset behaviour:
// UnselectItemsOnReset clears every item's selection; otherwise
// selections are preserved. DisableFilterOnReset is not consulted by
// Reset, and passes treats the filter as inert only when no item is
// selected, so that flag does not change which rows match.
func (f *FieldFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UnselectItemsOnReset {
		for _, it := range f.items {
			it.Selected = false
		}
		f.selected = 0
	}
}

func (f *FieldFilter) passes(value string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selected == 0 {
		return true
	}
	if f.DisableFilterOnReset && f.selected == 0 {
		return true
	}
	it, ok := f.items[value]
	return ok && it.Selected
}

// passesAny reports whether at least one of values is a selected item
// — used for multi-valued fields like tags, where a record passes if
// it carries any selected tag.
func (f *FieldFilter) passesAny(values []string) bool {
	f.mu.Lock()
	selected := f.selected
	f.mu.Unlock()
	if selected == 0 {
		return true
	}
	for _, v := range values {
		if f.passes(v) {
			return true
		}
	}
	return false
}
