package reconcile

import "sort"

// Entity is anything a collection can key by id.
type Entity interface {
	Key() string
}

// Collection is an ordered, id-keyed local copy of a remote table slice.
// Position is dictated by the less func (sort key), never by delivery
// order, and ids are unique: re-upserting an id replaces it in place.
type Collection[T Entity] struct {
	items []T
	less  func(a, b T) bool
}

func NewCollection[T Entity](less func(a, b T) bool) *Collection[T] {
	return &Collection[T]{less: less}
}

func (c *Collection[T]) Len() int {
	return len(c.items)
}

func (c *Collection[T]) Get(key string) (T, bool) {
	for _, item := range c.items {
		if item.Key() == key {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Upsert inserts item at its sort position, or replaces an existing item
// with the same key. Applying the same insert twice never duplicates.
func (c *Collection[T]) Upsert(item T) {
	for i, existing := range c.items {
		if existing.Key() == item.Key() {
			c.items[i] = item
			c.resort()
			return
		}
	}
	pos := sort.Search(len(c.items), func(i int) bool {
		return c.less(item, c.items[i])
	})
	c.items = append(c.items, item)
	copy(c.items[pos+1:], c.items[pos:])
	c.items[pos] = item
}

// Patch mutates the item with the given key in place. Returns false when
// the key is absent.
func (c *Collection[T]) Patch(key string, fn func(*T)) bool {
	for i := range c.items {
		if c.items[i].Key() == key {
			fn(&c.items[i])
			return true
		}
	}
	return false
}

// PatchAll applies fn to every item.
func (c *Collection[T]) PatchAll(fn func(*T)) {
	for i := range c.items {
		fn(&c.items[i])
	}
}

// Remove deletes by key. Removing an absent key is a no-op, so replayed
// delete notifications are safe.
func (c *Collection[T]) Remove(key string) bool {
	for i, item := range c.items {
		if item.Key() == key {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Replace swaps the whole collection, used by full-refetch fallbacks.
func (c *Collection[T]) Replace(items []T) {
	c.items = append([]T(nil), items...)
	c.resort()
}

// Items returns a copy in collection order.
func (c *Collection[T]) Items() []T {
	return append([]T(nil), c.items...)
}

func (c *Collection[T]) resort() {
	sort.SliceStable(c.items, func(i, j int) bool {
		return c.less(c.items[i], c.items[j])
	})
}
