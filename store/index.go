package store

// index is a cross-reference from a normalized key to record slots. Multiple
// records may share a key (e.g. all messages in one thread), the chain keeps
// insertion order so the first inserted record is the deterministic canonical
// one for duplicate resolution.
//
// Indices hold non-owning back-references into the slot array. They are
// rebuilt wholesale on purge so they never reference a removed slot.
type index map[string][]int

func (ix index) add(key string, n int) {
	ix[key] = append(ix[key], n)
}

// first returns the first-inserted slot for key.
func (ix index) first(key string) (int, bool) {
	l := ix[key]
	if len(l) == 0 {
		return 0, false
	}
	return l[0], true
}

// all returns all slots for key, in insertion order.
func (ix index) all(key string) []int {
	return ix[key]
}
