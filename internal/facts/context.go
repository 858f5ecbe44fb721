package facts

// Context is the flat mapping from dotted path (to.jurisdiction,
// transfer.units) to typed value that conditions evaluate against.
type Context map[string]Value

// Lookup returns the fact at path. A missing path is a configuration error on
// the caller's side; evaluators surface it as a failed check.
func (c Context) Lookup(path string) (Value, bool) {
	v, ok := c[path]
	return v, ok
}

// Clone deep-copies the context. Values are immutable once constructed (lists
// are never mutated in place), so copying the map entries is sufficient for
// list values too. List backing arrays are still duplicated so a caller
// holding the original cannot reach the snapshot's storage.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for path, v := range c {
		if v.kind == KindList {
			items := make([]Value, len(v.list))
			copy(items, v.list)
			v.list = items
		}
		out[path] = v
	}
	return out
}
