package stormconf

// Merge returns a new Map holding dst overlaid with src. Every top-level key
// of src replaces the same key of dst, or is appended after dst's keys.
// Nested mappings are not merged recursively. Neither input is modified.
func Merge(dst, src *Map) *Map {
	out := dst.Clone()
	for _, k := range src.Keys() {
		v, _ := src.Get(k)
		out.Set(k, v)
	}
	return out
}

// Layer is one named configuration document in an Assembler.
type Layer struct {
	Name   string
	Values *Map
}

// Assembler composes configuration layers. Layers are merged in the order
// they were added, so later layers take precedence.
//
// The launcher adds, in order: the base topology document, the submitter
// identity document, operator overlays, and finally the local-run overrides
// when running in-process.
type Assembler struct {
	layers []Layer
}

// Add appends a layer and returns the assembler for chaining.
func (a *Assembler) Add(name string, values *Map) *Assembler {
	a.layers = append(a.layers, Layer{Name: name, Values: values})
	return a
}

// Layers returns the layer names in merge order.
func (a *Assembler) Layers() []string {
	names := make([]string, len(a.layers))
	for i, l := range a.layers {
		names[i] = l.Name
	}
	return names
}

// Result merges all layers into a new Map.
func (a *Assembler) Result() *Map {
	out := NewMap()
	for _, l := range a.layers {
		out = Merge(out, l.Values)
	}
	return out
}
