package codec

import "sync"

// FieldSpec names one declared field and the kind its value must have.
type FieldSpec struct {
	Name string
	Kind Kind
}

// Constructor builds a Record from a name->value mapping once every
// declared field has been decoded off the wire.
type Constructor func(values map[string]interface{}) (interface{}, error)

// Descriptor is the catalog entry for one registered type: its ordered
// field declarations and the constructor used to build the concrete Go
// value on decode.
type Descriptor struct {
	Name   string
	Fields []FieldSpec
	New    Constructor
}

// FieldSpec looks up a declared field by name, returning its kind and
// its position (used as the on-wire kind index).
func (d *Descriptor) FieldSpec(name string) (FieldSpec, int, bool) {
	for i, f := range d.Fields {
		if f.Name == name {
			return f, i, true
		}
	}
	return FieldSpec{}, -1, false
}

// KindAt returns the declared kind for a wire kind index, or false if the
// index is out of range for this type.
func (d *Descriptor) KindAt(index int) (Kind, bool) {
	if index < 0 || index >= len(d.Fields) {
		return 0, false
	}
	return d.Fields[index].Kind, true
}

// Catalog is the process-wide registry mapping a type name to its
// descriptor. It is read-only after the registration phase: both peers
// must populate an identical catalog before exchanging records.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]*Descriptor
}

// NewCatalog returns an empty catalog ready for registration.
func NewCatalog() *Catalog {
	return &Catalog{types: make(map[string]*Descriptor)}
}

// Register adds (or replaces) a descriptor under its own Name.
func (c *Catalog) Register(d *Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[d.Name] = d
}

// Lookup returns the descriptor for a type name.
func (c *Catalog) Lookup(name string) (*Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.types[name]
	return d, ok
}
