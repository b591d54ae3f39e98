package codec

// Fielder is implemented by any concrete telemetry type that can be
// encoded: it reports its registered type name and its field values by
// name, in whatever order is convenient (wire order comes from the
// catalog's Descriptor, not from this map).
type Fielder interface {
	TypeName() string
	FieldValues() map[string]interface{}
}
