package types

// Payload is the sparse diff moved between the sides: one Field per entry
// that was dirty at encode time, in traversal order.
type Payload struct {
	Fields []Field `json:"entries" cbor:"1,keyasint"`
}

// Field pairs an entry name with the entry's own encoding of its value.
type Field struct {
	Name string `json:"name" cbor:"1,keyasint"`
	Data []byte `json:"data" cbor:"2,keyasint"`
}

// Len returns the number of fields.
func (p Payload) Len() int { return len(p.Fields) }

// IsEmpty reports whether the payload carries no fields.
func (p Payload) IsEmpty() bool { return len(p.Fields) == 0 }

// Names returns the field names in payload order.
func (p Payload) Names() []string {
	names := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		names[i] = f.Name
	}
	return names
}

// Only returns a payload restricted to the named fields, keeping order.
func (p Payload) Only(names map[string]bool) Payload {
	out := Payload{Fields: make([]Field, 0, len(p.Fields))}
	for _, f := range p.Fields {
		if names[f.Name] {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}
