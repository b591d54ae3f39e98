package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// Encode serializes rec into its wire layout: u32 name_len || name_bytes,
// followed by each declared field as
// u32 key_len || key_bytes || u32 kind_index || <kind-dependent value>.
//
// Field order on the wire is the catalog's declared order, not the order
// values happen to appear in rec.FieldValues().
func Encode(cat *Catalog, rec Fielder) ([]byte, error) {
	name := rec.TypeName()
	desc, ok := cat.Lookup(name)
	if !ok {
		return nil, newErr(UnknownType, "type %q not registered", name)
	}

	values := rec.FieldValues()

	var buf bytes.Buffer
	writeString(&buf, name)

	for idx, spec := range desc.Fields {
		v, ok := values[spec.Name]
		if !ok {
			return nil, newErr(FieldKindMismatch, "missing field %q for type %q", spec.Name, name)
		}
		writeString(&buf, spec.Name)
		writeU32(&buf, uint32(idx))
		if err := encodeValue(&buf, spec.Kind, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode deserializes data against cat, reconstructing the record through
// its registered constructor. Fields are read strictly in the order they
// appear in the byte stream. Reading stops once every declared field has
// been seen; any bytes left after that are reported as TrailingBytes.
func Decode(cat *Catalog, data []byte) (interface{}, error) {
	r := &cursor{buf: data}

	name, err := r.readString()
	if err != nil {
		return nil, err
	}

	desc, ok := cat.Lookup(name)
	if !ok {
		return nil, newErr(UnknownType, "type %q not registered", name)
	}

	values := make(map[string]interface{}, len(desc.Fields))
	for len(values) < len(desc.Fields) && !r.done() {
		key, err := r.readString()
		if err != nil {
			return nil, err
		}
		kindIdx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		kind, ok := desc.KindAt(int(kindIdx))
		if !ok {
			return nil, newErr(KindOutOfRange, "kind index %d out of range for type %q", kindIdx, name)
		}
		spec, _, ok := desc.FieldSpec(key)
		if !ok {
			return nil, newErr(FieldKindMismatch, "field %q not declared for type %q", key, name)
		}
		if spec.Kind != kind {
			return nil, newErr(FieldKindMismatch, "field %q declared %s but stream says %s", key, spec.Kind, kind)
		}
		v, err := decodeValue(r, kind)
		if err != nil {
			return nil, err
		}
		values[key] = v
	}

	if r.pos != len(r.buf) {
		return nil, newErr(TrailingBytes, "%d trailing byte(s) after decoding %q", len(r.buf)-r.pos, name)
	}
	for _, spec := range desc.Fields {
		if _, ok := values[spec.Name]; !ok {
			return nil, newErr(Truncated, "input ended before field %q of type %q", spec.Name, name)
		}
	}

	return desc.New(values)
}

// --- value encoding ---

func encodeValue(buf *bytes.Buffer, kind Kind, v interface{}) error {
	switch kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return newErr(FieldKindMismatch, "expected string, got %T", v)
		}
		writeString(buf, s)
	case KindU32:
		n, ok := v.(uint32)
		if !ok {
			return newErr(FieldKindMismatch, "expected uint32, got %T", v)
		}
		writeU32(buf, n)
	case KindF32:
		f, ok := v.(float32)
		if !ok {
			return newErr(FieldKindMismatch, "expected float32, got %T", v)
		}
		writeF32(buf, f)
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return newErr(FieldKindMismatch, "expected bool, got %T", v)
		}
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindOptVec3:
		vec, ok := v.(*Vec3)
		if !ok {
			return newErr(FieldKindMismatch, "expected *Vec3, got %T", v)
		}
		if vec == nil {
			writeU32(buf, 0)
		} else {
			writeU32(buf, 3)
			writeF32(buf, vec.X)
			writeF32(buf, vec.Y)
			writeF32(buf, vec.Z)
		}
	case KindTensorF32:
		t, ok := v.(TensorF32)
		if !ok {
			return newErr(FieldKindMismatch, "expected TensorF32, got %T", v)
		}
		writeU32(buf, uint32(len(t.Shape)))
		for _, s := range t.Shape {
			writeU32(buf, s)
		}
		for _, f := range t.Data {
			writeF32(buf, f)
		}
	case KindTensorU8:
		t, ok := v.(TensorU8)
		if !ok {
			return newErr(FieldKindMismatch, "expected TensorU8, got %T", v)
		}
		writeU32(buf, uint32(len(t.Shape)))
		for _, s := range t.Shape {
			writeU32(buf, s)
		}
		buf.Write(t.Data)
	case KindTensorC64:
		t, ok := v.(TensorC64)
		if !ok {
			return newErr(FieldKindMismatch, "expected TensorC64, got %T", v)
		}
		writeU32(buf, uint32(len(t.Shape)))
		for _, s := range t.Shape {
			writeU32(buf, s)
		}
		for _, c := range t.Data {
			writeF32(buf, c.Real)
			writeF32(buf, c.Imag)
		}
	case KindSeqF32:
		seq, ok := v.([]float32)
		if !ok {
			return newErr(FieldKindMismatch, "expected []float32, got %T", v)
		}
		writeU32(buf, uint32(len(seq)))
		for _, f := range seq {
			writeF32(buf, f)
		}
	case KindSeqTensorF32:
		seq, ok := v.([]TensorF32)
		if !ok {
			return newErr(FieldKindMismatch, "expected []TensorF32, got %T", v)
		}
		writeU32(buf, uint32(len(seq)))
		for _, t := range seq {
			writeU32(buf, uint32(len(t.Shape)))
			for _, s := range t.Shape {
				writeU32(buf, s)
			}
			for _, f := range t.Data {
				writeF32(buf, f)
			}
		}
	case KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return newErr(FieldKindMismatch, "expected []byte, got %T", v)
		}
		writeU32(buf, uint32(len(b)))
		buf.Write(b)
	default:
		return newErr(FieldKindMismatch, "unknown kind %d", kind)
	}
	return nil
}

func decodeValue(r *cursor, kind Kind) (interface{}, error) {
	switch kind {
	case KindString:
		return r.readString()
	case KindU32:
		return r.readU32()
	case KindF32:
		return r.readF32()
	case KindBool:
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case KindOptVec3:
		presence, err := r.readU32()
		if err != nil {
			return nil, err
		}
		if presence == 0 {
			return (*Vec3)(nil), nil
		}
		x, err := r.readF32()
		if err != nil {
			return nil, err
		}
		y, err := r.readF32()
		if err != nil {
			return nil, err
		}
		z, err := r.readF32()
		if err != nil {
			return nil, err
		}
		return &Vec3{X: x, Y: y, Z: z}, nil
	case KindTensorF32:
		shape, err := r.readShape()
		if err != nil {
			return nil, err
		}
		data, err := r.readF32Slice(tensorLen(shape))
		if err != nil {
			return nil, err
		}
		return TensorF32{Shape: shape, Data: data}, nil
	case KindTensorU8:
		shape, err := r.readShape()
		if err != nil {
			return nil, err
		}
		n := tensorLen(shape)
		data, err := r.readBytes(n)
		if err != nil {
			return nil, err
		}
		out := make([]uint8, len(data))
		copy(out, data)
		return TensorU8{Shape: shape, Data: out}, nil
	case KindTensorC64:
		shape, err := r.readShape()
		if err != nil {
			return nil, err
		}
		n := tensorLen(shape)
		if err := r.require(n, 8); err != nil {
			return nil, err
		}
		data := make([]Complex64, 0, n)
		for i := uint64(0); i < n; i++ {
			re, err := r.readF32()
			if err != nil {
				return nil, err
			}
			im, err := r.readF32()
			if err != nil {
				return nil, err
			}
			data = append(data, Complex64{Real: re, Imag: im})
		}
		return TensorC64{Shape: shape, Data: data}, nil
	case KindSeqF32:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		return r.readF32Slice(uint64(count))
	case KindSeqTensorF32:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		// each element carries at least its rank word
		if err := r.require(uint64(count), 4); err != nil {
			return nil, err
		}
		out := make([]TensorF32, 0, count)
		for i := uint32(0); i < count; i++ {
			shape, err := r.readShape()
			if err != nil {
				return nil, err
			}
			data, err := r.readF32Slice(tensorLen(shape))
			if err != nil {
				return nil, err
			}
			out = append(out, TensorF32{Shape: shape, Data: data})
		}
		return out, nil
	case KindBytes:
		n, err := r.readU32()
		if err != nil {
			return nil, err
		}
		b, err := r.readBytes(uint64(n))
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	default:
		return nil, newErr(KindOutOfRange, "unknown kind %d", kind)
	}
}

func tensorLen(shape []uint32) uint64 {
	n := uint64(1)
	for _, s := range shape {
		n *= uint64(s)
	}
	return n
}

// --- low-level writers ---

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeF32(buf *bytes.Buffer, f float32) {
	writeU32(buf, math.Float32bits(f))
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

// --- low-level reader ---

// cursor walks data left to right, tracking how many bytes have been
// consumed so Decode can detect trailing bytes after a complete record.
type cursor struct {
	buf []byte
	pos int
}

func (r *cursor) done() bool { return r.pos >= len(r.buf) }

func (r *cursor) remaining() uint64 { return uint64(len(r.buf) - r.pos) }

// require rejects an element count whose payload cannot possibly fit in
// the remaining input, before anything is allocated for it. Counts come
// straight off untrusted datagrams; without this bound a single malformed
// shape or length field could drive a multi-gigabyte allocation.
func (r *cursor) require(count, elemSize uint64) error {
	if count > r.remaining()/elemSize {
		return newErr(Truncated, "need %d elements of %d byte(s), have %d bytes", count, elemSize, r.remaining())
	}
	return nil
}

func (r *cursor) readBytes(n uint64) ([]byte, error) {
	if n > uint64(len(r.buf)-r.pos) {
		return nil, newErr(Truncated, "need %d bytes, have %d", n, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *cursor) readByte() (byte, error) {
	b, err := r.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *cursor) readU32() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *cursor) readF32() (float32, error) {
	u, err := r.readU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

func (r *cursor) readString() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(uint64(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", newErr(InvalidUtf8, "string field is not valid utf-8")
	}
	return string(b), nil
}

func (r *cursor) readShape() ([]uint32, error) {
	rank, err := r.readU32()
	if err != nil {
		return nil, err
	}
	if err := r.require(uint64(rank), 4); err != nil {
		return nil, err
	}
	shape := make([]uint32, rank)
	for i := range shape {
		shape[i], err = r.readU32()
		if err != nil {
			return nil, err
		}
	}
	return shape, nil
}

func (r *cursor) readF32Slice(n uint64) ([]float32, error) {
	if err := r.require(n, 4); err != nil {
		return nil, err
	}
	out := make([]float32, 0, n)
	for i := uint64(0); i < n; i++ {
		f, err := r.readF32()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
