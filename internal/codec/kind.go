// Package codec implements the wire codec for typed telemetry records:
// encoding a registered record into a length-prefixed byte string and
// decoding it back against a type catalog.
package codec

// Kind identifies the wire encoding of a single field value.
type Kind uint32

const (
	KindString Kind = iota
	KindU32
	KindF32
	KindBool
	KindOptVec3
	KindTensorF32
	KindTensorU8
	KindTensorC64
	KindSeqF32
	KindSeqTensorF32
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindU32:
		return "u32"
	case KindF32:
		return "f32"
	case KindBool:
		return "bool"
	case KindOptVec3:
		return "optional_vec3"
	case KindTensorF32:
		return "tensor_f32"
	case KindTensorU8:
		return "tensor_u8"
	case KindTensorC64:
		return "tensor_c64"
	case KindSeqF32:
		return "seq_f32"
	case KindSeqTensorF32:
		return "seq_tensor_f32"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Vec3 is an optional 3-tuple of floats (accelerometer/gyro/magnetometer
// style readings). A nil *Vec3 encodes as "absent".
type Vec3 struct {
	X, Y, Z float32
}

// Complex64 is a (real, imag) pair of 32-bit floats, matching the
// interleaved layout an FFT library typically produces.
type Complex64 struct {
	Real, Imag float32
}

// TensorF32 is a dense row-major tensor of 32-bit floats.
type TensorF32 struct {
	Shape []uint32
	Data  []float32
}

// TensorU8 is a dense row-major tensor of bytes (e.g. a decoded camera frame).
type TensorU8 struct {
	Shape []uint32
	Data  []uint8
}

// TensorC64 is a dense row-major tensor of complex64 values (e.g. an FFT).
type TensorC64 struct {
	Shape []uint32
	Data  []Complex64
}
