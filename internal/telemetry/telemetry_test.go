package telemetry

import (
	"testing"

	"robotlink/internal/codec"
)

func newCatalog() *codec.Catalog {
	cat := codec.NewCatalog()
	Register(cat)
	return cat
}

func TestRoundTripCVCamFrame(t *testing.T) {
	cat := newCatalog()
	want := CVCamFrame{
		Image:      codec.TensorU8{Shape: []uint32{2, 2, 3}, Data: []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		Brightness: 128,
		Exposure:   33,
	}
	b, err := codec.Encode(cat, want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(cat, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := decoded.(CVCamFrame)
	if !ok {
		t.Fatalf("decoded type %T, want CVCamFrame", decoded)
	}
	if got.Brightness != want.Brightness || got.Exposure != want.Exposure {
		t.Fatalf("scalar mismatch: got %+v want %+v", got, want)
	}
	if len(got.Image.Data) != len(want.Image.Data) {
		t.Fatalf("image data length mismatch: got %d want %d", len(got.Image.Data), len(want.Image.Data))
	}
	for i := range got.Image.Data {
		if got.Image.Data[i] != want.Image.Data[i] {
			t.Fatalf("image byte %d mismatch: got %d want %d", i, got.Image.Data[i], want.Image.Data[i])
		}
	}
}

func TestRoundTripMJpegCamFrame(t *testing.T) {
	cat := newCatalog()
	want := MJpegCamFrame{Mjpeg: []byte{0xff, 0xd8, 0xff, 0xd9}, Brightness: 200, Exposure: 16}
	b, err := codec.Encode(cat, want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(cat, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(MJpegCamFrame)
	if string(got.Mjpeg) != string(want.Mjpeg) || got.Brightness != want.Brightness || got.Exposure != want.Exposure {
		t.Fatalf("mismatch: got %+v want %+v", got, want)
	}
}

func TestRoundTripAudioBuffer(t *testing.T) {
	cat := newCatalog()
	want := AudioBuffer{
		SampleRate:    44100,
		SamplesPerSec: 1024,
		FFTData: codec.TensorC64{
			Shape: []uint32{4},
			Data: []codec.Complex64{
				{Real: 1, Imag: -1},
				{Real: 0.5, Imag: 0.25},
				{Real: -2, Imag: 0},
				{Real: 0, Imag: 3.5},
			},
		},
	}
	b, err := codec.Encode(cat, want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(cat, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(AudioBuffer)
	if got.SampleRate != want.SampleRate || got.SamplesPerSec != want.SamplesPerSec {
		t.Fatalf("scalar mismatch: got %+v want %+v", got, want)
	}
	if len(got.FFTData.Data) != len(want.FFTData.Data) {
		t.Fatalf("fft length mismatch: got %d want %d", len(got.FFTData.Data), len(want.FFTData.Data))
	}
	for i := range got.FFTData.Data {
		if got.FFTData.Data[i] != want.FFTData.Data[i] {
			t.Fatalf("fft bin %d mismatch: got %+v want %+v", i, got.FFTData.Data[i], want.FFTData.Data[i])
		}
	}
}

func TestRoundTripIMUBufferAllPresent(t *testing.T) {
	cat := newCatalog()
	want := IMUBuffer{
		AccelData: &codec.Vec3{X: 0.1, Y: 0.2, Z: 9.8},
		GyroData:  &codec.Vec3{X: 1, Y: 2, Z: 3},
		MagData:   &codec.Vec3{X: -1, Y: -2, Z: -3},
	}
	b, err := codec.Encode(cat, want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(cat, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(IMUBuffer)
	if *got.AccelData != *want.AccelData || *got.GyroData != *want.GyroData || *got.MagData != *want.MagData {
		t.Fatalf("mismatch: got %+v want %+v", got, want)
	}
}

func TestRoundTripIMUBufferPartiallyAbsent(t *testing.T) {
	cat := newCatalog()
	want := IMUBuffer{
		AccelData: &codec.Vec3{X: 0.1, Y: 0.2, Z: 9.8},
		GyroData:  nil,
		MagData:   nil,
	}
	b, err := codec.Encode(cat, want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(cat, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(IMUBuffer)
	if got.AccelData == nil || *got.AccelData != *want.AccelData {
		t.Fatalf("accel mismatch: got %+v want %+v", got.AccelData, want.AccelData)
	}
	if got.GyroData != nil {
		t.Fatalf("expected absent gyro, got %+v", got.GyroData)
	}
	if got.MagData != nil {
		t.Fatalf("expected absent mag, got %+v", got.MagData)
	}
}

func TestRoundTripHumidityWaterBuffer(t *testing.T) {
	cat := newCatalog()
	want := HumidityWaterBuffer{Humidity: 55.5, WaterDetected: true}
	b, err := codec.Encode(cat, want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(cat, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(HumidityWaterBuffer)
	if got != want {
		t.Fatalf("mismatch: got %+v want %+v", got, want)
	}
}

func TestRoundTripTemperatureMonitorBuffer(t *testing.T) {
	cat := newCatalog()
	want := TemperatureMonitorBuffer{TemperatureReadings: []float32{21.5, 22.0, 19.75, 30.1}}
	b, err := codec.Encode(cat, want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(cat, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(TemperatureMonitorBuffer)
	if len(got.TemperatureReadings) != len(want.TemperatureReadings) {
		t.Fatalf("length mismatch: got %d want %d", len(got.TemperatureReadings), len(want.TemperatureReadings))
	}
	for i := range got.TemperatureReadings {
		if got.TemperatureReadings[i] != want.TemperatureReadings[i] {
			t.Fatalf("reading %d mismatch: got %v want %v", i, got.TemperatureReadings[i], want.TemperatureReadings[i])
		}
	}
}

func TestRegisterAlsoRegistersRendezvousTypes(t *testing.T) {
	cat := newCatalog()
	if _, ok := cat.Lookup("LinkParameters"); !ok {
		t.Fatalf("expected Register to also register rendezvous.LinkParameters")
	}
}
