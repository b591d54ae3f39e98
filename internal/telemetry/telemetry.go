// Package telemetry holds the concrete registered record types exchanged
// once a direct link is established: camera frames, audio FFT spectra,
// and IMU/environmental sensor readings, each declared field-for-field
// against the codec's kind-indexed field model.
package telemetry

import (
	"robotlink/internal/codec"
	"robotlink/internal/rendezvous"
)

// Register populates cat with every telemetry type's descriptor, plus
// rendezvous.LinkParameters so callers need only one registration call.
// Both peers must call this once, at startup, before rendezvous or
// session traffic begins, with an identical set of registrations — the
// catalog's type names and field orders must match byte-for-byte on
// both ends or decoding will fail or misinterpret a field.
func Register(cat *codec.Catalog) {
	rendezvous.Register(cat)
	cat.Register(cvCamFrameDescriptor())
	cat.Register(mjpegCamFrameDescriptor())
	cat.Register(audioBufferDescriptor())
	cat.Register(imuBufferDescriptor())
	cat.Register(humidityWaterBufferDescriptor())
	cat.Register(temperatureMonitorBufferDescriptor())
}

// CVCamFrame carries a decoded camera frame as a dense uint8 tensor
// alongside the sensor's brightness/exposure settings.
type CVCamFrame struct {
	Image      codec.TensorU8
	Brightness uint32
	Exposure   uint32
}

func (f CVCamFrame) TypeName() string { return "CVCamFrame" }
func (f CVCamFrame) FieldValues() map[string]interface{} {
	return map[string]interface{}{
		"image":      f.Image,
		"brightness": f.Brightness,
		"exposure":   f.Exposure,
	}
}

func cvCamFrameDescriptor() *codec.Descriptor {
	return &codec.Descriptor{
		Name: "CVCamFrame",
		Fields: []codec.FieldSpec{
			{Name: "image", Kind: codec.KindTensorU8},
			{Name: "brightness", Kind: codec.KindU32},
			{Name: "exposure", Kind: codec.KindU32},
		},
		New: func(v map[string]interface{}) (interface{}, error) {
			return CVCamFrame{
				Image:      v["image"].(codec.TensorU8),
				Brightness: v["brightness"].(uint32),
				Exposure:   v["exposure"].(uint32),
			}, nil
		},
	}
}

// MJpegCamFrame carries an already-encoded JPEG frame, avoiding the cost
// of re-encoding a raw tensor on the wire.
type MJpegCamFrame struct {
	Mjpeg      []byte
	Brightness uint32
	Exposure   uint32
}

func (f MJpegCamFrame) TypeName() string { return "MJpegCamFrame" }
func (f MJpegCamFrame) FieldValues() map[string]interface{} {
	return map[string]interface{}{
		"mjpeg":      f.Mjpeg,
		"brightness": f.Brightness,
		"exposure":   f.Exposure,
	}
}

func mjpegCamFrameDescriptor() *codec.Descriptor {
	return &codec.Descriptor{
		Name: "MJpegCamFrame",
		Fields: []codec.FieldSpec{
			{Name: "mjpeg", Kind: codec.KindBytes},
			{Name: "brightness", Kind: codec.KindU32},
			{Name: "exposure", Kind: codec.KindU32},
		},
		New: func(v map[string]interface{}) (interface{}, error) {
			return MJpegCamFrame{
				Mjpeg:      v["mjpeg"].([]byte),
				Brightness: v["brightness"].(uint32),
				Exposure:   v["exposure"].(uint32),
			}, nil
		},
	}
}

// AudioBuffer carries one microphone FFT window.
type AudioBuffer struct {
	SampleRate    uint32
	SamplesPerSec uint32
	FFTData       codec.TensorC64
}

func (a AudioBuffer) TypeName() string { return "AudioBuffer" }
func (a AudioBuffer) FieldValues() map[string]interface{} {
	return map[string]interface{}{
		"sample_rate":     a.SampleRate,
		"samples_per_sec": a.SamplesPerSec,
		"fft_data":        a.FFTData,
	}
}

func audioBufferDescriptor() *codec.Descriptor {
	return &codec.Descriptor{
		Name: "AudioBuffer",
		Fields: []codec.FieldSpec{
			{Name: "sample_rate", Kind: codec.KindU32},
			{Name: "samples_per_sec", Kind: codec.KindU32},
			{Name: "fft_data", Kind: codec.KindTensorC64},
		},
		New: func(v map[string]interface{}) (interface{}, error) {
			return AudioBuffer{
				SampleRate:    v["sample_rate"].(uint32),
				SamplesPerSec: v["samples_per_sec"].(uint32),
				FFTData:       v["fft_data"].(codec.TensorC64),
			}, nil
		},
	}
}

// IMUBuffer carries accelerometer/gyroscope/magnetometer readings. Each
// axis triple is independently optional: a sensor that isn't present on a
// given robot encodes as a nil pointer rather than zeros.
type IMUBuffer struct {
	AccelData *codec.Vec3
	GyroData  *codec.Vec3
	MagData   *codec.Vec3
}

func (i IMUBuffer) TypeName() string { return "IMUBuffer" }
func (i IMUBuffer) FieldValues() map[string]interface{} {
	return map[string]interface{}{
		"accel_data": i.AccelData,
		"gyro_data":  i.GyroData,
		"mag_data":   i.MagData,
	}
}

func imuBufferDescriptor() *codec.Descriptor {
	return &codec.Descriptor{
		Name: "IMUBuffer",
		Fields: []codec.FieldSpec{
			{Name: "accel_data", Kind: codec.KindOptVec3},
			{Name: "gyro_data", Kind: codec.KindOptVec3},
			{Name: "mag_data", Kind: codec.KindOptVec3},
		},
		New: func(v map[string]interface{}) (interface{}, error) {
			return IMUBuffer{
				AccelData: v["accel_data"].(*codec.Vec3),
				GyroData:  v["gyro_data"].(*codec.Vec3),
				MagData:   v["mag_data"].(*codec.Vec3),
			}, nil
		},
	}
}

// HumidityWaterBuffer carries a single environmental sensor reading.
type HumidityWaterBuffer struct {
	Humidity      float32
	WaterDetected bool
}

func (h HumidityWaterBuffer) TypeName() string { return "HumidityWaterBuffer" }
func (h HumidityWaterBuffer) FieldValues() map[string]interface{} {
	return map[string]interface{}{
		"humidity":       h.Humidity,
		"water_detected": h.WaterDetected,
	}
}

func humidityWaterBufferDescriptor() *codec.Descriptor {
	return &codec.Descriptor{
		Name: "HumidityWaterBuffer",
		Fields: []codec.FieldSpec{
			{Name: "humidity", Kind: codec.KindF32},
			{Name: "water_detected", Kind: codec.KindBool},
		},
		New: func(v map[string]interface{}) (interface{}, error) {
			return HumidityWaterBuffer{
				Humidity:      v["humidity"].(float32),
				WaterDetected: v["water_detected"].(bool),
			}, nil
		},
	}
}

// TemperatureMonitorBuffer carries readings from multiple temperature channels.
type TemperatureMonitorBuffer struct {
	TemperatureReadings []float32
}

func (t TemperatureMonitorBuffer) TypeName() string { return "TemperatureMonitorBuffer" }
func (t TemperatureMonitorBuffer) FieldValues() map[string]interface{} {
	return map[string]interface{}{"temperature_readings": t.TemperatureReadings}
}

func temperatureMonitorBufferDescriptor() *codec.Descriptor {
	return &codec.Descriptor{
		Name:   "TemperatureMonitorBuffer",
		Fields: []codec.FieldSpec{{Name: "temperature_readings", Kind: codec.KindSeqF32}},
		New: func(v map[string]interface{}) (interface{}, error) {
			return TemperatureMonitorBuffer{TemperatureReadings: v["temperature_readings"].([]float32)}, nil
		},
	}
}
