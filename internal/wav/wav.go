// Package wav reads and writes uncompressed 32-bit float PCM WAV files.
// Only the shape the recorder produces is supported: interleaved IEEE
// float samples at the capture rate, no resampling, no dithering.
package wav

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

const (
	formatIEEEFloat = 3
	headerSize      = 44
)

// Encoder writes float32 PCM frames to a WAV file, patching the header
// sizes on Close.
type Encoder struct {
	f          *os.File
	sampleRate int
	channels   int
	dataBytes  uint32
	scratch    []byte
}

// NewEncoder creates the file and writes a provisional header.
func NewEncoder(path string, sampleRate, channels int) (*Encoder, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid wav parameters: rate=%d channels=%d", sampleRate, channels)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	e := &Encoder{f: f, sampleRate: sampleRate, channels: channels}
	if err := e.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return e, nil
}

func (e *Encoder) writeHeader() error {
	var h [headerSize]byte
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+e.dataBytes)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], formatIEEEFloat)
	binary.LittleEndian.PutUint16(h[22:24], uint16(e.channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(e.sampleRate))
	byteRate := uint32(e.sampleRate * e.channels * 4)
	binary.LittleEndian.PutUint32(h[28:32], byteRate)
	binary.LittleEndian.PutUint16(h[32:34], uint16(e.channels*4))
	binary.LittleEndian.PutUint16(h[34:36], 32)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], e.dataBytes)
	_, err := e.f.WriteAt(h[:], 0)
	return err
}

// WriteSamples appends interleaved float32 samples.
func (e *Encoder) WriteSamples(samples []float32) error {
	need := len(samples) * 4
	if cap(e.scratch) < need {
		e.scratch = make([]byte, need)
	}
	buf := e.scratch[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	n, err := e.f.Write(buf)
	e.dataBytes += uint32(n)
	return err
}

// Frames returns the number of frames written so far.
func (e *Encoder) Frames() int {
	return int(e.dataBytes) / (4 * e.channels)
}

// Close patches the header, fsyncs, and closes the file.
func (e *Encoder) Close() error {
	if err := e.writeHeader(); err != nil {
		e.f.Close()
		return err
	}
	if err := e.f.Sync(); err != nil {
		e.f.Close()
		return err
	}
	return e.f.Close()
}

// File holds a fully decoded WAV.
type File struct {
	SampleRate int
	Channels   int
	Samples    []float32 // interleaved
}

// Frames returns the frame count.
func (f *File) Frames() int {
	if f.Channels == 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// Decode reads a float32 PCM WAV produced by Encoder.
func Decode(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < headerSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%s: not a RIFF/WAVE file", path)
	}

	// Walk chunks; some writers put extension chunks between fmt and data.
	var (
		sampleRate, channels int
		format               uint16
		pcm                  []byte
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%s: short fmt chunk", path)
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
		case "data":
			pcm = data[body : body+size]
		}
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if format != formatIEEEFloat {
		return nil, fmt.Errorf("%s: unsupported wav format %d (want IEEE float)", path, format)
	}
	if channels <= 0 || sampleRate <= 0 || pcm == nil {
		return nil, fmt.Errorf("%s: malformed wav", path)
	}

	samples := make([]float32, len(pcm)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
	}
	return &File{SampleRate: sampleRate, Channels: channels, Samples: samples}, nil
}
