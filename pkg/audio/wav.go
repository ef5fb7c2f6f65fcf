package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// WAV encoding for persisted speech segments. Finalized utterances are
// written as single-channel 16-bit PCM at the capture sample rate — the
// format the downstream transcription collaborator consumes.

const (
	wavHeaderSize  = 44
	wavFmtPCM      = 1
	wavBitsPerSamp = 16
)

// ErrNotWAV is returned by [DecodeWAV] when the input is not a RIFF/WAVE
// stream or uses an unsupported encoding.
var ErrNotWAV = errors.New("audio: not a 16-bit PCM WAV stream")

// EncodeWAV writes samples as a mono 16-bit PCM WAV stream. Float samples
// are clamped to [-1.0, 1.0] before quantisation.
func EncodeWAV(w io.Writer, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("audio: encode wav: invalid sample rate %d", sampleRate)
	}

	dataLen := len(samples) * 2
	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], wavFmtPCM)
	binary.LittleEndian.PutUint16(header[22:24], 1) // mono
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(header[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(header[34:36], wavBitsPerSamp)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("audio: encode wav header: %w", err)
	}

	pcm := make([]byte, dataLen)
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("audio: encode wav data: %w", err)
	}
	return nil
}

// DecodeWAV reads a 16-bit PCM WAV stream and returns the samples as floats
// in [-1.0, 1.0] together with the sample rate. Multi-channel input is
// downmixed to mono. Metadata chunks (LIST, fact and the like) between the
// header and the audio data are skipped, so recordings from arbitrary tools
// decode as long as the data itself is 16-bit PCM.
func DecodeWAV(r io.Reader) ([]float32, int, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("audio: decode wav header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var (
		channels   int
		sampleRate int
		haveFmt    bool
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Ran out of chunks without finding fmt + data.
				return nil, 0, ErrNotWAV
			}
			return nil, 0, fmt.Errorf("audio: decode wav chunk: %w", err)
		}
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch string(chunk[0:4]) {
		case "fmt ":
			if size < 16 {
				return nil, 0, ErrNotWAV
			}
			fmtChunk := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, fmtChunk); err != nil {
				return nil, 0, fmt.Errorf("audio: decode wav fmt chunk: %w", err)
			}
			if binary.LittleEndian.Uint16(fmtChunk[0:2]) != wavFmtPCM ||
				binary.LittleEndian.Uint16(fmtChunk[14:16]) != wavBitsPerSamp {
				return nil, 0, ErrNotWAV
			}
			channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			if channels <= 0 || sampleRate <= 0 {
				return nil, 0, ErrNotWAV
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, 0, ErrNotWAV
			}
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, 0, fmt.Errorf("audio: decode wav data: %w", err)
			}
			samples := make([]float32, len(data)/2)
			for i := range samples {
				samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
			}
			if channels > 1 {
				samples = DownmixInterleaved(samples, channels)
			}
			return samples, sampleRate, nil

		default:
			// Chunks are word-aligned; an odd size carries a pad byte.
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, 0, ErrNotWAV
			}
		}
	}
}
