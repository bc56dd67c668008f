package persist

import (
	"encoding/binary"
	"fmt"
	"os"
)

// writeWAV writes pcm (16-bit little-endian mono samples) to path as a
// canonical 44-byte-header PCM WAVE file. There is no WAV-encoding library
// anywhere in the example corpus and the format itself is a fixed,
// well-known binary layout, so this is written directly against
// encoding/binary rather than reaching for a dependency that doesn't exist
// in the corpus.
func writeWAV(path string, pcm []byte, sampleRate int) error {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persist: create wav: %w", err)
	}
	defer f.Close()

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(bitsPerSample))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("persist: write wav header: %w", err)
	}
	if _, err := f.Write(pcm); err != nil {
		return fmt.Errorf("persist: write wav data: %w", err)
	}
	return nil
}
