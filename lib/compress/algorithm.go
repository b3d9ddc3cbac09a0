// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies the compression applied to one logical block.
// Values are stored in the frame index (1 byte each) and are format
// constants.
type Algorithm uint8

const (
	// None stores the block as-is. Chosen automatically for blocks that
	// do not shrink under compression.
	None Algorithm = 0

	// LZ4 is LZ4 block compression. Fast, moderate ratio.
	LZ4 Algorithm = 1

	// Zstd is zstd at the default level. Better ratio for text-like and
	// serialized structured data.
	Zstd Algorithm = 2

	// BG4LZ4 transposes 4-byte groups before LZ4. Effective for float32
	// arrays whose neighbouring values share exponents.
	BG4LZ4 Algorithm = 3

	// Auto is not stored in frames. It asks the encoder to probe each
	// block and pick None, LZ4, or Zstd by compression ratio.
	Auto Algorithm = 255
)

// String returns the human-readable name of an algorithm.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case BG4LZ4:
		return "bg4_lz4"
	case Auto:
		return "auto"
	default:
		return fmt.Sprintf("unknown(%d)", a)
	}
}

// ParseAlgorithm parses an algorithm from its string representation.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	case "bg4_lz4":
		return BG4LZ4, nil
	case "auto", "":
		return Auto, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm: %q", name)
	}
}

// compressBlock compresses data using the specified algorithm. For
// None the input is returned unchanged (no copy). Returns
// errIncompressible when the output would not be smaller.
func compressBlock(data []byte, algorithm Algorithm) ([]byte, error) {
	switch algorithm {
	case None:
		return data, nil
	case LZ4:
		return compressLZ4(data)
	case Zstd:
		return compressZstd(data)
	case BG4LZ4:
		return compressLZ4(bg4Transpose(data))
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %d", algorithm)
	}
}

// decompressBlock reverses compressBlock. The uncompressedSize must
// match the original block length exactly.
func decompressBlock(compressed []byte, algorithm Algorithm, uncompressedSize int) ([]byte, error) {
	switch algorithm {
	case None:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("stored block: size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil
	case LZ4:
		return decompressLZ4(compressed, uncompressedSize)
	case Zstd:
		return decompressZstd(compressed, uncompressedSize)
	case BG4LZ4:
		transposed, err := decompressLZ4(compressed, uncompressedSize)
		if err != nil {
			return nil, err
		}
		return bg4Untranspose(transposed), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %d", algorithm)
	}
}

// encodeBlock compresses one logical block with the requested
// algorithm, resolving Auto and falling back to None for
// incompressible data. Returns the stored bytes and the algorithm
// actually used.
func encodeBlock(data []byte, algorithm Algorithm) ([]byte, Algorithm, error) {
	if algorithm == Auto {
		algorithm = selectAlgorithm(data)
	}
	compressed, err := compressBlock(data, algorithm)
	if err != nil {
		if errors.Is(err, errIncompressible) {
			return data, None, nil
		}
		return nil, 0, err
	}
	return compressed, algorithm, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errIncompressible
	}
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstdEncoder and zstdDecoder are shared by all calls. Both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, 0, min(uncompressedSize, maxInitialOutput))
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}

// bg4Transpose groups byte 0 of every 4-byte word, then byte 1, and
// so on. Trailing bytes beyond the last full group are kept in place.
func bg4Transpose(data []byte) []byte {
	groupCount := len(data) / 4
	output := make([]byte, len(data))
	for i := 0; i < groupCount; i++ {
		output[i] = data[i*4]
		output[groupCount+i] = data[i*4+1]
		output[groupCount*2+i] = data[i*4+2]
		output[groupCount*3+i] = data[i*4+3]
	}
	copy(output[groupCount*4:], data[groupCount*4:])
	return output
}

// bg4Untranspose reverses bg4Transpose.
func bg4Untranspose(data []byte) []byte {
	groupCount := len(data) / 4
	output := make([]byte, len(data))
	for i := 0; i < groupCount; i++ {
		output[i*4] = data[i]
		output[i*4+1] = data[groupCount+i]
		output[i*4+2] = data[groupCount*2+i]
		output[i*4+3] = data[groupCount*3+i]
	}
	copy(output[groupCount*4:], data[groupCount*4:])
	return output
}

// errIncompressible means the compressed form would not be smaller.
// encodeBlock turns it into a None block.
var errIncompressible = errors.New("data is incompressible")

// probeSize caps how much of a block the Auto probe compresses.
const probeSize = 256 * 1024

// selectAlgorithm probes a prefix of data with zstd. Ratios of 1.5x or
// better pick zstd, 1.1x to 1.5x pick LZ4 (faster with acceptable
// ratio), and anything lower is stored uncompressed.
func selectAlgorithm(data []byte) Algorithm {
	if len(data) == 0 {
		return None
	}
	probe := data
	if len(probe) > probeSize {
		probe = probe[:probeSize]
	}
	compressed := zstdEncoder.EncodeAll(probe, nil)
	ratio := float64(len(probe)) / float64(len(compressed))
	switch {
	case ratio >= 1.5:
		return Zstd
	case ratio >= 1.1:
		return LZ4
	default:
		return None
	}
}

// Float32SliceToBytes converts float32 values to little-endian bytes.
// Leaf payloads of float32 arrays use this layout, which is what
// BG4LZ4 is tuned for.
func Float32SliceToBytes(values []float32) []byte {
	result := make([]byte, len(values)*4)
	for i, value := range values {
		binary.LittleEndian.PutUint32(result[i*4:], math.Float32bits(value))
	}
	return result
}
