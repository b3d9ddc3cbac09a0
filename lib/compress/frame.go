// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DefaultChunkSize is the default bound, in bytes, for both logical
// blocks and physical chunks.
const DefaultChunkSize = 10_000_000

// ErrCorruptData is wrapped by every Decode failure: malformed,
// truncated, or reordered chunk input, or a payload that fails
// decompression or verification.
var ErrCorruptData = errors.New("corrupt data")

// Frame format constants.
const (
	frameVersion = 1

	// frameHeaderSize is magic (4) + version (1) + reserved (3) +
	// total length (8) + block size (4) + block count (4) + digest (32).
	frameHeaderSize = 56

	// blockEntrySize is algorithm (1) + reserved (3) + compressed
	// size (4) + uncompressed size (4).
	blockEntrySize = 12
)

// frameMagic is the 4-byte frame signature.
var frameMagic = [4]byte{'S', 'F', 'L', 'W'}

// Chunk is one physical storage record of an encoded payload.
type Chunk struct {
	// Index is the zero-based sequence number of the chunk.
	Index int

	// Data is a slice of the compressed frame, at most ChunkSize bytes.
	Data []byte
}

// Options controls Encode. The zero value is not usable directly; use
// [DefaultOptions] and override fields.
type Options struct {
	// ChunkSize bounds the size of each physical chunk.
	ChunkSize int

	// BlockSize bounds the size of each logical compression block. Zero
	// means ChunkSize.
	BlockSize int

	// Algorithm is applied to every block. Auto probes per block.
	Algorithm Algorithm
}

// DefaultOptions returns 10,000,000-byte blocks and chunks with
// per-block automatic algorithm selection.
func DefaultOptions() Options {
	return Options{
		ChunkSize: DefaultChunkSize,
		Algorithm: Auto,
	}
}

func (o Options) validate() (Options, error) {
	if o.ChunkSize <= 0 {
		return o, fmt.Errorf("chunk size must be positive, got %d", o.ChunkSize)
	}
	if o.BlockSize == 0 {
		o.BlockSize = o.ChunkSize
	}
	if o.BlockSize < 0 || int64(o.BlockSize) > int64(^uint32(0)) {
		return o, fmt.Errorf("block size %d out of range", o.BlockSize)
	}
	if o.Algorithm > BG4LZ4 && o.Algorithm != Auto {
		return o, fmt.Errorf("unsupported compression algorithm: %d", o.Algorithm)
	}
	return o, nil
}

// blockEntry describes one logical block in the frame index.
type blockEntry struct {
	algorithm        Algorithm
	compressedSize   uint32
	uncompressedSize uint32
}

// Encode compresses data into a frame and partitions the frame into
// chunks. The result always contains at least one chunk, including
// for empty input.
func Encode(data []byte, options Options) ([]Chunk, error) {
	options, err := options.validate()
	if err != nil {
		return nil, err
	}

	blockCount := (len(data) + options.BlockSize - 1) / options.BlockSize
	index := make([]blockEntry, 0, blockCount)
	blocks := make([][]byte, 0, blockCount)
	dataSize := 0
	for offset := 0; offset < len(data); offset += options.BlockSize {
		end := min(offset+options.BlockSize, len(data))
		stored, algorithm, err := encodeBlock(data[offset:end], options.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("compressing block %d: %w", len(blocks), err)
		}
		index = append(index, blockEntry{
			algorithm:        algorithm,
			compressedSize:   uint32(len(stored)),
			uncompressedSize: uint32(end - offset),
		})
		blocks = append(blocks, stored)
		dataSize += len(stored)
	}

	frame := make([]byte, 0, frameHeaderSize+len(index)*blockEntrySize+dataSize)
	frame = append(frame, frameMagic[:]...)
	frame = append(frame, frameVersion, 0, 0, 0)
	frame = binary.LittleEndian.AppendUint64(frame, uint64(len(data)))
	frame = binary.LittleEndian.AppendUint32(frame, uint32(options.BlockSize))
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(index)))
	digest := HashPayload(data)
	frame = append(frame, digest[:]...)
	for _, entry := range index {
		frame = append(frame, byte(entry.algorithm), 0, 0, 0)
		frame = binary.LittleEndian.AppendUint32(frame, entry.compressedSize)
		frame = binary.LittleEndian.AppendUint32(frame, entry.uncompressedSize)
	}
	for _, block := range blocks {
		frame = append(frame, block...)
	}

	return Partition(frame, options.ChunkSize), nil
}

// Partition splits a frame into contiguous chunks of at most
// chunkSize bytes. The chunks alias frame.
func Partition(frame []byte, chunkSize int) []Chunk {
	if len(frame) == 0 {
		return []Chunk{{Index: 0, Data: frame}}
	}
	chunks := make([]Chunk, 0, (len(frame)+chunkSize-1)/chunkSize)
	for offset := 0; offset < len(frame); offset += chunkSize {
		end := min(offset+chunkSize, len(frame))
		chunks = append(chunks, Chunk{Index: len(chunks), Data: frame[offset:end]})
	}
	return chunks
}

// Assemble concatenates chunks back into a frame. Chunks must be
// numbered 0..n-1 in order; any gap or reordering is corrupt data.
func Assemble(chunks []Chunk) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", ErrCorruptData)
	}
	total := 0
	for position, chunk := range chunks {
		if chunk.Index != position {
			return nil, fmt.Errorf("%w: chunk at position %d has index %d", ErrCorruptData, position, chunk.Index)
		}
		total += len(chunk.Data)
	}
	frame := make([]byte, 0, total)
	for _, chunk := range chunks {
		frame = append(frame, chunk.Data...)
	}
	return frame, nil
}

// Decode reassembles chunks into a frame, decompresses every logical
// block in order, and verifies the payload length and digest.
func Decode(chunks []Chunk) ([]byte, error) {
	frame, err := Assemble(chunks)
	if err != nil {
		return nil, err
	}
	return DecodeFrame(frame)
}

// DecodeFrame decompresses a complete frame.
func DecodeFrame(frame []byte) ([]byte, error) {
	header, err := parseHeader(frame)
	if err != nil {
		return nil, err
	}

	indexEnd := frameHeaderSize + int(header.blockCount)*blockEntrySize
	if indexEnd < frameHeaderSize || indexEnd > len(frame) {
		return nil, fmt.Errorf("%w: frame truncated in block index (%d blocks, %d bytes)",
			ErrCorruptData, header.blockCount, len(frame))
	}

	// Every index entry is checked before anything is allocated. The
	// header total is untrusted until the digest matches.
	entries := make([]blockEntry, header.blockCount)
	var declared uint64
	remaining := len(frame) - indexEnd
	for i := range entries {
		entryStart := frameHeaderSize + i*blockEntrySize
		entry, err := parseBlockEntry(frame[entryStart:entryStart+blockEntrySize], header.blockSize)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrCorruptData, i, err)
		}
		if uint64(entry.compressedSize) > uint64(remaining) {
			return nil, fmt.Errorf("%w: frame truncated in block %d (need %d bytes, have %d)",
				ErrCorruptData, i, entry.compressedSize, remaining)
		}
		remaining -= int(entry.compressedSize)
		declared += uint64(entry.uncompressedSize)
		entries[i] = entry
	}
	if remaining != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after last block", ErrCorruptData, remaining)
	}
	if declared != header.total {
		return nil, fmt.Errorf("%w: block index declares %d bytes, frame header declares %d",
			ErrCorruptData, declared, header.total)
	}
	output := make([]byte, 0, min(header.total, maxInitialOutput))

	offset := indexEnd
	for i, entry := range entries {
		end := offset + int(entry.compressedSize)
		block, err := decompressBlock(frame[offset:end], entry.algorithm, int(entry.uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrCorruptData, i, err)
		}
		output = append(output, block...)
		offset = end
	}

	if uint64(len(output)) != header.total {
		return nil, fmt.Errorf("%w: decoded %d bytes, frame declares %d", ErrCorruptData, len(output), header.total)
	}
	if HashPayload(output) != header.digest {
		return nil, fmt.Errorf("%w: payload digest mismatch", ErrCorruptData)
	}
	return output, nil
}

// maxInitialOutput caps the buffer DecodeFrame reserves up front.
// Larger payloads grow it as blocks decode.
const maxInitialOutput = 64 << 20

// lz4MaxRatio bounds how far an LZ4 block can expand: one match byte
// extends a match by at most 255 bytes.
const lz4MaxRatio = 255

func parseBlockEntry(entry []byte, blockSize uint32) (blockEntry, error) {
	if entry[1] != 0 || entry[2] != 0 || entry[3] != 0 {
		return blockEntry{}, fmt.Errorf("non-zero reserved bytes")
	}
	compressed := binary.LittleEndian.Uint32(entry[4:8])
	uncompressed := binary.LittleEndian.Uint32(entry[8:12])
	parsed := blockEntry{
		algorithm:        Algorithm(entry[0]),
		compressedSize:   compressed,
		uncompressedSize: uncompressed,
	}
	if uncompressed > blockSize {
		return blockEntry{}, fmt.Errorf("declares %d bytes, above block size %d", uncompressed, blockSize)
	}
	switch parsed.algorithm {
	case None:
		if compressed != uncompressed {
			return blockEntry{}, fmt.Errorf("stored block of %d bytes declares %d", compressed, uncompressed)
		}
	case LZ4, BG4LZ4:
		if uint64(uncompressed) > uint64(compressed)*lz4MaxRatio+16 {
			return blockEntry{}, fmt.Errorf("%d lz4 bytes cannot expand to %d", compressed, uncompressed)
		}
	case Zstd:
	default:
		return blockEntry{}, fmt.Errorf("unsupported compression algorithm: %d", parsed.algorithm)
	}
	return parsed, nil
}

// frameHeader is the parsed fixed-size frame header.
type frameHeader struct {
	total      uint64
	blockSize  uint32
	blockCount uint32
	digest     Digest
}

func parseHeader(frame []byte) (frameHeader, error) {
	if len(frame) < frameHeaderSize {
		return frameHeader{}, fmt.Errorf("%w: frame is %d bytes, shorter than the %d-byte header",
			ErrCorruptData, len(frame), frameHeaderSize)
	}
	if [4]byte(frame[0:4]) != frameMagic {
		return frameHeader{}, fmt.Errorf("%w: not a slurmflow frame (invalid magic bytes)", ErrCorruptData)
	}
	if frame[4] != frameVersion {
		return frameHeader{}, fmt.Errorf("%w: frame version %d is not supported (this code supports version %d)",
			ErrCorruptData, frame[4], frameVersion)
	}
	if frame[5] != 0 || frame[6] != 0 || frame[7] != 0 {
		return frameHeader{}, fmt.Errorf("%w: non-zero reserved header bytes", ErrCorruptData)
	}
	header := frameHeader{
		total:      binary.LittleEndian.Uint64(frame[8:16]),
		blockSize:  binary.LittleEndian.Uint32(frame[16:20]),
		blockCount: binary.LittleEndian.Uint32(frame[20:24]),
	}
	copy(header.digest[:], frame[24:56])
	if header.blockCount > 0 && header.blockSize == 0 {
		return frameHeader{}, fmt.Errorf("%w: zero block size with %d blocks", ErrCorruptData, header.blockCount)
	}
	if header.total > uint64(header.blockCount)*uint64(header.blockSize) {
		return frameHeader{}, fmt.Errorf("%w: declared payload length %d exceeds %d blocks of %d bytes",
			ErrCorruptData, header.total, header.blockCount, header.blockSize)
	}
	return header, nil
}
