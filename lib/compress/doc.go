// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress implements the two-level chunked compression used
// for leaf payloads in a slurmflow container.
//
// The two layers are independent:
//
//   - Logical blocks: the payload is split into BlockSize pieces, each
//     compressed on its own (none, LZ4, zstd, or ByteGrouping4+LZ4) and
//     gathered into a single frame. The frame header carries the block
//     index, the total payload length, and a domain-keyed BLAKE3
//     digest of the uncompressed payload.
//
//   - Physical chunks: the frame is partitioned into ChunkSize pieces,
//     which is the size bound of a single storage record. Chunks are
//     numbered contiguously from zero.
//
// [Encode] and [Decode] are exact inverses. Decode never silently
// drops data: a missing, reordered, or truncated chunk, an unknown
// block algorithm, a decompression failure, or a digest mismatch all
// return an error wrapping [ErrCorruptData].
package compress
