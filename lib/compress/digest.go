// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 keyed hash of an uncompressed payload.
type Digest [32]byte

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// payloadDomainKey separates payload digests from any other BLAKE3 use.
// It is a format constant: the ASCII domain name zero-padded to 32
// bytes.
var payloadDomainKey = [32]byte{
	's', 'l', 'u', 'r', 'm', 'f', 'l', 'o', 'w', '.', 'l', 'e', 'a', 'f', '.',
	'p', 'a', 'y', 'l', 'o', 'a', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashPayload computes the payload-domain digest of data.
func HashPayload(data []byte) Digest {
	hasher, err := blake3.NewKeyed(payloadDomainKey[:])
	if err != nil {
		panic("compress: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}
