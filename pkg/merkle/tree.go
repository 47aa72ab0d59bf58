// Package merkle builds batch commitment trees over action leaves and
// verifies inclusion proofs against their roots.
//
// One pairing convention holds everywhere: leaves are paired left-to-right in
// positional order, never sorted, and the last leaf of an odd level is
// promoted to the next level unchanged. ComputeRoot, BuildProof and
// VerifyProof all follow it, so every generated proof verifies.
package merkle

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

// Digest is a tree node hash.
type Digest = [32]byte

const (
	leafPrefix = "chronicler:action:leaf:v1"
	nodePrefix = "chronicler:action:node:v1"
)

// ZeroDigest is the defined root of an empty leaf set.
var ZeroDigest Digest

// HashLeaf computes the leaf digest of an action. The encoding is fixed so
// the digest is bit-for-bit stable across implementations: domain prefix,
// then each field in order (action_id, agent_id, tool_id, data_hash,
// timestamp, status, resource_cost), strings length-delimited and integers
// big-endian 64-bit.
func HashLeaf(a contracts.Action) Digest {
	h := sha256.New()
	h.Write([]byte(leafPrefix))
	h.Write([]byte{0})
	writeString(h, a.ActionID)
	writeString(h, a.AgentID)
	writeString(h, a.ToolID)
	writeString(h, a.DataHash)
	writeInt64(h, a.Timestamp.Unix())
	writeString(h, string(a.Status))
	writeInt64(h, a.ResourceCost)

	var d Digest
	h.Sum(d[:0])
	return d
}

func writeString(h hash.Hash, s string) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(s)))
	h.Write(length[:])
	h.Write([]byte(s))
}

func writeInt64(h hash.Hash, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	h.Write(buf[:])
}

// hashNode combines two child digests in positional order.
func hashNode(left, right Digest) Digest {
	h := sha256.New()
	h.Write([]byte(nodePrefix))
	h.Write([]byte{0})
	h.Write(left[:])
	h.Write(right[:])

	var d Digest
	h.Sum(d[:0])
	return d
}

// ComputeRoot reduces the ordered leaf digests to a single root.
// Empty input yields ZeroDigest; a single leaf is its own root.
func ComputeRoot(leaves []Digest) Digest {
	if len(leaves) == 0 {
		return ZeroDigest
	}

	level := make([]Digest, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([]Digest, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, hashNode(level[i], level[i+1]))
		}
		if len(level)%2 == 1 {
			// Odd node promoted unchanged, not duplicated.
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}

// EncodeDigest renders a digest as the hex string stored on commitments.
func EncodeDigest(d Digest) string {
	return hex.EncodeToString(d[:])
}

// DecodeDigest parses a stored hex root.
func DecodeDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	if len(raw) != len(d) {
		return d, hex.ErrLength
	}
	copy(d[:], raw)
	return d, nil
}
