package merkle

import "fmt"

// ProofStep is one sibling on the path from a leaf to the root. Right reports
// which side the sibling sits on when the pair is hashed.
type ProofStep struct {
	Sibling Digest `json:"sibling"`
	Right   bool   `json:"right"`
}

// BuildProof returns the sibling path for the leaf at index. Levels where the
// leaf is a promoted odd node contribute no step.
func BuildProof(leaves []Digest, index int) ([]ProofStep, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", index, len(leaves))
	}

	level := make([]Digest, len(leaves))
	copy(level, leaves)

	var proof []ProofStep
	pos := index
	for len(level) > 1 {
		if pos%2 == 0 && pos+1 < len(level) {
			proof = append(proof, ProofStep{Sibling: level[pos+1], Right: true})
		} else if pos%2 == 1 {
			proof = append(proof, ProofStep{Sibling: level[pos-1], Right: false})
		}
		// pos%2 == 0 && pos == len(level)-1: promoted, no step.

		next := make([]Digest, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, hashNode(level[i], level[i+1]))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
		pos /= 2
	}
	return proof, nil
}

// VerifyProof recomputes the path from leaf to root and compares. A mismatch
// is a legitimate verification outcome, not an error.
func VerifyProof(leaf Digest, proof []ProofStep, root Digest) bool {
	current := leaf
	for _, step := range proof {
		if step.Right {
			current = hashNode(current, step.Sibling)
		} else {
			current = hashNode(step.Sibling, current)
		}
	}
	return current == root
}
