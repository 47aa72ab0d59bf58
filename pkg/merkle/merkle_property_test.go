//go:build property
// +build property

// Property-based tests for tree determinism and proof round-trips.
package merkle

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

func actionsFromSeeds(seeds []string) []contracts.Action {
	actions := make([]contracts.Action, len(seeds))
	for i, seed := range seeds {
		actions[i] = contracts.Action{
			Index:        int64(i),
			ActionID:     seed,
			AgentID:      "agent-p",
			ToolID:       "tool-p",
			DataHash:     seed,
			Timestamp:    time.Unix(1700000000, 0).UTC(),
			Status:       contracts.StatusSuccess,
			ResourceCost: int64(len(seed)),
		}
	}
	return actions
}

// Property: every leaf of every tree verifies against the tree's root.
func TestProofRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("all proofs verify", prop.ForAll(
		func(seeds []string) bool {
			if len(seeds) == 0 {
				return true
			}
			actions := actionsFromSeeds(seeds)
			leaves := make([]Digest, len(actions))
			for i, a := range actions {
				leaves[i] = HashLeaf(a)
			}
			root := ComputeRoot(leaves)
			for i := range leaves {
				proof, err := BuildProof(leaves, i)
				if err != nil {
					return false
				}
				if !VerifyProof(leaves[i], proof, root) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("root is deterministic", prop.ForAll(
		func(seeds []string) bool {
			actions := actionsFromSeeds(seeds)
			leaves := make([]Digest, len(actions))
			for i, a := range actions {
				leaves[i] = HashLeaf(a)
			}
			return ComputeRoot(leaves) == ComputeRoot(leaves)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
