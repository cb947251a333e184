// Package pipeline implements the Pipeline Manager: a single creation
// entrypoint over a pluggable placement policy, the
// same-member-set hash used to dedupe creation attempts, and the
// ALLOCATED → OPEN → DORMANT/CLOSED lifecycle driven by pipeline
// reports and a bounded quorum wait.
package pipeline

import (
	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/types"
)

// PlacementPolicy is the narrow capability of the design note:
// choose exactly needed nodes from candidates, none of them in
// exclude, optionally biased by sizeHint (bytes the pipeline should be
// able to absorb). Concrete policies are plain function values —
// random, topology-aware, EC-aware — no interface hierarchy.
type PlacementPolicy func(candidates []*types.NodeInfo, exclude map[types.NodeID]struct{}, needed int, sizeHint int64) ([]types.NodeID, error)

// RandomPlacement is the simplest policy: it takes the first `needed`
// eligible candidates in map-iteration order. Real deployments would
// inject a topology-aware or rack-diversity-aware variant instead —
// this one is deliberately naive, matching the "concrete policies are
// variants or injected function values" design note.
func RandomPlacement(candidates []*types.NodeInfo, exclude map[types.NodeID]struct{}, needed int, _ int64) ([]types.NodeID, error) {
	chosen := make([]types.NodeID, 0, needed)
	for _, n := range candidates {
		if _, excluded := exclude[n.ID]; excluded {
			continue
		}
		chosen = append(chosen, n.ID)
		if len(chosen) == needed {
			return chosen, nil
		}
	}
	return nil, scmerrors.New(scmerrors.InsufficientDatanodes, "not enough eligible datanodes for placement")
}
