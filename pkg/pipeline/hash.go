package pipeline

import (
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/apache/ozone-scm/pkg/types"
)

// memberSetHash computes a stable hash of a pipeline's member set: sort
// the member NodeIds ascending, join, hash with murmur3. Two pipelines
// with the same (type, factor, member set) always hash identically
// regardless of member-slice order.
func memberSetHash(members []types.NodeID) uint64 {
	sorted := make([]string, len(members))
	for i, m := range members {
		sorted[i] = string(m)
	}
	sort.Strings(sorted)
	return murmur3.Sum64([]byte(strings.Join(sorted, ",")))
}
