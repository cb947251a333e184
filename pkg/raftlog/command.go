package raftlog

import "encoding/json"

// Command is one entry appended to the replicated log. Target names the
// table the entry belongs to; Op is the apply-time operation within that target.
type Command struct {
	Target string          `json:"target"`
	Op     string          `json:"op"`
	Data   json.RawMessage `json:"data"`
	// DedupKey, when non-empty, lets the applier derive a stable
	// ContainerID for a command a client may have retried
	// after a timeout rather than allocating a fresh one (
	// Open Question on ContainerId generation).
	DedupKey string `json:"dedup_key,omitempty"`
}

const (
	TargetNode      = "NODE"
	TargetPipeline  = "PIPELINE"
	TargetContainer = "CONTAINER"
	TargetMeta      = "META"
)

func encodeCommand(target, op string, data interface{}, dedupKey string) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Command{Target: target, Op: op, Data: raw, DedupKey: dedupKey})
}
