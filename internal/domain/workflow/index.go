package workflow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/runlens/runlens/internal/domain/event"
)

// NodeID identifies one executable position in a workflow graph. IDs are
// stable for the lifetime of the descriptor they were built from.
type NodeID string

// Node is the resolved identity of one step of one stage.
type Node struct {
	ID       NodeID `json:"id"`
	Stage    string `json:"stage"`
	Step     string `json:"step"`
	AgentKey string `json:"agent_key,omitempty"`
	Mode     Mode   `json:"mode"`
	StageIdx int    `json:"stage_index"`
	StepIdx  int    `json:"step_index"`
}

// Index maps event workflow coordinates to graph nodes. Built once per
// descriptor and immutable afterwards, so it is safe to share across
// goroutines without locking.
type Index struct {
	key      string
	nodes    []Node
	byID     map[NodeID]int
	exact    map[string]NodeID // stage+step+branch
	byAgent  map[string]NodeID // stage+agent+branch
	byBranch map[string]NodeID // stage+branch, parallel stages only
}

// NewIndex validates the descriptor and builds its lookup index. Steps of
// parallel stages are registered under their declared position as branch
// index; sequential steps carry no branch. Parallel steps additionally get
// branch-free aliases so fully named events resolve without a branch
// index (first declaration wins on alias collisions).
func NewIndex(d *Descriptor) (*Index, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("index workflow %q: %w", d.Key, err)
	}

	idx := &Index{
		key:      d.Key,
		byID:     make(map[NodeID]int),
		exact:    make(map[string]NodeID),
		byAgent:  make(map[string]NodeID),
		byBranch: make(map[string]NodeID),
	}

	for si, st := range d.Stages {
		mode := st.Mode
		if mode == "" {
			mode = ModeSequential
		}
		for pi, sp := range st.Steps {
			node := Node{
				ID:       NodeID("n" + strconv.Itoa(si) + "." + strconv.Itoa(pi)),
				Stage:    st.Name,
				Step:     sp.Name,
				AgentKey: sp.AgentKey,
				Mode:     mode,
				StageIdx: si,
				StepIdx:  pi,
			}
			idx.byID[node.ID] = len(idx.nodes)
			idx.nodes = append(idx.nodes, node)

			branch := noBranch
			if mode == ModeParallel {
				branch = strconv.Itoa(pi)
				idx.put(idx.byBranch, lookupKey(st.Name, branch), node.ID)
				// alias without branch for producers that name the step
				idx.put(idx.exact, lookupKey(st.Name, sp.Name, noBranch), node.ID)
				if sp.AgentKey != "" {
					idx.put(idx.byAgent, lookupKey(st.Name, sp.AgentKey, noBranch), node.ID)
				}
			}
			idx.put(idx.exact, lookupKey(st.Name, sp.Name, branch), node.ID)
			if sp.AgentKey != "" {
				idx.put(idx.byAgent, lookupKey(st.Name, sp.AgentKey, branch), node.ID)
			}
		}
	}

	return idx, nil
}

// Key returns the workflow key the index was built for.
func (x *Index) Key() string { return x.key }

// Nodes returns every node in declaration order. Callers must not mutate
// the returned slice.
func (x *Index) Nodes() []Node { return x.nodes }

// NodeIDs returns all node ids in declaration order.
func (x *Index) NodeIDs() []NodeID {
	ids := make([]NodeID, len(x.nodes))
	for i, n := range x.nodes {
		ids[i] = n.ID
	}
	return ids
}

// Node looks up a node by id.
func (x *Index) Node(id NodeID) (Node, bool) {
	i, ok := x.byID[id]
	if !ok {
		return Node{}, false
	}
	return x.nodes[i], true
}

// Resolve maps an event's workflow coordinates to a node. Events without
// a workflow context, with a foreign workflow key, or with no resolvable
// stage yield no match; callers drop such events silently.
func (x *Index) Resolve(c *event.Context) (NodeID, bool) {
	if c == nil {
		return "", false
	}
	if c.WorkflowKey != "" && c.WorkflowKey != x.key {
		return "", false
	}
	stage := c.Stage()
	if stage == "" {
		return "", false
	}

	branch := noBranch
	if c.BranchIndex != nil {
		branch = strconv.Itoa(*c.BranchIndex)
	}

	if c.StepName != "" {
		if id, ok := x.exact[lookupKey(stage, c.StepName, branch)]; ok {
			return id, true
		}
	}
	if c.StepAgent != "" {
		if id, ok := x.byAgent[lookupKey(stage, c.StepAgent, branch)]; ok {
			return id, true
		}
	}
	if c.BranchIndex != nil {
		if id, ok := x.byBranch[lookupKey(stage, branch)]; ok {
			return id, true
		}
	}
	return "", false
}

// noBranch stands in for an absent branch index inside lookup keys.
const noBranch = "-"

func lookupKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}

func (x *Index) put(m map[string]NodeID, key string, id NodeID) {
	if _, exists := m[key]; !exists {
		m[key] = id
	}
}
