package inconsistency

import "fmt"

// ProvenanceGraph is a minimal in-memory adjacency-list DAG that records
// which candidates contradict which, grounded on the node/edge shape of
// the teacher's pkg/proofgraph.Graph, stripped of its Lamport-clock hash
// chaining (not needed here — this graph exists purely so a disagreement
// can be traced back to the nodes it links, not to authenticate a chain of
// custody).
type ProvenanceGraph struct {
	nodes   map[string]struct{}
	edges   []ProvenanceEdge
	edgeSeq uint64
}

// ProvenanceEdge is one directed "contradicts" link between two candidate
// nodes.
type ProvenanceEdge struct {
	ID   string
	From string
	To   string
	Kind string
}

// NewProvenanceGraph returns an empty graph.
func NewProvenanceGraph() *ProvenanceGraph {
	return &ProvenanceGraph{nodes: make(map[string]struct{})}
}

// CandidateNodeID computes the node id for a candidate within a task, per
// spec.md §4.6's "candidate:{taskId}:{candId}" naming.
func CandidateNodeID(taskID, candidateID string) string {
	return fmt.Sprintf("candidate:%s:%s", taskID, candidateID)
}

// UpsertNode registers id if not already present; idempotent.
func (g *ProvenanceGraph) UpsertNode(id string) {
	g.nodes[id] = struct{}{}
}

// AddContradictsEdge links from→to with kind "contradicts" and returns the
// new edge's id.
func (g *ProvenanceGraph) AddContradictsEdge(from, to string) string {
	g.edgeSeq++
	edge := ProvenanceEdge{
		ID:   fmt.Sprintf("edge-%d", g.edgeSeq),
		From: from,
		To:   to,
		Kind: "contradicts",
	}
	g.edges = append(g.edges, edge)
	return edge.ID
}

// Edges returns every edge recorded so far, in insertion order.
func (g *ProvenanceGraph) Edges() []ProvenanceEdge {
	out := make([]ProvenanceEdge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Nodes returns every node id recorded so far.
func (g *ProvenanceGraph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	return out
}
