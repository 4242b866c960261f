package hypergraph

// NodeID identifies a vertex (hypernode). EdgeID identifies a hyperedge (net).
// Both are dense 32-bit indices; InvalidNode/InvalidEdge denote absence.
type NodeID = uint32

// EdgeID identifies a hyperedge.
type EdgeID = uint32

const (
	// InvalidNode marks a disabled or absent vertex.
	InvalidNode NodeID = ^NodeID(0)
	// InvalidEdge marks a disabled or absent hyperedge.
	InvalidEdge EdgeID = ^EdgeID(0)
)

type node struct {
	firstIncident uint64
	degree        uint32
	weight        int64
	community     int32
	enabled       bool
}

type edge struct {
	firstPin uint64
	size     uint32
	weight   int64
	enabled  bool
}

// Hypergraph is the immutable compact representation of a weighted hypergraph.
// Pins of edge e occupy incidence[firstPin, firstPin+size); incident nets of
// vertex v occupy incidentNets[firstIncident, firstIncident+degree), sorted
// ascending. Incident nets are the adjoint of the incidence array.
type Hypergraph struct {
	nodes        []node
	edges        []edge
	incidentNets []EdgeID
	incidence    []NodeID

	numNodes    uint32
	numEdges    uint32
	totalPins   uint64
	totalWeight int64
	maxEdgeSize uint32
}

// NumNodes returns the number of vertices (enabled or not).
func (h *Hypergraph) NumNodes() uint32 { return h.numNodes }

// NumEdges returns the number of hyperedges (enabled or not).
func (h *Hypergraph) NumEdges() uint32 { return h.numEdges }

// NumPins returns the total number of pins.
func (h *Hypergraph) NumPins() uint64 { return h.totalPins }

// TotalWeight returns the sum of all vertex weights.
func (h *Hypergraph) TotalWeight() int64 { return h.totalWeight }

// MaxEdgeSize returns the largest pin count over enabled edges.
func (h *Hypergraph) MaxEdgeSize() uint32 { return h.maxEdgeSize }

// NodeIsEnabled reports whether vertex v participates in the hypergraph.
func (h *Hypergraph) NodeIsEnabled(v NodeID) bool { return h.nodes[v].enabled }

// EdgeIsEnabled reports whether edge e participates in the hypergraph.
func (h *Hypergraph) EdgeIsEnabled(e EdgeID) bool { return h.edges[e].enabled }

// NodeWeight returns the weight of vertex v.
func (h *Hypergraph) NodeWeight(v NodeID) int64 { return h.nodes[v].weight }

// NodeDegree returns the number of hyperedges incident to v.
func (h *Hypergraph) NodeDegree(v NodeID) uint32 { return h.nodes[v].degree }

// EdgeWeight returns the weight of hyperedge e.
func (h *Hypergraph) EdgeWeight(e EdgeID) int64 { return h.edges[e].weight }

// EdgeSize returns the number of pins of hyperedge e.
func (h *Hypergraph) EdgeSize(e EdgeID) uint32 { return h.edges[e].size }

// CommunityID returns the community label of v assigned by preprocessing.
func (h *Hypergraph) CommunityID(v NodeID) int32 { return h.nodes[v].community }

// SetCommunityID assigns a community label to v.
func (h *Hypergraph) SetCommunityID(v NodeID, c int32) { h.nodes[v].community = c }

// IncidentEdges returns the hyperedges incident to v, sorted ascending. The
// returned slice aliases internal storage and must not be modified.
func (h *Hypergraph) IncidentEdges(v NodeID) []EdgeID {
	n := &h.nodes[v]
	return h.incidentNets[n.firstIncident : n.firstIncident+uint64(n.degree)]
}

// Pins returns the pin list of hyperedge e. The returned slice aliases
// internal storage and must not be modified.
func (h *Hypergraph) Pins(e EdgeID) []NodeID {
	ed := &h.edges[e]
	return h.incidence[ed.firstPin : ed.firstPin+uint64(ed.size)]
}
