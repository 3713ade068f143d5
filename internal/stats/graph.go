package stats

// GraphNode and GraphEdge describe the knowledge graph, which is not
// populated yet; the endpoints answer with empty structures.
type GraphNode struct {
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	Type     string         `json:"type"`
	Props    map[string]any `json:"properties,omitempty"`
	CaseFile *uint          `json:"caseFileId,omitempty"`
}

type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

func EmptyGraph() Graph {
	return Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
}

// Entity is the detail view of one graph node.
type Entity struct {
	Entity    *GraphNode  `json:"entity"`
	Relations []GraphEdge `json:"relations"`
}

func EmptyEntity() Entity {
	return Entity{Relations: []GraphEdge{}}
}
