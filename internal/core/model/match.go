package model

import "time"

// ScoredPair is a retained company pair before it is written to the graph.
// SourceID always sorts before TargetID.
type ScoredPair struct {
	SourceID        string   `json:"source_id"`
	SourceName      string   `json:"source_name"`
	SourceIndustry  string   `json:"source_industry"`
	TargetID        string   `json:"target_id"`
	TargetName      string   `json:"target_name"`
	TargetIndustry  string   `json:"target_industry"`
	SharedMaterials int      `json:"shared_materials"`
	Score           float64  `json:"score"`
	SharedNames     []string `json:"shared_names"`
}

// PotentialMatch is the persisted POTENTIAL_MATCH edge.
type PotentialMatch struct {
	SourceID        string    `json:"source_id"`
	TargetID        string    `json:"target_id"`
	Score           float64   `json:"score"`
	SharedMaterials int       `json:"shared_materials"`
	SharedNames     []string  `json:"shared_names"`
	ComputedAt      time.Time `json:"computed_at"`
	RunID           string    `json:"run_id"`
}

// MatchParty is one side of a match as shown on the insights view.
type MatchParty struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Location string `json:"location"`
}

// MatchView is what the dashboard reads back.
type MatchView struct {
	Source          MatchParty `json:"source"`
	Target          MatchParty `json:"target"`
	Score           float64    `json:"score"`
	SharedMaterials int        `json:"shared_materials"`
	SharedNames     []string   `json:"shared_names"`
	ComputedAt      *time.Time `json:"computed_at,omitempty"`
}

// Cluster is a group of companies linked by potential matches.
type Cluster struct {
	Members []MatchParty `json:"members"`
}

// MatchEdge is the minimal form of a POTENTIAL_MATCH used for clustering.
type MatchEdge struct {
	Source MatchParty
	Target MatchParty
	Score  float64
}
