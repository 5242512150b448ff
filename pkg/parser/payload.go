package parser

import "encoding/json"

// payload is an immediate-family response. A batched request carries Results,
// a single one carries Focus and Nodes.
type payload struct {
	Focus   json.RawMessage            `json:"focus"`
	Nodes   map[string]json.RawMessage `json:"nodes"`
	Results []json.RawMessage          `json:"results"`
	Error   *apiError                  `json:"error"`
}

type family struct {
	Focus *rawNode           `json:"focus"`
	Nodes map[string]rawNode `json:"nodes"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type rawEdge struct {
	Rel         string          `json:"rel"`
	RelModifier json.RawMessage `json:"rel_modifier"`
}

// rawNode covers both profile and union nodes. Unions only use Status, Edges,
// Marriage and Divorce; their edges are keyed by profile id, while profile
// edges are keyed by union id.
type rawNode struct {
	ID            string             `json:"id"`
	Name          *string            `json:"name"`
	Gender        *string            `json:"gender"`
	Deleted       bool               `json:"deleted"`
	MasterProfile bool               `json:"master_profile"`
	MergePending  bool               `json:"merge_pending"`
	Public        *bool              `json:"public"`
	Claimed       bool               `json:"claimed"`
	Living        *bool              `json:"living"`
	ProjectIDs    []string           `json:"project_ids"`
	Birth         *rawEvent          `json:"birth"`
	Death         *rawEvent          `json:"death"`
	Status        string             `json:"status"`
	Edges         map[string]rawEdge `json:"edges"`
	Marriage      json.RawMessage    `json:"marriage"`
	Divorce       json.RawMessage    `json:"divorce"`
}

type rawEvent struct {
	Date     *rawDate     `json:"date"`
	Location *rawLocation `json:"location"`
}

type rawDate struct {
	Year          *int   `json:"year"`
	Month         *int   `json:"month"`
	Day           *int   `json:"day"`
	FormattedDate string `json:"formatted_date"`
}

type rawLocation struct {
	City    *string `json:"city"`
	State   *string `json:"state"`
	Country *string `json:"country"`
}

type rawProject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type projectPayload struct {
	rawProject
	Results []rawProject `json:"results"`
	Error   *apiError    `json:"error"`
}

type profilePayload struct {
	rawNode
	Results []rawNode `json:"results"`
	Error   *apiError `json:"error"`
}
