package flow

import "encoding/json"

// NodeType enumerates the closed set of step kinds a flow may contain.
type NodeType string

const (
	NodeIntro     NodeType = "intro"
	NodeScreening NodeType = "screening"
	NodeTest      NodeType = "test"
	NodeForm      NodeType = "form"
	NodeConsent   NodeType = "consent"
	NodeEnd       NodeType = "end"
)

// ConsentQuestionID is the synthetic answer id recorded when a candidate
// accepts a required consent node. It never scores.
const ConsentQuestionID = "consent_accepted"

// Question is a scorable prompt inside a screening or test node. A question
// has at most one scoring mode: either a choice->points map, or a single
// correct answer worth Score points. With neither set it always scores zero.
type Question struct {
	ID       string             `json:"id"`
	Text     string             `json:"text"`
	Required bool               `json:"required,omitempty"`
	Scoring  map[string]float64 `json:"scoring,omitempty"`
	Correct  string             `json:"correct,omitempty"`
	Score    float64            `json:"score,omitempty"`
}

// Field is a form input. Fields are never scored.
type Field struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Required bool   `json:"required,omitempty"`
}

// NodeConfig holds the per-type configuration of a node. Which fields may be
// populated depends on the node type; ValidateDefinition enforces the shape
// at publish time.
type NodeConfig struct {
	Questions []Question `json:"questions,omitempty"`
	Fields    []Field    `json:"fields,omitempty"`
	Required  bool       `json:"required,omitempty"`
}

// Node is one step of a flow. Key is stable and unique within the flow.
type Node struct {
	Key    string     `json:"key"`
	Type   NodeType   `json:"type"`
	Config NodeConfig `json:"config"`
}

// ScoreCondition is a numeric range test against the cumulative score. All
// populated bounds must hold; Between is inclusive on both ends.
type ScoreCondition struct {
	GTE     *float64    `json:">=,omitempty"`
	GT      *float64    `json:">,omitempty"`
	LTE     *float64    `json:"<=,omitempty"`
	LT      *float64    `json:"<,omitempty"`
	Between *[2]float64 `json:"between,omitempty"`
}

// Expectation is the expected value for one question in an edge condition:
// either a literal (exact match, or set membership when the submitted answer
// is an array) or an explicit {"in": [...]} membership test.
type Expectation struct {
	Equals any
	In     []any
}

func (e *Expectation) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			In []any `json:"in"`
		}
		if err := json.Unmarshal(b, &obj); err == nil && obj.In != nil {
			e.In = obj.In
			e.Equals = nil
			return nil
		}
	}
	e.In = nil
	return json.Unmarshal(b, &e.Equals)
}

func (e Expectation) MarshalJSON() ([]byte, error) {
	if e.In != nil {
		return json.Marshal(map[string]any{"in": e.In})
	}
	return json.Marshal(e.Equals)
}

// EdgeCondition is a conjunction: every populated predicate must match.
type EdgeCondition struct {
	ScoreTotal *ScoreCondition        `json:"score_total,omitempty"`
	Answers    map[string]Expectation `json:"answers,omitempty"`
}

// Edge is a directed transition between nodes. Higher priority wins; ties
// keep declaration order.
type Edge struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	Condition *EdgeCondition `json:"condition,omitempty"`
	Priority  int            `json:"priority,omitempty"`
}

// Definition is the directed graph of screening steps for a job. Immutable
// once a flow version is published.
type Definition struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges,omitempty"`
}

// ScoringRules classifies the final score at submission time. Unset
// thresholds fall back to the defaults (pass 70, reserve 55).
type ScoringRules struct {
	PassThreshold    *float64 `json:"pass_threshold,omitempty"`
	ReserveThreshold *float64 `json:"reserve_threshold,omitempty"`
	RejectThreshold  *float64 `json:"reject_threshold,omitempty"`
}

const (
	DefaultPassThreshold    = 70
	DefaultReserveThreshold = 55
)

func f(v float64) *float64 { return &v }

// DefaultScoringRules returns the built-in thresholds used when a flow
// version carries none.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		PassThreshold:    f(DefaultPassThreshold),
		ReserveThreshold: f(DefaultReserveThreshold),
		RejectThreshold:  f(0),
	}
}

// DefaultDefinition returns the seed flow applied to jobs published without
// a custom definition: intro -> screening -> form -> consent -> end, with
// score-gated end nodes.
func DefaultDefinition() Definition {
	return Definition{
		Nodes: []Node{
			{Key: "intro", Type: NodeIntro},
			{Key: "screening", Type: NodeScreening, Config: NodeConfig{
				Questions: []Question{
					{
						ID:       "q_city",
						Text:     "Ваш город/часовой пояс?",
						Required: true,
						Scoring: map[string]float64{
							"MSK":    5,
							"UTC+3":  5,
							"UTC+1":  3,
							"Другое": 1,
						},
					},
				},
			}},
			{Key: "form", Type: NodeForm, Config: NodeConfig{
				Fields: []Field{
					{ID: "full_name", Label: "Имя и фамилия", Required: true},
					{ID: "phone", Label: "Телефон", Required: true},
					{ID: "email", Label: "Email"},
				},
			}},
			{Key: "consent", Type: NodeConsent, Config: NodeConfig{Required: true}},
			{Key: "end_pass", Type: NodeEnd},
			{Key: "end_reserve", Type: NodeEnd},
			{Key: "end_reject", Type: NodeEnd},
		},
		Edges: []Edge{
			{From: "intro", To: "screening"},
			{From: "screening", To: "form"},
			{From: "form", To: "consent"},
			{From: "consent", To: "end_pass", Priority: 10,
				Condition: &EdgeCondition{ScoreTotal: &ScoreCondition{GTE: f(70)}}},
			{From: "consent", To: "end_reserve", Priority: 5,
				Condition: &EdgeCondition{ScoreTotal: &ScoreCondition{Between: &[2]float64{55, 69}}}},
			{From: "consent", To: "end_reject", Priority: 0,
				Condition: &EdgeCondition{ScoreTotal: &ScoreCondition{LT: f(55)}}},
		},
	}
}

// FindNode returns the node with the given key, or nil.
func (d Definition) FindNode(key string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].Key == key {
			return &d.Nodes[i]
		}
	}
	return nil
}
