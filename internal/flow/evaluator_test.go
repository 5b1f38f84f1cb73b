package flow

import (
	"reflect"
	"testing"
)

func testDefinition() Definition {
	return Definition{
		Nodes: []Node{
			{Key: "intro", Type: NodeIntro},
			{Key: "screening", Type: NodeScreening, Config: NodeConfig{
				Questions: []Question{
					{ID: "q_city", Text: "City?", Required: true, Scoring: map[string]float64{"MSK": 5, "UTC+3": 5, "UTC+1": 3}},
					{ID: "q_shift", Text: "Shift?", Scoring: map[string]float64{"day": 2, "night": 4}},
					{ID: "q_math", Text: "2+2?", Correct: "4", Score: 10},
				},
			}},
			{Key: "form", Type: NodeForm, Config: NodeConfig{
				Fields: []Field{
					{ID: "full_name", Label: "Name", Required: true},
					{ID: "email", Label: "Email"},
				},
			}},
			{Key: "consent", Type: NodeConsent, Config: NodeConfig{Required: true}},
			{Key: "end", Type: NodeEnd},
		},
		Edges: []Edge{
			{From: "intro", To: "screening"},
			{From: "screening", To: "form"},
			{From: "form", To: "consent"},
			{From: "consent", To: "end"},
		},
	}
}

func answer(q string, v any) SavedAnswer {
	return SavedAnswer{NodeKey: "screening", QuestionID: q, QuestionText: q, Value: v}
}

func TestRequiredQuestionIDs(t *testing.T) {
	def := testDefinition()

	got := RequiredQuestionIDs(def)
	want := []string{"q_city", "full_name", ConsentQuestionID}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("RequiredQuestionIDs = %v, want %v", got, want)
	}

	// order independence: shuffling node order yields the same set
	reversed := def
	reversed.Nodes = make([]Node, len(def.Nodes))
	for i, n := range def.Nodes {
		reversed.Nodes[len(def.Nodes)-1-i] = n
	}
	again := RequiredQuestionIDs(reversed)
	if len(again) != len(want) {
		t.Fatalf("reordered RequiredQuestionIDs = %v, want same ids as %v", again, want)
	}
	seen := map[string]bool{}
	for _, id := range again {
		if seen[id] {
			t.Fatalf("duplicate id %q in %v", id, again)
		}
		seen[id] = true
	}
	for _, id := range want {
		if !seen[id] {
			t.Fatalf("missing id %q in %v", id, again)
		}
	}
}

func TestScoreAnswers(t *testing.T) {
	def := testDefinition()

	tests := []struct {
		name      string
		answers   []SavedAnswer
		wantTotal float64
		wantBreak map[string]float64
	}{
		{
			name:      "scalar choice",
			answers:   []SavedAnswer{answer("q_city", "MSK")},
			wantTotal: 5,
			wantBreak: map[string]float64{"q_city": 5},
		},
		{
			name:      "unknown choice scores zero",
			answers:   []SavedAnswer{answer("q_city", "LON")},
			wantTotal: 0,
			wantBreak: map[string]float64{"q_city": 0},
		},
		{
			name:      "multi select sums per element",
			answers:   []SavedAnswer{answer("q_shift", []any{"day", "night", "nope"})},
			wantTotal: 6,
			wantBreak: map[string]float64{"q_shift": 6},
		},
		{
			name:      "correct answer full points",
			answers:   []SavedAnswer{answer("q_math", "4")},
			wantTotal: 10,
			wantBreak: map[string]float64{"q_math": 10},
		},
		{
			name:      "correct answer number stringifies",
			answers:   []SavedAnswer{answer("q_math", float64(4))},
			wantTotal: 10,
			wantBreak: map[string]float64{"q_math": 10},
		},
		{
			name:      "wrong answer zero",
			answers:   []SavedAnswer{answer("q_math", "5")},
			wantTotal: 0,
			wantBreak: map[string]float64{"q_math": 0},
		},
		{
			name:      "unknown question reported at zero",
			answers:   []SavedAnswer{answer("q_ghost", "x")},
			wantTotal: 0,
			wantBreak: map[string]float64{"q_ghost": 0},
		},
		{
			name:      "consent never scores",
			answers:   []SavedAnswer{answer(ConsentQuestionID, true), answer("q_city", "UTC+1")},
			wantTotal: 3,
			wantBreak: map[string]float64{ConsentQuestionID: 0, "q_city": 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, breakdown := ScoreAnswers(def, tt.answers)
			if total != tt.wantTotal {
				t.Fatalf("total = %v, want %v", total, tt.wantTotal)
			}
			if !reflect.DeepEqual(breakdown, tt.wantBreak) {
				t.Fatalf("breakdown = %v, want %v", breakdown, tt.wantBreak)
			}

			// scoring the same set twice yields identical results
			total2, breakdown2 := ScoreAnswers(def, tt.answers)
			if total2 != total || !reflect.DeepEqual(breakdown2, breakdown) {
				t.Fatalf("rescore diverged: %v/%v vs %v/%v", total2, breakdown2, total, breakdown)
			}
		})
	}
}

func TestScoreAnswersDuplicateIDFirstNodeWins(t *testing.T) {
	def := Definition{Nodes: []Node{
		{Key: "a", Type: NodeScreening, Config: NodeConfig{
			Questions: []Question{{ID: "q", Text: "q", Scoring: map[string]float64{"x": 1}}},
		}},
		{Key: "b", Type: NodeScreening, Config: NodeConfig{
			Questions: []Question{{ID: "q", Text: "q", Scoring: map[string]float64{"x": 100}}},
		}},
	}}

	total, _ := ScoreAnswers(def, []SavedAnswer{answer("q", "x")})
	if total != 1 {
		t.Fatalf("total = %v, want 1 (first declaration wins)", total)
	}
}

func TestMissingRequired(t *testing.T) {
	def := testDefinition()

	tests := []struct {
		name    string
		answers []SavedAnswer
		want    []string
	}{
		{
			name:    "nothing answered",
			answers: nil,
			want:    []string{"q_city", "full_name", ConsentQuestionID},
		},
		{
			name: "blank string is not filled",
			answers: []SavedAnswer{
				answer("q_city", "   "),
				answer("full_name", "Ivan"),
				answer(ConsentQuestionID, true),
			},
			want: []string{"q_city"},
		},
		{
			name: "empty array is not filled",
			answers: []SavedAnswer{
				answer("q_city", []any{}),
				answer("full_name", "Ivan"),
				answer(ConsentQuestionID, true),
			},
			want: []string{"q_city"},
		},
		{
			name: "all filled",
			answers: []SavedAnswer{
				answer("q_city", "MSK"),
				answer("full_name", "Ivan"),
				answer(ConsentQuestionID, true),
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MissingRequired(def, tt.answers)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("MissingRequired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveNextNode(t *testing.T) {
	def := DefaultDefinition()

	tests := []struct {
		name    string
		current string
		score   float64
		want    string
		wantOK  bool
	}{
		{name: "unconditional", current: "intro", want: "screening", wantOK: true},
		{name: "pass branch", current: "consent", score: 80, want: "end_pass", wantOK: true},
		{name: "reserve branch inclusive bounds", current: "consent", score: 55, want: "end_reserve", wantOK: true},
		{name: "reject branch", current: "consent", score: 5, want: "end_reject", wantOK: true},
		{name: "terminal node has no edges", current: "end_pass", want: "", wantOK: false},
		{name: "unknown node degrades to terminal", current: "ghost", want: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveNextNode(def, tt.current, nil, tt.score)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("ResolveNextNode(%q, score=%v) = %q,%v want %q,%v", tt.current, tt.score, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResolveNextNodeTieBreakIsDeclarationOrder(t *testing.T) {
	def := Definition{
		Nodes: []Node{{Key: "a", Type: NodeIntro}, {Key: "b", Type: NodeEnd}, {Key: "c", Type: NodeEnd}},
		Edges: []Edge{
			{From: "a", To: "b", Priority: 1},
			{From: "a", To: "c", Priority: 1},
		},
	}

	// both edges match; the first declared edge wins, every time
	for i := 0; i < 10; i++ {
		got, ok := ResolveNextNode(def, "a", nil, 0)
		if !ok || got != "b" {
			t.Fatalf("run %d: ResolveNextNode = %q,%v want b,true", i, got, ok)
		}
	}
}

func TestResolveNextNodeAnswerConditions(t *testing.T) {
	def := Definition{
		Nodes: []Node{{Key: "a", Type: NodeIntro}, {Key: "b", Type: NodeEnd}, {Key: "c", Type: NodeEnd}},
		Edges: []Edge{
			{From: "a", To: "b", Priority: 1, Condition: &EdgeCondition{
				Answers: map[string]Expectation{"q": {In: []any{"x", "y"}}},
			}},
			{From: "a", To: "c"},
		},
	}

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "membership hit", value: "y", want: "b"},
		{name: "membership miss falls through", value: "z", want: "c"},
		{name: "array answer contains literal", value: []any{"x"}, want: "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveNextNode(def, "a", []SavedAnswer{answer("q", tt.value)}, 0)
			if !ok || got != tt.want {
				t.Fatalf("ResolveNextNode = %q,%v want %q,true", got, ok, tt.want)
			}
		})
	}
}

func TestResolveOutcome(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		rules ScoringRules
		want  Outcome
	}{
		{name: "pass at threshold", score: 70, want: Outcome{Status: "screening", Stage: "Pass"}},
		{name: "reserve at threshold", score: 55, want: Outcome{Status: "reserve", Stage: "Reserve"}},
		{name: "reject below reserve", score: 54.9, want: Outcome{Status: "rejected", Stage: "Reject"}},
		{name: "custom thresholds", score: 4, rules: ScoringRules{PassThreshold: f(4), ReserveThreshold: f(2)}, want: Outcome{Status: "screening", Stage: "Pass"}},
		{name: "low score with defaults", score: 5, want: Outcome{Status: "rejected", Stage: "Reject"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveOutcome(tt.score, tt.rules)
			if got != tt.want {
				t.Fatalf("ResolveOutcome(%v) = %+v, want %+v", tt.score, got, tt.want)
			}
		})
	}
}
