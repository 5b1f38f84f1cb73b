package flow

import (
	"encoding/json"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// SavedAnswer is one stored answer. QuestionText is snapshotted at answer
// time and does not track later flow edits.
type SavedAnswer struct {
	NodeKey      string `json:"nodeKey"`
	QuestionID   string `json:"questionId"`
	QuestionText string `json:"questionText"`
	Value        any    `json:"value"`
}

// Outcome is the final disposition recorded on submit.
type Outcome struct {
	Status string `json:"status"`
	Stage  string `json:"stage"`
}

// isFilled reports whether a value counts as an answer: strings must be
// non-blank, arrays non-empty, nil is never filled.
func isFilled(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

// stringify matches the lookup key format used in scoring maps. JSON numbers
// arrive as float64; whole values render without a fraction ("5", not "5.0").
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func answersByQuestion(answers []SavedAnswer) map[string]any {
	out := make(map[string]any, len(answers))
	for _, a := range answers {
		out[a.QuestionID] = a.Value
	}
	return out
}

// RequiredQuestionIDs collects the ids a candidate must answer before
// submission: required screening/test questions, required form fields, and
// consent_accepted for every required consent node. The result is
// deduplicated and ordered by node declaration.
func RequiredQuestionIDs(def Definition) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	for _, node := range def.Nodes {
		switch node.Type {
		case NodeScreening, NodeTest:
			for _, q := range node.Config.Questions {
				if q.Required {
					add(q.ID)
				}
			}
		case NodeForm:
			for _, fld := range node.Config.Fields {
				if fld.Required {
					add(fld.ID)
				}
			}
		case NodeConsent:
			if node.Config.Required {
				add(ConsentQuestionID)
			}
		}
	}
	return out
}

// ScoreAnswers computes the cumulative score and per-question breakdown for
// the full answer set. Unknown questions and unknown choice values score
// zero but still appear in the breakdown. When a question id occurs in more
// than one node, the first node in declaration order wins.
func ScoreAnswers(def Definition, answers []SavedAnswer) (float64, map[string]float64) {
	byID := make(map[string]Question)
	for _, node := range def.Nodes {
		for _, q := range node.Config.Questions {
			if _, ok := byID[q.ID]; !ok {
				byID[q.ID] = q
			}
		}
	}

	var total float64
	breakdown := make(map[string]float64, len(answers))

	for _, a := range answers {
		if a.QuestionID == ConsentQuestionID {
			breakdown[a.QuestionID] = 0
			continue
		}

		q, ok := byID[a.QuestionID]
		if !ok {
			breakdown[a.QuestionID] = 0
			continue
		}

		var points float64
		switch {
		case q.Scoring != nil:
			if values, isList := a.Value.([]any); isList {
				for _, v := range values {
					points += q.Scoring[stringify(v)]
				}
			} else {
				points = q.Scoring[stringify(a.Value)]
			}
		case q.Correct != "" && q.Score != 0:
			if stringify(a.Value) == q.Correct {
				points = q.Score
			}
		}

		breakdown[a.QuestionID] = points
		total += points
	}

	return total, breakdown
}

// MissingRequired returns the required ids that have no filled answer, in
// RequiredQuestionIDs order.
func MissingRequired(def Definition, answers []SavedAnswer) []string {
	byQuestion := answersByQuestion(answers)

	var missing []string
	for _, id := range RequiredQuestionIDs(def) {
		if !isFilled(byQuestion[id]) {
			missing = append(missing, id)
		}
	}
	return missing
}

func matchScore(scoreTotal float64, cond ScoreCondition) bool {
	if cond.GTE != nil && !(scoreTotal >= *cond.GTE) {
		return false
	}
	if cond.GT != nil && !(scoreTotal > *cond.GT) {
		return false
	}
	if cond.LTE != nil && !(scoreTotal <= *cond.LTE) {
		return false
	}
	if cond.LT != nil && !(scoreTotal < *cond.LT) {
		return false
	}
	if cond.Between != nil && (scoreTotal < cond.Between[0] || scoreTotal > cond.Between[1]) {
		return false
	}
	return true
}

func valueEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func matchAnswers(submitted map[string]any, expected map[string]Expectation) bool {
	for questionID, exp := range expected {
		actual := submitted[questionID]

		if exp.In != nil {
			found := false
			for _, candidate := range exp.In {
				if valueEquals(actual, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}

		if values, isList := actual.([]any); isList {
			found := false
			for _, v := range values {
				if valueEquals(v, exp.Equals) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}

		if !valueEquals(actual, exp.Equals) {
			return false
		}
	}
	return true
}

func matchCondition(scoreTotal float64, submitted map[string]any, cond *EdgeCondition) bool {
	if cond == nil {
		return true
	}
	if cond.ScoreTotal != nil && !matchScore(scoreTotal, *cond.ScoreTotal) {
		return false
	}
	if cond.Answers != nil && !matchAnswers(submitted, cond.Answers) {
		return false
	}
	return true
}

// ResolveNextNode evaluates the outgoing edges of currentNodeKey in priority
// order (descending, declaration order on ties) and returns the target of
// the first satisfied condition. An edge without a condition always matches.
// ok is false when no edge matches, which callers treat as a terminal state.
func ResolveNextNode(def Definition, currentNodeKey string, answers []SavedAnswer, scoreTotal float64) (next string, ok bool) {
	byQuestion := answersByQuestion(answers)

	var candidates []Edge
	for _, e := range def.Edges {
		if e.From == currentNodeKey {
			candidates = append(candidates, e)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	for _, e := range candidates {
		if matchCondition(scoreTotal, byQuestion, e.Condition) {
			return e.To, true
		}
	}
	return "", false
}

// ResolveOutcome classifies the final score against the thresholds. This is
// independent of edge navigation: edges drive the step-by-step UI, the
// thresholds drive the recorded disposition.
func ResolveOutcome(scoreTotal float64, rules ScoringRules) Outcome {
	pass := float64(DefaultPassThreshold)
	if rules.PassThreshold != nil {
		pass = *rules.PassThreshold
	}
	reserve := float64(DefaultReserveThreshold)
	if rules.ReserveThreshold != nil {
		reserve = *rules.ReserveThreshold
	}

	switch {
	case scoreTotal >= pass:
		return Outcome{Status: "screening", Stage: "Pass"}
	case scoreTotal >= reserve:
		return Outcome{Status: "reserve", Stage: "Reserve"}
	default:
		return Outcome{Status: "rejected", Stage: "Reject"}
	}
}
