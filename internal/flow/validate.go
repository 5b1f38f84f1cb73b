package flow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qri-io/jsonschema"
)

// definitionSchema is the structural contract for published flow
// definitions. Shape errors are caught here; graph-level invariants are
// checked in Go below.
const definitionSchema = `{
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["key", "type"],
        "properties": {
          "key": {"type": "string", "minLength": 1},
          "type": {"enum": ["intro", "screening", "test", "form", "consent", "end"]},
          "config": {"type": "object"}
        }
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to"],
        "properties": {
          "from": {"type": "string", "minLength": 1},
          "to": {"type": "string", "minLength": 1},
          "priority": {"type": "integer"},
          "condition": {"type": "object"}
        }
      }
    }
  }
}`

// ValidateDefinition checks a raw flow definition before it is published as
// an immutable version. It decodes the document, validates the structure
// against a JSON schema, and enforces the authoring invariants the evaluator
// itself tolerates: unique node keys, unique question/field ids across
// nodes, edge endpoints referencing existing nodes, and config shape matching
// the node type.
func ValidateDefinition(ctx context.Context, raw []byte) (*Definition, error) {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(definitionSchema), rs); err != nil {
		return nil, fmt.Errorf("compile definition schema: %w", err)
	}

	keyErrs, err := rs.ValidateBytes(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("validate definition: %w", err)
	}
	if len(keyErrs) > 0 {
		return nil, fmt.Errorf("invalid definition: %s", keyErrs[0].Error())
	}

	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}

	nodeKeys := make(map[string]struct{}, len(def.Nodes))
	questionIDs := make(map[string]struct{})

	for _, node := range def.Nodes {
		if _, dup := nodeKeys[node.Key]; dup {
			return nil, fmt.Errorf("duplicate node key %q", node.Key)
		}
		nodeKeys[node.Key] = struct{}{}

		switch node.Type {
		case NodeScreening, NodeTest:
			if len(node.Config.Fields) > 0 {
				return nil, fmt.Errorf("node %q: %s nodes take questions, not fields", node.Key, node.Type)
			}
			for _, q := range node.Config.Questions {
				if q.ID == "" {
					return nil, fmt.Errorf("node %q: question without id", node.Key)
				}
				if q.Scoring != nil && q.Correct != "" {
					return nil, fmt.Errorf("question %q: at most one scoring mode", q.ID)
				}
				if _, dup := questionIDs[q.ID]; dup {
					return nil, fmt.Errorf("duplicate question id %q", q.ID)
				}
				questionIDs[q.ID] = struct{}{}
			}
		case NodeForm:
			if len(node.Config.Questions) > 0 {
				return nil, fmt.Errorf("node %q: form nodes take fields, not questions", node.Key)
			}
			for _, fld := range node.Config.Fields {
				if fld.ID == "" {
					return nil, fmt.Errorf("node %q: field without id", node.Key)
				}
				if _, dup := questionIDs[fld.ID]; dup {
					return nil, fmt.Errorf("duplicate field id %q", fld.ID)
				}
				questionIDs[fld.ID] = struct{}{}
			}
		case NodeIntro, NodeConsent, NodeEnd:
			if len(node.Config.Questions) > 0 || len(node.Config.Fields) > 0 {
				return nil, fmt.Errorf("node %q: %s nodes carry no questions or fields", node.Key, node.Type)
			}
		}
	}

	for _, e := range def.Edges {
		if _, ok := nodeKeys[e.From]; !ok {
			return nil, fmt.Errorf("edge from unknown node %q", e.From)
		}
		if _, ok := nodeKeys[e.To]; !ok {
			return nil, fmt.Errorf("edge to unknown node %q", e.To)
		}
	}

	return &def, nil
}
