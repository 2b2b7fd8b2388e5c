package model

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes a Message while preserving the concrete Part type
// stored in Parts via an explicit "kind" discriminator, so a Message
// round-trips through JSON without losing type information — needed
// whenever a turn's transcript crosses a process boundary (a Temporal
// activity argument, a checkpoint's serialized state).
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role  Role  `json:"role"`
		Parts []any `json:"parts"`
	}
	out := alias{Role: m.Role}
	for i, p := range m.Parts {
		enc, err := encodePart(p)
		if err != nil {
			return nil, fmt.Errorf("model: encode parts[%d]: %w", i, err)
		}
		out.Parts = append(out.Parts, enc)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a Message, materializing each Part's concrete type
// from its "kind" discriminator.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role  Role              `json:"role"`
		Parts []json.RawMessage `json:"parts"`
	}
	var tmp alias
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	m.Role = tmp.Role
	if len(tmp.Parts) == 0 {
		m.Parts = nil
		return nil
	}
	m.Parts = make([]Part, 0, len(tmp.Parts))
	for i, raw := range tmp.Parts {
		part, err := decodePart(raw)
		if err != nil {
			return fmt.Errorf("model: decode parts[%d]: %w", i, err)
		}
		m.Parts = append(m.Parts, part)
	}
	return nil
}

func encodePart(p Part) (any, error) {
	switch v := p.(type) {
	case TextPart:
		return struct {
			Kind string `json:"kind"`
			TextPart
		}{Kind: "text", TextPart: v}, nil
	case ToolUsePart:
		return struct {
			Kind string `json:"kind"`
			ToolUsePart
		}{Kind: "tool_use", ToolUsePart: v}, nil
	case ToolResultPart:
		return struct {
			Kind string `json:"kind"`
			ToolResultPart
		}{Kind: "tool_result", ToolResultPart: v}, nil
	default:
		return nil, fmt.Errorf("model: unknown part type %T", p)
	}
}

func decodePart(raw json.RawMessage) (Part, error) {
	var disc struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &disc); err != nil {
		return nil, err
	}
	switch disc.Kind {
	case "text":
		var v struct {
			TextPart
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v.TextPart, nil
	case "tool_use":
		var v struct {
			ToolUsePart
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v.ToolUsePart, nil
	case "tool_result":
		var v struct {
			ToolResultPart
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v.ToolResultPart, nil
	default:
		return nil, fmt.Errorf("model: unknown part kind %q", disc.Kind)
	}
}
