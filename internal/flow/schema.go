package flow

// FunctionSchema is the model-facing declaration of one action, shaped like
// an LLM function-calling tool definition.
type FunctionSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

type ParameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

type PropertySchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema renders the action's argument declaration for the model-facing
// layer.
func (a *Action) Schema() FunctionSchema {
	props := make(map[string]PropertySchema, len(a.Params))
	required := make([]string, 0, len(a.Params))
	for _, p := range a.Params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		props[p.Name] = PropertySchema{
			Type:        typ,
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return FunctionSchema{
		Name:        a.Name,
		Description: a.Description,
		Parameters: ParameterSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

// Schemas renders the declarations of every action legal on the node.
func (n *Node) Schemas() []FunctionSchema {
	out := make([]FunctionSchema, 0, len(n.Actions))
	for i := range n.Actions {
		out = append(out, n.Actions[i].Schema())
	}
	return out
}
