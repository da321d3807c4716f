package protocol

// Tool describes a tool the framework registered with the producer. The
// monitor does not execute tools; it keeps descriptors so per-tool views can
// label their contexts.
type Tool struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Args        []Argument `json:"args,omitempty"`
	Examples    []Example  `json:"examples,omitempty"`
}

// Argument describes one tool parameter.
type Argument struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Example is a documented invocation of a tool.
type Example struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Output      any            `json:"output,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
}
