package tools

// ToolResult is the text handed back to the model for one tool call.
type ToolResult struct {
	ForLLM  string `json:"for_llm"`
	IsError bool   `json:"is_error"`
}

func NewToolResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM}
}

// ErrorResult formats a failure the agent can read: "Error: <message>".
func ErrorResult(message string) *ToolResult {
	return &ToolResult{ForLLM: "Error: " + message, IsError: true}
}
