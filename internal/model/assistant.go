package model

// Assistant identifies one conversational counterpart from the directory.
type Assistant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListAssistantsResponse is the response for listing the assistant directory.
type ListAssistantsResponse struct {
	Assistants []Assistant `json:"assistants"`
}

// Prompt is a reusable prompt catalog entry. Content is opaque display data;
// the body can be routed to the composer as a prefill.
type Prompt struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Body        string `json:"body"`
	Category    string `json:"category,omitempty"`
}

// ListPromptsResponse is the response for listing the prompt catalog.
type ListPromptsResponse struct {
	Prompts []Prompt `json:"prompts"`
}
