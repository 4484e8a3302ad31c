package models

// Result is one organic search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Error is returned by searchers for provider-level failures.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }
