package job

// ExtractRequest is the body for job extraction. Exactly one of URL,
// Text or Screenshot must be set.
type ExtractRequest struct {
	URL         string `json:"url,omitempty"`
	Text        string `json:"text,omitempty"`
	Screenshot  []byte `json:"screenshot,omitempty"` // base64 in JSON
	ContentType string `json:"content_type,omitempty"`
}

// ExtractResponse returns an extracted posting and its key for later
// personalization calls.
type ExtractResponse struct {
	Key     string   `json:"key"`
	Posting *Posting `json:"posting"`
	Cached  bool     `json:"cached"`
}

// PersonalizeRequest asks for a CV tailored to an extracted posting.
type PersonalizeRequest struct {
	JobKey string `json:"job_key" binding:"required"`
}

// PersonalizeResponse returns the tailored CV content.
type PersonalizeResponse struct {
	Key     string `json:"key"`
	Content string `json:"content"`
	Cached  bool   `json:"cached"`
}
