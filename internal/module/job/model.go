package job

// Source identifies how a job posting entered the system.
type Source string

const (
	SourceURL        Source = "url"
	SourceText       Source = "text"
	SourceScreenshot Source = "screenshot"
)

// Posting is the structured form of a job posting after extraction.
type Posting struct {
	Title          string   `json:"title"`
	Company        string   `json:"company"`
	Location       string   `json:"location"`
	EmploymentType string   `json:"employment_type,omitempty"`
	SalaryRange    string   `json:"salary_range,omitempty"`
	Description    string   `json:"description"`
	Requirements   []string `json:"requirements,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	Source         Source   `json:"source"`
	SourceRef      string   `json:"source_ref,omitempty"` // URL or object key
}
