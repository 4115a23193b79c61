package dto

type EvaluateRequest struct {
	Query string `json:"query" validate:"required"`
	Debug bool   `json:"debug"`
}

// MetricScore holds either a score or the reason scoring failed.
type MetricScore struct {
	Metric string   `json:"metric"`
	Score  *float64 `json:"score,omitempty"`
	Error  string   `json:"error,omitempty"`
}

type EvaluateResponse struct {
	Query    string        `json:"query"`
	Answer   string        `json:"answer"`
	Contexts []string      `json:"contexts"`
	Scores   []MetricScore `json:"scores"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	VectorStore string `json:"vector_store"`
	LLMProvider string `json:"llm_provider"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
