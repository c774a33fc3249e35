package webapi

// StartRunRequest is the body of POST /api/runs.
type StartRunRequest struct {
	TestNodeIDs []string `json:"test_nodeids"`
	PytestArgs  []string `json:"pytest_args,omitempty"`
}

// StartRunResponse is returned when a run has been accepted.
type StartRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// CancelResponse is returned when a run has been cancelled.
type CancelResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
