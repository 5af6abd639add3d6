package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CollectSnapshotRequest struct {
	TokenAddress string `json:"token_address"`
}

type SnapshotResponse struct {
	SnapshotID   string `json:"snapshot_id"`
	PeriodID     string `json:"period_id"`
	TokenAddress string `json:"token_address"`
	Status       string `json:"status"`
	Cursor       string `json:"cursor,omitempty"`
	HolderCount  int    `json:"holder_count"`
	TotalBalance string `json:"total_balance"`
	LastError    string `json:"last_error,omitempty"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
}
