package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CalculateDistributionRequest struct {
	PreviousPeriodID string   `json:"previous_period_id"`
	RewardPool       string   `json:"reward_pool"`
	MinHolding       string   `json:"min_holding,omitempty"`
	BatchSize        int      `json:"batch_size,omitempty"`
	MaxRetries       int      `json:"max_retries,omitempty"`
	PolicyExcluded   []string `json:"policy_excluded,omitempty"`
	Restricted       []string `json:"restricted,omitempty"`
}

type DistributionStatsResponse struct {
	TotalHolders        int    `json:"total_holders"`
	EligibleCount       int    `json:"eligible_count"`
	PolicyExcluded      int    `json:"policy_excluded"`
	RestrictedExcluded  int    `json:"restricted_excluded"`
	NotHeldPrevious     int    `json:"not_held_previous"`
	NotHeldCurrent      int    `json:"not_held_current"`
	BelowMinimum        int    `json:"below_minimum"`
	ZeroReward          int    `json:"zero_reward"`
	TotalEligibleWeight string `json:"total_eligible_weight"`
	TotalDistributed    string `json:"total_distributed"`
}

type DistributionResponse struct {
	DistributionID     string                    `json:"distribution_id"`
	PeriodID           string                    `json:"period_id"`
	PreviousPeriodID   string                    `json:"previous_period_id"`
	PreviousSnapshotID string                    `json:"previous_snapshot_id"`
	CurrentSnapshotID  string                    `json:"current_snapshot_id"`
	MinHolding         string                    `json:"min_holding"`
	RewardPool         string                    `json:"reward_pool"`
	BatchSize          int                       `json:"batch_size"`
	MaxRetries         int                       `json:"max_retries"`
	Status             string                    `json:"status"`
	Stats              DistributionStatsResponse `json:"stats"`
	LastError          string                    `json:"last_error,omitempty"`
	CreatedAt          string                    `json:"created_at"`
	CompletedAt        string                    `json:"completed_at,omitempty"`
}

type ProcessDistributionResponse struct {
	PeriodID         string `json:"period_id"`
	Status           string `json:"status"`
	Attempted        int    `json:"attempted"`
	Completed        int    `json:"completed"`
	Failed           int    `json:"failed"`
	Exhausted        int    `json:"exhausted"`
	GatePaused       bool   `json:"gate_paused"`
	TotalDistributed string `json:"total_distributed"`
}

type ExecutionRecordResponse struct {
	TxID              string `json:"tx_id"`
	GasUsed           uint64 `json:"gas_used"`
	EffectiveGasPrice string `json:"effective_gas_price"`
	BlockNumber       uint64 `json:"block_number"`
	ConfirmedAt       string `json:"confirmed_at"`
}

type BatchResponse struct {
	BatchNumber    int                      `json:"batch_number"`
	RecipientCount int                      `json:"recipient_count"`
	TotalAmount    string                   `json:"total_amount"`
	Status         string                   `json:"status"`
	RetryCount     int                      `json:"retry_count"`
	MaxRetries     int                      `json:"max_retries"`
	LastError      string                   `json:"last_error,omitempty"`
	Execution      *ExecutionRecordResponse `json:"execution,omitempty"`
}

type RecipientResponse struct {
	Address          string `json:"address"`
	PreviousBalance  string `json:"previous_balance"`
	CurrentBalance   string `json:"current_balance"`
	EligibleBalance  string `json:"eligible_balance"`
	RewardAmount     string `json:"reward_amount"`
	ShareBasisPoints int64  `json:"share_basis_points"`
	BatchNumber      int    `json:"batch_number"`
	Status           string `json:"status"`
	TxID             string `json:"tx_id,omitempty"`
	LastError        string `json:"last_error,omitempty"`
}

type RecipientPageResponse struct {
	Recipients []RecipientResponse `json:"recipients"`
	Total      int                 `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

type ProgressResponse struct {
	PeriodID         string         `json:"period_id"`
	Status           string         `json:"status"`
	TotalBatches     int            `json:"total_batches"`
	BatchCounts      map[string]int `json:"batch_counts"`
	TotalDistributed string         `json:"total_distributed"`
	RewardPool       string         `json:"reward_pool"`
}

type ReconcileBatchRequest struct {
	Outcome           string `json:"outcome"`
	TxID              string `json:"tx_id,omitempty"`
	GasUsed           uint64 `json:"gas_used,omitempty"`
	EffectiveGasPrice string `json:"effective_gas_price,omitempty"`
	BlockNumber       uint64 `json:"block_number,omitempty"`
	ConfirmedAt       string `json:"confirmed_at,omitempty"`
	Error             string `json:"error,omitempty"`
}
