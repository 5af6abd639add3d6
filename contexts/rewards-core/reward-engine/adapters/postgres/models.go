package postgresadapter

import (
	"encoding/json"
	"strings"
	"time"

	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
)

type distributionModel struct {
	ID                  string     `gorm:"column:id;primaryKey"`
	PeriodID            string     `gorm:"column:period_id;uniqueIndex"`
	PreviousPeriodID    string     `gorm:"column:previous_period_id"`
	PreviousSnapshotID  string     `gorm:"column:previous_snapshot_id"`
	CurrentSnapshotID   string     `gorm:"column:current_snapshot_id"`
	MinHolding          string     `gorm:"column:min_holding;type:numeric(78,0)"`
	RewardPool          string     `gorm:"column:reward_pool;type:numeric(78,0)"`
	BatchSize           int        `gorm:"column:batch_size"`
	MaxRetries          int        `gorm:"column:max_retries"`
	TotalHolders        int        `gorm:"column:total_holders"`
	EligibleCount       int        `gorm:"column:eligible_count"`
	PolicyExcluded      int        `gorm:"column:policy_excluded"`
	RestrictedExcluded  int        `gorm:"column:restricted_excluded"`
	NotHeldPrevious     int        `gorm:"column:not_held_previous"`
	NotHeldCurrent      int        `gorm:"column:not_held_current"`
	BelowMinimum        int        `gorm:"column:below_minimum"`
	ZeroReward          int        `gorm:"column:zero_reward"`
	TotalEligibleWeight string     `gorm:"column:total_eligible_weight;type:numeric(78,0)"`
	TotalDistributed    string     `gorm:"column:total_distributed;type:numeric(78,0)"`
	Status              string     `gorm:"column:status"`
	LeaseOwner          string     `gorm:"column:lease_owner"`
	LeaseExpiresAt      *time.Time `gorm:"column:lease_expires_at"`
	LastError           string     `gorm:"column:last_error"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	CompletedAt         *time.Time `gorm:"column:completed_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (distributionModel) TableName() string {
	return "reward_distributions"
}

func distributionModelFromEntity(distribution entities.Distribution) distributionModel {
	row := distributionModel{
		ID:                  strings.TrimSpace(distribution.ID),
		PeriodID:            strings.TrimSpace(distribution.PeriodID),
		PreviousPeriodID:    strings.TrimSpace(distribution.PreviousPeriodID),
		PreviousSnapshotID:  strings.TrimSpace(distribution.PreviousSnapshotID),
		CurrentSnapshotID:   strings.TrimSpace(distribution.CurrentSnapshotID),
		MinHolding:          formatAmount(distribution.MinHolding),
		RewardPool:          formatAmount(distribution.RewardPool),
		BatchSize:           distribution.BatchSize,
		MaxRetries:          distribution.MaxRetries,
		TotalHolders:        distribution.Stats.TotalHolders,
		EligibleCount:       distribution.Stats.EligibleCount,
		PolicyExcluded:      distribution.Stats.PolicyExcluded,
		RestrictedExcluded:  distribution.Stats.RestrictedExcluded,
		NotHeldPrevious:     distribution.Stats.NotHeldPrevious,
		NotHeldCurrent:      distribution.Stats.NotHeldCurrent,
		BelowMinimum:        distribution.Stats.BelowMinimum,
		ZeroReward:          distribution.Stats.ZeroReward,
		TotalEligibleWeight: formatAmount(distribution.Stats.TotalEligibleWeight),
		TotalDistributed:    formatAmount(distribution.Stats.TotalDistributed),
		Status:              string(distribution.Status),
		LeaseOwner:          distribution.LeaseOwner,
		LeaseExpiresAt:      normalizeOptionalTime(distribution.LeaseExpiresAt),
		LastError:           distribution.LastError,
		CreatedAt:           distribution.CreatedAt.UTC(),
		CompletedAt:         normalizeOptionalTime(distribution.CompletedAt),
		UpdatedAt:           distribution.UpdatedAt.UTC(),
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	return row
}

func (m distributionModel) toEntity() (entities.Distribution, error) {
	minHolding, err := parseAmount(m.MinHolding)
	if err != nil {
		return entities.Distribution{}, err
	}
	rewardPool, err := parseAmount(m.RewardPool)
	if err != nil {
		return entities.Distribution{}, err
	}
	totalWeight, err := parseAmount(m.TotalEligibleWeight)
	if err != nil {
		return entities.Distribution{}, err
	}
	totalDistributed, err := parseAmount(m.TotalDistributed)
	if err != nil {
		return entities.Distribution{}, err
	}
	return entities.Distribution{
		ID:                 m.ID,
		PeriodID:           m.PeriodID,
		PreviousPeriodID:   m.PreviousPeriodID,
		PreviousSnapshotID: m.PreviousSnapshotID,
		CurrentSnapshotID:  m.CurrentSnapshotID,
		MinHolding:         minHolding,
		RewardPool:         rewardPool,
		BatchSize:          m.BatchSize,
		MaxRetries:         m.MaxRetries,
		Stats: entities.DistributionStats{
			TotalHolders:        m.TotalHolders,
			EligibleCount:       m.EligibleCount,
			PolicyExcluded:      m.PolicyExcluded,
			RestrictedExcluded:  m.RestrictedExcluded,
			NotHeldPrevious:     m.NotHeldPrevious,
			NotHeldCurrent:      m.NotHeldCurrent,
			BelowMinimum:        m.BelowMinimum,
			ZeroReward:          m.ZeroReward,
			TotalEligibleWeight: totalWeight,
			TotalDistributed:    totalDistributed,
		},
		Status:         entities.DistributionStatus(m.Status),
		LeaseOwner:     m.LeaseOwner,
		LeaseExpiresAt: normalizeOptionalTime(m.LeaseExpiresAt),
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt.UTC(),
		CompletedAt:    normalizeOptionalTime(m.CompletedAt),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}, nil
}

// position preserves the calculator's reward-descending order across reads,
// since the address primary key carries no ordering information.
type recipientModel struct {
	DistributionID   string    `gorm:"column:distribution_id;primaryKey"`
	Address          string    `gorm:"column:address;primaryKey"`
	Position         int       `gorm:"column:position"`
	PreviousBalance  string    `gorm:"column:previous_balance;type:numeric(78,0)"`
	CurrentBalance   string    `gorm:"column:current_balance;type:numeric(78,0)"`
	EligibleBalance  string    `gorm:"column:eligible_balance;type:numeric(78,0)"`
	RewardAmount     string    `gorm:"column:reward_amount;type:numeric(78,0)"`
	ShareBasisPoints int64     `gorm:"column:share_basis_points"`
	BatchNumber      int       `gorm:"column:batch_number"`
	Status           string    `gorm:"column:status"`
	TxID             string    `gorm:"column:tx_id"`
	LastError        string    `gorm:"column:last_error"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (recipientModel) TableName() string {
	return "reward_recipients"
}

func recipientModelFromEntity(recipient entities.Recipient, position int) recipientModel {
	return recipientModel{
		DistributionID:   strings.TrimSpace(recipient.DistributionID),
		Address:          strings.TrimSpace(recipient.Address),
		Position:         position,
		PreviousBalance:  formatAmount(recipient.PreviousBalance),
		CurrentBalance:   formatAmount(recipient.CurrentBalance),
		EligibleBalance:  formatAmount(recipient.EligibleBalance),
		RewardAmount:     formatAmount(recipient.RewardAmount),
		ShareBasisPoints: recipient.ShareBasisPoints,
		BatchNumber:      recipient.BatchNumber,
		Status:           string(recipient.Status),
		TxID:             recipient.TxID,
		LastError:        recipient.LastError,
		UpdatedAt:        recipient.UpdatedAt.UTC(),
	}
}

func (m recipientModel) toEntity() (entities.Recipient, error) {
	previous, err := parseAmount(m.PreviousBalance)
	if err != nil {
		return entities.Recipient{}, err
	}
	current, err := parseAmount(m.CurrentBalance)
	if err != nil {
		return entities.Recipient{}, err
	}
	eligible, err := parseAmount(m.EligibleBalance)
	if err != nil {
		return entities.Recipient{}, err
	}
	reward, err := parseAmount(m.RewardAmount)
	if err != nil {
		return entities.Recipient{}, err
	}
	return entities.Recipient{
		DistributionID:   m.DistributionID,
		Address:          m.Address,
		PreviousBalance:  previous,
		CurrentBalance:   current,
		EligibleBalance:  eligible,
		RewardAmount:     reward,
		ShareBasisPoints: m.ShareBasisPoints,
		BatchNumber:      m.BatchNumber,
		Status:           entities.RecipientStatus(m.Status),
		TxID:             m.TxID,
		LastError:        m.LastError,
		UpdatedAt:        m.UpdatedAt.UTC(),
	}, nil
}

type batchMemberDoc struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type batchModel struct {
	DistributionID    string     `gorm:"column:distribution_id;primaryKey"`
	BatchNumber       int        `gorm:"column:batch_number;primaryKey"`
	Members           []byte     `gorm:"column:members;type:jsonb"`
	RecipientCount    int        `gorm:"column:recipient_count"`
	TotalAmount       string     `gorm:"column:total_amount;type:numeric(78,0)"`
	Status            string     `gorm:"column:status"`
	RetryCount        int        `gorm:"column:retry_count"`
	MaxRetries        int        `gorm:"column:max_retries"`
	LastError         string     `gorm:"column:last_error"`
	TxID              string     `gorm:"column:tx_id"`
	GasUsed           uint64     `gorm:"column:gas_used"`
	EffectiveGasPrice string     `gorm:"column:effective_gas_price;type:numeric(78,0)"`
	BlockNumber       uint64     `gorm:"column:block_number"`
	ConfirmedAt       *time.Time `gorm:"column:confirmed_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (batchModel) TableName() string {
	return "reward_batches"
}

func batchModelFromEntity(batch entities.Batch) (batchModel, error) {
	members := make([]batchMemberDoc, 0, len(batch.Members))
	for _, member := range batch.Members {
		members = append(members, batchMemberDoc{
			Address: member.Address,
			Amount:  formatAmount(member.Amount),
		})
	}
	encoded, err := json.Marshal(members)
	if err != nil {
		return batchModel{}, err
	}
	row := batchModel{
		DistributionID:    strings.TrimSpace(batch.DistributionID),
		BatchNumber:       batch.Number,
		Members:           encoded,
		RecipientCount:    batch.RecipientCount,
		TotalAmount:       formatAmount(batch.TotalAmount),
		Status:            string(batch.Status),
		RetryCount:        batch.RetryCount,
		MaxRetries:        batch.MaxRetries,
		LastError:         batch.LastError,
		EffectiveGasPrice: "0",
		UpdatedAt:         batch.UpdatedAt.UTC(),
	}
	if batch.Execution != nil {
		row.TxID = batch.Execution.TxID
		row.GasUsed = batch.Execution.GasUsed
		row.EffectiveGasPrice = formatAmount(batch.Execution.EffectiveGasPrice)
		row.BlockNumber = batch.Execution.BlockNumber
		confirmedAt := batch.Execution.ConfirmedAt.UTC()
		row.ConfirmedAt = &confirmedAt
	}
	return row, nil
}

func (m batchModel) toEntity() (entities.Batch, error) {
	var memberDocs []batchMemberDoc
	if len(m.Members) > 0 {
		if err := json.Unmarshal(m.Members, &memberDocs); err != nil {
			return entities.Batch{}, err
		}
	}
	members := make([]entities.BatchMember, 0, len(memberDocs))
	for _, doc := range memberDocs {
		amount, err := parseAmount(doc.Amount)
		if err != nil {
			return entities.Batch{}, err
		}
		members = append(members, entities.BatchMember{
			Address: doc.Address,
			Amount:  amount,
		})
	}
	totalAmount, err := parseAmount(m.TotalAmount)
	if err != nil {
		return entities.Batch{}, err
	}
	batch := entities.Batch{
		DistributionID: m.DistributionID,
		Number:         m.BatchNumber,
		Members:        members,
		RecipientCount: m.RecipientCount,
		TotalAmount:    totalAmount,
		Status:         entities.BatchStatus(m.Status),
		RetryCount:     m.RetryCount,
		MaxRetries:     m.MaxRetries,
		LastError:      m.LastError,
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
	if m.TxID != "" && m.ConfirmedAt != nil {
		gasPrice, err := parseAmount(m.EffectiveGasPrice)
		if err != nil {
			return entities.Batch{}, err
		}
		batch.Execution = &entities.ExecutionRecord{
			TxID:              m.TxID,
			GasUsed:           m.GasUsed,
			EffectiveGasPrice: gasPrice,
			BlockNumber:       m.BlockNumber,
			ConfirmedAt:       m.ConfirmedAt.UTC(),
		}
	}
	return batch, nil
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "reward_outbox"
}
