package application

import (
	"math/big"

	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
)

// PartitionRecipients slices the ordered recipient list into batches of up to
// batchSize consecutive entries, numbered from 1 with no gaps, and stamps each
// recipient with its owning batch number. Because the calculator orders by
// reward descending, batch 1 always carries the largest transfers, so a run
// interrupted by the price gate has already attempted the most impactful ones.
func PartitionRecipients(recipients []entities.Recipient, batchSize int, maxRetries int) []entities.Batch {
	if batchSize <= 0 {
		batchSize = 1
	}
	batches := make([]entities.Batch, 0, (len(recipients)+batchSize-1)/batchSize)

	for start := 0; start < len(recipients); start += batchSize {
		end := start + batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		number := len(batches) + 1

		members := make([]entities.BatchMember, 0, end-start)
		total := big.NewInt(0)
		for i := start; i < end; i++ {
			recipients[i].BatchNumber = number
			members = append(members, entities.BatchMember{
				Address: recipients[i].Address,
				Amount:  new(big.Int).Set(recipients[i].RewardAmount),
			})
			total.Add(total, recipients[i].RewardAmount)
		}

		batches = append(batches, entities.Batch{
			Number:         number,
			Members:        members,
			RecipientCount: len(members),
			TotalAmount:    total,
			Status:         entities.BatchStatusPending,
			MaxRetries:     maxRetries,
		})
	}
	return batches
}

// VerifyPartition checks that the batches are a perfect partition of the
// recipient list: the batch totals sum to the recipient reward sum and every
// recipient appears in exactly one batch.
func VerifyPartition(recipients []entities.Recipient, batches []entities.Batch) bool {
	rewardSum := big.NewInt(0)
	for _, recipient := range recipients {
		rewardSum.Add(rewardSum, recipient.RewardAmount)
	}
	batchSum := big.NewInt(0)
	memberCount := 0
	seen := make(map[string]struct{}, len(recipients))
	for _, batch := range batches {
		batchSum.Add(batchSum, batch.TotalAmount)
		memberCount += len(batch.Members)
		for _, member := range batch.Members {
			if _, dup := seen[member.Address]; dup {
				return false
			}
			seen[member.Address] = struct{}{}
		}
	}
	if memberCount != len(recipients) {
		return false
	}
	for _, recipient := range recipients {
		if _, ok := seen[recipient.Address]; !ok {
			return false
		}
	}
	return rewardSum.Cmp(batchSum) == 0
}
