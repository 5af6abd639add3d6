package application

import (
	"math/big"
	"sort"

	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
)

// CalculationInput carries everything the reward formula needs. Balances are
// smallest-unit integers keyed by normalized address; addresses missing from
// one map default to zero in the other period.
type CalculationInput struct {
	Previous       map[string]*big.Int
	Current        map[string]*big.Int
	PolicyExcluded map[string]struct{}
	Restricted     map[string]struct{}
	MinHolding     *big.Int
	RewardPool     *big.Int
}

// CalculationResult is the ordered recipient list plus aggregate stats.
// Recipients are sorted by reward descending, ties broken by address, which
// is also the execution order of the resulting batches.
type CalculationResult struct {
	Recipients []entities.Recipient
	Stats      entities.DistributionStats
}

// CalculateRewards distributes the pool across holders proportionally to
// min(previousBalance, currentBalance). All arithmetic is big.Int: floor
// division guarantees the allocated sum never exceeds the pool, with the
// rounding remainder left as dust. A zero eligible weight is a valid outcome
// and yields an empty recipient set, not an error.
func CalculateRewards(in CalculationInput) CalculationResult {
	minHolding := in.MinHolding
	if minHolding == nil {
		minHolding = big.NewInt(0)
	}
	pool := in.RewardPool
	if pool == nil {
		pool = big.NewInt(0)
	}

	addresses := make(map[string]struct{}, len(in.Previous)+len(in.Current))
	for address := range in.Previous {
		addresses[address] = struct{}{}
	}
	for address := range in.Current {
		addresses[address] = struct{}{}
	}

	stats := entities.DistributionStats{
		TotalHolders:        len(addresses),
		TotalEligibleWeight: big.NewInt(0),
		TotalDistributed:    big.NewInt(0),
	}

	type eligibleHolder struct {
		address  string
		previous *big.Int
		current  *big.Int
		weight   *big.Int
	}
	eligible := make([]eligibleHolder, 0, len(addresses))
	totalWeight := big.NewInt(0)

	for address := range addresses {
		if _, excluded := in.PolicyExcluded[address]; excluded {
			stats.PolicyExcluded++
			continue
		}
		if _, restricted := in.Restricted[address]; restricted {
			stats.RestrictedExcluded++
			continue
		}

		previous := balanceOrZero(in.Previous, address)
		current := balanceOrZero(in.Current, address)

		// Holding through the entire window is required: a zero balance in
		// either period disqualifies regardless of the other period.
		if previous.Sign() == 0 {
			stats.NotHeldPrevious++
			continue
		}
		if current.Sign() == 0 {
			stats.NotHeldCurrent++
			continue
		}

		weight := previous
		if current.Cmp(previous) < 0 {
			weight = current
		}
		// Threshold is inclusive: weight == minHolding qualifies.
		if weight.Cmp(minHolding) < 0 {
			stats.BelowMinimum++
			continue
		}

		eligible = append(eligible, eligibleHolder{
			address:  address,
			previous: previous,
			current:  current,
			weight:   weight,
		})
		totalWeight.Add(totalWeight, weight)
	}

	stats.TotalEligibleWeight = totalWeight
	if totalWeight.Sign() == 0 {
		return CalculationResult{Stats: stats}
	}

	recipients := make([]entities.Recipient, 0, len(eligible))
	tenThousand := big.NewInt(10000)
	for _, holder := range eligible {
		reward := new(big.Int).Mul(holder.weight, pool)
		reward.Quo(reward, totalWeight)
		if reward.Sign() == 0 {
			stats.ZeroReward++
			continue
		}
		basisPoints := new(big.Int).Mul(holder.weight, tenThousand)
		basisPoints.Quo(basisPoints, totalWeight)

		recipients = append(recipients, entities.Recipient{
			Address:          holder.address,
			PreviousBalance:  holder.previous,
			CurrentBalance:   holder.current,
			EligibleBalance:  holder.weight,
			RewardAmount:     reward,
			ShareBasisPoints: basisPoints.Int64(),
			Status:           entities.RecipientStatusPending,
		})
	}

	sort.Slice(recipients, func(i, j int) bool {
		cmp := recipients[i].RewardAmount.Cmp(recipients[j].RewardAmount)
		if cmp != 0 {
			return cmp > 0
		}
		return recipients[i].Address < recipients[j].Address
	})

	stats.EligibleCount = len(recipients)
	return CalculationResult{
		Recipients: recipients,
		Stats:      stats,
	}
}

func balanceOrZero(balances map[string]*big.Int, address string) *big.Int {
	if balance, ok := balances[address]; ok && balance != nil {
		return balance
	}
	return big.NewInt(0)
}
