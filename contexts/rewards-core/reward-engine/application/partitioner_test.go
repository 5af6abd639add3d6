package application

import (
	"fmt"
	"math/big"
	"testing"

	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
)

func makeRecipients(count int, reward int64) []entities.Recipient {
	recipients := make([]entities.Recipient, 0, count)
	for i := 0; i < count; i++ {
		recipients = append(recipients, entities.Recipient{
			Address:      fmt.Sprintf("holder-%03d", i),
			RewardAmount: big.NewInt(reward),
			Status:       entities.RecipientStatusPending,
		})
	}
	return recipients
}

func TestPartitionRecipientsCeilSizing(t *testing.T) {
	recipients := makeRecipients(7, 10)
	batches := PartitionRecipients(recipients, 3, 2)

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches for 7 recipients at size 3, got %d", len(batches))
	}
	sizes := []int{3, 3, 1}
	for i, batch := range batches {
		if batch.Number != i+1 {
			t.Fatalf("expected batch number %d, got %d", i+1, batch.Number)
		}
		if batch.RecipientCount != sizes[i] {
			t.Fatalf("batch %d: expected %d members, got %d", batch.Number, sizes[i], batch.RecipientCount)
		}
		if batch.Status != entities.BatchStatusPending {
			t.Fatalf("batch %d: expected pending, got %s", batch.Number, batch.Status)
		}
		if batch.MaxRetries != 2 {
			t.Fatalf("batch %d: expected maxRetries 2, got %d", batch.Number, batch.MaxRetries)
		}
	}
	if batches[2].TotalAmount.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("last batch total should be 10, got %s", batches[2].TotalAmount)
	}
}

func TestPartitionRecipientsStampsBatchNumbers(t *testing.T) {
	recipients := makeRecipients(5, 1)
	PartitionRecipients(recipients, 2, 1)

	want := []int{1, 1, 2, 2, 3}
	for i, recipient := range recipients {
		if recipient.BatchNumber != want[i] {
			t.Fatalf("recipient %d: expected batch %d, got %d", i, want[i], recipient.BatchNumber)
		}
	}
}

func TestPartitionRecipientsEmptyInput(t *testing.T) {
	if batches := PartitionRecipients(nil, 10, 1); len(batches) != 0 {
		t.Fatalf("expected no batches for no recipients, got %d", len(batches))
	}
}

func TestPartitionRecipientsBatchLargerThanList(t *testing.T) {
	recipients := makeRecipients(3, 5)
	batches := PartitionRecipients(recipients, 100, 1)

	if len(batches) != 1 {
		t.Fatalf("expected a single batch, got %d", len(batches))
	}
	if batches[0].TotalAmount.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("expected total 15, got %s", batches[0].TotalAmount)
	}
}

func TestVerifyPartitionAcceptsValidPartition(t *testing.T) {
	recipients := makeRecipients(10, 7)
	batches := PartitionRecipients(recipients, 4, 1)
	if !VerifyPartition(recipients, batches) {
		t.Fatalf("valid partition rejected")
	}
}

func TestVerifyPartitionRejectsTotalMismatch(t *testing.T) {
	recipients := makeRecipients(4, 7)
	batches := PartitionRecipients(recipients, 2, 1)
	batches[0].TotalAmount = new(big.Int).Add(batches[0].TotalAmount, big.NewInt(1))
	if VerifyPartition(recipients, batches) {
		t.Fatalf("total mismatch not detected")
	}
}

func TestVerifyPartitionRejectsMissingRecipient(t *testing.T) {
	recipients := makeRecipients(4, 7)
	batches := PartitionRecipients(recipients, 2, 1)
	batches[1].Members = batches[1].Members[:1]
	if VerifyPartition(recipients, batches) {
		t.Fatalf("missing recipient not detected")
	}
}

func TestVerifyPartitionRejectsDuplicateMember(t *testing.T) {
	recipients := makeRecipients(4, 7)
	batches := PartitionRecipients(recipients, 2, 1)
	batches[1].Members[1] = batches[0].Members[0]
	if VerifyPartition(recipients, batches) {
		t.Fatalf("duplicate member not detected")
	}
}
