package models

import "errors"

// FeeStatus is the lifecycle state of a fee record. PENDING and ACTIVE are
// the open states; a student carries exactly one open fee at a time.
type FeeStatus string

const (
	FeeStatusPending   FeeStatus = "PENDING"
	FeeStatusActive    FeeStatus = "ACTIVE"
	FeeStatusPaid      FeeStatus = "PAID"
	FeeStatusInactive  FeeStatus = "INACTIVE"
	FeeStatusCancelled FeeStatus = "CANCELLED"
)

func (s FeeStatus) IsOpen() bool {
	return s == FeeStatusPending || s == FeeStatusActive
}

type PaymentStatus string

const (
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusInactive  PaymentStatus = "INACTIVE"
)

// CountsTowardPaid reports whether the payment participates in totalPaid.
func (s PaymentStatus) CountsTowardPaid() bool {
	return s != PaymentStatusCancelled && s != PaymentStatusInactive
}

// FeeAction selects how fee and payment records are handled when a student
// moves between batches.
type FeeAction string

const (
	FeeActionTransfer FeeAction = "TRANSFER"
	FeeActionNewFee   FeeAction = "NEW_FEE"
	FeeActionSplit    FeeAction = "SPLIT"
)

func ParseFeeAction(s string) (FeeAction, error) {
	switch s {
	case "TRANSFER":
		return FeeActionTransfer, nil
	case "NEW_FEE":
		return FeeActionNewFee, nil
	case "SPLIT":
		return FeeActionSplit, nil
	default:
		return "", errors.New("invalid fee action")
	}
}

type CommunicationEventType string

const (
	CommunicationEventBatchSwitched     CommunicationEventType = "BATCH_SWITCHED"
	CommunicationEventBatchSwitchEdited CommunicationEventType = "BATCH_SWITCH_EDITED"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
