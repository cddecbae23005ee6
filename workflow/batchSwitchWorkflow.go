package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/waywedesign-cochin/smk-api/config"
	"github.com/waywedesign-cochin/smk-api/models"
	"github.com/waywedesign-cochin/smk-api/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("smk-api")

// AtomicUnitTimeout bounds every switch/edit transaction. Exceeding it
// aborts the unit and surfaces a TransactionFailure; partial writes never
// survive.
const AtomicUnitTimeout = 15 * time.Second

// Actor identifies who performed the switch; supplied by the auth boundary,
// passed explicitly rather than read from ambient state.
type Actor struct {
	LoggedById  int    `json:"logged_by_id"`
	DisplayName string `json:"display_name"`
	LocationId  int    `json:"location_id"`
}

type SwitchBatchInput struct {
	StudentId   int              `json:"student_id"`
	FromBatchId int              `json:"from_batch_id"`
	ToBatchId   int              `json:"to_batch_id"`
	ChangeDate  time.Time        `json:"change_date"`
	Reason      string           `json:"reason"`
	FeeAction   models.FeeAction `json:"fee_action"`
	Actor       Actor            `json:"actor"`
}

// FeeOutcome reports what happened on the fee ledger: OldFee is the fee that
// was open before the switch, NewFee is non-nil when the policy created one.
type FeeOutcome struct {
	OldFee models.Fee  `json:"old_fee"`
	NewFee *models.Fee `json:"new_fee,omitempty"`
}

type SwitchBatchResult struct {
	History    models.BatchHistory `json:"history"`
	FeeOutcome FeeOutcome          `json:"fee_outcome"`
	TransferId string              `json:"transfer_id"`
}

// SwitchBatch moves a student between batches under one of the three
// fee-handling policies, all inside a single transaction: student
// enrollment, both batches' occupancy counters, fee/payment records, the
// history row, the audit log entry and the notification outbox row commit
// together or not at all.
func SwitchBatch(ctx context.Context, input SwitchBatchInput) (*SwitchBatchResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.SwitchBatch", trace.WithAttributes(
		attribute.Int("student.id", input.StudentId),
		attribute.String("fee.action", string(input.FeeAction)),
	))
	defer span.End()

	logger := config.GetLogger()

	switch input.FeeAction {
	case models.FeeActionTransfer, models.FeeActionNewFee, models.FeeActionSplit:
	default:
		return nil, utils.BusinessRuleError("invalid fee action")
	}

	txCtx, cancel := context.WithTimeout(ctx, AtomicUnitTimeout)
	defer cancel()

	db := config.GetDB()
	tx := db.WithContext(txCtx).Begin()
	if tx.Error != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "SwitchBatch", "Begin", input, tx.Error)
		return nil, utils.TransactionError("begin switch transaction", tx.Error)
	}

	result, err := applySwitch(txCtx, tx, logger, input, models.CommunicationEventBatchSwitched)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err = tx.Commit().Error; err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "SwitchBatch", "Commit", input, err)
		return nil, utils.TransactionError("commit switch transaction", err)
	}

	notifyAfterCommit(logger, input.Actor.LocationId, input.StudentId)
	return result, nil
}

// applySwitch runs the validation, policy branch and common writes inside
// the caller's transaction. The switch-edit engine reuses it for
// re-application, so it must never commit or roll back itself.
func applySwitch(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, input SwitchBatchInput, event models.CommunicationEventType) (*SwitchBatchResult, error) {

	student, err := models.GetStudentForUpdate(tx, input.StudentId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("student not found")
		}
		config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "GetStudent", input.StudentId, err)
		return nil, utils.TransactionError("load student", err)
	}

	if student.CurrentBatchId != input.FromBatchId {
		return nil, utils.PreconditionError("student is not enrolled in the given source batch")
	}

	fromBatch, err := models.GetBatchForUpdate(tx, input.FromBatchId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("source batch not found")
		}
		config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "GetFromBatch", input.FromBatchId, err)
		return nil, utils.TransactionError("load source batch", err)
	}

	toBatch, err := models.GetBatchForUpdate(tx, input.ToBatchId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("target batch not found")
		}
		config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "GetToBatch", input.ToBatchId, err)
		return nil, utils.TransactionError("load target batch", err)
	}

	// Switching back onto the same batch is net-zero on occupancy; the
	// student already holds the seat, so the slot check does not apply.
	if input.ToBatchId != input.FromBatchId && !toBatch.HasOpenSlot() {
		return nil, utils.PreconditionError("target batch has no open slots")
	}
	if fromBatch.CurrentCount <= 0 {
		return nil, utils.ConsistencyError("source batch occupancy would go negative")
	}

	openFee, err := models.GetOpenFeeForUpdate(tx, input.StudentId, models.FeeStatusPending)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("no active fee found for student")
		}
		config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "GetOpenFee", input.StudentId, err)
		return nil, utils.TransactionError("load open fee", err)
	}

	totalPaid, err := models.TotalPaidOnFee(tx, openFee.ID)
	if err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "TotalPaidOnFee", openFee.ID, err)
		return nil, utils.TransactionError("sum fee payments", err)
	}

	transferId := uuid.NewString()
	priorFeeState, err := json.Marshal(openFee.Snapshot())
	if err != nil {
		return nil, utils.TransactionError("snapshot fee state", err)
	}

	outcome := FeeOutcome{OldFee: *openFee}
	feeIdFrom := openFee.ID
	feeIdTo := openFee.ID

	switch input.FeeAction {

	case models.FeeActionTransfer:
		// Enrollment moves; the fee and its revenue stay with the
		// originating batch. No fee rows are touched.

	case models.FeeActionNewFee:
		if toBatch.Course == nil {
			return nil, utils.ConsistencyError("target batch has no course")
		}
		baseFee := toBatch.Course.BaseFee
		newFee := models.Fee{
			StudentId:      input.StudentId,
			BatchId:        input.ToBatchId,
			TotalCourseFee: baseFee,
			FinalFee:       baseFee,
			BalanceAmount:  NewFeeBalance(baseFee, totalPaid),
			AdvanceAmount:  openFee.AdvanceAmount,
			Status:         models.FeeStatusPending,
			TransferId:     &transferId,
		}
		if err = tx.Create(&newFee).Error; err != nil {
			config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "CreateNewFee", newFee, err)
			return nil, utils.TransactionError("create new fee", err)
		}
		if err = models.ReassignPayments(tx, openFee.ID, newFee.ID); err != nil {
			config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "ReassignPayments", openFee.ID, err)
			return nil, utils.TransactionError("reassign payments", err)
		}
		if err = tx.Model(&models.Fee{}).Where("id = ?", openFee.ID).Updates(map[string]interface{}{
			"status":      models.FeeStatusCancelled,
			"transfer_id": transferId,
		}).Error; err != nil {
			config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "CancelOldFee", openFee.ID, err)
			return nil, utils.TransactionError("cancel old fee", err)
		}
		feeIdTo = newFee.ID
		outcome.NewFee = &newFee

	case models.FeeActionSplit:
		if toBatch.Course == nil {
			return nil, utils.ConsistencyError("target batch has no course")
		}
		baseFee := toBatch.Course.BaseFee
		if SplitOverpaid(totalPaid, baseFee) {
			return nil, utils.BusinessRuleError("paid amount exceeds new batch fee; requires new admission")
		}
		adjustedFee := NewFeeBalance(baseFee, totalPaid)
		newFee := models.Fee{
			StudentId:      input.StudentId,
			BatchId:        input.ToBatchId,
			TotalCourseFee: baseFee,
			FinalFee:       adjustedFee,
			BalanceAmount:  adjustedFee,
			Status:         models.FeeStatusPending,
			TransferId:     &transferId,
		}
		if err = tx.Create(&newFee).Error; err != nil {
			config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "CreateSplitFee", newFee, err)
			return nil, utils.TransactionError("create split fee", err)
		}
		// Payments stay attributed to the old fee under SPLIT.
		closing := SplitClosingStatus(openFee.BalanceAmount, totalPaid, openFee.FinalFee)
		if err = tx.Model(&models.Fee{}).Where("id = ?", openFee.ID).Updates(map[string]interface{}{
			"status":      closing,
			"transfer_id": transferId,
		}).Error; err != nil {
			config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "CloseOldFee", openFee.ID, err)
			return nil, utils.TransactionError("close old fee", err)
		}
		feeIdTo = newFee.ID
		outcome.NewFee = &newFee
	}

	// Common writes shared by all three policies.
	if err = tx.Model(&models.Student{}).Where("id = ?", input.StudentId).
		UpdateColumn("current_batch_id", input.ToBatchId).Error; err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "MoveStudent", input, err)
		return nil, utils.TransactionError("update student enrollment", err)
	}
	if err = models.IncrementBatchCount(tx, input.FromBatchId, -1); err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "DecrementFromBatch", input.FromBatchId, err)
		return nil, utils.TransactionError("decrement source batch count", err)
	}
	if err = models.IncrementBatchCount(tx, input.ToBatchId, +1); err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "IncrementToBatch", input.ToBatchId, err)
		return nil, utils.TransactionError("increment target batch count", err)
	}

	history := models.BatchHistory{
		StudentId:     input.StudentId,
		FromBatchId:   input.FromBatchId,
		ToBatchId:     input.ToBatchId,
		ChangeDate:    input.ChangeDate,
		Reason:        input.Reason,
		TransferId:    transferId,
		FeeIdFrom:     feeIdFrom,
		FeeIdTo:       feeIdTo,
		FeeManageMode: input.FeeAction,
		PriorFeeState: priorFeeState,
	}
	if err = tx.Create(&history).Error; err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "CreateBatchHistory", history, err)
		return nil, utils.TransactionError("append batch history", err)
	}

	description := fmt.Sprintf("%s switched %s from batch %d to batch %d (%s)",
		input.Actor.DisplayName, student.Name, input.FromBatchId, input.ToBatchId, input.FeeAction)
	logEntry := models.CommunicationLog{
		ActorId:     input.Actor.LoggedById,
		ActorName:   input.Actor.DisplayName,
		EventType:   event,
		Title:       "Batch switch",
		Description: description,
		StudentId:   input.StudentId,
		LocationId:  input.Actor.LocationId,
		OccurredAt:  time.Now().UTC(),
	}
	if event == models.CommunicationEventBatchSwitchEdited {
		logEntry.Title = "Batch switch edited"
	}
	if err = models.CreateCommunicationLog(tx, &logEntry); err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "CreateCommunicationLog", logEntry, err)
		return nil, utils.TransactionError("write audit entry", err)
	}

	result := &SwitchBatchResult{
		History:    history,
		FeeOutcome: outcome,
		TransferId: transferId,
	}
	if err = models.QueueNotification(ctx, tx, event, input.StudentId, input.Actor.LocationId, input.Actor.LoggedById, transferId, result); err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "applySwitch", "QueueNotification", transferId, err)
		return nil, utils.TransactionError("queue notification", err)
	}

	return result, nil
}

// notifyAfterCommit clears the cached collections made stale by a committed
// switch: the location's student, revenue and batch lists plus the moved
// student's own record. Runs outside the atomic unit; failures are logged,
// never surfaced.
func notifyAfterCommit(logger *logrus.Logger, locationId int, studentId int) {
	if err := utils.RemoveRedisList[models.Student](locationId); err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "notifyAfterCommit", "RemoveStudentList", locationId, err)
	}
	if err := utils.RemoveRedisList[models.StudentRevenue](locationId); err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "notifyAfterCommit", "RemoveRevenueList", locationId, err)
	}
	if err := utils.RemoveRedisList[models.Batch](locationId); err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "notifyAfterCommit", "RemoveBatchList", locationId, err)
	}
	if err := utils.RemoveRedisItem[models.Student](studentId); err != nil {
		config.LogError(logger, "batchSwitchWorkflow.go", "notifyAfterCommit", "RemoveStudent", studentId, err)
	}
}
