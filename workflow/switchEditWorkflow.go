package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/waywedesign-cochin/smk-api/config"
	"github.com/waywedesign-cochin/smk-api/models"
	"github.com/waywedesign-cochin/smk-api/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type EditSwitchInput struct {
	StudentId      int              `json:"student_id"`
	BatchHistoryId int              `json:"batch_history_id"`
	NewToBatchId   int              `json:"new_to_batch_id"`
	NewFeeAction   models.FeeAction `json:"new_fee_action"`
	ChangeDate     time.Time        `json:"change_date"`
	Reason         string           `json:"reason"`
	Actor          Actor            `json:"actor"`
}

// EditSwitch undoes a student's most recent batch switch and applies a new
// one in its place, both inside a single transaction. The reversal is the
// exact structural inverse of the recorded switch; if anything fails the
// prior switch state survives untouched.
func EditSwitch(ctx context.Context, input EditSwitchInput) (*SwitchBatchResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.EditSwitch", trace.WithAttributes(
		attribute.Int("student.id", input.StudentId),
		attribute.Int("history.id", input.BatchHistoryId),
	))
	defer span.End()

	logger := config.GetLogger()

	switch input.NewFeeAction {
	case models.FeeActionTransfer, models.FeeActionNewFee, models.FeeActionSplit:
	default:
		return nil, utils.BusinessRuleError("invalid fee action")
	}

	txCtx, cancel := context.WithTimeout(ctx, AtomicUnitTimeout)
	defer cancel()

	db := config.GetDB()
	tx := db.WithContext(txCtx).Begin()
	if tx.Error != nil {
		config.LogError(logger, "switchEditWorkflow.go", "EditSwitch", "Begin", input, tx.Error)
		return nil, utils.TransactionError("begin edit transaction", tx.Error)
	}

	prior, err := reverseLatestSwitch(tx, logger, input)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// The reversal must leave the student with an open fee; its absence is a
	// data-integrity bug, not a user error.
	if _, err = models.GetOpenFeeForUpdate(tx, input.StudentId, models.FeeStatusActive, models.FeeStatusPending); err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			config.LogError(logger, "switchEditWorkflow.go", "EditSwitch", "ResolveOpenFee", input.StudentId, err)
			return nil, utils.ConsistencyError("active fee missing after reversal")
		}
		config.LogError(logger, "switchEditWorkflow.go", "EditSwitch", "ResolveOpenFee", input.StudentId, err)
		return nil, utils.TransactionError("resolve open fee", err)
	}

	reapply := SwitchBatchInput{
		StudentId:   input.StudentId,
		FromBatchId: prior.FromBatchId,
		ToBatchId:   input.NewToBatchId,
		ChangeDate:  input.ChangeDate,
		Reason:      input.Reason,
		FeeAction:   input.NewFeeAction,
		Actor:       input.Actor,
	}
	result, err := applySwitch(txCtx, tx, logger, reapply, models.CommunicationEventBatchSwitchEdited)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err = tx.Commit().Error; err != nil {
		config.LogError(logger, "switchEditWorkflow.go", "EditSwitch", "Commit", input, err)
		return nil, utils.TransactionError("commit edit transaction", err)
	}

	notifyAfterCommit(logger, input.Actor.LocationId, input.StudentId)
	return result, nil
}

// reverseLatestSwitch restores student enrollment, occupancy counters, fee
// and payment state to what they were before the switch recorded by the
// latest history row, then deletes that row. Returns the reversed row.
func reverseLatestSwitch(tx *gorm.DB, logger *logrus.Logger, input EditSwitchInput) (*models.BatchHistory, error) {

	latest, err := models.GetLatestBatchHistoryForUpdate(tx, input.StudentId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("no switch history found for student")
		}
		config.LogError(logger, "switchEditWorkflow.go", "reverseLatestSwitch", "GetLatestHistory", input.StudentId, err)
		return nil, utils.TransactionError("load latest history", err)
	}

	if latest.ID != input.BatchHistoryId {
		return nil, utils.PreconditionError("only the latest batch switch can be edited")
	}

	if _, err = models.GetStudentForUpdate(tx, input.StudentId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("student not found")
		}
		config.LogError(logger, "switchEditWorkflow.go", "reverseLatestSwitch", "GetStudent", input.StudentId, err)
		return nil, utils.TransactionError("load student", err)
	}

	// Restore enrollment and occupancy: the exact inverse of the forward
	// common writes.
	if err = tx.Model(&models.Student{}).Where("id = ?", input.StudentId).
		UpdateColumn("current_batch_id", latest.FromBatchId).Error; err != nil {
		config.LogError(logger, "switchEditWorkflow.go", "reverseLatestSwitch", "RestoreStudent", latest, err)
		return nil, utils.TransactionError("restore student enrollment", err)
	}
	if err = models.IncrementBatchCount(tx, latest.FromBatchId, +1); err != nil {
		config.LogError(logger, "switchEditWorkflow.go", "reverseLatestSwitch", "RestoreFromBatch", latest.FromBatchId, err)
		return nil, utils.TransactionError("restore source batch count", err)
	}
	if err = models.IncrementBatchCount(tx, latest.ToBatchId, -1); err != nil {
		config.LogError(logger, "switchEditWorkflow.go", "reverseLatestSwitch", "RestoreToBatch", latest.ToBatchId, err)
		return nil, utils.TransactionError("restore target batch count", err)
	}

	// Fee-side inverse: only NEW_FEE and SPLIT created a fee to unwind.
	if latest.FeeIdFrom != latest.FeeIdTo {
		if err = models.ReassignPayments(tx, latest.FeeIdTo, latest.FeeIdFrom); err != nil {
			config.LogError(logger, "switchEditWorkflow.go", "reverseLatestSwitch", "ReassignPaymentsBack", latest, err)
			return nil, utils.TransactionError("reassign payments back", err)
		}
		if err = tx.Delete(&models.Fee{}, latest.FeeIdTo).Error; err != nil {
			config.LogError(logger, "switchEditWorkflow.go", "reverseLatestSwitch", "DeleteCreatedFee", latest.FeeIdTo, err)
			return nil, utils.TransactionError("delete created fee", err)
		}

		restore := map[string]interface{}{
			"status":      models.FeeStatusPending,
			"transfer_id": nil,
		}
		// Restore the old fee's numeric fields from the snapshot taken at
		// switch time; rows written before snapshots existed fall back to a
		// status-only restore.
		if len(latest.PriorFeeState) > 0 {
			var snapshot models.FeeSnapshot
			if err = json.Unmarshal(latest.PriorFeeState, &snapshot); err != nil {
				config.LogError(logger, "switchEditWorkflow.go", "reverseLatestSwitch", "UnmarshalPriorFeeState", latest.ID, err)
				return nil, utils.TransactionError("decode prior fee state", err)
			}
			restore["final_fee"] = snapshot.FinalFee
			restore["balance_amount"] = snapshot.BalanceAmount
			restore["advance_amount"] = snapshot.AdvanceAmount
			// The fee may predate this switch yet belong to a still-earlier
			// one; its transfer id is part of the restored state.
			restore["transfer_id"] = snapshot.TransferId
		}
		if err = tx.Model(&models.Fee{}).Where("id = ?", latest.FeeIdFrom).
			Updates(restore).Error; err != nil {
			config.LogError(logger, "switchEditWorkflow.go", "reverseLatestSwitch", "RestoreOldFee", latest.FeeIdFrom, err)
			return nil, utils.TransactionError("restore old fee", err)
		}
	}

	if err = tx.Delete(&models.BatchHistory{}, latest.ID).Error; err != nil {
		config.LogError(logger, "switchEditWorkflow.go", "reverseLatestSwitch", "DeleteHistory", latest.ID, err)
		return nil, utils.TransactionError("delete history row", err)
	}

	return latest, nil
}
