package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/waywedesign-cochin/smk-api/config"
	"github.com/waywedesign-cochin/smk-api/models"
	"github.com/waywedesign-cochin/smk-api/utils"
	"github.com/waywedesign-cochin/smk-api/workflow"
	"gorm.io/gorm"
)

// Regression suite for the batch-switch and switch-edit engines against real
// MySQL and Redis. Covers occupancy conservation, the three fee policies,
// the latest-row edit guard and the reversal round trip.

type switchFixture struct {
	course1  models.Course
	course2  models.Course
	batchA   models.Batch
	batchB   models.Batch
	batchC   models.Batch
	student  models.Student
	fee      models.Fee
	payments []models.Payment
}

func setupSwitchFixture(t *testing.T, baseFee2 string, paidAmounts ...string) *switchFixture {
	t.Helper()
	db := config.GetDB()
	ctx := context.Background()

	f := &switchFixture{}
	f.course1 = models.Course{Name: "Guitar Foundation", Code: "GTR-1", BaseFee: decimal.RequireFromString("1000"), DurationMonths: 6, LocationId: 1, IsActive: true}
	if err := db.WithContext(ctx).Create(&f.course1).Error; err != nil {
		t.Fatalf("create course1: %v", err)
	}
	f.course2 = models.Course{Name: "Keyboard Foundation", Code: "KBD-1", BaseFee: decimal.RequireFromString(baseFee2), DurationMonths: 6, LocationId: 1, IsActive: true}
	if err := db.WithContext(ctx).Create(&f.course2).Error; err != nil {
		t.Fatalf("create course2: %v", err)
	}

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f.batchA = models.Batch{Name: "GTR-A", CourseId: f.course1.ID, SlotLimit: 10, CurrentCount: 5, StartDate: start, LocationId: 1, IsActive: true}
	f.batchB = models.Batch{Name: "KBD-B", CourseId: f.course2.ID, SlotLimit: 10, CurrentCount: 3, StartDate: start, LocationId: 1, IsActive: true}
	f.batchC = models.Batch{Name: "KBD-C", CourseId: f.course2.ID, SlotLimit: 10, CurrentCount: 2, StartDate: start, LocationId: 1, IsActive: true}
	for _, b := range []*models.Batch{&f.batchA, &f.batchB, &f.batchC} {
		if err := db.WithContext(ctx).Create(b).Error; err != nil {
			t.Fatalf("create batch %s: %v", b.Name, err)
		}
	}

	f.student = models.Student{Name: "Anand", CurrentBatchId: f.batchA.ID, LocationId: 1, IsActive: true}
	if err := db.WithContext(ctx).Create(&f.student).Error; err != nil {
		t.Fatalf("create student: %v", err)
	}

	f.fee = models.Fee{
		StudentId:      f.student.ID,
		BatchId:        f.batchA.ID,
		TotalCourseFee: f.course1.BaseFee,
		FinalFee:       f.course1.BaseFee,
		BalanceAmount:  f.course1.BaseFee,
		Status:         models.FeeStatusPending,
	}
	for _, p := range paidAmounts {
		f.fee.BalanceAmount = f.fee.BalanceAmount.Sub(decimal.RequireFromString(p))
	}
	if err := db.WithContext(ctx).Create(&f.fee).Error; err != nil {
		t.Fatalf("create fee: %v", err)
	}

	for i, p := range paidAmounts {
		payment := models.Payment{
			StudentId:     f.student.ID,
			FeeId:         f.fee.ID,
			Amount:        decimal.RequireFromString(p),
			Status:        models.PaymentStatusConfirmed,
			PaymentDate:   start.AddDate(0, 0, i),
			PaymentMode:   "CASH",
			ReceiptNumber: fmt.Sprintf("RC-%d-%d", f.student.ID, i+1),
		}
		if err := db.WithContext(ctx).Create(&payment).Error; err != nil {
			t.Fatalf("create payment: %v", err)
		}
		f.payments = append(f.payments, payment)
	}
	return f
}

func testActor() workflow.Actor {
	return workflow.Actor{LoggedById: 1, DisplayName: "Front Office", LocationId: 1}
}

func batchCount(t *testing.T, batchId int) int {
	t.Helper()
	var b models.Batch
	if err := config.GetDB().First(&b, batchId).Error; err != nil {
		t.Fatalf("reload batch %d: %v", batchId, err)
	}
	return b.CurrentCount
}

func reloadFee(t *testing.T, feeId int) models.Fee {
	t.Helper()
	var fee models.Fee
	if err := config.GetDB().First(&fee, feeId).Error; err != nil {
		t.Fatalf("reload fee %d: %v", feeId, err)
	}
	return fee
}

func connectTestBackends(t *testing.T) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "smk_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()
}

func TestSwitchBatch_NewFeePolicy(t *testing.T) {
	connectTestBackends(t)
	f := setupSwitchFixture(t, "800", "500")
	db := config.GetDB()

	paidBefore, err := models.TotalPaidByStudent(db, f.student.ID)
	if err != nil {
		t.Fatalf("TotalPaidByStudent: %v", err)
	}

	result, err := workflow.SwitchBatch(context.Background(), workflow.SwitchBatchInput{
		StudentId:   f.student.ID,
		FromBatchId: f.batchA.ID,
		ToBatchId:   f.batchB.ID,
		ChangeDate:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Reason:      "schedule conflict",
		FeeAction:   models.FeeActionNewFee,
		Actor:       testActor(),
	})
	if err != nil {
		t.Fatalf("SwitchBatch: %v", err)
	}
	if result.FeeOutcome.NewFee == nil {
		t.Fatalf("NEW_FEE must create a fee")
	}

	var student models.Student
	if err := db.First(&student, f.student.ID).Error; err != nil {
		t.Fatalf("reload student: %v", err)
	}
	if student.CurrentBatchId != f.batchB.ID {
		t.Fatalf("expected enrollment in batch %d, got %d", f.batchB.ID, student.CurrentBatchId)
	}
	if got := batchCount(t, f.batchA.ID); got != 4 {
		t.Fatalf("source occupancy expected 4, got %d", got)
	}
	if got := batchCount(t, f.batchB.ID); got != 4 {
		t.Fatalf("target occupancy expected 4, got %d", got)
	}

	newFee := reloadFee(t, result.FeeOutcome.NewFee.ID)
	if !newFee.FinalFee.Equal(decimal.RequireFromString("800")) {
		t.Fatalf("new fee final expected 800, got %s", newFee.FinalFee)
	}
	if !newFee.BalanceAmount.Equal(decimal.RequireFromString("300")) {
		t.Fatalf("new fee balance expected 300, got %s", newFee.BalanceAmount)
	}
	oldFee := reloadFee(t, f.fee.ID)
	if oldFee.Status != models.FeeStatusCancelled {
		t.Fatalf("old fee expected CANCELLED, got %s", oldFee.Status)
	}
	if oldFee.TransferId == nil || *oldFee.TransferId != result.TransferId {
		t.Fatalf("old fee must carry the switch transfer id")
	}

	// Payments follow the fee under NEW_FEE; the student's lifetime total is
	// unchanged.
	onNew, err := models.TotalPaidOnFee(db, newFee.ID)
	if err != nil {
		t.Fatalf("TotalPaidOnFee: %v", err)
	}
	if !onNew.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("payments on new fee expected 500, got %s", onNew)
	}
	paidAfter, err := models.TotalPaidByStudent(db, f.student.ID)
	if err != nil {
		t.Fatalf("TotalPaidByStudent: %v", err)
	}
	if !paidAfter.Equal(paidBefore) {
		t.Fatalf("student paid total changed: %s -> %s", paidBefore, paidAfter)
	}

	rows, err := models.ListBatchHistory(db, f.student.ID)
	if err != nil {
		t.Fatalf("ListBatchHistory: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(rows))
	}
	if rows[0].TransferId != result.TransferId || rows[0].FeeManageMode != models.FeeActionNewFee {
		t.Fatalf("history row does not describe the switch: %+v", rows[0])
	}
}

func TestSwitchBatch_TransferPolicy(t *testing.T) {
	connectTestBackends(t)
	f := setupSwitchFixture(t, "800", "500")
	db := config.GetDB()

	result, err := workflow.SwitchBatch(context.Background(), workflow.SwitchBatchInput{
		StudentId:   f.student.ID,
		FromBatchId: f.batchA.ID,
		ToBatchId:   f.batchB.ID,
		ChangeDate:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Reason:      "timing clash",
		FeeAction:   models.FeeActionTransfer,
		Actor:       testActor(),
	})
	if err != nil {
		t.Fatalf("SwitchBatch: %v", err)
	}
	if result.FeeOutcome.NewFee != nil {
		t.Fatalf("TRANSFER must not create a fee")
	}

	var student models.Student
	if err := db.First(&student, f.student.ID).Error; err != nil {
		t.Fatalf("reload student: %v", err)
	}
	if student.CurrentBatchId != f.batchB.ID {
		t.Fatalf("expected enrollment in batch %d, got %d", f.batchB.ID, student.CurrentBatchId)
	}
	if got := batchCount(t, f.batchA.ID); got != 4 {
		t.Fatalf("source occupancy expected 4, got %d", got)
	}
	if got := batchCount(t, f.batchB.ID); got != 4 {
		t.Fatalf("target occupancy expected 4, got %d", got)
	}

	// Fee and payments stay with the originating batch untouched.
	fee := reloadFee(t, f.fee.ID)
	if fee.Status != models.FeeStatusPending || fee.TransferId != nil ||
		!fee.BalanceAmount.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("TRANSFER must leave the fee untouched: %+v", fee)
	}
	rows, err := models.ListBatchHistory(db, f.student.ID)
	if err != nil {
		t.Fatalf("ListBatchHistory: %v", err)
	}
	if len(rows) != 1 || rows[0].FeeIdFrom != f.fee.ID || rows[0].FeeIdTo != f.fee.ID {
		t.Fatalf("TRANSFER history must reference the same fee on both sides: %+v", rows)
	}
}

func TestSwitchBatch_SplitPolicy(t *testing.T) {
	connectTestBackends(t)
	f := setupSwitchFixture(t, "800", "500")
	db := config.GetDB()

	result, err := workflow.SwitchBatch(context.Background(), workflow.SwitchBatchInput{
		StudentId:   f.student.ID,
		FromBatchId: f.batchA.ID,
		ToBatchId:   f.batchB.ID,
		ChangeDate:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Reason:      "course change",
		FeeAction:   models.FeeActionSplit,
		Actor:       testActor(),
	})
	if err != nil {
		t.Fatalf("SwitchBatch: %v", err)
	}
	if result.FeeOutcome.NewFee == nil {
		t.Fatalf("SPLIT must create a fee")
	}

	newFee := reloadFee(t, result.FeeOutcome.NewFee.ID)
	adjusted := decimal.RequireFromString("300")
	if !newFee.FinalFee.Equal(adjusted) || !newFee.BalanceAmount.Equal(adjusted) {
		t.Fatalf("split fee expected final=balance=300, got final=%s balance=%s", newFee.FinalFee, newFee.BalanceAmount)
	}
	if newFee.Status != models.FeeStatusPending {
		t.Fatalf("split fee expected PENDING, got %s", newFee.Status)
	}

	// 500 paid against a 1000 final fee: abandoned with a balance.
	oldFee := reloadFee(t, f.fee.ID)
	if oldFee.Status != models.FeeStatusInactive {
		t.Fatalf("old fee expected INACTIVE, got %s", oldFee.Status)
	}

	// Payments stay attributed to the old fee under SPLIT.
	onOld, err := models.TotalPaidOnFee(db, f.fee.ID)
	if err != nil {
		t.Fatalf("TotalPaidOnFee: %v", err)
	}
	if !onOld.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("payments must remain on the old fee, got %s", onOld)
	}
	onNew, err := models.TotalPaidOnFee(db, newFee.ID)
	if err != nil {
		t.Fatalf("TotalPaidOnFee: %v", err)
	}
	if !onNew.IsZero() {
		t.Fatalf("split fee must start with no payments, got %s", onNew)
	}
}

func TestSwitchBatch_SplitOverpaidRejectedAndStateUntouched(t *testing.T) {
	connectTestBackends(t)
	f := setupSwitchFixture(t, "800", "900")
	db := config.GetDB()

	_, err := workflow.SwitchBatch(context.Background(), workflow.SwitchBatchInput{
		StudentId:   f.student.ID,
		FromBatchId: f.batchA.ID,
		ToBatchId:   f.batchB.ID,
		ChangeDate:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Reason:      "wants keyboards",
		FeeAction:   models.FeeActionSplit,
		Actor:       testActor(),
	})
	if err == nil {
		t.Fatalf("expected overpaid SPLIT to be rejected")
	}
	if kind, ok := utils.KindOf(err); !ok || kind != utils.ErrorKindBusinessRuleViolation {
		t.Fatalf("expected business rule violation, got %v", err)
	}

	var student models.Student
	if err := db.First(&student, f.student.ID).Error; err != nil {
		t.Fatalf("reload student: %v", err)
	}
	if student.CurrentBatchId != f.batchA.ID {
		t.Fatalf("rejected switch must not move the student")
	}
	if got := batchCount(t, f.batchA.ID); got != 5 {
		t.Fatalf("source occupancy expected 5, got %d", got)
	}
	if got := batchCount(t, f.batchB.ID); got != 3 {
		t.Fatalf("target occupancy expected 3, got %d", got)
	}
	fee := reloadFee(t, f.fee.ID)
	if fee.Status != models.FeeStatusPending || fee.TransferId != nil {
		t.Fatalf("rejected switch must not touch the fee: %+v", fee)
	}
	rows, err := models.ListBatchHistory(db, f.student.ID)
	if err != nil {
		t.Fatalf("ListBatchHistory: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rejected switch must not append history, got %d rows", len(rows))
	}
}

func TestSwitchBatch_TargetBatchFull(t *testing.T) {
	connectTestBackends(t)
	f := setupSwitchFixture(t, "800")
	db := config.GetDB()

	if err := db.Model(&models.Batch{}).Where("id = ?", f.batchB.ID).
		UpdateColumn("current_count", f.batchB.SlotLimit).Error; err != nil {
		t.Fatalf("fill target batch: %v", err)
	}

	_, err := workflow.SwitchBatch(context.Background(), workflow.SwitchBatchInput{
		StudentId:   f.student.ID,
		FromBatchId: f.batchA.ID,
		ToBatchId:   f.batchB.ID,
		ChangeDate:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Reason:      "full batch",
		FeeAction:   models.FeeActionTransfer,
		Actor:       testActor(),
	})
	if err == nil {
		t.Fatalf("expected switch into a full batch to fail")
	}
	if kind, ok := utils.KindOf(err); !ok || kind != utils.ErrorKindPreconditionFailed {
		t.Fatalf("expected precondition failure, got %v", err)
	}
}

func TestEditSwitch_OnlyLatestRowEditable(t *testing.T) {
	connectTestBackends(t)
	f := setupSwitchFixture(t, "800", "200")

	result, err := workflow.SwitchBatch(context.Background(), workflow.SwitchBatchInput{
		StudentId:   f.student.ID,
		FromBatchId: f.batchA.ID,
		ToBatchId:   f.batchB.ID,
		ChangeDate:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Reason:      "first switch",
		FeeAction:   models.FeeActionTransfer,
		Actor:       testActor(),
	})
	if err != nil {
		t.Fatalf("SwitchBatch: %v", err)
	}

	_, err = workflow.EditSwitch(context.Background(), workflow.EditSwitchInput{
		StudentId:      f.student.ID,
		BatchHistoryId: result.History.ID + 1000,
		NewToBatchId:   f.batchC.ID,
		NewFeeAction:   models.FeeActionTransfer,
		ChangeDate:     time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC),
		Reason:         "wrong row",
		Actor:          testActor(),
	})
	if err == nil {
		t.Fatalf("expected edit of a non-latest row to fail")
	}
	if kind, ok := utils.KindOf(err); !ok || kind != utils.ErrorKindPreconditionFailed {
		t.Fatalf("expected precondition failure, got %v", err)
	}
}

func TestEditSwitch_ReversalRoundTrip(t *testing.T) {
	connectTestBackends(t)
	f := setupSwitchFixture(t, "800", "500")
	db := config.GetDB()

	snapshotBefore := reloadFee(t, f.fee.ID)

	// First switch under NEW_FEE: creates a fee on batch B, cancels the old
	// one and moves the payments.
	first, err := workflow.SwitchBatch(context.Background(), workflow.SwitchBatchInput{
		StudentId:   f.student.ID,
		FromBatchId: f.batchA.ID,
		ToBatchId:   f.batchB.ID,
		ChangeDate:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Reason:      "first switch",
		FeeAction:   models.FeeActionNewFee,
		Actor:       testActor(),
	})
	if err != nil {
		t.Fatalf("SwitchBatch: %v", err)
	}

	// Edit the switch to land on batch C under TRANSFER. The reversal must
	// delete the created fee, move payments back and restore the original
	// fee's numbers exactly; TRANSFER then leaves the ledger alone.
	edited, err := workflow.EditSwitch(context.Background(), workflow.EditSwitchInput{
		StudentId:      f.student.ID,
		BatchHistoryId: first.History.ID,
		NewToBatchId:   f.batchC.ID,
		NewFeeAction:   models.FeeActionTransfer,
		ChangeDate:     time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC),
		Reason:         "actually wants batch C",
		Actor:          testActor(),
	})
	if err != nil {
		t.Fatalf("EditSwitch: %v", err)
	}

	var student models.Student
	if err := db.First(&student, f.student.ID).Error; err != nil {
		t.Fatalf("reload student: %v", err)
	}
	if student.CurrentBatchId != f.batchC.ID {
		t.Fatalf("expected enrollment in batch %d, got %d", f.batchC.ID, student.CurrentBatchId)
	}

	// Batch B saw +1 from the first switch and -1 from the reversal.
	if got := batchCount(t, f.batchA.ID); got != 4 {
		t.Fatalf("batch A occupancy expected 4, got %d", got)
	}
	if got := batchCount(t, f.batchB.ID); got != 3 {
		t.Fatalf("batch B occupancy expected 3, got %d", got)
	}
	if got := batchCount(t, f.batchC.ID); got != 3 {
		t.Fatalf("batch C occupancy expected 3, got %d", got)
	}

	// The fee created by the first switch is gone.
	var count int64
	if err := db.Model(&models.Fee{}).Where("id = ?", first.FeeOutcome.NewFee.ID).Count(&count).Error; err != nil {
		t.Fatalf("count created fee: %v", err)
	}
	if count != 0 {
		t.Fatalf("fee created by the reversed switch must be deleted")
	}

	restored := reloadFee(t, f.fee.ID)
	if restored.Status != models.FeeStatusPending {
		t.Fatalf("restored fee expected PENDING, got %s", restored.Status)
	}
	if restored.TransferId != nil {
		t.Fatalf("restored fee must not carry a transfer id")
	}
	if !restored.FinalFee.Equal(snapshotBefore.FinalFee) ||
		!restored.BalanceAmount.Equal(snapshotBefore.BalanceAmount) ||
		!restored.AdvanceAmount.Equal(snapshotBefore.AdvanceAmount) {
		t.Fatalf("restored fee numbers differ from the original: %+v vs %+v", restored, snapshotBefore)
	}

	onRestored, err := models.TotalPaidOnFee(db, f.fee.ID)
	if err != nil {
		t.Fatalf("TotalPaidOnFee: %v", err)
	}
	if !onRestored.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("payments must return to the original fee, got %s", onRestored)
	}

	// Exactly one history row survives and it describes the edited switch.
	rows, err := models.ListBatchHistory(db, f.student.ID)
	if err != nil {
		t.Fatalf("ListBatchHistory: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 history row after edit, got %d", len(rows))
	}
	if rows[0].TransferId == first.TransferId {
		t.Fatalf("edited switch must mint a fresh transfer id")
	}
	if rows[0].TransferId != edited.TransferId || rows[0].ToBatchId != f.batchC.ID {
		t.Fatalf("surviving history row does not describe the edit: %+v", rows[0])
	}
}

func TestEditSwitch_BackToOriginalBatchWhenFull(t *testing.T) {
	connectTestBackends(t)
	f := setupSwitchFixture(t, "800", "200")
	db := config.GetDB()

	first, err := workflow.SwitchBatch(context.Background(), workflow.SwitchBatchInput{
		StudentId:   f.student.ID,
		FromBatchId: f.batchA.ID,
		ToBatchId:   f.batchB.ID,
		ChangeDate:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Reason:      "first switch",
		FeeAction:   models.FeeActionTransfer,
		Actor:       testActor(),
	})
	if err != nil {
		t.Fatalf("SwitchBatch: %v", err)
	}

	// Other enrollments fill batch A to one below its limit while the switch
	// stands. Editing the switch back to A must still succeed: the reversal
	// seats the student on A's last slot, and re-applying onto the batch the
	// student already occupies is net-zero on occupancy.
	if err := db.Model(&models.Batch{}).Where("id = ?", f.batchA.ID).
		UpdateColumn("current_count", f.batchA.SlotLimit-1).Error; err != nil {
		t.Fatalf("fill source batch: %v", err)
	}

	edited, err := workflow.EditSwitch(context.Background(), workflow.EditSwitchInput{
		StudentId:      f.student.ID,
		BatchHistoryId: first.History.ID,
		NewToBatchId:   f.batchA.ID,
		NewFeeAction:   models.FeeActionTransfer,
		ChangeDate:     time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC),
		Reason:         "switch was a mistake",
		Actor:          testActor(),
	})
	if err != nil {
		t.Fatalf("EditSwitch back to the original batch: %v", err)
	}

	var student models.Student
	if err := db.First(&student, f.student.ID).Error; err != nil {
		t.Fatalf("reload student: %v", err)
	}
	if student.CurrentBatchId != f.batchA.ID {
		t.Fatalf("expected enrollment back in batch %d, got %d", f.batchA.ID, student.CurrentBatchId)
	}
	if got := batchCount(t, f.batchA.ID); got != f.batchA.SlotLimit {
		t.Fatalf("batch A occupancy expected %d, got %d", f.batchA.SlotLimit, got)
	}
	if got := batchCount(t, f.batchB.ID); got != 3 {
		t.Fatalf("batch B occupancy expected 3, got %d", got)
	}

	rows, err := models.ListBatchHistory(db, f.student.ID)
	if err != nil {
		t.Fatalf("ListBatchHistory: %v", err)
	}
	if len(rows) != 1 || rows[0].ToBatchId != f.batchA.ID || rows[0].TransferId != edited.TransferId {
		t.Fatalf("surviving history row does not describe the edit: %+v", rows)
	}
}

func TestEditSwitch_RestoresPriorTransferId(t *testing.T) {
	connectTestBackends(t)
	f := setupSwitchFixture(t, "800", "500")

	// Two chained NEW_FEE switches: the second cancels the fee minted by the
	// first, stamping its own transfer id over the first one's.
	first, err := workflow.SwitchBatch(context.Background(), workflow.SwitchBatchInput{
		StudentId:   f.student.ID,
		FromBatchId: f.batchA.ID,
		ToBatchId:   f.batchB.ID,
		ChangeDate:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Reason:      "first switch",
		FeeAction:   models.FeeActionNewFee,
		Actor:       testActor(),
	})
	if err != nil {
		t.Fatalf("first SwitchBatch: %v", err)
	}
	second, err := workflow.SwitchBatch(context.Background(), workflow.SwitchBatchInput{
		StudentId:   f.student.ID,
		FromBatchId: f.batchB.ID,
		ToBatchId:   f.batchC.ID,
		ChangeDate:  time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC),
		Reason:      "second switch",
		FeeAction:   models.FeeActionNewFee,
		Actor:       testActor(),
	})
	if err != nil {
		t.Fatalf("second SwitchBatch: %v", err)
	}

	// Editing the second switch reverses it; the revived fee must get back
	// the transfer id it carried before, not a blank.
	if _, err = workflow.EditSwitch(context.Background(), workflow.EditSwitchInput{
		StudentId:      f.student.ID,
		BatchHistoryId: second.History.ID,
		NewToBatchId:   f.batchB.ID,
		NewFeeAction:   models.FeeActionTransfer,
		ChangeDate:     time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC),
		Reason:         "second switch was wrong",
		Actor:          testActor(),
	}); err != nil {
		t.Fatalf("EditSwitch: %v", err)
	}

	revived := reloadFee(t, first.FeeOutcome.NewFee.ID)
	if revived.Status != models.FeeStatusPending {
		t.Fatalf("revived fee expected PENDING, got %s", revived.Status)
	}
	if revived.TransferId == nil || *revived.TransferId != first.TransferId {
		t.Fatalf("revived fee must keep the transfer id of the switch that minted it: got %v, want %s",
			revived.TransferId, first.TransferId)
	}
}

func TestSwitchBatch_TargetBatchMissingCourse(t *testing.T) {
	connectTestBackends(t)
	f := setupSwitchFixture(t, "800", "500")
	db := config.GetDB()

	// Orphan the target batch's course row. The FK check is suspended on the
	// one connection doing the delete.
	if err := db.Connection(func(tx *gorm.DB) error {
		if err := tx.Exec("SET FOREIGN_KEY_CHECKS = 0").Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM courses WHERE id = ?", f.course2.ID).Error; err != nil {
			return err
		}
		return tx.Exec("SET FOREIGN_KEY_CHECKS = 1").Error
	}); err != nil {
		t.Fatalf("orphan course: %v", err)
	}

	_, err := workflow.SwitchBatch(context.Background(), workflow.SwitchBatchInput{
		StudentId:   f.student.ID,
		FromBatchId: f.batchA.ID,
		ToBatchId:   f.batchB.ID,
		ChangeDate:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Reason:      "course gone",
		FeeAction:   models.FeeActionNewFee,
		Actor:       testActor(),
	})
	if err == nil {
		t.Fatalf("expected switch onto a batch without a course to fail")
	}
	if kind, ok := utils.KindOf(err); !ok || kind != utils.ErrorKindConsistencyFailure {
		t.Fatalf("expected consistency failure, got %v", err)
	}

	var student models.Student
	if err := db.First(&student, f.student.ID).Error; err != nil {
		t.Fatalf("reload student: %v", err)
	}
	if student.CurrentBatchId != f.batchA.ID {
		t.Fatalf("rejected switch must not move the student")
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("smk-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("smk-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=smk_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
