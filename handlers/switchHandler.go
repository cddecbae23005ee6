package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/waywedesign-cochin/smk-api/models"
	"github.com/waywedesign-cochin/smk-api/workflow"
)

var validate = validator.New()

type switchBatchRequest struct {
	FromBatchId int    `json:"from_batch_id" validate:"required,gt=0"`
	ToBatchId   int    `json:"to_batch_id" validate:"required,gt=0"`
	ChangeDate  string `json:"change_date" validate:"required"`
	Reason      string `json:"reason"`
	FeeAction   string `json:"fee_action" validate:"required,oneof=TRANSFER NEW_FEE SPLIT"`
}

type editSwitchRequest struct {
	BatchHistoryId int    `json:"batch_history_id" validate:"required,gt=0"`
	NewToBatchId   int    `json:"new_to_batch_id" validate:"required,gt=0"`
	ChangeDate     string `json:"change_date" validate:"required"`
	Reason         string `json:"reason"`
	NewFeeAction   string `json:"new_fee_action" validate:"required,oneof=TRANSFER NEW_FEE SPLIT"`
}

// SwitchBatchHandler handles POST /students/:id/switch-batch.
func SwitchBatchHandler(c *gin.Context) {
	studentId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid student id")
		return
	}

	var req switchBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	changeDate, err := time.Parse("2006-01-02", req.ChangeDate)
	if err != nil {
		respondBadRequest(c, "change_date must be YYYY-MM-DD")
		return
	}
	feeAction, err := models.ParseFeeAction(req.FeeAction)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	actor, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apiResponse{Status: false, Message: "unauthorized"})
		return
	}

	result, err := workflow.SwitchBatch(c.Request.Context(), workflow.SwitchBatchInput{
		StudentId:   studentId,
		FromBatchId: req.FromBatchId,
		ToBatchId:   req.ToBatchId,
		ChangeDate:  changeDate,
		Reason:      req.Reason,
		FeeAction:   feeAction,
		Actor:       actor,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, "batch switched", gin.H{
		"history":     result.History,
		"fee_outcome": result.FeeOutcome,
		"transfer_id": result.TransferId,
	})
}

// EditSwitchHandler handles PUT /students/:id/switch-batch. Only the latest
// switch for the student is editable.
func EditSwitchHandler(c *gin.Context) {
	studentId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid student id")
		return
	}

	var req editSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	changeDate, err := time.Parse("2006-01-02", req.ChangeDate)
	if err != nil {
		respondBadRequest(c, "change_date must be YYYY-MM-DD")
		return
	}
	feeAction, err := models.ParseFeeAction(req.NewFeeAction)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	actor, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apiResponse{Status: false, Message: "unauthorized"})
		return
	}

	result, err := workflow.EditSwitch(c.Request.Context(), workflow.EditSwitchInput{
		StudentId:      studentId,
		BatchHistoryId: req.BatchHistoryId,
		NewToBatchId:   req.NewToBatchId,
		NewFeeAction:   feeAction,
		ChangeDate:     changeDate,
		Reason:         req.Reason,
		Actor:          actor,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, "batch switch updated", gin.H{
		"history":     result.History,
		"fee_outcome": result.FeeOutcome,
		"transfer_id": result.TransferId,
	})
}
