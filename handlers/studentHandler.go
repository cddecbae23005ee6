package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/waywedesign-cochin/smk-api/config"
	"github.com/waywedesign-cochin/smk-api/models"
	"github.com/waywedesign-cochin/smk-api/utils"
)

// ListStudentsHandler serves the cached per-location student list; this is
// one of the collections the switch engines invalidate.
func ListStudentsHandler(c *gin.Context) {
	locationId, ok := utils.GetLocationIdFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, apiResponse{Status: false, Message: "unauthorized"})
		return
	}

	students, err := models.ListStudents(c.Request.Context(), locationId)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "students", students)
}

func GetStudentHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid student id")
		return
	}

	student, err := models.GetStudent(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			respondError(c, utils.NotFoundError("student not found"))
			return
		}
		respondError(c, err)
		return
	}
	respondOK(c, "student", student)
}

// ListStudentRevenueHandler serves the cached revenue aggregates.
func ListStudentRevenueHandler(c *gin.Context) {
	locationId, ok := utils.GetLocationIdFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, apiResponse{Status: false, Message: "unauthorized"})
		return
	}

	revenue, err := models.ListStudentRevenue(c.Request.Context(), locationId)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "student revenue", revenue)
}

// ListBatchHistoryHandler returns a student's switch history, newest first.
func ListBatchHistoryHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid student id")
		return
	}

	db := config.GetDB()
	rows, err := models.ListBatchHistory(db.WithContext(c.Request.Context()), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "batch history", rows)
}
