package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/waywedesign-cochin/smk-api/models"
	"github.com/waywedesign-cochin/smk-api/utils"
)

// ListBatchesHandler serves the cached per-location batch list. Slot counts
// here reflect committed switches only, so the list is safe to cache until
// the next engine run invalidates it.
func ListBatchesHandler(c *gin.Context) {
	locationId, ok := utils.GetLocationIdFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, apiResponse{Status: false, Message: "unauthorized"})
		return
	}

	batches, err := models.ListBatches(c.Request.Context(), locationId)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "batches", batches)
}
