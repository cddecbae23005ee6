package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/waywedesign-cochin/smk-api/utils"
	"github.com/waywedesign-cochin/smk-api/workflow"
)

type apiResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, apiResponse{Status: true, Message: message, Data: data})
}

func respondError(c *gin.Context, err error) {
	c.JSON(utils.StatusCode(err), apiResponse{Status: false, Message: err.Error()})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, apiResponse{Status: false, Message: message})
}

// actorFromContext resolves the authenticated actor the engines record.
func actorFromContext(c *gin.Context) (workflow.Actor, bool) {
	ctx := c.Request.Context()
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return workflow.Actor{}, false
	}
	userName, _ := utils.GetUserNameFromContext(ctx)
	locationId, _ := utils.GetLocationIdFromContext(ctx)
	return workflow.Actor{
		LoggedById:  userId,
		DisplayName: userName,
		LocationId:  locationId,
	}, true
}
