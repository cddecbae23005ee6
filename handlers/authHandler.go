package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/waywedesign-cochin/smk-api/models"
	"github.com/waywedesign-cochin/smk-api/utils"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token       string `json:"token"`
	UserId      int    `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	LocationId  int    `json:"location_id"`
}

func LoginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	token, user, err := models.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusUnauthorized, apiResponse{Status: false, Message: "invalid credentials"})
			return
		}
		c.JSON(http.StatusUnauthorized, apiResponse{Status: false, Message: err.Error()})
		return
	}

	respondOK(c, "login success", loginResponse{
		Token:       token,
		UserId:      user.ID,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		LocationId:  user.LocationId,
	})
}
