package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-backend/internal/shared/server/middleware"
	"marketplace-backend/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	actorID := middleware.ActorIDFromContext(c)
	if actorID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}

	response := gin.H{
		"actorId": actorID,
		"role":    middleware.ActorRoleFromContext(c),
	}
	if companyID := middleware.ActorCompanyIDFromContext(c); companyID != "" {
		response["companyId"] = companyID
	}
	respond.JSON(c, http.StatusOK, response)
}
