package server

import (
	"net/http"

	catalogdomain "github.com/creditrail/creditrail/internal/catalog/domain"
	consumptiondomain "github.com/creditrail/creditrail/internal/consumption/domain"
	grantdomain "github.com/creditrail/creditrail/internal/grant/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleAuthorize(c *gin.Context) {
	var req consumptiondomain.AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, consumptiondomain.ErrInvalidIdentity)
		return
	}

	decision, err := s.consumptionSvc.Authorize(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	switch decision.Decision {
	case consumptiondomain.DecisionDeniedRateLimit:
		status = http.StatusTooManyRequests
	case consumptiondomain.DecisionDeniedInsufficientCredits:
		status = http.StatusPaymentRequired
	}
	c.JSON(status, decision)
}

func (s *Server) handleSettle(c *gin.Context) {
	var req consumptiondomain.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, consumptiondomain.ErrInvalidRequestRef)
		return
	}

	result, err := s.consumptionSvc.Settle(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGrant(c *gin.Context) {
	var req grantdomain.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, grantdomain.ErrInvalidReference)
		return
	}

	result, err := s.grantSvc.Grant(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetBalance(c *gin.Context) {
	balance, err := s.consumptionSvc.GetBalance(c.Request.Context(), c.Param("identity"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (s *Server) handleGetRateStatus(c *gin.Context) {
	status, err := s.consumptionSvc.GetRateStatus(
		c.Request.Context(),
		c.Param("identity"),
		c.DefaultQuery("tier", "anonymous"),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleListCatalog(c *gin.Context) {
	prices, err := s.catalogSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

func (s *Server) handleUpsertCatalog(c *gin.Context) {
	var req catalogdomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, catalogdomain.ErrInvalidModel)
		return
	}

	if err := s.catalogSvc.Upsert(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
