package server

import (
	"errors"
	"net/http"

	chargeservice "github.com/billinglab/subledger/internal/charge/service"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetCharge(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	// Retrieve also pulls fresh state from the processor for pending charges.
	charge, err := s.chargeSvc.Retrieve(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, charge)
}

type chargeDeferredRequest struct {
	CardToken    string `json:"card_token"`
	RememberCard bool   `json:"remember_card"`
}

// ChargeDeferred collects the unlock order lines still open on the
// organization's Payable account.
func (s *Server) ChargeDeferred(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req chargeDeferredRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	charge, err := s.chargeSvc.ChargeDeferred(c.Request.Context(), org, req.CardToken, req.RememberCard)
	if errors.Is(err, chargeservice.ErrNothingToCharge) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, charge)
}

type refundRequest struct {
	Rank   int   `json:"rank"`
	Amount int64 `json:"amount"`
}

func (s *Server) RefundCharge(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.chargeSvc.Refund(c.Request.Context(), id, req.Rank, req.Amount); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
