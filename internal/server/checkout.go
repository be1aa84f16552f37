package server

import (
	"errors"
	"net/http"
	"time"

	cartdomain "github.com/billinglab/subledger/internal/cart/domain"
	chargeservice "github.com/billinglab/subledger/internal/charge/service"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type addCartItemRequest struct {
	UserID     snowflake.ID `json:"user_id" binding:"required"`
	PlanID     snowflake.ID `json:"plan_id" binding:"required"`
	CouponCode string       `json:"coupon_code"`
	FirstName  string       `json:"first_name"`
	LastName   string       `json:"last_name"`
	Email      string       `json:"email"`
}

func (s *Server) AddCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if _, err := s.planRepo.FindByID(c.Request.Context(), nil, req.PlanID); err != nil {
		AbortWithError(c, err)
		return
	}
	item := &cartdomain.CartItem{
		ID:         s.genID.Generate(),
		UserID:     req.UserID,
		PlanID:     req.PlanID,
		CreatedAt:  s.clock.Now(),
		CouponCode: req.CouponCode,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
	}
	if err := s.cartRepo.Insert(c.Request.Context(), nil, item); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) PreviewCheckout(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := snowflake.ParseString(c.Query("user_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	invoicables, err := s.checkoutSvc.Invoicables(c.Request.Context(), userID, org, time.Time{})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	lines := make([]gin.H, 0, len(invoicables))
	var total int64
	for _, invoicable := range invoicables {
		for _, line := range invoicable.Lines {
			lines = append(lines, gin.H{
				"plan":     invoicable.Plan.Slug,
				"descr":    line.Transaction.Descr,
				"amount":   line.Transaction.DestAmount,
				"unit":     line.Transaction.DestUnit,
				"deferred": line.Deferred,
			})
			if !line.Deferred {
				total += line.Transaction.DestAmount
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines, "total": total})
}

type checkoutRequest struct {
	UserID       snowflake.ID `json:"user_id" binding:"required"`
	CardToken    string       `json:"card_token"`
	RememberCard bool         `json:"remember_card"`
}

func (s *Server) Checkout(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	charge, err := s.checkoutSvc.Checkout(c.Request.Context(), req.UserID, org, req.CardToken, req.RememberCard, time.Time{})
	if err != nil && !errors.Is(err, chargeservice.ErrNothingToCharge) {
		AbortWithError(c, err)
		return
	}
	if charge == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"charge_id":     charge.ID.String(),
		"processor_key": charge.ProcessorKey,
		"amount":        charge.Amount,
		"unit":          charge.Unit,
		"state":         charge.State,
	})
}
