package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type mintCouponRequest struct {
	PlanID     snowflake.ID `json:"plan_id"`
	Percent    int64        `json:"percent" binding:"required"`
	NbAttempts int64        `json:"nb_attempts"`
	Descr      string       `json:"descr"`
}

func (s *Server) MintCoupon(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req mintCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.NbAttempts == 0 {
		req.NbAttempts = -1
	}
	coupon, err := s.couponSvc.Mint(c.Request.Context(), nil, org.ID, req.PlanID,
		req.Percent, req.NbAttempts, req.Descr)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, coupon)
}

func (s *Server) ListCoupons(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	coupons, err := s.couponRepo.ListByOrg(c.Request.Context(), org.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}
