package server

import (
	"net/http"

	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	plandomain "github.com/billinglab/subledger/internal/plan/domain"
	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
)

const defaultBalanceAccount = ledgerdomain.AccountPayable

func ledgerAccount(name string) ledgerdomain.Account {
	return ledgerdomain.Account(name)
}

type createPlanRequest struct {
	Title             string              `json:"title" binding:"required"`
	Descr             string              `json:"descr"`
	Interval          plandomain.Interval `json:"interval" binding:"required"`
	PeriodAmount      int64               `json:"period_amount"`
	SetupAmount       int64               `json:"setup_amount"`
	Unit              string              `json:"unit"`
	TransactionFeeBps int64               `json:"transaction_fee_bps"`
	UnlockEvent       string              `json:"unlock_event"`
}

func (s *Server) CreatePlan(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	unit := req.Unit
	if unit == "" {
		unit = s.platform.Unit()
	}
	plan := &plandomain.Plan{
		ID:                s.genID.Generate(),
		OrgID:             org.ID,
		Slug:              slug.Make(req.Title),
		Title:             req.Title,
		Descr:             req.Descr,
		CreatedAt:         s.clock.Now(),
		IsActive:          true,
		Interval:          req.Interval,
		PeriodAmount:      req.PeriodAmount,
		SetupAmount:       req.SetupAmount,
		Unit:              unit,
		TransactionFeeBps: req.TransactionFeeBps,
		UnlockEvent:       req.UnlockEvent,
	}
	if err := s.planRepo.Create(c.Request.Context(), nil, plan); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (s *Server) GetPlan(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	plan, err := s.planRepo.FindBySlug(c.Request.Context(), org.ID, c.Param("plan"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) DeletePlan(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	plan, err := s.planRepo.FindBySlug(c.Request.Context(), org.ID, c.Param("plan"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.planRepo.Delete(c.Request.Context(), nil, plan.ID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
