package server

import (
	"net/http"
	"time"

	organizationdomain "github.com/billinglab/subledger/internal/organization/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type createOrganizationRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	org, err := s.organizationSvc.Create(c.Request.Context(), organizationdomain.CreateOrganizationRequest{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
	}, time.Time{})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (s *Server) GetOrganization(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (s *Server) GetOrganizationBalance(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	account := ledgerAccount(c.DefaultQuery("account", string(defaultBalanceAccount)))
	balance, err := s.ledgerSvc.OrganizationBalance(c.Request.Context(), org.ID, account, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"organization":  org.Slug,
		"account":       account,
		"balance":       balance,
		"funds_balance": org.FundsBalance,
	})
}

type associateCardRequest struct {
	CardToken string `json:"card_token" binding:"required"`
}

func (s *Server) AssociateCard(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req associateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.organizationSvc.AssociateProcessor(c.Request.Context(), org.ID, req.CardToken); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type withdrawRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Unit   string `json:"unit"`
}

func (s *Server) Withdraw(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	unit := req.Unit
	if unit == "" {
		unit = s.platform.Unit()
	}
	if err := s.organizationSvc.Withdraw(c.Request.Context(), org.ID, req.Amount, unit); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type addMemberRequest struct {
	UserID snowflake.ID            `json:"user_id" binding:"required"`
	Role   organizationdomain.Role `json:"role" binding:"required"`
}

func (s *Server) AddMember(c *gin.Context) {
	org, err := s.organizationSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.Role != organizationdomain.RoleManager && req.Role != organizationdomain.RoleContributor {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.organizationSvc.AddMember(c.Request.Context(), org.ID, req.UserID, req.Role); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}
