package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"achrilik/middlewares"
	"achrilik/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CommissionController struct {
	Ledger *services.LedgerService
}

type markPaidRequest struct {
	Note string `json:"note"`
}

type setRateRequest struct {
	StoreID       *uint            `json:"storeId"`
	Rate          *decimal.Decimal `json:"rate" binding:"required"`
	EffectiveFrom *time.Time       `json:"effectiveFrom"`
}

func (cc *CommissionController) Summary(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("commission_summary", succeeded(c)) }()
	sum, err := cc.Ledger.Summarize(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (cc *CommissionController) MarkPaid(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("commission_mark_paid", succeeded(c)) }()
	a, ok := actor(c)
	if !ok {
		return
	}
	storeID, ok := pathID(c, "storeId")
	if !ok {
		return
	}
	var req markPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	res, err := cc.Ledger.MarkPaid(c.Request.Context(), storeID, req.Note, a)
	if err != nil {
		respondError(c, err)
		return
	}
	middlewares.RecordCommissionPaid(res.UpdatedCount)
	c.JSON(http.StatusOK, res)
}

func (cc *CommissionController) SetRate(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req setRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	setting, err := cc.Ledger.SetRate(c.Request.Context(), services.SetRateInput{
		StoreID:       req.StoreID,
		Rate:          *req.Rate,
		EffectiveFrom: req.EffectiveFrom,
		Actor:         a,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"setting": setting})
}

func (cc *CommissionController) Payouts(c *gin.Context) {
	var storeID uint
	if raw := c.Query("storeId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 0)
		if err != nil {
			badRequest(c, errors.New("invalid storeId"))
			return
		}
		storeID = uint(id)
	}
	payouts, err := cc.Ledger.Payouts(c.Request.Context(), storeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}
