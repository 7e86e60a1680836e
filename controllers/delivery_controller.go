package controllers

import (
	"errors"
	"io"
	"net/http"

	"achrilik/middlewares"
	"achrilik/models"
	"achrilik/services"

	"github.com/gin-gonic/gin"
)

type DeliveryController struct {
	Deliveries *services.DeliveryService
}

type assignRequest struct {
	AgentID *uint `json:"agentId"`
}

type updateDeliveryRequest struct {
	Status       *string `json:"status"`
	CODCollected *bool   `json:"codCollected"`
	TrackingURL  *string `json:"trackingUrl"`
	AgentNotes   *string `json:"agentNotes"`
}

type wilayaAgentRequest struct {
	AgentID   uint   `json:"agentId" binding:"required"`
	AgentName string `json:"agentName"`
}

func (dc *DeliveryController) AssignDelivery(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("assign_delivery", succeeded(c)) }()
	a, ok := actor(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	// The body is optional; without it the wilaya default is used.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	d, err := dc.Deliveries.Assign(c.Request.Context(), services.AssignInput{OrderID: orderID, AgentID: req.AgentID, Actor: a})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery": d})
}

func (dc *DeliveryController) UpdateDelivery(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("update_delivery", succeeded(c)) }()
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in := services.UpdateDeliveryInput{
		DeliveryID:   id,
		Actor:        a,
		CODCollected: req.CODCollected,
		TrackingURL:  req.TrackingURL,
		AgentNotes:   req.AgentNotes,
	}
	if req.Status != nil {
		s := models.DeliveryStatus(*req.Status)
		in.Status = &s
	}

	d, err := dc.Deliveries.Update(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	if in.Status != nil {
		middlewares.RecordDeliveryStatus(string(d.Status))
	}
	c.JSON(http.StatusOK, gin.H{"delivery": d})
}

func (dc *DeliveryController) GetDelivery(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := dc.Deliveries.Get(c.Request.Context(), id, a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery": d})
}

func (dc *DeliveryController) MarkCODTransferred(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("cod_transferred", succeeded(c)) }()
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := dc.Deliveries.MarkCODTransferred(c.Request.Context(), id, a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery": d})
}

func (dc *DeliveryController) SetWilayaAgent(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req wilayaAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	wa, err := dc.Deliveries.SetWilayaAgent(c.Request.Context(), services.WilayaAgentInput{
		Wilaya:    c.Param("wilaya"),
		AgentID:   req.AgentID,
		AgentName: req.AgentName,
		Actor:     a,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wilayaAgent": wa})
}
