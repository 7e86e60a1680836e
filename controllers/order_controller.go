package controllers

import (
	"net/http"

	"achrilik/middlewares"
	"achrilik/models"
	"achrilik/services"

	"github.com/gin-gonic/gin"
)

type OrderController struct {
	Orders *services.OrderService
}

type orderItemRequest struct {
	VariantID uint `json:"variantId" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

type createOrderRequest struct {
	StoreID       uint               `json:"storeId" binding:"required"`
	BuyerEmail    string             `json:"buyerEmail" binding:"omitempty,email"`
	Wilaya        string             `json:"wilaya"`
	DeliveryType  string             `json:"deliveryType" binding:"required"`
	PaymentMethod string             `json:"paymentMethod" binding:"required"`
	DeliveryFee   int64              `json:"deliveryFee"`
	Items         []orderItemRequest `json:"items" binding:"required,min=1,dive"`
}

type transitionRequest struct {
	TargetStatus    string `json:"targetStatus" binding:"required"`
	Note            string `json:"note"`
	ExpectedVersion *int   `json:"expectedVersion"`
}

func (oc *OrderController) CreateOrder(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("create", succeeded(c)) }()
	a, ok := actor(c)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in := services.CreateOrderInput{
		Actor:         a,
		StoreID:       req.StoreID,
		BuyerEmail:    req.BuyerEmail,
		Wilaya:        req.Wilaya,
		DeliveryType:  models.DeliveryType(req.DeliveryType),
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		DeliveryFee:   models.Money(req.DeliveryFee),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, services.ItemInput{VariantID: it.VariantID, Quantity: models.Quantity(it.Quantity)})
	}

	order, err := oc.Orders.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("get", succeeded(c)) }()
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := oc.Orders.Get(c.Request.Context(), id, a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (oc *OrderController) GetOrderHistory(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	history, err := oc.Orders.History(c.Request.Context(), id, a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (oc *OrderController) TransitionOrder(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("transition", succeeded(c)) }()
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := oc.Orders.Transition(c.Request.Context(), services.TransitionInput{
		OrderID:         id,
		Target:          models.OrderStatus(req.TargetStatus),
		Actor:           a,
		Note:            req.Note,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	middlewares.RecordOrderTransition(string(order.Status))
	c.JSON(http.StatusOK, gin.H{"order": order})
}
