package services

import (
	"fmt"
	"slices"

	"achrilik/models"
)

// capability decides whether a role may take the edge from -> to. Edges are
// validated separately by edgeAllowed.
type capability func(from, to models.OrderStatus) bool

var orderCapabilities = map[models.Role]capability{
	models.RoleBuyer:         buyerMay,
	models.RoleStore:         anyEdge,
	models.RoleAdmin:         anyEdge,
	models.RoleDeliveryAgent: agentMay,
}

var buyerCancellable = []models.OrderStatus{
	models.OrderPending,
	models.OrderPaymentPending,
	models.OrderConfirmed,
}

func buyerMay(from, to models.OrderStatus) bool {
	return to == models.OrderCancelled && slices.Contains(buyerCancellable, from)
}

func anyEdge(_, _ models.OrderStatus) bool { return true }

func agentMay(from, to models.OrderStatus) bool {
	switch {
	case from == models.OrderWithDeliveryAgent && to == models.OrderOutForDelivery:
		return true
	case from == models.OrderOutForDelivery && to == models.OrderDelivered:
		return true
	case to == models.OrderReturned:
		return from == models.OrderWithDeliveryAgent || from == models.OrderOutForDelivery
	}
	return false
}

// edgeAllowed reports whether to is reachable from o.Status in one step.
// Cash-on-delivery orders skip PAYMENT_PENDING, and click & collect orders go
// straight from READY_FOR_PICKUP to DELIVERED.
func edgeAllowed(o *models.Order, to models.OrderStatus) bool {
	from := o.Status
	if from.IsTerminal() {
		return false
	}
	if to.IsEscape() {
		return true
	}
	if o.DeliveryType == models.ClickCollect && from == models.OrderReadyForPickup {
		return to == models.OrderDelivered
	}
	if o.IsCOD() && from == models.OrderPending && to == models.OrderConfirmed {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// checkTransition is the single edge and role gate for order transitions.
// Ownership of the order is checked by the caller.
func checkTransition(o *models.Order, to models.OrderStatus, actor models.Actor) error {
	if !edgeAllowed(o, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	may, ok := orderCapabilities[actor.Role]
	if !ok || !may(o.Status, to) {
		return fmt.Errorf("%w: %s may not move order from %s to %s", ErrForbidden, actor.Role, o.Status, to)
	}
	return nil
}
