package services

import (
	"fmt"

	"achrilik/models"
)

// checkDeliveryStep allows the next step of DeliveryChain, or FAILED and
// RETURNED from any in-progress status.
func checkDeliveryStep(from, to models.DeliveryStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown delivery status %q", ErrValidation, to)
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: delivery is already %s", ErrInvalidTransition, from)
	}
	if to == models.DeliveryFailed || to == models.DeliveryReturned {
		if from.InProgress() {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if next, ok := from.Next(); ok && next == to {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// reassignable reports whether the parcel is still at the merchant.
func reassignable(s models.DeliveryStatus) bool {
	return s == models.DeliveryPending || s == models.DeliveryAssigned
}

var assignableOrderStatuses = map[models.OrderStatus]bool{
	models.OrderConfirmed:      true,
	models.OrderAtMerchant:     true,
	models.OrderReadyForPickup: true,
}
