package models

type DeliveryTag string

const (
	DeliveryPending DeliveryTag = "pending"
	DeliverySent    DeliveryTag = "sent"
	DeliveryFailed  DeliveryTag = "failed"
)

// Delivery tracks the client-side lifecycle of an outgoing message.
// Messages that originate on the server carry the zero value.
type Delivery struct {
	Tag     DeliveryTag `json:"tag"`
	LocalID string      `json:"localId,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

func Pending(localID string) Delivery {
	return Delivery{Tag: DeliveryPending, LocalID: localID}
}

// Confirm transitions pending -> sent. Reconciliation with the server echo
// is the only legal way out of pending besides Fail, so any other starting
// state returns ok=false and the value unchanged.
func (d Delivery) Confirm() (Delivery, bool) {
	if d.Tag != DeliveryPending {
		return d, false
	}
	return Delivery{Tag: DeliverySent}, true
}

// Fail transitions pending -> failed, keeping the local id so the surface
// can offer a manual retry. Already-confirmed messages never fail.
func (d Delivery) Fail(reason string) (Delivery, bool) {
	if d.Tag != DeliveryPending {
		return d, false
	}
	return Delivery{Tag: DeliveryFailed, LocalID: d.LocalID, Reason: reason}, true
}

// IsPending is true for client-originated messages still waiting for the
// server echo or REST confirmation.
func (d Delivery) IsPending() bool {
	return d.Tag == DeliveryPending
}
