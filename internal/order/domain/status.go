package domain

import "github.com/dmehra2102/boutique-commerce/pkg/apperr"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var statusEdges = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
}

// Statuses lists every order status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled}
}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", apperr.Validation("unknown order status %q", s)
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, to := range statusEdges[s] {
		if to == next {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(statusEdges[s]) == 0
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

func PaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentPending, PaymentPaid, PaymentFailed}
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	for _, st := range PaymentStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", apperr.Validation("unknown payment status %q", s)
}

// Paid and failed are terminal.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return p == PaymentPending && (next == PaymentPaid || next == PaymentFailed)
}
