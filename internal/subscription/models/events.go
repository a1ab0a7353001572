package models

import (
	"time"

	id "agegate/pkg/domain"
)

// Lifecycle events raised by the registry and the settlement engine. They are emitted
// after the transaction that produced them commits.

type SubscriptionCreated struct {
	SubscriptionID id.SubscriptionID
	Subscriber     id.AccountID
	PlanID         id.PlanID
	ChannelHandle  string
	At             time.Time
}

type SubscriptionCancelled struct {
	SubscriptionID id.SubscriptionID
	Subscriber     id.AccountID
	PlanID         id.PlanID
	Reason         CancelReason
	By             id.AccountID
	At             time.Time
}

type SubscriptionSettled struct {
	Receipt Receipt
}

type OwnershipTransferred struct {
	Previous id.AccountID
	Next     id.AccountID
	At       time.Time
}
