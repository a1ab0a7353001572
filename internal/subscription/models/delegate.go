package models

import (
	"time"

	id "agegate/pkg/domain"
)

// Delegation lets Delegate cancel Owner's subscriptions.
type Delegation struct {
	Owner     id.AccountID `json:"owner"`
	Delegate  id.AccountID `json:"delegate"`
	CreatedAt time.Time    `json:"created_at"`
}
