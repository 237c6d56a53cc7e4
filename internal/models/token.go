package models

import (
	"time"
)

type IssuedToken struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
