package domain

import "time"

// Viewer is a portal end user identified by the email the backend knows them by.
type Viewer struct {
	Email         string
	BackendUserID int
	ExpiresAt     time.Time
	IssuedAt      time.Time
}
