// Package model defines the data structures used throughout the application.
package model

// Campus is one of the university's sites. Photo sessions (Times) belong to
// exactly one campus.
type Campus struct {
	ID   string `json:"id"   db:"id"`
	Name string `json:"name" db:"name"`
}
