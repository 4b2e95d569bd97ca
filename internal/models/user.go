package models

import "strings"

// User is a directory entry. Profile data is owned by the directory and never
// copied into friend records.
type User struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email" yaml:"email"`
	Avatar string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// Matches reports whether query is a case-insensitive substring of the name or email.
func (u User) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	return strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.Email), q)
}
