package domain

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// BackendUser is a person known to the ticketing backend.
type BackendUser struct {
	ID        int
	Login     string
	FirstName string
	RealName  string
	Email     string
}

// DisplayName joins first and last name, falling back to the login.
func (u BackendUser) DisplayName() string {
	full := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.RealName))
	if full != "" {
		return full
	}
	if u.Login != "" {
		return u.Login
	}
	return FallbackUserName(u.ID)
}

// Initials returns the uppercase initials of first and last name, or "??".
func (u BackendUser) Initials() string {
	var b strings.Builder
	for _, part := range []string{u.FirstName, u.RealName} {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, _ := utf8.DecodeRuneInString(part)
		b.WriteRune(unicode.ToUpper(r))
	}
	if b.Len() == 0 {
		return "??"
	}
	return b.String()
}

// FallbackUserName is shown when a user cannot be resolved.
func FallbackUserName(id int) string {
	return "Usuario " + strconv.Itoa(id)
}
