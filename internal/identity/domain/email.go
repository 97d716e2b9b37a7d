package domain

import (
	"errors"
	"net/mail"
	"strings"
)

var ErrInvalidEmail = errors.New("invalid email address")

// Email is a contact address with an optional display name, as clients
// type it into the waitlist form: "anna@example.com" or
// "Anna Petrova <anna@example.com>".
type Email struct {
	name    string
	address string
}

// ParseEmail validates raw and lower-cases the address part.
func ParseEmail(raw string) (Email, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Email{}, ErrInvalidEmail
	}
	parsed, err := mail.ParseAddress(raw)
	if err != nil {
		return Email{}, errors.Join(ErrInvalidEmail, err)
	}
	address := strings.ToLower(parsed.Address)
	at := strings.LastIndexByte(address, '@')
	if at <= 0 || !strings.Contains(address[at+1:], ".") {
		return Email{}, ErrInvalidEmail
	}
	return Email{name: strings.TrimSpace(parsed.Name), address: address}, nil
}

func (e Email) Name() string    { return e.name }
func (e Email) Address() string { return e.address }

// Domain returns the part after the @.
func (e Email) Domain() string {
	return e.address[strings.LastIndexByte(e.address, '@')+1:]
}

// String renders the canonical form that ParseEmail reads back.
func (e Email) String() string {
	if e.name == "" {
		return e.address
	}
	return (&mail.Address{Name: e.name, Address: e.address}).String()
}

// Equals compares addresses; display names are ignored.
func (e Email) Equals(other Email) bool {
	return e.address == other.address
}
