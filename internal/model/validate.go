package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse phone numbers written without a
// country code.
const DefaultPhoneRegion = "IN"

// ErrInvalidGuest is returned (wrapped) when a guest record fails validation.
var ErrInvalidGuest = errors.New("invalid guest")

// NormalizeGuest trims the descriptive fields, applies the default category
// and rewrites the phone number to E.164. Check-in fields are kept as given.
//
// region is the default region for phone numbers without a country code;
// empty means DefaultPhoneRegion.
func NormalizeGuest(g Guest, region string) (Guest, error) {
	g.ID = strings.TrimSpace(g.ID)
	g.Name = strings.TrimSpace(g.Name)
	g.Email = strings.TrimSpace(g.Email)
	g.Category = strings.TrimSpace(g.Category)

	if g.ID == "" {
		return Guest{}, fmt.Errorf("%w: id is required", ErrInvalidGuest)
	}
	if g.Name == "" {
		return Guest{}, fmt.Errorf("%w: name is required for %s", ErrInvalidGuest, g.ID)
	}
	if g.Category == "" {
		g.Category = DefaultCategory
	}

	if strings.TrimSpace(g.Phone) != "" {
		phone, err := NormalizePhone(g.Phone, region)
		if err != nil {
			return Guest{}, fmt.Errorf("%w: phone %q for %s: %v", ErrInvalidGuest, g.Phone, g.ID, err)
		}
		g.Phone = phone
	} else {
		g.Phone = ""
	}

	return g.Clone(), nil
}

// NormalizePhone parses phone and formats it as E.164 (e.g. +919876543210).
func NormalizePhone(phone, region string) (string, error) {
	if region == "" {
		region = DefaultPhoneRegion
	}
	phone = strings.TrimSpace(phone)

	num, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", phonenumbers.ErrNotANumber
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
