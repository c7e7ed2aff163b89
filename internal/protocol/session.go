package protocol

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
)

// Session codes are six-digit numbers read aloud between operators.
const (
	minCode = 100000
	maxCode = 999999
)

// ErrInvalidCode is returned for a session code that is not six digits.
var ErrInvalidCode = errors.New("invalid session code")

// NewSessionCode picks a random six-digit code.
func NewSessionCode() string {
	return strconv.Itoa(minCode + rand.IntN(maxCode-minCode+1))
}

// ParseSessionCode validates a code typed by an operator.
func ParseSessionCode(s string) (string, error) {
	if len(s) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, s)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minCode || n > maxCode {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, s)
	}
	return s, nil
}

// HostAddress is the relay address a host with code registers under.
// The namespace keeps codes from colliding with other users of a shared
// relay.
func HostAddress(namespace, code string) string {
	return namespace + "-" + code
}
