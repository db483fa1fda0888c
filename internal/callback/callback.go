// Package callback encodes inline-button callback data as
// "feature:action[:arg...]" strings.
package callback

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iconidentify/mediabot/internal/domain"
)

// MaxLength is the Bot API limit for callback_data, in bytes.
const MaxLength = 64

const sep = ":"

// Data is decoded callback data.
type Data struct {
	Feature string
	Action  string
	Args    []string
}

// Encode joins the parts into callback data.
func Encode(feature, action string, args ...string) (string, error) {
	if feature == "" || action == "" {
		return "", fmt.Errorf("%w: feature and action are required", domain.ErrInvalidCallback)
	}
	parts := make([]string, 0, len(args)+2)
	parts = append(parts, feature, action)
	parts = append(parts, args...)
	for _, p := range parts {
		if strings.Contains(p, sep) {
			return "", fmt.Errorf("%w: %q contains %q", domain.ErrInvalidCallback, p, sep)
		}
	}
	s := strings.Join(parts, sep)
	if len(s) > MaxLength {
		return "", fmt.Errorf("%w: %d bytes", domain.ErrCallbackTooLong, len(s))
	}
	return s, nil
}

// MustEncode is Encode for static menu buttons; it panics on error.
func MustEncode(feature, action string, args ...string) string {
	s, err := Encode(feature, action, args...)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse decodes callback data produced by Encode.
func Parse(s string) (Data, error) {
	if s == "" || len(s) > MaxLength {
		return Data{}, domain.ErrInvalidCallback
	}
	parts := strings.Split(s, sep)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Data{}, fmt.Errorf("%w: %q", domain.ErrInvalidCallback, s)
	}
	return Data{
		Feature: parts[0],
		Action:  parts[1],
		Args:    parts[2:],
	}, nil
}

// Arg returns the i-th argument or "".
func (d Data) Arg(i int) string {
	if i < 0 || i >= len(d.Args) {
		return ""
	}
	return d.Args[i]
}

// IntArg returns the i-th argument as an int.
func (d Data) IntArg(i int) (int, error) {
	v := d.Arg(i)
	if v == "" {
		return 0, fmt.Errorf("%w: missing argument %d", domain.ErrInvalidCallback, i)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: argument %d: %v", domain.ErrInvalidCallback, i, err)
	}
	return n, nil
}

// String re-encodes the data.
func (d Data) String() string {
	return strings.Join(append([]string{d.Feature, d.Action}, d.Args...), sep)
}
