package shopee

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransport covers network errors, timeouts and cancellation.
	ErrTransport = errors.New("shopee: transport failure")
	// ErrStatus is a non-2xx HTTP status.
	ErrStatus = errors.New("shopee: unexpected status")
	// ErrDecode is a body that is not the expected JSON document.
	ErrDecode = errors.New("shopee: undecodable response")
	// ErrBlocked marks a response recognised as a bot-protection page.
	ErrBlocked = errors.New("shopee: request blocked")
	// ErrDisallowed is returned when robots.txt forbids the endpoint.
	ErrDisallowed = errors.New("shopee: disallowed by robots.txt")
)

// ResponseError describes a response that arrived but could not be used.
type ResponseError struct {
	Endpoint   string
	StatusCode int
	// Source names the bot protection that produced the response, if any.
	Source string
	// Title is the HTML page title when the body was a web page.
	Title string
	Err   error
}

func (e *ResponseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	if e.Source != "" {
		fmt.Fprintf(&b, " (blocked by %s)", e.Source)
	}
	if e.Title != "" {
		fmt.Fprintf(&b, " page %q", e.Title)
	}
	return b.String()
}

// Unwrap exposes the cause and, for detected blocks, ErrBlocked.
func (e *ResponseError) Unwrap() []error {
	if e.Source != "" {
		return []error{e.Err, ErrBlocked}
	}
	return []error{e.Err}
}
