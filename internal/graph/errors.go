package graph

import (
	"errors"
	"fmt"
)

// ErrNoLinkedAccount indicates that none of the pages manageable by the
// token holder has a connected Instagram Business account.
var ErrNoLinkedAccount = errors.New("graph: no page with a linked instagram business account")

// UpstreamError carries the literal upstream response body for a failed
// Graph API call. The body is surfaced verbatim to callers so operators can
// see exactly what the API rejected.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("graph %s: upstream status %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("graph %s: %s", e.Op, e.Body)
}

// Code implements the error-code interface used by the handler summary logs.
func (e *UpstreamError) Code() string { return "UPSTREAM_ERROR" }
