package moderation

// CursorMode selects the continuation semantics of a PageCursor.
//
// A live chat returns no continuation token when there is simply nothing newer
// yet, so the live cursor keeps its last token and the loop polls again. A
// finite listing (comment threads) returns no token only at the end of the
// data, so the finite cursor marks itself exhausted.
type CursorMode int

const (
	CursorLive CursorMode = iota
	CursorFinite
)

// PageCursor tracks the continuation token across poll cycles.
type PageCursor struct {
	mode      CursorMode
	token     string
	exhausted bool
}

// NewLiveCursor returns a cursor that never exhausts.
func NewLiveCursor() *PageCursor { return &PageCursor{mode: CursorLive} }

// NewFiniteCursor returns a cursor that exhausts once the provider stops
// returning continuation tokens.
func NewFiniteCursor() *PageCursor { return &PageCursor{mode: CursorFinite} }

// Advance consumes the continuation value from a fetch response.
func (c *PageCursor) Advance(nextToken string) {
	if nextToken != "" {
		c.token = nextToken
		return
	}
	if c.mode == CursorFinite {
		c.exhausted = true
	}
	// live mode: keep the last known token and re-poll
}

// Token returns the token to use for the next fetch ("" = first page / live edge).
func (c *PageCursor) Token() string { return c.token }

// Exhausted reports whether a finite listing has been fully drained.
func (c *PageCursor) Exhausted() bool { return c.exhausted }
