package sale

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InvoiceContext carries the identity a sale invoice number is derived
// from. It is passed in explicitly at generation time; there is no
// ambient branch or desk state.
type InvoiceContext struct {
	BranchCode string
	DeskCode   string
	UserID     string
	At         time.Time
}

const invoiceSeparators = "-./~"

// NewInvoiceNumber composes branch, desk, user, and a time-derived token
// into an invoice number, each segment rendered through a fixed-width
// base-36 pad and joined with a randomized single-character separator.
// Branch, desk, and user are required preconditions.
func NewInvoiceNumber(ctx InvoiceContext) (string, error) {
	if strings.TrimSpace(ctx.BranchCode) == "" {
		return "", fmt.Errorf("%w: branch code", ErrContextMissing)
	}
	if strings.TrimSpace(ctx.DeskCode) == "" {
		return "", fmt.Errorf("%w: desk code", ErrContextMissing)
	}
	if strings.TrimSpace(ctx.UserID) == "" {
		return "", fmt.Errorf("%w: user id", ErrContextMissing)
	}

	at := ctx.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	sep := pickSeparator()
	parts := []string{
		padToken(ctx.BranchCode, 3),
		padToken(ctx.DeskCode, 2),
		padToken(ctx.UserID, 4),
		padToken(strconv.FormatInt(at.Unix(), 10), 8),
	}
	return strings.Join(parts, sep), nil
}

// padToken renders a code segment in base 36 at a fixed width. Numeric
// codes are radix-encoded; other codes are uppercased and reduced to
// their alphanumeric characters. The result is zero-padded on the left
// and truncated to its rightmost width characters.
func padToken(code string, width int) string {
	code = strings.TrimSpace(code)
	var token string
	if n, err := strconv.ParseInt(code, 10, 64); err == nil && n >= 0 {
		token = strings.ToUpper(strconv.FormatInt(n, 36))
	} else {
		var b strings.Builder
		for _, r := range strings.ToUpper(code) {
			if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
				b.WriteRune(r)
			}
		}
		token = b.String()
	}
	if len(token) > width {
		token = token[len(token)-width:]
	}
	for len(token) < width {
		token = "0" + token
	}
	return token
}

func pickSeparator() string {
	buf := make([]byte, 1)
	if _, err := rand.Read(buf); err != nil {
		return "-"
	}
	return string(invoiceSeparators[int(buf[0])%len(invoiceSeparators)])
}
