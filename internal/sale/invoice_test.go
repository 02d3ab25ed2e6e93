package sale

import (
	"errors"
	"regexp"
	"testing"
	"time"
)

func TestNewInvoiceNumberRequiresContext(t *testing.T) {
	cases := []InvoiceContext{
		{DeskCode: "D1", UserID: "u1"},
		{BranchCode: "BR1", UserID: "u1"},
		{BranchCode: "BR1", DeskCode: "D1"},
		{BranchCode: "  ", DeskCode: "D1", UserID: "u1"},
	}
	for _, ctx := range cases {
		if _, err := NewInvoiceNumber(ctx); !errors.Is(err, ErrContextMissing) {
			t.Fatalf("context %+v: expected ErrContextMissing, got %v", ctx, err)
		}
	}
}

func TestNewInvoiceNumberShape(t *testing.T) {
	num, err := NewInvoiceNumber(InvoiceContext{
		BranchCode: "BR1",
		DeskCode:   "7",
		UserID:     "42",
		At:         time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	// Four fixed-width base-36 segments joined by one separator character.
	// Go's RE2 engine has no backreferences, so each separator is captured
	// separately and compared for equality.
	shape := regexp.MustCompile(`^[0-9A-Z]{3}([-./~])[0-9A-Z]{2}([-./~])[0-9A-Z]{4}([-./~])[0-9A-Z]{8}$`)
	m := shape.FindStringSubmatch(num)
	if m == nil || m[2] != m[1] || m[3] != m[1] {
		t.Fatalf("invoice number %q does not match expected shape", num)
	}
}

func TestNewInvoiceNumberTimeTokenIsDeterministic(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a, err := NewInvoiceNumber(InvoiceContext{BranchCode: "BR1", DeskCode: "D1", UserID: "42", At: at})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	b, err := NewInvoiceNumber(InvoiceContext{BranchCode: "BR1", DeskCode: "D1", UserID: "42", At: at})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	// Only the separator is randomized; the encoded segments are not.
	stripped := regexp.MustCompile(`[-./~]`)
	if stripped.ReplaceAllString(a, "") != stripped.ReplaceAllString(b, "") {
		t.Fatalf("segments differ for identical context: %q vs %q", a, b)
	}
}

func TestPadToken(t *testing.T) {
	cases := []struct {
		code  string
		width int
		want  string
	}{
		{"42", 4, "0016"},     // 42 in base 36 is "16"
		{"BR1", 3, "BR1"},     // alphanumeric pass-through
		{"main-01", 4, "IN01"}, // reduced and right-truncated
		{"7", 2, "07"},
	}
	for _, tc := range cases {
		if got := padToken(tc.code, tc.width); got != tc.want {
			t.Fatalf("padToken(%q, %d) = %q, want %q", tc.code, tc.width, got, tc.want)
		}
	}
}
