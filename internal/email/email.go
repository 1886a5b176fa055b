package email

import (
	"context"
	"errors"
	"fmt"
)

// ErrDelivery wraps transport failures so callers can detect that a
// message was not handed off.
var ErrDelivery = errors.New("email: delivery failed")

// Sender dispatches transactional mail. Delivery failures are returned,
// never swallowed: a silently dropped reset email strands the user.
type Sender interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// ResetBody renders the password-reset message carrying the plaintext
// token and the reset link.
func ResetBody(resetURL, token string) string {
	return fmt.Sprintf(
		"You requested a password reset.\n\n"+
			"Reset link: %s?token=%s\n\n"+
			"Reset token: %s\n\n"+
			"The token expires in one hour. If you did not request this, ignore this message.",
		resetURL, token, token,
	)
}
