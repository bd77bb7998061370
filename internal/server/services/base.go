// Package services contains the server's business logic: token issuance
// and rotation, session flows, the channel and watch-history graph, and
// media replacement.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/google/uuid"
)

// withTimeout bounds a store round trip. Zero disables the bound.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// storeErr classifies an unexpected repository failure. Timeouts are
// reported as upstream failures so callers may retry; the rest is internal.
func storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, common.ErrorUpstream, err)
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrorInternal, err)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// requireFields fails with a validation error naming the first field whose
// value is empty after trimming. Pairs are name, value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return common.Errorf(common.ErrorValidation, "%s is required", pairs[i])
		}
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return common.Errorf(common.ErrorValidation, "invalid email address")
	}
	return nil
}
