// Package accounts is the credential store: account records with their
// password hash, media references and the single accepted refresh token.
package accounts

import (
	"context"

	"github.com/Cybrite/your-tube/internal/server/models"
)

// Repository persists accounts. Lookups return common.ErrorNotFound when no
// row matches; writes that collide on username or email return
// common.ErrorAlreadyExists.
type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByUsername(ctx context.Context, username string) (*models.Account, error)
	// FindByIdentity matches on username or email; empty arguments are
	// ignored. A username match wins over an email match.
	FindByIdentity(ctx context.Context, username, email string) (*models.Account, error)
	// FindOwners returns owner profiles keyed by account id. Unknown ids are
	// simply absent from the result.
	FindOwners(ctx context.Context, ids []string) (map[string]models.OwnerProfile, error)

	// SetRefreshToken stores token unconditionally; "" clears it.
	SetRefreshToken(ctx context.Context, id, token string) error
	// SwapRefreshToken replaces expected with next only if expected is still
	// the stored token, and reports whether it did.
	SwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error)
	// SwapMedia replaces the slot's reference only if its stored key still
	// equals expectedKey, and reports whether it did.
	SwapMedia(ctx context.Context, id string, slot models.MediaSlot, expectedKey string, next models.MediaRef) (bool, error)

	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateDetails(ctx context.Context, id, fullName, email string) (*models.Account, error)
}
