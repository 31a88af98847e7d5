package friendship

import (
	"context"
)

type Repository interface {
	// AreFriends reports whether an accepted friendship row exists for
	// the pair in either stored direction. Every message and federation
	// operation gates on this.
	AreFriends(ctx context.Context, userA, userB string) (bool, error)

	// SaveFriendship upserts both directed rows for the pair with the
	// given status. The invite workflow itself lives outside this
	// subsystem; this is the seam it writes through.
	SaveFriendship(ctx context.Context, userA, userB, status string) error
}
