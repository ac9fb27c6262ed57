package contract

import (
	"context"

	"github.com/google/uuid"
)

type ChannelMemberRepository interface {
	IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)
}
