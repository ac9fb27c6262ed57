package contract

import (
	"context"

	"chatserver-be/internal/model"
	"chatserver-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ThreadRepository interface {
	FindOne(ctx context.Context, specs ...specification.Specification) (*model.Thread, error)
	// LoadAllowList returns the administrator-set table allow-list. A missing
	// thread yields (nil, nil).
	LoadAllowList(ctx context.Context, threadID uuid.UUID) ([]string, error)
}
