package unitofwork

import (
	"context"

	"chatserver-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ThreadRepository() contract.ThreadRepository
	MessageRepository() contract.MessageRepository
	ChannelMemberRepository() contract.ChannelMemberRepository
	QueryAuditRepository() contract.QueryAuditRepository
}
