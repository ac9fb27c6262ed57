package service

import (
	"context"

	"chatserver-be/internal/repository/specification"
	"chatserver-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// MembershipService answers whether a principal may subscribe to a channel
// or thread. A thread is joinable by members of its channel.
type MembershipService struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewMembershipService(uowFactory unitofwork.RepositoryFactory) *MembershipService {
	return &MembershipService{uowFactory: uowFactory}
}

func (s *MembershipService) CanJoinChannel(ctx context.Context, principal, channelID uuid.UUID) (bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.ChannelMemberRepository().IsMember(ctx, channelID, principal)
}

func (s *MembershipService) CanJoinThread(ctx context.Context, principal, threadID uuid.UUID) (bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	thread, err := uow.ThreadRepository().FindOne(ctx, specification.ByID{ID: threadID})
	if err != nil {
		return false, err
	}
	if thread == nil {
		return false, nil
	}
	return uow.ChannelMemberRepository().IsMember(ctx, thread.ChannelID, principal)
}
