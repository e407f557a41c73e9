package usecase

import (
	"context"
	"time"

	"agent-runtime/internal/repository"
	"agent-runtime/internal/usecase/domain"

	"go.uber.org/zap"
)

// InterfaceUsecase aggregates all usecase interfaces.
type InterfaceUsecase interface {
	AuthUsecaseInterface
	TeamUsecaseInterface
	AgentUsecaseInterface
	EmbodimentUsecaseInterface
	DebugUsecaseInterface
	UsageUsecaseInterface
}

// New constructs a new usecase layer with its dependencies.
func New(log *zap.SugaredLogger, ctx context.Context, repo repository.Repository, timeout time.Duration, deps domain.Deps) InterfaceUsecase {
	return domain.New(log, ctx, repo, timeout, deps)
}
