// Package domain contains application services orchestrating domain logic by debugger session.
package domain

import (
	"context"

	"agent-runtime/internal/debugger"
	"agent-runtime/internal/entities"
)

// SessionInput starts a debugger session on an agent draft.
type SessionInput struct {
	Agent       *entities.Agent
	Input       string
	Attachments []entities.Attachment
	UploadKey   string
}

// StartSession launches a session and returns it in pending state.
func (u *Usecase) StartSession(ctx context.Context, in SessionInput) (*entities.DebugSession, error) {
	return u.sessions.Start(ctx, debugger.StartInput{
		Agent:       in.Agent,
		Input:       in.Input,
		Attachments: in.Attachments,
		UploadKey:   in.UploadKey,
	})
}

func (u *Usecase) accessibleSession(ctx context.Context, p *entities.Principal, id string) (*entities.DebugSession, error) {
	s, err := u.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccessTeam(s.TeamID) {
		return nil, entities.ErrForbidden
	}
	return s, nil
}

// Session returns a session snapshot.
func (u *Usecase) Session(ctx context.Context, p *entities.Principal, id string) (*entities.DebugSession, error) {
	return u.accessibleSession(ctx, p, id)
}

// WaitSession blocks until the session finishes.
func (u *Usecase) WaitSession(ctx context.Context, p *entities.Principal, id string) (*entities.DebugSession, error) {
	if _, err := u.accessibleSession(ctx, p, id); err != nil {
		return nil, err
	}
	return u.sessions.Wait(ctx, id)
}

// CancelSession stops a running session.
func (u *Usecase) CancelSession(ctx context.Context, p *entities.Principal, id string) (*entities.DebugSession, error) {
	if _, err := u.accessibleSession(ctx, p, id); err != nil {
		return nil, err
	}
	return u.sessions.Cancel(ctx, id)
}

// SubscribeSession follows the session events after seq.
func (u *Usecase) SubscribeSession(ctx context.Context, p *entities.Principal, id string, after int64) (<-chan entities.SessionEvent, error) {
	if _, err := u.accessibleSession(ctx, p, id); err != nil {
		return nil, err
	}
	return u.sessions.Subscribe(ctx, id, after)
}
