package accounts

import (
	"context"

	"github.com/google/uuid"
)

// Service exposes the lifecycle by identifier and returns the public
// representation of accounts and candidates.
type Service struct {
	repo      RepositoryManager
	lifecycle *Lifecycle
}

// NewService returns a Service backed by the given lifecycle
func NewService(repo RepositoryManager, lifecycle *Lifecycle) *Service {
	if repo == nil {
		panic("Missing RepositoryManager in account service...")
	}

	if lifecycle == nil {
		panic("Missing Lifecycle in account service...")
	}

	return &Service{repo: repo, lifecycle: lifecycle}
}

func (s *Service) Signup(ctx context.Context, payload SignupPayload) (*AccountDetails, error) {
	return details(s.lifecycle.Signup(ctx, payload))
}

func (s *Service) Invite(ctx context.Context, payload InvitationPayload) (*AccountDetails, error) {
	return details(s.lifecycle.Invite(ctx, payload))
}

func (s *Service) CreateAdmin(ctx context.Context, payload SignupPayload) (*AccountDetails, error) {
	return details(s.lifecycle.CreateAdmin(ctx, payload))
}

func (s *Service) ResendInvitation(ctx context.Context, accountID uuid.UUID, payload ContactPayload) (*AccountDetails, error) {
	account, err := s.repo.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return details(s.lifecycle.ResendInvitation(ctx, account, payload))
}

func (s *Service) InvitationReminder(ctx context.Context, accountID uuid.UUID) (*AccountDetails, error) {
	account, err := s.repo.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return details(s.lifecycle.InvitationReminder(ctx, account))
}

// AddRole parses roleName exactly, unknown names fail with ROLE_NOT_FOUND.
func (s *Service) AddRole(ctx context.Context, accountID uuid.UUID, roleName string) (*AccountDetails, error) {
	account, role, err := s.roleTarget(ctx, accountID, roleName)
	if err != nil {
		return nil, err
	}
	return details(s.lifecycle.AddRole(ctx, account, role))
}

func (s *Service) RemoveRole(ctx context.Context, accountID uuid.UUID, roleName string) (*AccountDetails, error) {
	account, role, err := s.roleTarget(ctx, accountID, roleName)
	if err != nil {
		return nil, err
	}
	return details(s.lifecycle.RemoveRole(ctx, account, role))
}

func (s *Service) Profile(ctx context.Context, accountID uuid.UUID) (*AccountDetails, error) {
	return details(s.repo.Accounts().FindByID(ctx, accountID))
}

func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, payload ProfilePayload) (*AccountDetails, error) {
	account, err := s.repo.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return details(s.lifecycle.UpdateProfile(ctx, account, payload))
}

func (s *Service) SignupCandidate(ctx context.Context, payload SignupPayload) (*CandidateDetails, error) {
	candidate, err := s.lifecycle.SignupCandidate(ctx, payload)
	if err != nil {
		return nil, err
	}
	return NewCandidateDetails(candidate, nil), nil
}

func (s *Service) InviteCandidate(ctx context.Context, payload InvitationPayload) (*CandidateDetails, error) {
	candidate, err := s.lifecycle.InviteCandidate(ctx, payload)
	if err != nil {
		return nil, err
	}
	return NewCandidateDetails(candidate, nil), nil
}

// Candidates lists up to DefaultCandidateListLimit candidates.
func (s *Service) Candidates(ctx context.Context) ([]*CandidateMinimal, error) {
	records, err := s.repo.Candidates().ListCandidates(ctx, DefaultCandidateListLimit)
	if err != nil {
		return nil, err
	}

	out := make([]*CandidateMinimal, 0, len(records))
	for _, record := range records {
		out = append(out, NewCandidateMinimal(record))
	}
	return out, nil
}

func (s *Service) Candidate(ctx context.Context, candidateID uuid.UUID) (*CandidateDetails, error) {
	candidate, err := s.repo.Candidates().FindCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	return NewCandidateDetails(candidate, nil), nil
}

// ResendCandidateInvitation resends the invitation of the candidate account.
func (s *Service) ResendCandidateInvitation(ctx context.Context, candidateID uuid.UUID, payload ContactPayload) (*CandidateDetails, error) {
	candidate, err := s.repo.Candidates().FindCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	account, err := s.lifecycle.ResendInvitation(ctx, candidate.Account, payload)
	if err != nil {
		return nil, err
	}
	return NewCandidateDetails(candidate, account), nil
}

func (s *Service) CandidateInvitationReminder(ctx context.Context, candidateID uuid.UUID) (*CandidateDetails, error) {
	candidate, err := s.repo.Candidates().FindCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	account, err := s.lifecycle.InvitationReminder(ctx, candidate.Account)
	if err != nil {
		return nil, err
	}
	return NewCandidateDetails(candidate, account), nil
}

func (s *Service) roleTarget(ctx context.Context, accountID uuid.UUID, roleName string) (*Account, RoleName, error) {
	role, ok := ParseRole(roleName)
	if !ok {
		return nil, "", newError(ErrRoleNotFound, nil, map[string]any{"role": roleName})
	}

	account, err := s.repo.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, "", err
	}

	return account, role, nil
}

func details(account *Account, err error) (*AccountDetails, error) {
	if err != nil {
		return nil, err
	}
	return NewAccountDetails(account), nil
}
