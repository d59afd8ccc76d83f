package attendance

import (
	"context"
	"strings"

	"eventcheckin/internal/auth"
)

// RegisterStation records a scanning station and issues its tokens.
func (s *Service) RegisterStation(ctx context.Context, iss auth.Issuer, stationID string) (auth.TokenPair, error) {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return auth.TokenPair{}, ErrInvalid("station_id is required")
	}
	if err := s.repo.UpsertStation(ctx, stationID, s.now()); err != nil {
		return auth.TokenPair{}, err
	}
	return s.issue(ctx, iss, stationID)
}

// RefreshStation rotates a refresh token. The old token is revoked.
func (s *Service) RefreshStation(ctx context.Context, iss auth.Issuer, refreshToken string) (auth.TokenPair, error) {
	claims, err := iss.Parse(refreshToken, auth.KindRefresh)
	if err != nil {
		return auth.TokenPair{}, ErrUnauthorized("invalid refresh token")
	}
	active, err := s.repo.RefreshTokenActive(ctx, claims.Subject, refreshToken, s.now())
	if err != nil {
		return auth.TokenPair{}, err
	}
	if !active {
		return auth.TokenPair{}, ErrUnauthorized("refresh token revoked or expired")
	}
	if err := s.repo.RevokeRefreshToken(ctx, refreshToken); err != nil {
		return auth.TokenPair{}, err
	}
	return s.issue(ctx, iss, claims.Subject)
}

func (s *Service) issue(ctx context.Context, iss auth.Issuer, stationID string) (auth.TokenPair, error) {
	tokens, err := iss.Issue(stationID)
	if err != nil {
		return auth.TokenPair{}, err
	}
	if err := s.repo.SaveRefreshToken(ctx, stationID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		return auth.TokenPair{}, err
	}
	return tokens, nil
}
