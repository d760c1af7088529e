package update

import (
	"context"
	"sync"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"
	"github.com/tunerdesk/calsync/pkg/version"

	"github.com/rs/zerolog"
)

// Service periodically checks for newer published releases and caches the
// latest one for the HTTP API.
type Service struct {
	log     zerolog.Logger
	config  *domain.Config
	checker *version.Checker

	m             sync.RWMutex
	latestRelease *version.Release
}

func NewUpdate(log logger.Logger, config *domain.Config) *Service {
	return &Service{
		log:     log.With().Str("module", "update").Logger(),
		config:  config,
		checker: version.NewChecker("tunerdesk", "calsync"),
	}
}

func (s *Service) GetLatestRelease(ctx context.Context) *version.Release {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.latestRelease
}

func (s *Service) CheckUpdates(ctx context.Context) {
	if _, err := s.CheckUpdateAvailable(ctx); err != nil {
		s.log.Error().Err(err).Msg("error checking new version")
		return
	}
}

// CheckUpdateAvailable returns the newest release when one newer than the
// running version exists, caching it for GetLatestRelease.
func (s *Service) CheckUpdateAvailable(ctx context.Context) (*version.Release, error) {
	s.log.Trace().Msg("checking for updates...")

	newRelease, err := s.checker.CheckNewVersion(ctx, s.config.Version)
	if err != nil {
		return nil, err
	}

	if newRelease != nil {
		s.m.Lock()
		s.latestRelease = newRelease
		s.m.Unlock()
		return newRelease, nil
	}

	return nil, nil
}
