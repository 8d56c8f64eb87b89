package services

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/providers"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
)

const (
	staffAvailabilityCacheKey = "staff:availability"
	staffAvailabilityTTL      = 60
)

// StaffService serves the staff availability read path with a short cache.
// Staleness up to the TTL is acceptable for this projection; expiry is the
// only invalidation.
type StaffService struct {
	users repositories.UserDirectory
	cache providers.CacheProvider
}

// NewStaffService creates a new staff service
func NewStaffService(users repositories.UserDirectory, cache providers.CacheProvider) *StaffService {
	return &StaffService{users: users, cache: cache}
}

// StaffAvailability lists the staff currently on the floor
type StaffAvailability struct {
	Nurses  []*entities.User `json:"nurses"`
	Doctors []*entities.User `json:"doctors"`
}

// AvailableStaff returns verified nurses and doctors, cached for a minute
func (s *StaffService) AvailableStaff(ctx context.Context) (*StaffAvailability, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, staffAvailabilityCacheKey); err == nil {
			var cached StaffAvailability
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	nurses, err := s.users.ListAvailableNurses(ctx)
	if err != nil {
		return nil, err
	}
	doctors, err := s.users.ListAvailableDoctors(ctx)
	if err != nil {
		return nil, err
	}

	availability := &StaffAvailability{Nurses: nurses, Doctors: doctors}
	if s.cache != nil {
		if data, err := json.Marshal(availability); err == nil {
			if err := s.cache.Set(ctx, staffAvailabilityCacheKey, data, staffAvailabilityTTL); err != nil {
				log.Warn().Err(err).Msg("failed to cache staff availability")
			}
		}
	}
	return availability, nil
}
