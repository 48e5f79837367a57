package database

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/providers"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
)

// CachedEncounterAdapter wraps an EncounterRepository with a short-lived
// cache over the active-encounter list, the hottest read in the doctor
// panel. Writes invalidate the list so a refresh after a notification
// never sees a stale roster for long.
type CachedEncounterAdapter struct {
	adapter repositories.EncounterRepository
	cache   providers.CacheProvider
}

// NewCachedEncounterAdapter creates a new cached encounter adapter
func NewCachedEncounterAdapter(adapter repositories.EncounterRepository, cache providers.CacheProvider) repositories.EncounterRepository {
	return &CachedEncounterAdapter{
		adapter: adapter,
		cache:   cache,
	}
}

const (
	activeEncountersCacheKey = "encounters:active"
	activeEncountersTTL      = 15 // seconds
)

// CreateWithPatient creates the intake unit and invalidates the list
func (a *CachedEncounterAdapter) CreateWithPatient(ctx context.Context, patient *entities.Patient, encounter *entities.Encounter) error {
	if err := a.adapter.CreateWithPatient(ctx, patient, encounter); err != nil {
		return err
	}
	a.invalidate(ctx)
	return nil
}

// GetByID retrieves an encounter by ID, bypassing the cache: single-row
// reads feed transition decisions and must be authoritative
func (a *CachedEncounterAdapter) GetByID(ctx context.Context, id string) (*entities.Encounter, error) {
	return a.adapter.GetByID(ctx, id)
}

// ListActive retrieves active encounters with caching
func (a *CachedEncounterAdapter) ListActive(ctx context.Context) ([]*entities.Encounter, error) {
	if cached, err := a.cache.Get(ctx, activeEncountersCacheKey); err == nil {
		var encounters []*entities.Encounter
		if err := json.Unmarshal(cached, &encounters); err == nil {
			return encounters, nil
		} else {
			log.Warn().Err(err).Msg("failed to unmarshal cached active encounters")
		}
	}

	encounters, err := a.adapter.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(encounters); err == nil {
		if err := a.cache.Set(ctx, activeEncountersCacheKey, data, activeEncountersTTL); err != nil {
			log.Warn().Err(err).Msg("failed to cache active encounters")
		}
	}

	return encounters, nil
}

// Complete completes the encounter and invalidates the list
func (a *CachedEncounterAdapter) Complete(ctx context.Context, id string) error {
	if err := a.adapter.Complete(ctx, id); err != nil {
		return err
	}
	a.invalidate(ctx)
	return nil
}

func (a *CachedEncounterAdapter) invalidate(ctx context.Context) {
	if err := a.cache.Delete(ctx, activeEncountersCacheKey); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate active encounters cache")
	}
}
