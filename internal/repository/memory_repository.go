package repository

import (
	"context"
	"crypto/subtle"
	"sort"
	"sync"

	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"

	"github.com/google/uuid"
)

// MemoryStore implements every repository interface in process. It backs tests and
// local runs without a database.
type MemoryStore struct {
	mu          sync.Mutex
	events      map[uuid.UUID]models.Event
	owners      map[uuid.UUID]models.Owner
	ownerEvents map[[2]uuid.UUID]models.OwnerEventMap
	deployments []models.ModelDeployment
	attendees   map[uuid.UUID]map[string]bool
	usage       map[uuid.UUID]*models.EventUsage
	counts      map[uuid.UUID]map[string]*models.ModelCounts
	charts      map[uuid.UUID]map[int64]models.ChartData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:      make(map[uuid.UUID]models.Event),
		owners:      make(map[uuid.UUID]models.Owner),
		ownerEvents: make(map[[2]uuid.UUID]models.OwnerEventMap),
		attendees:   make(map[uuid.UUID]map[string]bool),
		usage:       make(map[uuid.UUID]*models.EventUsage),
		counts:      make(map[uuid.UUID]map[string]*models.ModelCounts),
		charts:      make(map[uuid.UUID]map[int64]models.ChartData),
	}
}

func (s *MemoryStore) PutEvent(e models.Event) models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.events[e.ID] = e
	return e
}

func (s *MemoryStore) PutOwner(o models.Owner) models.Owner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	s.owners[o.ID] = o
	return o
}

// Associate links an owner to an event. A repeated pair replaces the existing row.
func (s *MemoryStore) Associate(ownerID, eventID uuid.UUID, creator bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerEvents[[2]uuid.UUID{ownerID, eventID}] = models.OwnerEventMap{OwnerID: ownerID, EventID: eventID, Creator: creator}
}

// PutDeployment inserts d, or replaces the deployment with the same ID.
func (s *MemoryStore) PutDeployment(d models.ModelDeployment) models.ModelDeployment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	for i := range s.deployments {
		if s.deployments[i].ID == d.ID {
			s.deployments[i] = d
			return d
		}
	}
	s.deployments = append(s.deployments, d)
	return d
}

func (s *MemoryStore) PutAttendee(eventID uuid.UUID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attendees[eventID] == nil {
		s.attendees[eventID] = make(map[string]bool)
	}
	s.attendees[eventID][userID] = true
}

// ResolveEventByToken compares against every stored digest so the scan time does not
// depend on where, or whether, a match is found.
func (s *MemoryStore) ResolveEventByToken(ctx context.Context, digest string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *models.Event
	for _, e := range s.events {
		if subtle.ConstantTimeCompare([]byte(e.AuthTokenHash), []byte(digest)) == 1 {
			e := e
			found = &e
		}
	}
	if found == nil {
		return nil, apperrors.ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) ListActiveEvents(ctx context.Context) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.events {
		if e.Active {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *MemoryStore) CountAttendees(ctx context.Context, eventID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.attendees[eventID])), nil
}

func (s *MemoryStore) ListDeploymentsForEvent(ctx context.Context, eventID uuid.UUID) ([]models.ModelDeployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ModelDeployment
	for _, d := range s.deployments {
		if _, ok := s.ownerEvents[[2]uuid.UUID{d.OwnerID, eventID}]; ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeploymentName < out[j].DeploymentName })
	return out, nil
}

func (s *MemoryStore) CommitUsage(ctx context.Context, eventID uuid.UUID, resource string, promptTokens, completionTokens int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byResource := s.counts[eventID]
	if byResource == nil {
		byResource = make(map[string]*models.ModelCounts)
		s.counts[eventID] = byResource
	}
	c := byResource[resource]
	if c == nil {
		c = &models.ModelCounts{EventID: eventID, Resource: resource}
		byResource[resource] = c
	}
	c.Count++
	c.PromptTokens += promptTokens
	c.CompletionTokens += completionTokens
	c.TotalTokens = c.PromptTokens + c.CompletionTokens

	u := s.eventUsage(eventID)
	u.TokensUsed += promptTokens + completionTokens
	u.RequestCount++
	return u.TokensUsed, nil
}

func (s *MemoryStore) GetCumulativeUsage(ctx context.Context, eventID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.usage[eventID]; ok {
		return u.TokensUsed, nil
	}
	return 0, nil
}

func (s *MemoryStore) GetRequestCount(ctx context.Context, eventID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.usage[eventID]; ok {
		return u.RequestCount, nil
	}
	return 0, nil
}

func (s *MemoryStore) ListModelCounts(ctx context.Context, eventID uuid.UUID) ([]models.ModelCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ModelCounts
	for _, c := range s.counts[eventID] {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out, nil
}

func (s *MemoryStore) AppendChartData(ctx context.Context, point *models.ChartData) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	point.DateStamp = models.Period(point.DateStamp)
	byPeriod := s.charts[point.EventID]
	if byPeriod == nil {
		byPeriod = make(map[int64]models.ChartData)
		s.charts[point.EventID] = byPeriod
	}
	key := point.DateStamp.Unix()
	if _, exists := byPeriod[key]; exists {
		return false, nil
	}
	byPeriod[key] = *point
	return true, nil
}

func (s *MemoryStore) ListChartData(ctx context.Context, eventID uuid.UUID) ([]models.ChartData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChartData
	for _, p := range s.charts[eventID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateStamp.Before(out[j].DateStamp) })
	return out, nil
}

func (s *MemoryStore) eventUsage(eventID uuid.UUID) *models.EventUsage {
	u, ok := s.usage[eventID]
	if !ok {
		u = &models.EventUsage{EventID: eventID}
		s.usage[eventID] = u
	}
	return u
}

var (
	_ EventRepository      = (*MemoryStore)(nil)
	_ DeploymentRepository = (*MemoryStore)(nil)
	_ UsageRepository      = (*MemoryStore)(nil)
	_ ChartRepository      = (*MemoryStore)(nil)
)
