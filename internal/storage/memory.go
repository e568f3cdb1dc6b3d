package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wahlandcase/appgit/internal/models"
)

// MemoryStore holds applications and profiles in memory. Records are copied
// on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	apps     map[string]*models.Application // Key: application ID
	branches map[string]string              // Key: "root\x00branch" → Value: application ID
	profiles map[string]map[string]models.GitProfile
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:     make(map[string]*models.Application),
		branches: make(map[string]string),
		profiles: make(map[string]map[string]models.GitProfile),
	}
}

func branchKey(app *models.Application) (string, bool) {
	if !app.IsGitEnabled() {
		return "", false
	}
	return app.GitMetadata.DefaultApplicationID + "\x00" + app.GitMetadata.BranchName, true
}

func (s *MemoryStore) CreateApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apps[app.ID]; exists {
		return fmt.Errorf("%w: application %s", ErrConflict, app.ID)
	}
	key, tracked := branchKey(app)
	if tracked {
		if existingID, exists := s.branches[key]; exists {
			return fmt.Errorf("%w: branch %s of %s (ID: %s)",
				ErrConflict, app.GitMetadata.BranchName, app.GitMetadata.DefaultApplicationID, existingID)
		}
		s.branches[key] = app.ID
	}
	s.apps[app.ID] = copyApplication(app)
	return nil
}

func (s *MemoryStore) UpdateApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.apps[app.ID]
	if !exists {
		return fmt.Errorf("%w: application %s", ErrNotFound, app.ID)
	}

	oldKey, hadKey := branchKey(existing)
	newKey, hasKey := branchKey(app)
	if hasKey && (!hadKey || oldKey != newKey) {
		if existingID, taken := s.branches[newKey]; taken && existingID != app.ID {
			return fmt.Errorf("%w: branch %s of %s (ID: %s)",
				ErrConflict, app.GitMetadata.BranchName, app.GitMetadata.DefaultApplicationID, existingID)
		}
	}
	if hadKey {
		delete(s.branches, oldKey)
	}
	if hasKey {
		s.branches[newKey] = app.ID
	}
	s.apps[app.ID] = copyApplication(app)
	return nil
}

func (s *MemoryStore) GetApplication(_ context.Context, id string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, exists := s.apps[id]
	if !exists {
		return nil, fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	return copyApplication(app), nil
}

func (s *MemoryStore) FindBranchApplication(_ context.Context, defaultAppID, branch string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.branches[defaultAppID+"\x00"+branch]
	if !exists {
		return nil, fmt.Errorf("%w: branch %s of %s", ErrNotFound, branch, defaultAppID)
	}
	return copyApplication(s.apps[id]), nil
}

func (s *MemoryStore) ListBranchApplications(_ context.Context, defaultAppID string) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var apps []*models.Application
	for _, app := range s.apps {
		if app.IsGitEnabled() && app.GitMetadata.DefaultApplicationID == defaultAppID {
			apps = append(apps, copyApplication(app))
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		return apps[i].GitMetadata.BranchName < apps[j].GitMetadata.BranchName
	})
	return apps, nil
}

func (s *MemoryStore) DeleteApplication(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, exists := s.apps[id]
	if !exists {
		return fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	if key, tracked := branchKey(app); tracked {
		delete(s.branches, key)
	}
	delete(s.apps, id)
	return nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, userID, key string, profile models.GitProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profiles[userID] == nil {
		s.profiles[userID] = make(map[string]models.GitProfile)
	}
	s.profiles[userID][key] = profile
	return nil
}

func (s *MemoryStore) GetProfiles(_ context.Context, userID string) (map[string]models.GitProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.GitProfile, len(s.profiles[userID]))
	for k, p := range s.profiles[userID] {
		out[k] = p
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// copyApplication deep-copies the record, including the free-form maps of its
// content, so callers never share state with the store.
func copyApplication(app *models.Application) *models.Application {
	out := *app
	if app.GitMetadata != nil {
		meta := app.GitMetadata.ForBranch(app.GitMetadata.BranchName)
		out.GitMetadata = &meta
	}
	c := &out.Content
	c.Settings = copyMap(app.Content.Settings)
	c.Pages = cloneSlice(app.Content.Pages)
	for i := range c.Pages {
		c.Pages[i].Layouts = cloneSlice(c.Pages[i].Layouts)
		for j := range c.Pages[i].Layouts {
			c.Pages[i].Layouts[j].DSL = copyMap(c.Pages[i].Layouts[j].DSL)
		}
	}
	c.Actions = cloneSlice(app.Content.Actions)
	for i := range c.Actions {
		c.Actions[i].Config = copyMap(c.Actions[i].Config)
	}
	c.Datasources = cloneSlice(app.Content.Datasources)
	for i := range c.Datasources {
		c.Datasources[i].Config = copyMap(c.Datasources[i].Config)
		if auth := c.Datasources[i].Authentication; auth != nil {
			a := *auth
			c.Datasources[i].Authentication = &a
		}
	}
	return &out
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	}
	return v
}
