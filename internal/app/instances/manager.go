//go:generate mockgen -source=manager.go -destination=manager_mock.go -package=instances
package instances

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"logview/internal/app/api"
	"logview/internal/config"
	"logview/internal/config/logger"
)

// API is the platform client surface the manager reads from
type API interface {
	ListInstances(ctx context.Context, ownerID, appID string, since time.Time, until *time.Time) ([]api.Instance, error)
	ListInstancesByDeployment(ctx context.Context, ownerID, appID, deploymentID string) ([]api.Instance, error)
	GetInstance(ctx context.Context, ownerID, appID, instanceID string) (*api.Instance, error)
	GetDeployment(ctx context.Context, ownerID, appID, deploymentID string) (*api.Deployment, error)
	GetLegacyDeployment(ctx context.Context, ownerID, appID, deploymentID string) (*api.LegacyDeployment, error)
}

// Options tunes polling and fetch concurrency
type Options struct {
	RefreshInterval time.Duration
	MaxConcurrent   int
}

// OptionsFromConfig converts the configured instances section
func OptionsFromConfig(cfg config.Instances) Options {
	return Options{
		RefreshInterval: cfg.RefreshInterval,
		MaxConcurrent:   config.MaxConcurrentFetches,
	}
}

// Manager caches instances and deployments of one application.
// Stored values are never mutated; a refresh replaces them.
type Manager struct {
	api     API
	ownerID string
	appID   string
	opts    Options
	log     logger.Logger
	group   singleflight.Group

	mu          sync.RWMutex
	instances   map[string]*Instance
	deployments map[string]*Deployment
	onChange    func([]*Instance)

	refreshMu     sync.Mutex
	refreshCancel context.CancelFunc
	refreshDone   chan struct{}
}

// New creates an empty manager
func New(client API, ownerID, appID string, opts Options, log logger.Logger) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = config.MaxConcurrentFetches
	}

	return &Manager{
		api:         client,
		ownerID:     ownerID,
		appID:       appID,
		opts:        opts,
		log:         log.WithComponent("INSTANCES"),
		instances:   make(map[string]*Instance),
		deployments: make(map[string]*Deployment),
	}
}

// OnChange registers the callback receiving all instances after a meaningful refresh
func (m *Manager) OnChange(fn func([]*Instance)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onChange = fn
}

// FetchInstances loads the instances alive in [since, until]
func (m *Manager) FetchInstances(ctx context.Context, since time.Time, until *time.Time) ([]*Instance, error) {
	raw, err := m.api.ListInstances(ctx, m.ownerID, m.appID, since, until)
	if err != nil {
		return nil, err
	}

	return m.ingest(ctx, raw)
}

// FetchInstancesByDeployment loads the instances created by a deployment
func (m *Manager) FetchInstancesByDeployment(ctx context.Context, deploymentID string) ([]*Instance, error) {
	raw, err := m.api.ListInstancesByDeployment(ctx, m.ownerID, m.appID, deploymentID)
	if err != nil {
		return nil, err
	}

	return m.ingest(ctx, raw)
}

// Instance returns a cached instance
func (m *Manager) Instance(id string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[id]

	return inst, ok
}

// Instances returns every cached instance ordered by creation date
func (m *Manager) Instances() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedLocked()
}

func (m *Manager) sortedLocked() []*Instance {
	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreationDate.Equal(out[j].CreationDate) {
			return out[i].CreationDate.Before(out[j].CreationDate)
		}

		return out[i].ID < out[j].ID
	})

	return out
}

// GetOrFetchInstance returns the cached instance or fetches it; an unknown id yields a ghost
func (m *Manager) GetOrFetchInstance(ctx context.Context, id string) (*Instance, error) {
	if inst, ok := m.Instance(id); ok {
		return inst, nil
	}

	v, err, _ := m.group.Do(id, func() (interface{}, error) {
		if inst, ok := m.Instance(id); ok {
			return inst, nil
		}

		inst, err := m.fetchOne(ctx, id)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.instances[id] = inst
		m.mu.Unlock()

		return inst, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Instance), nil
}

// fetchOne loads an instance and its deployment without storing the instance
func (m *Manager) fetchOne(ctx context.Context, id string) (*Instance, error) {
	raw, err := m.api.GetInstance(ctx, m.ownerID, m.appID, id)
	if api.IsNotFound(err) {
		m.log.Debug().Str("instance", id).Msg("Instance not found, using ghost")
		return NewGhost(id), nil
	}

	if err != nil {
		return nil, err
	}

	if err := m.ensureDeployments(ctx, []api.Instance{*raw}); err != nil {
		return nil, err
	}

	m.mu.RLock()
	deployment := m.deployments[raw.DeploymentID]
	m.mu.RUnlock()

	return fromInstance(*raw, deployment), nil
}

// ingest resolves deployments, converts and upserts a raw instance list
func (m *Manager) ingest(ctx context.Context, raw []api.Instance) ([]*Instance, error) {
	if err := m.ensureDeployments(ctx, raw); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Instance, 0, len(raw))

	for _, r := range raw {
		inst := fromInstance(r, m.deployments[r.DeploymentID])
		m.instances[inst.ID] = inst
		out = append(out, inst)
	}

	return out, nil
}

// ensureDeployments fetches unknown and in-progress deployments; terminal ones stay cached
func (m *Manager) ensureDeployments(ctx context.Context, raw []api.Instance) error {
	pending := make(map[string]struct{})

	m.mu.RLock()
	for _, r := range raw {
		if r.DeploymentID == "" {
			continue
		}

		if d, ok := m.deployments[r.DeploymentID]; !ok || d.InProgress() {
			pending[r.DeploymentID] = struct{}{}
		}
	}
	m.mu.RUnlock()

	if len(pending) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.MaxConcurrent)

	for id := range pending {
		g.Go(func() error {
			d, err := m.fetchDeployment(gctx, id)
			if err != nil {
				return err
			}

			if d == nil {
				return nil
			}

			m.mu.Lock()
			m.deployments[id] = d
			m.mu.Unlock()

			return nil
		})
	}

	return g.Wait()
}

// fetchDeployment tries the v4 API, then falls back to v2; nil means unknown to both
func (m *Manager) fetchDeployment(ctx context.Context, id string) (*Deployment, error) {
	d, err := m.api.GetDeployment(ctx, m.ownerID, m.appID, id)
	if err == nil {
		converted, known := fromDeployment(d)
		if !known {
			m.log.Warn().Str("deployment", id).Str("state", d.State).Msg("Unknown deployment state")
		}

		return converted, nil
	}

	if !api.IsNotFound(err) {
		return nil, err
	}

	legacy, err := m.api.GetLegacyDeployment(ctx, m.ownerID, m.appID, id)
	if api.IsNotFound(err) {
		m.log.Warn().Str("deployment", id).Msg("Deployment not found")
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	related, err := m.api.ListInstancesByDeployment(ctx, m.ownerID, m.appID, id)
	if err != nil {
		return nil, err
	}

	converted, known := fromLegacyDeployment(legacy, related)
	if !known {
		m.log.Warn().Str("deployment", id).Str("state", legacy.State).Msg("Unknown legacy deployment state")
	}

	return converted, nil
}

// LastDeploymentInstances returns the instances of the most recent deployment,
// preferring in-progress deployments over finished ones
func (m *Manager) LastDeploymentInstances() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *Deployment

	for _, inst := range m.instances {
		d := inst.Deployment
		if inst.Ghost || d == nil {
			continue
		}

		if last == nil || newer(d, last) {
			last = d
		}
	}

	if last == nil {
		return nil
	}

	var out []*Instance

	for _, inst := range m.sortedLocked() {
		if !inst.Ghost && inst.Deployment != nil && inst.Deployment.ID == last.ID {
			out = append(out, inst)
		}
	}

	return out
}

func newer(a, b *Deployment) bool {
	if a.InProgress() != b.InProgress() {
		return a.InProgress()
	}

	if !a.CreationDate.Equal(b.CreationDate) {
		return a.CreationDate.After(b.CreationDate)
	}

	return a.ID > b.ID
}

// EnableAutoRefresh polls interesting instances while live is true
func (m *Manager) EnableAutoRefresh(live bool) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	if !live {
		m.stopRefreshLocked()
		return
	}

	if m.refreshCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.refreshCancel = cancel
	m.refreshDone = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(m.opts.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
					m.log.Warn().Err(err).Msg("Instance refresh failed")
				}
			}
		}
	}()
}

// AutoRefreshing reports whether polling is active
func (m *Manager) AutoRefreshing() bool {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	return m.refreshCancel != nil
}

func (m *Manager) stopRefreshLocked() {
	if m.refreshCancel == nil {
		return
	}

	m.refreshCancel()
	<-m.refreshDone

	m.refreshCancel = nil
	m.refreshDone = nil
}

// Refresh re-fetches interesting instances and publishes when something meaningful changed
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	var ids []string
	for id, inst := range m.instances {
		if inst.Interesting() {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}

	fresh := make([]*Instance, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.MaxConcurrent)

	for i, id := range ids {
		g.Go(func() error {
			inst, err := m.fetchOne(gctx, id)
			if err != nil {
				return err
			}

			fresh[i] = inst

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	m.mu.Lock()
	changed := false

	for _, inst := range fresh {
		if old, ok := m.instances[inst.ID]; !ok || old.differs(inst) {
			changed = true
		}

		m.instances[inst.ID] = inst
	}

	var (
		onChange = m.onChange
		all      []*Instance
	)

	if changed {
		all = m.sortedLocked()
	}
	m.mu.Unlock()

	if changed {
		m.log.Debug().Int("instances", len(all)).Msg("Instances changed")

		if onChange != nil {
			onChange(all)
		}
	}

	return nil
}

// Close stops polling
func (m *Manager) Close() {
	m.EnableAutoRefresh(false)
}
