package instances

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"logview/internal/app/api"
	"logview/internal/app/api/apitest"
	"logview/internal/config"
	"logview/internal/config/logger"
)

func testLogger() logger.Logger {
	return logger.NewLoggerWithOutput(config.DefaultConfig(), io.Discard)
}

func newManager(srv *apitest.Server, refresh time.Duration) *Manager {
	log := testLogger()
	client := api.NewClientWith(srv.URL, http.DefaultClient, nil, log)

	return New(client, "orga_1", "app_1", Options{RefreshInterval: refresh, MaxConcurrent: 2}, log)
}

func Test_OptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.DefaultConfig().Instances)
	assert.Equal(t, Options{RefreshInterval: config.RefreshInterval, MaxConcurrent: config.MaxConcurrentFetches}, opts)
}

func Test_Manager_FetchInstances(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	srv.PutInstance(api.Instance{ID: "i1", Name: "web", Index: 0, DeploymentID: "d1", State: "READY", Kind: KindRun, CreationDate: t0})
	srv.PutInstance(api.Instance{ID: "i2", Name: "web", Index: 1, DeploymentID: "d2", State: "READY", Kind: KindRun, CreationDate: t0.Add(time.Minute)})
	srv.PutInstance(api.Instance{ID: "i3", Name: "web", DeploymentID: "d0", State: StateDeleted, Kind: KindRun, CreationDate: t0.Add(-time.Hour), DeletionDate: ptr(t0.Add(-time.Minute))})
	srv.PutDeployment(api.Deployment{ID: "d1", State: "SUCCEEDED", CreationDate: t0, EndDate: ptr(t0.Add(time.Minute)), CommitID: "c1"})
	srv.PutDeployment(api.Deployment{ID: "d2", State: "WORK_IN_PROGRESS", CreationDate: t0.Add(time.Minute), CommitID: "c2"})
	srv.PutLegacyDeployment(api.LegacyDeployment{UUID: "d0", State: "OK", Date: t0.Add(-time.Hour).UnixMilli(), Commit: "c0"})

	m := newManager(srv, time.Hour)
	ctx := context.Background()

	list, err := m.FetchInstances(ctx, t0.Add(-2*time.Hour), nil)
	require.NoError(t, err)
	require.Len(t, list, 3)

	i1, ok := m.Instance("i1")
	require.True(t, ok)
	require.NotNil(t, i1.Deployment)
	assert.Equal(t, Succeeded, i1.Deployment.State)
	assert.Equal(t, "c1", i1.Deployment.CommitID)

	i3, ok := m.Instance("i3")
	require.True(t, ok)
	require.NotNil(t, i3.Deployment)
	assert.Equal(t, Succeeded, i3.Deployment.State)
	require.NotNil(t, i3.Deployment.EndDate)
	assert.True(t, i3.Deployment.EndDate.Equal(t0.Add(-time.Minute)))

	assert.Equal(t, 1, srv.Hits("legacy:d0"))

	_, err = m.FetchInstances(ctx, t0.Add(-2*time.Hour), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, srv.Hits("deployment:d1"), "terminal deployments stay cached")
	assert.Equal(t, 2, srv.Hits("deployment:d2"), "in-progress deployments are refreshed")
	assert.Equal(t, 1, srv.Hits("legacy:d0"))

	all := m.Instances()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"i3", "i1", "i2"}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func Test_Manager_FetchInstancesByDeployment(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	srv.PutInstance(api.Instance{ID: "i1", Name: "web", DeploymentID: "d1", State: "READY", Kind: KindRun, CreationDate: t0})
	srv.PutInstance(api.Instance{ID: "i2", Name: "web", DeploymentID: "d2", State: "READY", Kind: KindRun, CreationDate: t0})
	srv.PutDeployment(api.Deployment{ID: "d1", State: "WORK_IN_PROGRESS", CreationDate: t0})
	srv.PutDeployment(api.Deployment{ID: "d2", State: "WORK_IN_PROGRESS", CreationDate: t0})

	m := newManager(srv, time.Hour)

	list, err := m.FetchInstancesByDeployment(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "i1", list[0].ID)

	_, ok := m.Instance("i2")
	assert.False(t, ok)
}

func Test_Manager_GetOrFetchInstance(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	srv.PutInstance(api.Instance{ID: "i1", Name: "web", DeploymentID: "d1", State: "READY", Kind: KindRun, CreationDate: t0})
	srv.PutDeployment(api.Deployment{ID: "d1", State: "SUCCEEDED", CreationDate: t0, EndDate: ptr(t0)})

	m := newManager(srv, time.Hour)
	ctx := context.Background()

	t.Run("Fetches on miss then serves from cache", func(t *testing.T) {
		inst, err := m.GetOrFetchInstance(ctx, "i1")
		require.NoError(t, err)
		assert.Equal(t, "web", inst.Name)
		assert.False(t, inst.Ghost)

		_, err = m.GetOrFetchInstance(ctx, "i1")
		require.NoError(t, err)
		assert.Equal(t, 1, srv.Hits("instance:i1"))
	})

	t.Run("Unknown instance is a ghost", func(t *testing.T) {
		inst, err := m.GetOrFetchInstance(ctx, "gone")
		require.NoError(t, err)
		assert.True(t, inst.Ghost)
		assert.Equal(t, "gone", inst.ID)

		cached, ok := m.Instance("gone")
		require.True(t, ok)
		assert.True(t, cached.Ghost)
	})

	t.Run("Concurrent misses share one request", func(t *testing.T) {
		srv.PutInstance(api.Instance{ID: "i2", Name: "worker", DeploymentID: "d1", State: "READY", Kind: KindRun, CreationDate: t0})

		var wg sync.WaitGroup

		for i := 0; i < 10; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				inst, err := m.GetOrFetchInstance(ctx, "i2")
				assert.NoError(t, err)
				assert.Equal(t, "worker", inst.Name)
			}()
		}

		wg.Wait()
		assert.LessOrEqual(t, srv.Hits("instance:i2"), 2)
	})
}

func Test_Manager_Errors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	unavailable := &api.HTTPError{StatusCode: http.StatusServiceUnavailable}
	notFound := &api.HTTPError{StatusCode: http.StatusNotFound}

	t.Run("Instance fetch failure propagates", func(t *testing.T) {
		mockAPI := NewMockAPI(ctrl)
		mockAPI.EXPECT().GetInstance(gomock.Any(), "orga_1", "app_1", "i1").Return(nil, unavailable)

		m := New(mockAPI, "orga_1", "app_1", Options{RefreshInterval: time.Hour}, testLogger())

		_, err := m.GetOrFetchInstance(ctx, "i1")
		assert.Equal(t, http.StatusServiceUnavailable, api.StatusCode(err))

		_, ok := m.Instance("i1")
		assert.False(t, ok)
	})

	t.Run("Deployment fetch failure propagates", func(t *testing.T) {
		mockAPI := NewMockAPI(ctrl)
		mockAPI.EXPECT().ListInstances(gomock.Any(), "orga_1", "app_1", t0, gomock.Nil()).
			Return([]api.Instance{{ID: "i1", DeploymentID: "d1"}}, nil)
		mockAPI.EXPECT().GetDeployment(gomock.Any(), "orga_1", "app_1", "d1").Return(nil, unavailable)

		m := New(mockAPI, "orga_1", "app_1", Options{RefreshInterval: time.Hour}, testLogger())

		_, err := m.FetchInstances(ctx, t0, nil)
		assert.Equal(t, http.StatusServiceUnavailable, api.StatusCode(err))
	})

	t.Run("Deployment unknown to both API generations", func(t *testing.T) {
		mockAPI := NewMockAPI(ctrl)
		mockAPI.EXPECT().ListInstancesByDeployment(gomock.Any(), "orga_1", "app_1", "d1").
			Return([]api.Instance{{ID: "i1", DeploymentID: "d1", State: "READY"}}, nil)
		mockAPI.EXPECT().GetDeployment(gomock.Any(), "orga_1", "app_1", "d1").Return(nil, notFound)
		mockAPI.EXPECT().GetLegacyDeployment(gomock.Any(), "orga_1", "app_1", "d1").Return(nil, notFound)

		m := New(mockAPI, "orga_1", "app_1", Options{RefreshInterval: time.Hour}, testLogger())

		list, err := m.FetchInstancesByDeployment(ctx, "d1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Nil(t, list[0].Deployment)
	})
}

func Test_Manager_LastDeploymentInstances(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	srv.PutDeployment(api.Deployment{ID: "old", State: "SUCCEEDED", CreationDate: t0, EndDate: ptr(t0.Add(time.Hour))})
	srv.PutDeployment(api.Deployment{ID: "new", State: "FAILED", CreationDate: t0.Add(2 * time.Hour), EndDate: ptr(t0.Add(3 * time.Hour))})
	srv.PutInstance(api.Instance{ID: "a", DeploymentID: "old", State: "READY", CreationDate: t0})
	srv.PutInstance(api.Instance{ID: "b", DeploymentID: "new", State: StateDeleted, CreationDate: t0.Add(2 * time.Hour)})
	srv.PutInstance(api.Instance{ID: "c", DeploymentID: "new", State: StateDeleted, CreationDate: t0.Add(2*time.Hour + time.Minute)})

	m := newManager(srv, time.Hour)
	ctx := context.Background()

	assert.Nil(t, m.LastDeploymentInstances())

	_, err := m.FetchInstances(ctx, t0.Add(-time.Hour), nil)
	require.NoError(t, err)

	last := m.LastDeploymentInstances()
	require.Len(t, last, 2)
	assert.Equal(t, "b", last[0].ID)
	assert.Equal(t, "c", last[1].ID)

	srv.PutDeployment(api.Deployment{ID: "running", State: "WORK_IN_PROGRESS", CreationDate: t0.Add(-time.Hour)})
	srv.PutInstance(api.Instance{ID: "d", DeploymentID: "running", State: "STARTING", CreationDate: t0.Add(-time.Hour)})

	_, err = m.FetchInstances(ctx, t0.Add(-2*time.Hour), nil)
	require.NoError(t, err)

	last = m.LastDeploymentInstances()
	require.Len(t, last, 1)
	assert.Equal(t, "d", last[0].ID)
}

func Test_Manager_Refresh(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	srv.PutDeployment(api.Deployment{ID: "d1", State: "WORK_IN_PROGRESS", CreationDate: t0})
	srv.PutInstance(api.Instance{ID: "i1", Name: "web", DeploymentID: "d1", State: "STARTING", CreationDate: t0})

	m := newManager(srv, time.Hour)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		changes [][]*Instance
	)

	m.OnChange(func(all []*Instance) {
		mu.Lock()
		defer mu.Unlock()

		changes = append(changes, all)
	})

	_, err := m.FetchInstances(ctx, t0, nil)
	require.NoError(t, err)

	_, err = m.GetOrFetchInstance(ctx, "ghost")
	require.NoError(t, err)

	require.NoError(t, m.Refresh(ctx))

	mu.Lock()
	assert.Empty(t, changes, "nothing changed")
	mu.Unlock()

	srv.PutDeployment(api.Deployment{ID: "d1", State: "SUCCEEDED", CreationDate: t0, EndDate: ptr(t0.Add(time.Minute))})
	srv.PutInstance(api.Instance{ID: "i1", Name: "web", DeploymentID: "d1", State: StateDeleted, CreationDate: t0, DeletionDate: ptr(t0.Add(time.Hour))})

	require.NoError(t, m.Refresh(ctx))

	mu.Lock()
	require.Len(t, changes, 1)
	require.Len(t, changes[0], 2)
	mu.Unlock()

	i1, _ := m.Instance("i1")
	assert.Equal(t, StateDeleted, i1.State)
	assert.Equal(t, Succeeded, i1.Deployment.State)
	assert.False(t, i1.Interesting())

	hits := srv.Hits("instance:i1")
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, hits, srv.Hits("instance:i1"), "settled instances are not polled")

	srv.PutInstance(api.Instance{ID: "ghost", Name: "late", DeploymentID: "d1", State: "READY", CreationDate: t0})
	require.NoError(t, m.Refresh(ctx))

	mu.Lock()
	assert.Len(t, changes, 2, "ghost transition is published")
	mu.Unlock()

	resolved, _ := m.Instance("ghost")
	assert.False(t, resolved.Ghost)
	assert.Equal(t, "late", resolved.Name)
}

func Test_Manager_AutoRefresh(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	srv.PutDeployment(api.Deployment{ID: "d1", State: "WORK_IN_PROGRESS", CreationDate: t0})
	srv.PutInstance(api.Instance{ID: "i1", Name: "web", DeploymentID: "d1", State: "STARTING", CreationDate: t0})

	m := newManager(srv, 20*time.Millisecond)
	defer m.Close()

	changed := make(chan []*Instance, 10)
	m.OnChange(func(all []*Instance) { changed <- all })

	_, err := m.FetchInstances(context.Background(), t0, nil)
	require.NoError(t, err)

	m.EnableAutoRefresh(true)
	m.EnableAutoRefresh(true)
	assert.True(t, m.AutoRefreshing())

	srv.PutInstance(api.Instance{ID: "i1", Name: "web", DeploymentID: "d1", State: "READY", CreationDate: t0})

	select {
	case all := <-changed:
		require.Len(t, all, 1)
		assert.Equal(t, "READY", all[0].State)
	case <-time.After(2 * time.Second):
		t.Fatal("auto refresh did not publish the change")
	}

	m.EnableAutoRefresh(false)
	assert.False(t, m.AutoRefreshing())

	hits := srv.Hits("instance:i1")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, hits, srv.Hits("instance:i1"))
}
