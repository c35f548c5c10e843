package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmcache/component-cache/internal/component"
	"github.com/wasmcache/component-cache/internal/component/compilepool"
	"github.com/wasmcache/component-cache/internal/component/registry"
)

type fakeClient struct {
	metadataCalls int
	metadataFn    func(id string, version uint64) (registry.ComponentView, error)

	latestCalls int
	latestFn    func(id string) (registry.ComponentView, error)

	downloadCalls atomic.Int32
	downloadFn    func(id string, version uint64) ([]byte, error)
}

func (f *fakeClient) GetComponentMetadata(ctx context.Context, id string, version uint64) (registry.ComponentView, error) {
	f.metadataCalls++
	return f.metadataFn(id, version)
}

func (f *fakeClient) GetLatestComponentMetadata(ctx context.Context, id string) (registry.ComponentView, error) {
	f.latestCalls++
	return f.latestFn(id)
}

func (f *fakeClient) DownloadComponent(ctx context.Context, id string, version uint64) ([]byte, error) {
	f.downloadCalls.Add(1)
	return f.downloadFn(id, version)
}

type fakeStore struct {
	data map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{data: map[string][]byte{}} }

func (s *fakeStore) key(id component.Id, version component.Version, fp string) string {
	return id.String() + "/" + fp
}

func (s *fakeStore) Get(ctx context.Context, id component.Id, version component.Version, fp string) (component.Compiled, bool, error) {
	b, ok := s.data[s.key(id, version, fp)]
	if !ok {
		return nil, false, nil
	}
	return string(b), true, nil
}

func (s *fakeStore) Put(ctx context.Context, id component.Id, version component.Version, fp string, artifact component.Compiled) error {
	s.data[s.key(id, version, fp)] = []byte(artifact.(string))
	return nil
}

type fakeEngine struct {
	compileCalls atomic.Int32
	fingerprint  string
}

func (e *fakeEngine) Compile(raw []byte) (component.Compiled, error) {
	e.compileCalls.Add(1)
	return "compiled:" + string(raw), nil
}

func (e *fakeEngine) Fingerprint() string { return e.fingerprint }

func newRemoteServiceForTest(t *testing.T, client registry.Client, st *fakeStore) *RemoteService {
	t.Helper()
	if st == nil {
		st = newFakeStore()
	}
	s, err := NewRemoteService(client, st, compilepool.New(2), RemoteConfig{MaxCapacity: 10, MaxMetadataCapacity: 10}, nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestRemoteService_Get_CompilesOnMissAndCachesArtifact(t *testing.T) {
	client := &fakeClient{
		downloadFn: func(id string, version uint64) ([]byte, error) { return []byte("raw-bytes"), nil },
		metadataFn: func(id string, version uint64) (registry.ComponentView, error) {
			return registry.ComponentView{Version: version, ComponentType: "Durable"}, nil
		},
	}
	s := newRemoteServiceForTest(t, client, nil)
	engine := &fakeEngine{fingerprint: "engine-v1"}

	id := testId(t)
	artifact, md, err := s.Get(context.Background(), engine, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "compiled:raw-bytes", artifact)
	assert.EqualValues(t, 1, md.Version)
	assert.EqualValues(t, 1, engine.compileCalls.Load())
	assert.EqualValues(t, 1, client.downloadCalls.Load())

	// Second call for the same key must hit the component cache, not
	// re-download or re-compile.
	_, _, err = s.Get(context.Background(), engine, id, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, engine.compileCalls.Load())
	assert.EqualValues(t, 1, client.downloadCalls.Load())
}

func TestRemoteService_Get_UsesCompiledArtifactStoreBeforeDownloading(t *testing.T) {
	st := newFakeStore()
	id := testId(t)
	require.NoError(t, st.Put(context.Background(), id, 2, "engine-v1", "compiled:from-store"))

	client := &fakeClient{
		downloadFn: func(id string, version uint64) ([]byte, error) {
			t.Fatal("must not download when the compiled-artifact store already has an entry")
			return nil, nil
		},
		metadataFn: func(id string, version uint64) (registry.ComponentView, error) {
			return registry.ComponentView{Version: version, ComponentType: "Durable"}, nil
		},
	}
	s := newRemoteServiceForTest(t, client, st)
	engine := &fakeEngine{fingerprint: "engine-v1"}

	artifact, _, err := s.Get(context.Background(), engine, id, 2)
	require.NoError(t, err)
	assert.Equal(t, "compiled:from-store", artifact)
	assert.EqualValues(t, 0, engine.compileCalls.Load())
}

func TestRemoteService_Get_DownloadFailureIsComponentDownloadFailed(t *testing.T) {
	client := &fakeClient{
		downloadFn: func(id string, version uint64) ([]byte, error) { return nil, errors.New("connection refused") },
	}
	s := newRemoteServiceForTest(t, client, nil)
	engine := &fakeEngine{fingerprint: "engine-v1"}

	_, _, err := s.Get(context.Background(), engine, testId(t), 1)
	require.Error(t, err)
	var target *component.ComponentDownloadFailed
	assert.ErrorAs(t, err, &target)
}

func TestRemoteService_GetMetadata_ExactVersionIsCached(t *testing.T) {
	client := &fakeClient{
		metadataFn: func(id string, version uint64) (registry.ComponentView, error) {
			return registry.ComponentView{Version: version, ComponentType: "Durable"}, nil
		},
	}
	s := newRemoteServiceForTest(t, client, nil)
	id := testId(t)

	v := component.Version(4)
	_, err := s.GetMetadata(context.Background(), id, &v)
	require.NoError(t, err)
	_, err = s.GetMetadata(context.Background(), id, &v)
	require.NoError(t, err)
	assert.Equal(t, 1, client.metadataCalls, "exact-version metadata must be memoized")
}

func TestRemoteService_GetMetadata_LatestBypassesCacheButMemoizesResult(t *testing.T) {
	version := uint64(1)
	client := &fakeClient{
		latestFn: func(id string) (registry.ComponentView, error) {
			v := version
			version++
			return registry.ComponentView{Version: v, ComponentType: "Durable"}, nil
		},
	}
	s := newRemoteServiceForTest(t, client, nil)
	id := testId(t)

	md1, err := s.GetMetadata(context.Background(), id, nil)
	require.NoError(t, err)
	md2, err := s.GetMetadata(context.Background(), id, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, client.latestCalls, "a nil version must always re-fetch, never serve from cache")
	assert.NotEqual(t, md1.Version, md2.Version, "each latest fetch observed a newer version")

	// But the result IS memoized under the version it resolved to.
	v := md2.Version
	_, err = s.GetMetadata(context.Background(), id, &v)
	require.NoError(t, err)
	assert.Equal(t, 0, client.metadataCalls, "the exact-version lookup must be served from the memoized latest result")
}

// produceArtifact's ctx comes from cachecore's producer (effectively
// context.Background()), independent of any caller's Get context, so this
// exercises produceArtifact directly with a context the test controls
// rather than going through Get and a caller-side cancel that would never
// reach it.
func TestRemoteService_ProduceArtifact_CompileJoinCancelledWhileRunningIsUnknownNotParseFailed(t *testing.T) {
	client := &fakeClient{
		downloadFn: func(id string, version uint64) ([]byte, error) { return []byte("raw-bytes"), nil },
	}
	s := newRemoteServiceForTest(t, client, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	engine := &blockingEngine{started: started, release: release}

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan error, 1)
	go func() {
		_, err := s.produceArtifact(ctx, engine, testId(t), 1)
		resultCh <- err
	}()

	<-started
	cancel()

	var err error
	select {
	case err = <-resultCh:
	case <-time.After(time.Second):
		t.Fatal("produceArtifact did not return after ctx was cancelled mid-compile")
	}

	var unknown *component.Unknown
	assert.ErrorAs(t, err, &unknown, "a compile join cancelled mid-run must surface as Unknown")
	var parseFailed *component.ComponentParseFailed
	assert.False(t, errors.As(err, &parseFailed), "it must not be misclassified as ComponentParseFailed")
	close(release)
}

type blockingEngine struct {
	started chan struct{}
	release chan struct{}
}

func (e *blockingEngine) Compile(raw []byte) (component.Compiled, error) {
	close(e.started)
	<-e.release
	return "compiled:" + string(raw), nil
}

func (e *blockingEngine) Fingerprint() string { return "blocking-engine" }

func testId(t *testing.T) component.Id {
	t.Helper()
	id, err := component.ParseId("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	return id
}
