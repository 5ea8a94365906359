package vidgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/feitianbubu/vidgate/adapters"
	"github.com/feitianbubu/vidgate/adapters/kling"
	"github.com/feitianbubu/vidgate/catalog"
	"github.com/feitianbubu/vidgate/config"
	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/payload"
	"github.com/feitianbubu/vidgate/store/memory"
	"github.com/feitianbubu/vidgate/store/redisstore"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeAdapter is a scripted provider.
type fakeAdapter struct {
	name   model.Provider
	extend bool

	mu        sync.Mutex
	submits   int
	fetches   int
	checks    int
	payloads  []*payload.Payload
	endpoints []model.ResolvedEndpoint

	submitErr error
	results   []*adapters.RawResult
	fetchErr  error
	status    *adapters.RawStatus
	block     chan struct{}
	entered   chan struct{}
	// ctxAware makes FetchResult fail like a real transport once its
	// context is done.
	ctxAware bool
}

func newFake(name model.Provider) *fakeAdapter {
	return &fakeAdapter{name: name, extend: name == model.ProviderKling}
}

func (f *fakeAdapter) Name() model.Provider { return f.name }
func (f *fakeAdapter) SupportsExtend() bool { return f.extend }

func (f *fakeAdapter) Submit(_ context.Context, p *payload.Payload, ep model.ResolvedEndpoint) (*adapters.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.payloads = append(f.payloads, p)
	f.endpoints = append(f.endpoints, ep)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &adapters.Handle{ProviderTaskID: fmt.Sprintf("p-%d", f.submits), Endpoint: ep}, nil
}

func (f *fakeAdapter) CheckStatus(_ context.Context, h *adapters.Handle) (*adapters.RawStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.status == nil {
		return &adapters.RawStatus{ProviderTaskID: h.ProviderTaskID, State: adapters.StateProcessing}, nil
	}
	return f.status, nil
}

func (f *fakeAdapter) FetchResult(ctx context.Context, h *adapters.Handle) (*adapters.RawResult, error) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.ctxAware && ctx.Err() != nil {
		return nil, model.NewTransportError(f.name, "fake:fetch", ctx.Err())
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.results) == 0 {
		return &adapters.RawResult{ProviderTaskID: h.ProviderTaskID, RawStatus: "processing", State: adapters.StateProcessing}, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r, nil
}

func (f *fakeAdapter) counts() (submits, fetches, checks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits, f.fetches, f.checks
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
	require.NoError(t, err)
	return c
}

func textRequest() *GenerationRequest {
	return &GenerationRequest{
		Modality:    ModalityTextToVideo,
		Prompt:      "a cat runs",
		ModelFamily: catalog.FamilyKling10,
	}
}

// klingServer fakes the relay and counts every request it receives.
type klingServer struct {
	*httptest.Server
	requests atomic.Int32
	paths    chan string
	status   string
	videoURL string
}

func newKlingServer(t *testing.T, status, videoURL string) *klingServer {
	t.Helper()
	ks := &klingServer{paths: make(chan string, 16), status: status, videoURL: videoURL}
	ks.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ks.requests.Add(1)
		ks.paths <- r.URL.Path
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"result":1,"data":{"task":{"id":"k-1","status":5}}}`))
			return
		}
		works := "[]"
		if ks.videoURL != "" {
			works = fmt.Sprintf(`[{"resource":{"resource":%q},"cover":{"resource":"https://cdn/cover.jpg"}}]`, ks.videoURL)
		}
		_, _ = fmt.Fprintf(w, `{"result":1,"data":{"status":%q,"works":%s}}`, ks.status, works)
	}))
	t.Cleanup(ks.Close)
	return ks
}

func newKlingAdapter(t *testing.T, baseURL string) adapters.Adapter {
	t.Helper()
	a, err := kling.New(&adapters.ProviderConfig{BaseURL: baseURL, APIKey: "relay-key"})
	require.NoError(t, err)
	return a
}

func TestSubmitResolvesHighWidescreen10s(t *testing.T) {
	ks := newKlingServer(t, "processing", "")
	c := newTestClient(t, WithAdapters(newKlingAdapter(t, ks.URL)))

	req := textRequest()
	req.AspectRatio = "16:9"
	req.Quality = QualityHigh
	req.DurationSeconds = 10

	task, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "/klingai/m2v_16_txt2video_hq_10s", <-ks.paths)
	assert.Equal(t, TaskStatusSubmitted, task.Status)
	assert.Equal(t, "k-1", task.ProviderTaskID)
	assert.Equal(t, ProviderKling, task.Provider)
	assert.Equal(t, catalog.FamilyKling10, task.ModelFamily)
	assert.Equal(t, ModalityTextToVideo, task.Modality)
	assert.Equal(t, fixedNow, task.CreatedAt)

	stored, err := c.Get(context.Background(), task.LocalTaskID)
	require.NoError(t, err)
	assert.Equal(t, task, stored)
}

// recordingStore remembers every id it hands out.
type recordingStore struct {
	*memory.Store
	mu  sync.Mutex
	ids []string
}

func (s *recordingStore) NewTaskID(ctx context.Context) (string, error) {
	id, err := s.Store.NewTaskID(ctx)
	s.mu.Lock()
	s.ids = append(s.ids, id)
	s.mu.Unlock()
	return id, err
}

func TestSubmitIsAtomicOnTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	st := &recordingStore{Store: memory.New()}
	c := newTestClient(t, WithStore(st), WithAdapters(newKlingAdapter(t, baseURL)))

	_, err := c.Submit(context.Background(), textRequest())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))
	assert.Equal(t, 0, st.Len())

	require.Len(t, st.ids, 1)
	_, err = c.Poll(context.Background(), st.ids[0])
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
	assert.True(t, IsNotFound(err))
}

func TestSubmitPersistsNothingOnRejection(t *testing.T) {
	fake := newFake(model.ProviderKling)
	fake.submitErr = model.NewProviderRejectionError(model.ProviderKling, "kling:/x", 200, []byte(`{"result":0}`), "quota")
	st := memory.New()
	c := newTestClient(t, WithStore(st), WithAdapters(fake))

	task, err := c.Submit(context.Background(), textRequest())
	assert.Nil(t, task)
	assert.True(t, IsKind(err, KindProviderRejection))
	assert.Equal(t, 0, st.Len())
}

func TestSubmitRejectsBeforeAnyRequest(t *testing.T) {
	tests := []struct {
		name string
		req  *GenerationRequest
		kind ErrorKind
	}{
		{"nil", nil, KindValidation},
		{"missing prompt", &GenerationRequest{Modality: ModalityTextToVideo, ModelFamily: catalog.FamilyKling10}, KindValidation},
		{"image modality without image", &GenerationRequest{Modality: ModalityImageToVideo, Prompt: "x", ModelFamily: catalog.FamilyKling10}, KindValidation},
		{"extend through submit", &GenerationRequest{Modality: ModalityVideoExtend, Prompt: "x", ModelFamily: catalog.FamilyKling10, ExtendOfTaskID: "p-1"}, KindValidation},
		{"unknown family", &GenerationRequest{Modality: ModalityTextToVideo, Prompt: "x", ModelFamily: "sora"}, KindUnsupportedCombination},
		{"undeclared tuple", &GenerationRequest{Modality: ModalityTextToVideo, Prompt: "x", ModelFamily: catalog.FamilyKling10, DurationSeconds: 10}, KindUnsupportedCombination},
		{"bad image", &GenerationRequest{Modality: ModalityImageToVideo, Prompt: "x", ModelFamily: catalog.FamilyKling10, InputImages: []Image{{Base64: "!!not base64!!"}}}, KindPayloadEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake(model.ProviderKling)
			c := newTestClient(t, WithAdapters(fake))

			_, err := c.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, model.KindOf(err), err.Error())
			submits, _, _ := fake.counts()
			assert.Zero(t, submits)
		})
	}
}

func TestSubmitUnconfiguredProvider(t *testing.T) {
	c := newTestClient(t, WithAdapters(newFake(model.ProviderKling)))

	req := &GenerationRequest{
		Modality:    ModalityImageToVideo,
		Prompt:      "x",
		ModelFamily: catalog.FamilyRunway,
		AspectRatio: "16:9",
		InputImages: []Image{{Data: []byte("frame"), ContentType: "image/png"}},
	}
	_, err := c.Submit(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnsupportedCombination))
	assert.Contains(t, err.Error(), "provider runway is not configured")
}

func TestPollTerminalIsIdempotent(t *testing.T) {
	ks := newKlingServer(t, "succeed", "https://cdn/video.mp4")
	c := newTestClient(t, WithAdapters(newKlingAdapter(t, ks.URL)))
	ctx := context.Background()

	task, err := c.Submit(ctx, textRequest())
	require.NoError(t, err)
	assert.Equal(t, "/klingai/m2v_txt2video", <-ks.paths)

	done, err := c.Poll(ctx, task.LocalTaskID)
	require.NoError(t, err)
	assert.Equal(t, "/klingai/task/k-1/fetch", <-ks.paths)
	assert.Equal(t, TaskStatusCompleted, done.Status)
	assert.Equal(t, "https://cdn/video.mp4", done.ResultVideoURL)
	assert.Equal(t, "https://cdn/cover.jpg", done.ResultCoverURL)
	require.EqualValues(t, 2, ks.requests.Load())

	first, err := c.Poll(ctx, task.LocalTaskID)
	require.NoError(t, err)
	second, err := c.Poll(ctx, task.LocalTaskID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ks.requests.Load())

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPollUnknownStatusIsProcessing(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ks := newKlingServer(t, "queued_oddly", "https://cdn/video.mp4")
	c := newTestClient(t, WithLogger(zap.New(core)), WithAdapters(newKlingAdapter(t, ks.URL)))
	ctx := context.Background()

	task, err := c.Submit(ctx, textRequest())
	require.NoError(t, err)

	got, err := c.Poll(ctx, task.LocalTaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusProcessing, got.Status)
	assert.Empty(t, got.ResultVideoURL)

	warnings := logs.FilterMessage("unrecognized provider status, treating as processing").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "queued_oddly", warnings[0].ContextMap()["raw_status"])
}

func TestPollTransitions(t *testing.T) {
	tests := []struct {
		name   string
		result *adapters.RawResult
		status TaskStatus
		video  string
		detail string
	}{
		{
			name:   "processing",
			result: &adapters.RawResult{RawStatus: "processing", State: adapters.StateProcessing},
			status: TaskStatusProcessing,
		},
		{
			name:   "completed",
			result: &adapters.RawResult{RawStatus: "succeed", State: adapters.StateSucceeded, VideoURL: "https://cdn/v.mp4"},
			status: TaskStatusCompleted,
			video:  "https://cdn/v.mp4",
		},
		{
			name:   "success without url stays processing",
			result: &adapters.RawResult{RawStatus: "succeed", State: adapters.StateSucceeded},
			status: TaskStatusProcessing,
		},
		{
			name:   "failed with message",
			result: &adapters.RawResult{RawStatus: "failed", State: adapters.StateFailed, Message: "content policy"},
			status: TaskStatusFailed,
			detail: "content policy",
		},
		{
			name:   "failed without message",
			result: &adapters.RawResult{RawStatus: "50", State: adapters.StateFailed},
			status: TaskStatusFailed,
			detail: "provider reported status 50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake(model.ProviderKling)
			fake.results = []*adapters.RawResult{tt.result}
			c := newTestClient(t, WithAdapters(fake))
			ctx := context.Background()

			task, err := c.Submit(ctx, textRequest())
			require.NoError(t, err)

			got, err := c.Poll(ctx, task.LocalTaskID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.video, got.ResultVideoURL)
			assert.Equal(t, tt.detail, got.ErrorDetail)

			stored, err := c.Get(ctx, task.LocalTaskID)
			require.NoError(t, err)
			assert.Equal(t, got, stored)
		})
	}
}

func TestPollFailureLeavesTaskUntouched(t *testing.T) {
	fake := newFake(model.ProviderKling)
	fake.fetchErr = model.NewTransportError(model.ProviderKling, "kling:/klingai/task/p-1/fetch", errors.New("connection reset"))
	c := newTestClient(t, WithAdapters(fake))
	ctx := context.Background()

	task, err := c.Submit(ctx, textRequest())
	require.NoError(t, err)

	_, err = c.Poll(ctx, task.LocalTaskID)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))

	stored, err := c.Get(ctx, task.LocalTaskID)
	require.NoError(t, err)
	assert.Equal(t, task, stored)
}

func TestPollUnknownTask(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Poll(context.Background(), "nope")
	assert.True(t, IsKind(err, KindNotFound))
}

// seed stores a task directly, bypassing the provider.
func seed(t *testing.T, st TaskStore, provider model.Provider, family string, status model.Status) *model.Task {
	t.Helper()
	task := &model.Task{
		LocalTaskID:    "src-" + string(provider) + "-" + string(status),
		ProviderTaskID: "prov-src",
		Provider:       provider,
		ModelFamily:    family,
		Modality:       model.ModalityTextToVideo,
		Status:         status,
		CreatedAt:      fixedNow,
		UpdatedAt:      fixedNow,
	}
	if status == model.StatusCompleted {
		task.ResultVideoURL = "https://cdn/src.mp4"
	}
	require.NoError(t, st.Create(context.Background(), task))
	return task
}

func TestExtendProcessingTaskMakesNoRequest(t *testing.T) {
	ks := newKlingServer(t, "processing", "")
	st := memory.New()
	c := newTestClient(t, WithStore(st), WithAdapters(newKlingAdapter(t, ks.URL)))
	src := seed(t, st, model.ProviderKling, catalog.FamilyKling10, model.StatusProcessing)

	_, err := c.Extend(context.Background(), src.LocalTaskID, "keep running", ExtendOptions{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidExtendSource))
	assert.EqualValues(t, 0, ks.requests.Load())
	assert.Equal(t, 1, st.Len())
}

func TestExtendCompletedTask(t *testing.T) {
	fake := newFake(model.ProviderKling)
	st := memory.New()
	c := newTestClient(t, WithStore(st), WithAdapters(fake))
	src := seed(t, st, model.ProviderKling, catalog.FamilyKling16, model.StatusCompleted)

	task, err := c.Extend(context.Background(), src.LocalTaskID, "the cat jumps", ExtendOptions{NegativePrompt: "blur"})
	require.NoError(t, err)
	assert.Equal(t, TaskStatusSubmitted, task.Status)
	assert.Equal(t, ModalityVideoExtend, task.Modality)
	assert.Equal(t, catalog.FamilyKling16, task.ModelFamily)
	assert.NotEqual(t, src.LocalTaskID, task.LocalTaskID)

	require.Len(t, fake.endpoints, 1)
	assert.Equal(t, "/klingai/m2v_extend_video", fake.endpoints[0].Path)

	decoded, err := payload.Decode(fake.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, "prov-src", decoded.Fields["task_id"])
	assert.Equal(t, "the cat jumps", decoded.Fields["prompt"])
	assert.Equal(t, "blur", decoded.Fields["negative_prompt"])
}

func TestExtendRejections(t *testing.T) {
	tests := []struct {
		name     string
		provider model.Provider
		family   string
		status   model.Status
	}{
		{"failed source", model.ProviderKling, catalog.FamilyKling10, model.StatusFailed},
		{"submitted source", model.ProviderKling, catalog.FamilyKling10, model.StatusSubmitted},
		{"provider without extend", model.ProviderRunway, catalog.FamilyRunway, model.StatusCompleted},
		{"family without extend row", model.ProviderDeer, catalog.FamilyDeerKlingV1, model.StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake(tt.provider)
			st := memory.New()
			c := newTestClient(t, WithStore(st), WithAdapters(fake))
			src := seed(t, st, tt.provider, tt.family, tt.status)

			_, err := c.Extend(context.Background(), src.LocalTaskID, "more", ExtendOptions{})
			require.Error(t, err)
			assert.True(t, IsKind(err, KindInvalidExtendSource), err.Error())
			submits, _, _ := fake.counts()
			assert.Zero(t, submits)
		})
	}
}

func TestExtendUnknownTask(t *testing.T) {
	c := newTestClient(t, WithAdapters(newFake(model.ProviderKling)))
	_, err := c.Extend(context.Background(), "nope", "more", ExtendOptions{})
	assert.True(t, IsKind(err, KindNotFound))
}

func TestCheckStatusPersistsNothing(t *testing.T) {
	fake := newFake(model.ProviderKling)
	fake.status = &adapters.RawStatus{RawStatus: "succeed", State: adapters.StateSucceeded}
	c := newTestClient(t, WithAdapters(fake))
	ctx := context.Background()

	task, err := c.Submit(ctx, textRequest())
	require.NoError(t, err)

	status, err := c.CheckStatus(ctx, task.LocalTaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, status)

	stored, err := c.Get(ctx, task.LocalTaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusSubmitted, stored.Status)
	_, fetches, checks := fake.counts()
	assert.Equal(t, 1, checks)
	assert.Zero(t, fetches)
}

func TestWaitForCompletion(t *testing.T) {
	fake := newFake(model.ProviderKling)
	fake.results = []*adapters.RawResult{
		{RawStatus: "submitted", State: adapters.StateProcessing},
		{RawStatus: "processing", State: adapters.StateProcessing},
		{RawStatus: "succeed", State: adapters.StateSucceeded, VideoURL: "https://cdn/v.mp4"},
	}
	c := newTestClient(t, WithAdapters(fake))
	ctx := context.Background()

	task, err := c.Submit(ctx, textRequest())
	require.NoError(t, err)

	done, err := c.WaitForCompletion(ctx, task.LocalTaskID, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, done.Status)
	_, fetches, _ := fake.counts()
	assert.Equal(t, 3, fetches)
}

func TestWaitForCompletionStopsOnCancel(t *testing.T) {
	fake := newFake(model.ProviderKling)
	c := newTestClient(t, WithAdapters(fake))

	task, err := c.Submit(context.Background(), textRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.WaitForCompletion(ctx, task.LocalTaskID, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// countingStore counts Get calls so a test can tell when pollers are in flight.
type countingStore struct {
	*memory.Store
	gets atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, id string) (*model.Task, error) {
	defer s.gets.Add(1)
	return s.Store.Get(ctx, id)
}

func TestPollLocalSerialization(t *testing.T) {
	fake := newFake(model.ProviderKling)
	st := &countingStore{Store: memory.New()}
	c := newTestClient(t,
		WithStore(st),
		WithAdapters(fake),
		WithPollSerialization(config.PollSerializationLocal),
	)
	ctx := context.Background()

	task, err := c.Submit(ctx, textRequest())
	require.NoError(t, err)

	fake.block = make(chan struct{})
	const pollers = 5
	var wg sync.WaitGroup
	results := make([]*Task, pollers)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.Poll(ctx, task.LocalTaskID)
			if assert.NoError(t, err) {
				results[i] = got
			}
		}(i)
	}

	require.Eventually(t, func() bool { return st.gets.Load() == pollers }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(fake.block)
	wg.Wait()

	_, fetches, _ := fake.counts()
	assert.Equal(t, 1, fetches)
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, TaskStatusProcessing, r.Status)
	}
	results[0].Status = TaskStatusFailed
	assert.Equal(t, TaskStatusProcessing, results[1].Status)
}

func TestPollLocalSerializationSurvivesLeaderCancel(t *testing.T) {
	fake := newFake(model.ProviderKling)
	fake.ctxAware = true
	st := &countingStore{Store: memory.New()}
	c := newTestClient(t,
		WithStore(st),
		WithAdapters(fake),
		WithPollSerialization(config.PollSerializationLocal),
	)

	task, err := c.Submit(context.Background(), textRequest())
	require.NoError(t, err)

	fake.block = make(chan struct{})
	fake.entered = make(chan struct{}, 1)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Poll(leaderCtx, task.LocalTaskID)
		leaderErr <- err
	}()
	<-fake.entered

	type result struct {
		task *Task
		err  error
	}
	follower := make(chan result, 1)
	go func() {
		got, err := c.Poll(context.Background(), task.LocalTaskID)
		follower <- result{got, err}
	}()
	require.Eventually(t, func() bool { return st.gets.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled poll did not return while the provider call was in flight")
	}

	close(fake.block)
	res := <-follower
	require.NoError(t, res.err)
	assert.Equal(t, TaskStatusProcessing, res.task.Status)

	stored, err := c.Get(context.Background(), task.LocalTaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusProcessing, stored.Status)
	_, fetches, _ := fake.counts()
	assert.Equal(t, 1, fetches)
}

func TestPollRedisSerialization(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()
	locker := redisstore.NewLocker(rc, "")

	fake := newFake(model.ProviderKling)
	c := newTestClient(t,
		WithAdapters(fake),
		WithPollSerialization(config.PollSerializationRedis),
		WithLocker(locker),
	)
	ctx := context.Background()

	task, err := c.Submit(ctx, textRequest())
	require.NoError(t, err)

	unlock, ok, err := locker.TryLock(ctx, task.LocalTaskID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := c.Poll(ctx, task.LocalTaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusSubmitted, got.Status)
	_, fetches, _ := fake.counts()
	assert.Zero(t, fetches)

	unlock()
	got, err = c.Poll(ctx, task.LocalTaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusProcessing, got.Status)
	_, fetches, _ = fake.counts()
	assert.Equal(t, 1, fetches)

	// the poll released its own lock
	_, ok, err = locker.TryLock(ctx, task.LocalTaskID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewClientOptions(t *testing.T) {
	_, err := NewClient(WithPollSerialization(config.PollSerializationRedis))
	assert.ErrorIs(t, err, ErrNoLocker)

	_, err = NewClient(WithPollSerialization("everywhere"))
	assert.Error(t, err)

	c, err := NewClient(WithAdapters(newFake(model.ProviderDeer), newFake(model.ProviderKling)))
	require.NoError(t, err)
	assert.Equal(t, []model.Provider{model.ProviderKling, model.ProviderDeer}, c.Providers())
	assert.Equal(t, catalog.Default(), c.Catalog())
}

func TestBreakerOpensOnTransportFailures(t *testing.T) {
	fake := newFake(model.ProviderKling)
	c := newTestClient(t,
		WithAdapters(fake),
		WithBreaker(config.BreakerConfig{Enabled: true, FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}),
	)
	ctx := context.Background()

	task, err := c.Submit(ctx, textRequest())
	require.NoError(t, err)

	fake.mu.Lock()
	fake.fetchErr = model.NewTransportError(model.ProviderKling, "kling:/fetch", errors.New("timeout"))
	fake.mu.Unlock()

	for i := 0; i < 2; i++ {
		_, err := c.Poll(ctx, task.LocalTaskID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrProviderUnavailable)
	}

	_, err = c.Poll(ctx, task.LocalTaskID)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	_, fetches, _ := fake.counts()
	assert.Equal(t, 2, fetches)
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	reg := prometheus.NewRegistry()
	fake := newFake(model.ProviderKling)
	fake.ctxAware = true
	c := newTestClient(t,
		WithAdapters(fake),
		WithMetrics("test", reg),
		WithBreaker(config.BreakerConfig{Enabled: true, FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}),
	)

	task, err := c.Submit(context.Background(), textRequest())
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		_, err := c.Poll(cancelled, task.LocalTaskID)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrProviderUnavailable)
	}

	got, err := c.Poll(context.Background(), task.LocalTaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusProcessing, got.Status)
	_, fetches, _ := fake.counts()
	assert.Equal(t, 4, fetches)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.metrics.ProviderRequestsTotal.WithLabelValues("kling", "fetch", "canceled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.ProviderRequestsTotal.WithLabelValues("kling", "fetch", "success")))
}

func TestBreakerIgnoresBusinessRejections(t *testing.T) {
	fake := newFake(model.ProviderKling)
	fake.submitErr = model.NewProviderRejectionError(model.ProviderKling, "kling:/x", 400, nil, "bad prompt")
	c := newTestClient(t,
		WithAdapters(fake),
		WithBreaker(config.BreakerConfig{Enabled: true, FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}),
	)

	for i := 0; i < 3; i++ {
		_, err := c.Submit(context.Background(), textRequest())
		assert.True(t, IsKind(err, KindProviderRejection))
	}
	submits, _, _ := fake.counts()
	assert.Equal(t, 3, submits)
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	fake := newFake(model.ProviderKling)
	fake.results = []*adapters.RawResult{{RawStatus: "succeed", State: adapters.StateSucceeded, VideoURL: "https://cdn/v.mp4"}}
	c := newTestClient(t, WithAdapters(fake), WithMetrics("test", reg))
	ctx := context.Background()

	task, err := c.Submit(ctx, textRequest())
	require.NoError(t, err)
	_, err = c.Poll(ctx, task.LocalTaskID)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.TaskTransitionsTotal.WithLabelValues("kling", "SUBMITTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.TaskTransitionsTotal.WithLabelValues("kling", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.ProviderRequestsTotal.WithLabelValues("kling", "submit", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.ProviderRequestsTotal.WithLabelValues("kling", "fetch", "success")))
}

func TestProviderCallOutcomes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "success"},
		{"rejection", model.NewProviderRejectionError(model.ProviderKling, "kling:/x", 400, nil, ""), "rejected"},
		{"transport", model.NewTransportError(model.ProviderKling, "kling:/x", errors.New("reset")), "transport_error"},
		{"untyped", errors.New("boom"), "transport_error"},
		{"configuration", model.NewConfigurationError(model.ProviderKling, "kling:/x", errors.New("bad key")), "local_error"},
		{"encoding", model.NewPayloadEncodingError("image", "kling:/x", errors.New("bad image")), "local_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcome(tt.err))
		})
	}

	assert.True(t, countsAsHealthy(model.NewConfigurationError(model.ProviderKling, "kling:/x", errors.New("bad key"))))
	assert.False(t, countsAsHealthy(model.NewTransportError(model.ProviderKling, "kling:/x", errors.New("reset"))))
	assert.False(t, countsAsHealthy(model.NewProviderRejectionError(model.ProviderKling, "kling:/x", 502, nil, "")))
	assert.True(t, countsAsHealthy(&abandonedError{err: model.NewTransportError(model.ProviderKling, "kling:/x", context.Canceled)}))
}

func TestSubmitLogsDecodedPayloadAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fake := newFake(model.ProviderKling)
	c := newTestClient(t, WithAdapters(fake), WithLogger(zap.New(core)))

	_, err := c.Submit(context.Background(), textRequest())
	require.NoError(t, err)

	entries := logs.FilterMessage("built payload").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Contains(t, fields["payload"], "a cat runs")
	assert.Contains(t, fields["endpoint"], "kling")

	core, logs = observer.New(zapcore.InfoLevel)
	c = newTestClient(t, WithAdapters(newFake(model.ProviderKling)), WithLogger(zap.New(core)))
	_, err = c.Submit(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessage("built payload").Len())
}
