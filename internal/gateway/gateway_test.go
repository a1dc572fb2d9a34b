package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimitra/advisor/internal/backend"
	"github.com/agrimitra/advisor/internal/conversation"
	"github.com/agrimitra/advisor/internal/credentials"
	"github.com/agrimitra/advisor/internal/gateway"
	"github.com/agrimitra/advisor/internal/prompts"
)

// scriptedBackend answers per credential. Credentials in failing always
// error; everything else echoes "ok:<cred>".
type scriptedBackend struct {
	mu      sync.Mutex
	failing map[string]error
	calls   []string
	prompts []string
	invoked atomic.Int64
}

func (b *scriptedBackend) Bind(_ context.Context, cred string) (backend.Session, error) {
	return &scriptedSession{b: b, cred: cred}, nil
}

type scriptedSession struct {
	b    *scriptedBackend
	cred string
}

func (s *scriptedSession) Generate(_ context.Context, prompt string) (string, error) {
	s.b.invoked.Add(1)
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.calls = append(s.b.calls, s.cred)
	s.b.prompts = append(s.b.prompts, prompt)
	if err, ok := s.b.failing[s.cred]; ok {
		return "", err
	}
	return "ok:" + s.cred, nil
}

func newGateway(t *testing.T, keys []string, b backend.Binder) (*gateway.Gateway, *credentials.Pool) {
	t.Helper()
	pool := credentials.NewPool("test", keys, b)
	gw := gateway.New(context.Background(), pool, gateway.Options{Domain: "test"})
	return gw, pool
}

func keys(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("k%d", i)
	}
	return out
}

func TestGenerate_AttemptBound(t *testing.T) {
	for n := 1; n <= 6; n++ {
		b := &scriptedBackend{failing: map[string]error{}}
		for _, k := range keys(n) {
			b.failing[k] = errors.New("quota exceeded for " + k)
		}
		gw, _ := newGateway(t, keys(n), b)

		_, err := gw.Generate(context.Background(), "prompt")

		var exhausted *gateway.ExhaustedError
		require.ErrorAs(t, err, &exhausted, "n=%d", n)
		assert.Equal(t, n, exhausted.Attempts)
		assert.EqualValues(t, n, b.invoked.Load(), "at most poolSize invocations")
		assert.Contains(t, exhausted.Err.Error(), fmt.Sprintf("k%d", n-1), "carries the last error")
	}
}

func TestGenerate_EachKeyTriedOnce(t *testing.T) {
	b := &scriptedBackend{failing: map[string]error{
		"k0": errors.New("a"), "k1": errors.New("b"), "k2": errors.New("c"),
	}}
	gw, pool := newGateway(t, keys(3), b)

	_, err := gw.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, []string{"k0", "k1", "k2"}, b.calls)
	assert.Equal(t, 0, pool.Index(), "a full cycle returns to the start")
}

func TestGenerate_ThirdKeySucceeds(t *testing.T) {
	b := &scriptedBackend{failing: map[string]error{
		"k0": errors.New("429"), "k1": errors.New("timeout"),
	}}
	gw, pool := newGateway(t, keys(3), b)

	out, err := gw.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok:k2", out)
	assert.Equal(t, 2, pool.Index())
}

func TestGenerate_IdempotentSuccess(t *testing.T) {
	b := &scriptedBackend{}
	gw, pool := newGateway(t, keys(3), b)

	first, err := gw.Generate(context.Background(), "same prompt")
	require.NoError(t, err)
	second, err := gw.Generate(context.Background(), "same prompt")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 2, b.invoked.Load(), "two independent invocations")
	assert.Equal(t, 0, pool.Index())
}

func TestGenerate_EmptyPoolIsInactive(t *testing.T) {
	b := &scriptedBackend{}
	gw, _ := newGateway(t, nil, b)

	_, err := gw.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, gateway.ErrGatewayInactive)
	assert.Zero(t, b.invoked.Load())
	assert.False(t, gw.Active())
}

type rejectAllBinder struct{ binds atomic.Int64 }

func (b *rejectAllBinder) Bind(context.Context, string) (backend.Session, error) {
	b.binds.Add(1)
	return nil, errors.New("invalid key")
}

func TestGenerate_PermanentlyFailedPoolIsInactive(t *testing.T) {
	b := &rejectAllBinder{}
	gw, _ := newGateway(t, keys(3), b)
	require.EqualValues(t, 3, b.binds.Load())

	_, err := gw.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, gateway.ErrGatewayInactive)
	assert.EqualValues(t, 3, b.binds.Load(), "no further binding attempts")
}

func TestGenerateFunc_RejectedOutputRetries(t *testing.T) {
	b := &scriptedBackend{}
	gw, pool := newGateway(t, keys(3), b)

	calls := 0
	out, err := gw.GenerateFunc(context.Background(), "p", func(text string) error {
		calls++
		if text != "ok:k1" {
			return errors.New("malformed")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok:k1", out)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, pool.Index())
}

func TestGenerate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &cancelingBackend{cancel: cancel}
	gw, pool := newGateway(t, keys(3), b)

	_, err := gw.Generate(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, pool.Index(), "cancellation is not the key's fault")
}

type cancelingBackend struct{ cancel context.CancelFunc }

func (b *cancelingBackend) Bind(context.Context, string) (backend.Session, error) {
	return b, nil
}

func (b *cancelingBackend) Generate(ctx context.Context, _ string) (string, error) {
	b.cancel()
	return "", ctx.Err()
}

func TestGenerate_RetryDelay(t *testing.T) {
	b := &scriptedBackend{failing: map[string]error{"k0": errors.New("x")}}
	pool := credentials.NewPool("delay", keys(2), b)
	gw := gateway.New(context.Background(), pool, gateway.Options{Domain: "delay", RetryDelay: 20 * time.Millisecond})

	start := time.Now()
	out, err := gw.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok:k1", out)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

// blockingBackend holds every call until release is closed.
type blockingBackend struct {
	inFlight atomic.Int64
	peak     atomic.Int64
	release  chan struct{}
}

func (b *blockingBackend) Bind(context.Context, string) (backend.Session, error) { return b, nil }

func (b *blockingBackend) Generate(context.Context, string) (string, error) {
	n := b.inFlight.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-b.release
	b.inFlight.Add(-1)
	return "done", nil
}

func TestGenerate_MaxInFlight(t *testing.T) {
	b := &blockingBackend{release: make(chan struct{})}
	pool := credentials.NewPool("sem", keys(1), b)
	gw := gateway.New(context.Background(), pool, gateway.Options{Domain: "sem", MaxInFlight: 2})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = gw.Generate(context.Background(), "p")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(b.release)
	wg.Wait()

	assert.LessOrEqual(t, b.peak.Load(), int64(2))
}

func TestGenerate_ConcurrentFailuresRotateOncePerKey(t *testing.T) {
	b := &scriptedBackend{failing: map[string]error{"k0": errors.New("quota")}}
	gw, pool := newGateway(t, keys(4), b)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := gw.Generate(context.Background(), "p")
			assert.NoError(t, err)
			assert.Equal(t, "ok:k1", out)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, pool.Index())
}

func TestAdvisor_GenerateResponse(t *testing.T) {
	b := &scriptedBackend{}
	gw, _ := newGateway(t, keys(1), b)
	adv := gateway.NewAdvisor(gw, prompts.CropTemplate{})

	history := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "Which crop?"},
		{Role: "model", Content: "Rice."},
	}
	reply := adv.GenerateResponse(context.Background(), "Why rice?",
		prompts.DomainContext{"recommended_crop": "rice", "confidence": "91%"}, history)

	assert.Equal(t, "ok:k0", reply, "raw text returned unmodified")
	require.Len(t, b.prompts, 1)
	p := b.prompts[0]
	assert.True(t, strings.HasSuffix(p, "User: Which crop?\nAssistant: Rice.\nUser: Why rice?\nAssistant:"))
	assert.Contains(t, p, "- Crop: rice")
	assert.NotContains(t, p, "consult a local agricultural officer")
}

func TestAdvisor_InactiveMessage(t *testing.T) {
	b := &scriptedBackend{}
	gw, _ := newGateway(t, nil, b)
	adv := gateway.NewAdvisor(gw, prompts.DiseaseTemplate{})

	reply := adv.GenerateResponse(context.Background(), "hi", nil, nil)
	assert.Equal(t, gateway.InactiveMessage, reply)
	assert.Zero(t, b.invoked.Load())
}

func TestAdvisor_ExhaustedMessage(t *testing.T) {
	b := &scriptedBackend{failing: map[string]error{"k0": errors.New("403 API key invalid")}}
	gw, _ := newGateway(t, keys(1), b)
	adv := gateway.NewAdvisor(gw, prompts.SoilTemplate{})

	reply := adv.GenerateResponse(context.Background(), "hi", nil, nil)
	assert.Equal(t, "I am having trouble connecting to the knowledge base. All keys exhausted. Error: 403 API key invalid", reply)
}
