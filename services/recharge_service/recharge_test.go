package recharge_service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/pkg/cache"
	"adrecharge-admin/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testRequest() Request {
	return Request{
		DepositID:         7,
		ApplyNo:           "DP20260101ABCDEF01",
		Attempt:           2,
		Platform:          dm.PlatformMeta,
		ExternalAccountID: "act_100",
		Amount:            decimal.RequireFromString("100"),
	}
}

func directAdapter(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *DirectAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewDirectAdapter(srv.Client(), map[dm.Platform]config.PlatformEndpoint{
		dm.PlatformMeta: {BaseURL: srv.URL, Token: "tkn"},
	}, timeout, 0, nil)
}

func TestDirectAdapter(t *testing.T) {
	t.Run("ok, completed", func(t *testing.T) {
		var got directRequest
		a := directAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/accounts/act_100/recharge", r.URL.Path)
			require.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
			require.Equal(t, "DP20260101ABCDEF01-2", r.Header.Get("Idempotency-Key"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"success":true,"balance":"350.00"}`))
		}, time.Second)

		out, err := a.Recharge(t.Context(), testRequest())
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, out.Status)
		require.Equal(t, "100.00", got.Amount)
		require.NotNil(t, out.ExternalBalance)
		require.Equal(t, "350", out.ExternalBalance.String())
	})

	t.Run("fail, rejected by platform", func(t *testing.T) {
		a := directAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"message":"account suspended"}`))
		}, time.Second)

		_, err := a.Recharge(t.Context(), testRequest())
		require.ErrorIs(t, err, ErrAdapterRejected)
		require.Contains(t, err.Error(), "account suspended")
	})

	t.Run("fail, non 2xx", func(t *testing.T) {
		a := directAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, time.Second)

		_, err := a.Recharge(t.Context(), testRequest())
		require.ErrorIs(t, err, ErrAdapterRejected)
	})

	t.Run("fail, timeout", func(t *testing.T) {
		release := make(chan struct{})
		a := directAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}, 50*time.Millisecond)
		defer close(release)

		_, err := a.Recharge(t.Context(), testRequest())
		require.ErrorIs(t, err, ErrAdapterTimeout)

		var ae *AdapterError
		require.ErrorAs(t, err, &ae)
		require.Equal(t, KindTimeout, ae.Kind)
	})

	t.Run("fail, platform not configured", func(t *testing.T) {
		a := NewDirectAdapter(nil, nil, time.Second, 0, nil)
		_, err := a.Recharge(t.Context(), testRequest())
		require.ErrorIs(t, err, ErrAdapterRejected)
	})
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []AgentTask
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, task AgentTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func TestAgentAdapter(t *testing.T) {
	q := &fakeQueue{}
	a := NewAgentAdapter(q, nil)

	out, err := a.Recharge(t.Context(), testRequest())
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, out.Status)
	require.Len(t, q.tasks, 1)
	require.Equal(t, 7, q.tasks[0].DepositID)
	require.Equal(t, 2, q.tasks[0].Attempt)
	require.Equal(t, "100.00", q.tasks[0].Amount)
	require.Equal(t, out.Reference, q.tasks[0].TaskID)

	q.err = errors.New("channel closed")
	_, err = a.Recharge(t.Context(), testRequest())
	require.ErrorIs(t, err, ErrQueueRejected)
}

func TestManualAdapter(t *testing.T) {
	out, err := ManualAdapter{}.Recharge(t.Context(), testRequest())
	require.NoError(t, err)
	require.Equal(t, OutcomeManual, out.Status)
}

type fakeDirectory struct {
	mu     sync.Mutex
	calls  map[dm.Platform]int
	direct map[string]bool
	fail   map[dm.Platform]error
	delay  time.Duration
}

func (f *fakeDirectory) LookupDirect(ctx context.Context, platform dm.Platform, ids []string) (map[string]bool, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[dm.Platform]int{}
	}
	f.calls[platform]++
	err := f.fail[platform]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, id := range ids {
		if f.direct[id] {
			out[id] = true
		}
	}
	return out, nil
}

func accounts() []*dm.AdAccount {
	return []*dm.AdAccount{
		{ID: 1, Platform: dm.PlatformMeta, ExternalID: "m1"},
		{ID: 2, Platform: dm.PlatformMeta, ExternalID: "m2", AutomationEnabled: true},
		{ID: 3, Platform: dm.PlatformGoogle, ExternalID: "g1"},
		{ID: 4, Platform: dm.PlatformGoogle, ExternalID: "g2", AutomationEnabled: true},
	}
}

func TestClassifier(t *testing.T) {
	t.Run("ok, one lookup per platform", func(t *testing.T) {
		dir := &fakeDirectory{direct: map[string]bool{"m1": true, "g2": true}}
		c := NewClassifier(dir, nil, time.Second, time.Minute, nil)

		got := c.Classify(t.Context(), accounts())
		require.Equal(t, map[int]dm.RechargeMethod{
			1: dm.MethodDirect,
			2: dm.MethodAgent,
			3: dm.MethodManual,
			4: dm.MethodDirect,
		}, got)
		require.Equal(t, map[dm.Platform]int{dm.PlatformMeta: 1, dm.PlatformGoogle: 1}, dir.calls)
	})

	t.Run("ok, failed platform degrades to manual", func(t *testing.T) {
		dir := &fakeDirectory{
			direct: map[string]bool{"g2": true},
			fail:   map[dm.Platform]error{dm.PlatformMeta: errors.New("503")},
		}
		c := NewClassifier(dir, nil, time.Second, time.Minute, nil)

		got := c.Classify(t.Context(), accounts())
		require.Equal(t, dm.MethodManual, got[1])
		require.Equal(t, dm.MethodManual, got[2], "automation does not rescue a failed lookup")
		require.Equal(t, dm.MethodManual, got[3])
		require.Equal(t, dm.MethodDirect, got[4])
	})

	t.Run("ok, timeout degrades to manual", func(t *testing.T) {
		dir := &fakeDirectory{direct: map[string]bool{"m1": true}, delay: time.Second}
		c := NewClassifier(dir, nil, 20*time.Millisecond, time.Minute, nil)

		start := time.Now()
		got := c.Classify(t.Context(), accounts())
		require.Less(t, time.Since(start), 500*time.Millisecond)
		for _, m := range got {
			require.Equal(t, dm.MethodManual, m)
		}
	})

	t.Run("ok, cached results skip lookup", func(t *testing.T) {
		cm := cache.NewCacheManager(nil)
		t.Cleanup(cm.Close)
		dir := &fakeDirectory{direct: map[string]bool{"m1": true}}
		c := NewClassifier(dir, cm, time.Second, time.Minute, nil)

		first := c.Classify(t.Context(), accounts())
		second := c.Classify(t.Context(), accounts())
		require.Equal(t, first, second)
		require.Equal(t, 1, dir.calls[dm.PlatformMeta])

		c.Forget(t.Context(), accounts()[0])
		c.Classify(t.Context(), accounts())
		require.Equal(t, 2, dir.calls[dm.PlatformMeta])
	})

	t.Run("ok, no directory means no direct", func(t *testing.T) {
		c := NewClassifier(nil, nil, time.Second, time.Minute, nil)
		got := c.Classify(t.Context(), accounts())
		require.Equal(t, dm.MethodManual, got[1])
		require.Equal(t, dm.MethodAgent, got[2])
	})
}

func TestHTTPDirectoryClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/directory/lookup", r.URL.Path)
		var req lookupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"a", "b"}, req.AccountIDs)
		_, _ = w.Write([]byte(`{"direct":["b"]}`))
	}))
	t.Cleanup(srv.Close)

	client := NewHTTPDirectoryClient(srv.Client(), map[dm.Platform]config.PlatformEndpoint{
		dm.PlatformTikTok: {DirectoryURL: srv.URL},
	})
	got, err := client.LookupDirect(t.Context(), dm.PlatformTikTok, []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"b": true}, got)

	got, err = client.LookupDirect(t.Context(), dm.PlatformSnapchat, []string{"x"})
	require.NoError(t, err)
	require.Empty(t, got)
}
