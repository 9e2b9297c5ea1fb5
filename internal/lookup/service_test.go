package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/faxpilot/faxpilot-backend/pkg/logger"
	redispkg "github.com/faxpilot/faxpilot-backend/pkg/redis"
	"github.com/faxpilot/faxpilot-backend/pkg/telnyx"
)

type fakeKV struct {
	data     map[string]string
	getCalls int
	setCalls int
	getErr   error
	setErr   error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.getCalls++
	if f.getErr != nil {
		return "", f.getErr
	}
	value, ok := f.data[key]
	if !ok {
		return "", redispkg.Nil
	}
	return value, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value.(string)
	return nil
}

func (f *fakeKV) LookupKey(number string) string {
	return "fp:lookup:" + number
}

type fakeClient struct {
	result *telnyx.NumberLookupResult
	err    error
	calls  int
}

func (f *fakeClient) NumberLookup(_ context.Context, _ string) (*telnyx.NumberLookupResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "lookup-test", Output: io.Discard})
}

func newTestService(t *testing.T, client NumberLookupClient, kv redispkg.KVStore) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Client:        client,
		Cache:         kv,
		Logger:        testLogger(),
		CacheTTL:      time.Hour,
		LocalCacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestLookupMissThenLocalHit(t *testing.T) {
	kv := newFakeKV()
	client := &fakeClient{result: &telnyx.NumberLookupResult{
		PhoneNumber: "+12125551234",
		CountryCode: "US",
		Ported:      true,
		LRN:         "9195550100",
	}}
	svc := newTestService(t, client, kv)

	first, err := svc.Lookup(context.Background(), "+12125551234")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if first.CountryCode != "US" || first.LRN != "9195550100" {
		t.Fatalf("unexpected result %+v", first)
	}
	if client.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", client.calls)
	}
	if kv.setCalls != 1 {
		t.Fatalf("expected shared cache write, got %d", kv.setCalls)
	}

	// Second lookup is served from the in-process tier: no provider call,
	// no shared-cache read.
	readsBefore := kv.getCalls
	second, err := svc.Lookup(context.Background(), "+12125551234")
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if second.LRN != first.LRN {
		t.Fatalf("cached result diverged: %+v", second)
	}
	if client.calls != 1 {
		t.Fatalf("expected cached hit, provider called %d times", client.calls)
	}
	if kv.getCalls != readsBefore {
		t.Fatalf("expected no shared cache read on local hit")
	}
}

func TestLookupSharedCacheHit(t *testing.T) {
	kv := newFakeKV()
	seeded := Result{PhoneNumber: "+12125551234", CountryCode: "US", LRN: "9195550100"}
	payload, _ := json.Marshal(seeded)
	kv.data["fp:lookup:12125551234"] = string(payload)

	client := &fakeClient{err: errors.New("provider must not be called")}
	svc := newTestService(t, client, kv)

	result, err := svc.Lookup(context.Background(), "+12125551234")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if result.LRN != "9195550100" {
		t.Fatalf("unexpected result %+v", result)
	}
	if client.calls != 0 {
		t.Fatalf("provider called on shared cache hit")
	}
}

func TestLookupProviderErrorPropagates(t *testing.T) {
	kv := newFakeKV()
	client := &fakeClient{err: errors.New("upstream 500")}
	svc := newTestService(t, client, kv)

	if _, err := svc.Lookup(context.Background(), "+12125551234"); err == nil {
		t.Fatal("expected provider error")
	}
}

func TestLookupWithoutClientFails(t *testing.T) {
	svc := newTestService(t, nil, newFakeKV())
	if _, err := svc.Lookup(context.Background(), "+12125551234"); err == nil {
		t.Fatal("expected dependency error when no client configured")
	}
}

func TestLookupCacheWriteFailureIsBestEffort(t *testing.T) {
	kv := newFakeKV()
	kv.setErr = errors.New("redis down")
	client := &fakeClient{result: &telnyx.NumberLookupResult{PhoneNumber: "+12125551234", CountryCode: "US"}}
	svc := newTestService(t, client, kv)

	result, err := svc.Lookup(context.Background(), "+12125551234")
	if err != nil {
		t.Fatalf("lookup should survive cache write failure: %v", err)
	}
	if result.CountryCode != "US" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestLookupCacheReadFailureFallsThrough(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("redis down")
	client := &fakeClient{result: &telnyx.NumberLookupResult{PhoneNumber: "+12125551234", CountryCode: "US"}}
	svc := newTestService(t, client, kv)

	if _, err := svc.Lookup(context.Background(), "+12125551234"); err != nil {
		t.Fatalf("lookup should survive cache read failure: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected provider call, got %d", client.calls)
	}
}

func TestLookupRejectsBlankNumber(t *testing.T) {
	svc := newTestService(t, &fakeClient{}, newFakeKV())
	if _, err := svc.Lookup(context.Background(), "  "); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLocalCacheExpiry(t *testing.T) {
	cache := newLocalCache(time.Minute)
	base := time.Now()
	cache.now = func() time.Time { return base }

	cache.set("k", Result{CountryCode: "US"})
	if _, ok := cache.get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	cache.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := cache.get("k"); ok {
		t.Fatal("expected miss after expiry")
	}
}
