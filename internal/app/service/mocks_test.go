package service

import (
	"context"
	"sync"
	"time"

	"github.com/sifan077/PowerLink/internal/app/cache"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
)

// fakeRepo is an in-memory LinkRepository that enforces code uniqueness the
// way the real store's constraint does.
type fakeRepo struct {
	mu    sync.Mutex
	links map[string]*model.Link

	createErr     error
	dupRemaining  int // fail this many Creates with ErrDuplicateCode first
	getErr        error
	getCalls      int
	deletedCodes  []string
	listCodesErr  error
	listCodeCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{links: map[string]*model.Link{}}
}

func (f *fakeRepo) Create(ctx context.Context, link *model.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.dupRemaining > 0 {
		f.dupRemaining--
		return repository.ErrDuplicateCode
	}
	if _, ok := f.links[link.Code]; ok {
		return repository.ErrDuplicateCode
	}
	link.CreatedAt = time.Now()
	cp := *link
	f.links[link.Code] = &cp
	return nil
}

func (f *fakeRepo) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	link, ok := f.links[code]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (f *fakeRepo) Exists(ctx context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.links[code]
	return ok, nil
}

func (f *fakeRepo) ListCodes(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCodeCalls++
	if f.listCodesErr != nil {
		return nil, f.listCodesErr
	}
	codes := make([]string, 0, len(f.links))
	for code := range f.links {
		codes = append(codes, code)
	}
	return codes, nil
}

func (f *fakeRepo) ListExpired(ctx context.Context, now time.Time) ([]model.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []model.Link
	for _, link := range f.links {
		if link.ExpiresAt != nil && link.ExpiresAt.Before(now) {
			result = append(result, *link)
		}
	}
	return result, nil
}

func (f *fakeRepo) FilterExisting(ctx context.Context, codes []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var existing []string
	for _, code := range codes {
		if _, ok := f.links[code]; ok {
			existing = append(existing, code)
		}
	}
	return existing, nil
}

func (f *fakeRepo) DeleteByCodes(ctx context.Context, codes []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for _, code := range codes {
		if _, ok := f.links[code]; ok {
			delete(f.links, code)
			f.deletedCodes = append(f.deletedCodes, code)
			deleted++
		}
	}
	return deleted, nil
}

// fakeCache is an in-memory LinkCache with injectable failures.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	ttls    map[string]time.Duration

	getErr error
	setErr error
	delErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCache) Get(ctx context.Context, code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.entries[code]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (f *fakeCache) Set(ctx context.Context, code, destination string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[code] = destination
	f.ttls[code] = ttl
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.entries, code)
	delete(f.ttls, code)
	return nil
}

func (f *fakeCache) has(code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[code]
	return ok
}

// fakeMembership is an in-memory MembershipSet recording rebuilds.
type fakeMembership struct {
	mu       sync.Mutex
	codes    map[string]struct{}
	rebuilds [][]string

	containsErr error
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{codes: map[string]struct{}{}}
}

func (f *fakeMembership) Add(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[code] = struct{}{}
	return nil
}

func (f *fakeMembership) Contains(ctx context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.containsErr != nil {
		return false, f.containsErr
	}
	_, ok := f.codes[code]
	return ok, nil
}

func (f *fakeMembership) Remove(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.codes, code)
	return nil
}

func (f *fakeMembership) Rebuild(ctx context.Context, codes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fresh := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		fresh[code] = struct{}{}
	}
	f.codes = fresh
	snapshot := append([]string(nil), codes...)
	f.rebuilds = append(f.rebuilds, snapshot)
	return nil
}

func (f *fakeMembership) has(code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.codes[code]
	return ok
}

func (f *fakeMembership) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.codes)
}

// fakeClickCounter implements repository.ClickCounter.
type fakeClickCounter struct {
	mu        sync.Mutex
	clicks    map[string]int64
	maxClicks map[string]int64
	err       error
	calls     int
}

func newFakeClickCounter() *fakeClickCounter {
	return &fakeClickCounter{clicks: map[string]int64{}, maxClicks: map[string]int64{}}
}

func (f *fakeClickCounter) Increment(ctx context.Context, code string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, 0, f.err
	}
	f.clicks[code]++
	return f.clicks[code], f.maxClicks[code], nil
}
