package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/qbsru/widgetdomains/internal/domain"
	"github.com/qbsru/widgetdomains/internal/domain/customdomain"
	"github.com/qbsru/widgetdomains/internal/port/certmanager"
	"github.com/qbsru/widgetdomains/internal/port/database"
	"github.com/qbsru/widgetdomains/internal/port/dnsresolver"
)

var _ database.DomainStore = (*fakeStore)(nil)

// fakeStore is an in-memory DomainStore with the same conditional claim
// semantics as the Postgres store.
type fakeStore struct {
	mu      sync.Mutex
	domains map[string]customdomain.Config
	seq     int
	now     func() time.Time

	// Error hooks.
	getErr    error
	saveErr   error
	deleteErr error
	// createConflict simulates losing a registration race: the record is
	// inserted by "someone else" and CreateDomain reports a conflict.
	createConflict *customdomain.Config
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{domains: map[string]customdomain.Config{}, now: now}
}

func (s *fakeStore) CreateDomain(_ context.Context, req customdomain.CreateRequest) (*customdomain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createConflict != nil {
		c := *s.createConflict
		s.domains[c.ID] = c
		s.createConflict = nil
		return nil, domain.ErrConflict
	}
	for _, d := range s.domains {
		if d.Domain == req.Domain {
			return nil, domain.ErrConflict
		}
	}
	s.seq++
	now := s.now()
	c := customdomain.Config{
		ID:          fmt.Sprintf("dom-%d", s.seq),
		WorkspaceID: req.WorkspaceID,
		Domain:      req.Domain,
		CNAMETarget: req.CNAMETarget,
		SSLStatus:   customdomain.SSLPending,
		CreatedAt:   now.Add(time.Duration(s.seq) * time.Nanosecond),
		UpdatedAt:   now,
	}
	s.domains[c.ID] = c
	return &c, nil
}

func (s *fakeStore) GetDomain(_ context.Context, id, workspaceID string) (*customdomain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	c, ok := s.domains[id]
	if !ok || c.WorkspaceID != workspaceID {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (s *fakeStore) GetDomainByName(_ context.Context, name string) (*customdomain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.domains {
		if c.Domain == strings.ToLower(name) {
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) sorted(keep func(customdomain.Config) bool) []customdomain.Config {
	var out []customdomain.Config
	for _, c := range s.domains {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *fakeStore) GetDomainByWorkspace(_ context.Context, workspaceID string) (*customdomain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sorted(func(c customdomain.Config) bool { return c.WorkspaceID == workspaceID })
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return &list[0], nil
}

func (s *fakeStore) ListDomains(_ context.Context, workspaceID string) ([]customdomain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(c customdomain.Config) bool { return c.WorkspaceID == workspaceID }), nil
}

func (s *fakeStore) ListAwaitingCertificate(_ context.Context, limit int) ([]customdomain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sorted(func(c customdomain.Config) bool {
		return c.Verified && c.SSLStatus == customdomain.SSLPending && c.SSLCertificateID != nil
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *fakeStore) ClaimVerificationAttempt(_ context.Context, id, workspaceID string, now time.Time, minInterval time.Duration) (*customdomain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.domains[id]
	if !ok || c.WorkspaceID != workspaceID {
		return nil, domain.ErrNotFound
	}
	if c.LastVerificationAttempt != nil && c.LastVerificationAttempt.After(now.Add(-minInterval)) {
		return nil, domain.ErrConflict
	}
	c.LastVerificationAttempt = &now
	c.UpdatedAt = now
	s.domains[id] = c
	return &c, nil
}

func (s *fakeStore) SaveVerification(_ context.Context, id, workspaceID string, out customdomain.VerificationOutcome) (*customdomain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	c, ok := s.domains[id]
	if !ok || c.WorkspaceID != workspaceID {
		return nil, domain.ErrNotFound
	}
	c.Verified = out.Verified
	c.VerifiedAt = out.VerifiedAt
	c.VerificationError = out.VerificationError
	c.SSLStatus = out.SSLStatus
	if out.SSLCertificateID != nil {
		c.SSLCertificateID = out.SSLCertificateID
		c.SSLExpiresAt = nil
		c.SSLValidationRecords = nil
	}
	if out.SSLRequestedAt != nil {
		c.SSLRequestedAt = out.SSLRequestedAt
	}
	c.UpdatedAt = s.now()
	s.domains[id] = c
	return &c, nil
}

func (s *fakeStore) SaveSSLState(_ context.Context, id, workspaceID string, st customdomain.SSLState) (*customdomain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	c, ok := s.domains[id]
	if !ok || c.WorkspaceID != workspaceID {
		return nil, domain.ErrNotFound
	}
	c.SSLStatus = st.Status
	if st.ExpiresAt != nil {
		c.SSLExpiresAt = st.ExpiresAt
	}
	c.SSLValidationRecords = st.ValidationRecords
	c.UpdatedAt = s.now()
	s.domains[id] = c
	return &c, nil
}

func (s *fakeStore) DeleteDomain(_ context.Context, id, workspaceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	c, ok := s.domains[id]
	if !ok || c.WorkspaceID != workspaceID {
		return false, nil
	}
	delete(s.domains, id)
	return true, nil
}

func (s *fakeStore) DomainExists(_ context.Context, name, excludeWorkspaceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.domains {
		if c.Domain == name && (excludeWorkspaceID == "" || c.WorkspaceID != excludeWorkspaceID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.domains)
}

// fakeResolver returns canned CNAME answers and counts lookups.
type fakeResolver struct {
	mu      sync.Mutex
	targets []string
	err     error
	calls   int
}

func (r *fakeResolver) LookupCNAME(_ context.Context, _ string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if len(r.targets) == 0 {
		return nil, dnsresolver.ErrNoRecords
	}
	return r.targets, nil
}

func (r *fakeResolver) set(targets []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = targets
	r.err = err
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fakeCertManager is a scriptable certmanager.Client.
type fakeCertManager struct {
	mu         sync.Mutex
	seq        int
	requestErr error
	statusErr  error
	deleteErr  error
	status     string
	expiresAt  *time.Time
	statusHook func() // runs inside GetCertificateStatus before returning
	records    []certmanager.ValidationRecord

	requests     int
	statusCalls  int
	deletedCerts []string
}

var _ certmanager.Client = (*fakeCertManager)(nil)

func (f *fakeCertManager) RequestCertificate(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.requestErr != nil {
		return "", f.requestErr
	}
	f.seq++
	return fmt.Sprintf("arn:aws:acm:eu-central-1:123:certificate/c-%d", f.seq), nil
}

func (f *fakeCertManager) GetCertificateStatus(ctx context.Context, _ string) (*certmanager.Status, error) {
	f.mu.Lock()
	f.statusCalls++
	hook := f.statusHook
	st := &certmanager.Status{ProviderStatus: f.status, ExpiresAt: f.expiresAt, ValidationRecords: f.records}
	err := f.statusErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (f *fakeCertManager) DeleteCertificate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedCerts = append(f.deletedCerts, id)
	return f.deleteErr
}

func (f *fakeCertManager) statusCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

// testClock is a settable time source.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const testTarget = "widget.hh.qbs.ru"

type registryFixture struct {
	clock    *testClock
	store    *fakeStore
	resolver *fakeResolver
	certs    *fakeCertManager
	registry *Registry
}

func newRegistryFixture() *registryFixture {
	clock := newTestClock()
	store := newFakeStore(clock.Now)
	resolver := &fakeResolver{}
	certs := &fakeCertManager{status: "PENDING_VALIDATION"}
	reg := NewRegistry(store, NewDNSVerifier(resolver, nil), NewSSLProvisioner(certs, nil), testTarget)
	reg.SetClock(clock.Now)
	return &registryFixture{clock: clock, store: store, resolver: resolver, certs: certs, registry: reg}
}
