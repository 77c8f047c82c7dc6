package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"linkboard/api/internal/config"
	"linkboard/api/internal/store"
)

type fakeStore struct {
	getUserByEmailFn             func(context.Context, string) (store.User, error)
	insertOpportunityFn          func(context.Context, store.Opportunity) error
	getOpportunityFn             func(context.Context, string) (store.Opportunity, error)
	findOpportunityByShortLinkFn func(context.Context, string) (*store.Opportunity, error)
	listOpportunitiesByOfficeFn  func(context.Context, string) ([]store.Opportunity, error)
	updateOpportunityFn          func(context.Context, string, store.OpportunityPatch) (store.Opportunity, error)
	deleteOpportunityFn          func(context.Context, string) (bool, error)
	insertResourceFn             func(context.Context, store.Resource) error
	getResourceFn                func(context.Context, string) (store.Resource, error)
	findResourceByShortLinkFn    func(context.Context, string) (*store.Resource, error)
	listResourcesByOfficeFn      func(context.Context, string) ([]store.Resource, error)
	updateResourceFn             func(context.Context, string, store.ResourcePatch) (store.Resource, error)
	deleteResourceFn             func(context.Context, string) (bool, error)
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) InsertOpportunity(ctx context.Context, o store.Opportunity) error {
	if f.insertOpportunityFn != nil {
		return f.insertOpportunityFn(ctx, o)
	}
	return nil
}
func (f *fakeStore) GetOpportunity(ctx context.Context, id string) (store.Opportunity, error) {
	if f.getOpportunityFn != nil {
		return f.getOpportunityFn(ctx, id)
	}
	return store.Opportunity{}, sql.ErrNoRows
}
func (f *fakeStore) FindOpportunityByShortLink(ctx context.Context, shortLink string) (*store.Opportunity, error) {
	if f.findOpportunityByShortLinkFn != nil {
		return f.findOpportunityByShortLinkFn(ctx, shortLink)
	}
	return nil, nil
}
func (f *fakeStore) ListOpportunitiesByOffice(ctx context.Context, officeID string) ([]store.Opportunity, error) {
	if f.listOpportunitiesByOfficeFn != nil {
		return f.listOpportunitiesByOfficeFn(ctx, officeID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateOpportunity(ctx context.Context, id string, patch store.OpportunityPatch) (store.Opportunity, error) {
	if f.updateOpportunityFn != nil {
		return f.updateOpportunityFn(ctx, id, patch)
	}
	return store.Opportunity{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteOpportunity(ctx context.Context, id string) (bool, error) {
	if f.deleteOpportunityFn != nil {
		return f.deleteOpportunityFn(ctx, id)
	}
	return false, nil
}
func (f *fakeStore) InsertResource(ctx context.Context, r store.Resource) error {
	if f.insertResourceFn != nil {
		return f.insertResourceFn(ctx, r)
	}
	return nil
}
func (f *fakeStore) GetResource(ctx context.Context, id string) (store.Resource, error) {
	if f.getResourceFn != nil {
		return f.getResourceFn(ctx, id)
	}
	return store.Resource{}, sql.ErrNoRows
}
func (f *fakeStore) FindResourceByShortLink(ctx context.Context, shortLink string) (*store.Resource, error) {
	if f.findResourceByShortLinkFn != nil {
		return f.findResourceByShortLinkFn(ctx, shortLink)
	}
	return nil, nil
}
func (f *fakeStore) ListResourcesByOffice(ctx context.Context, officeID string) ([]store.Resource, error) {
	if f.listResourcesByOfficeFn != nil {
		return f.listResourcesByOfficeFn(ctx, officeID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateResource(ctx context.Context, id string, patch store.ResourcePatch) (store.Resource, error) {
	if f.updateResourceFn != nil {
		return f.updateResourceFn(ctx, id, patch)
	}
	return store.Resource{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteResource(ctx context.Context, id string) (bool, error) {
	if f.deleteResourceFn != nil {
		return f.deleteResourceFn(ctx, id)
	}
	return false, nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeMedia struct {
	uploadFn func(context.Context, io.Reader, int64, string) (string, error)
}

func (f *fakeMedia) Upload(ctx context.Context, reader io.Reader, size int64, contentType string) (string, error) {
	if f.uploadFn != nil {
		return f.uploadFn(ctx, reader, size, contentType)
	}
	return "s3://test-bucket/test-key", nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:     "test-secret",
			IdPToken:      "idp-test-token",
			SessionTTL:    time.Hour,
			SessionCookie: "linkboard_session",
		},
		store: fs,
	}
}

func memberSession(officeID string) Session {
	return Session{UserID: "user-1", Role: "MEMBER", OfficeID: officeID, ExpiresAt: time.Now().Add(time.Hour)}
}

func TestCreateOpportunityValidatesFields(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateOpportunity(context.Background(), memberSession("O1"), CreateOpportunityInput{
		Title:       "",
		OriginalURL: "not a url",
		ShortLink:   "",
		Deadline:    "",
	}, nil)

	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != http.StatusUnprocessableEntity || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error: %+v", domainErr)
	}
	fields, ok := domainErr.Details.(map[string]string)
	if !ok {
		t.Fatalf("expected per-field details, got %T", domainErr.Details)
	}
	for _, field := range []string{"title", "originalUrl", "shortLink", "deadline"} {
		if fields[field] == "" {
			t.Errorf("expected a message for field %s", field)
		}
	}
}

func TestCreateOpportunityNamespacesShortLink(t *testing.T) {
	var inserted store.Opportunity
	svc := newTestService(&fakeStore{
		insertOpportunityFn: func(_ context.Context, o store.Opportunity) error {
			inserted = o
			return nil
		},
	})

	payload, err := svc.CreateOpportunity(context.Background(), memberSession("O1"), CreateOpportunityInput{
		Title:       "Spring Fair",
		OriginalURL: "https://example.org/fair",
		ShortLink:   "spring-fair",
		Deadline:    "2026-10-01",
	}, nil)
	if err != nil {
		t.Fatalf("CreateOpportunity: %v", err)
	}
	if inserted.ShortLink != "opp/spring-fair" {
		t.Fatalf("expected namespaced short link, got %q", inserted.ShortLink)
	}
	if inserted.OfficeID != "O1" {
		t.Fatalf("expected caller office, got %q", inserted.OfficeID)
	}
	if inserted.ID == "" {
		t.Fatal("expected a generated id")
	}
	if payload["_id"] != inserted.ID {
		t.Fatalf("payload id mismatch: %v vs %v", payload["_id"], inserted.ID)
	}
}

func TestCreateOpportunityReportsConflict(t *testing.T) {
	svc := newTestService(&fakeStore{
		insertOpportunityFn: func(context.Context, store.Opportunity) error {
			return store.ErrShortLinkTaken
		},
	})

	_, err := svc.CreateOpportunity(context.Background(), memberSession("O1"), CreateOpportunityInput{
		Title:       "Spring Fair",
		OriginalURL: "https://example.org/fair",
		ShortLink:   "spring-fair",
		Deadline:    "2026-10-01",
	}, nil)

	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 CONFLICT, got %v", err)
	}
}

func TestCreateOpportunityRejectsForeignOffice(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateOpportunity(context.Background(), memberSession("O1"), CreateOpportunityInput{
		Title:       "Spring Fair",
		OriginalURL: "https://example.org/fair",
		ShortLink:   "spring-fair",
		Deadline:    "2026-10-01",
		OfficeID:    "O2",
	}, nil)

	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusForbidden {
		t.Fatalf("expected 403 FORBIDDEN, got %v", err)
	}
}

func TestCreateOpportunityAdminMCMayTargetAnyOffice(t *testing.T) {
	var inserted store.Opportunity
	svc := newTestService(&fakeStore{
		insertOpportunityFn: func(_ context.Context, o store.Opportunity) error {
			inserted = o
			return nil
		},
	})
	admin := Session{UserID: "admin", Role: "ADMIN_MC", OfficeID: "HQ", ExpiresAt: time.Now().Add(time.Hour)}

	_, err := svc.CreateOpportunity(context.Background(), admin, CreateOpportunityInput{
		Title:       "Spring Fair",
		OriginalURL: "https://example.org/fair",
		ShortLink:   "spring-fair",
		Deadline:    "2026-10-01",
		OfficeID:    "O2",
	}, nil)
	if err != nil {
		t.Fatalf("CreateOpportunity: %v", err)
	}
	if inserted.OfficeID != "O2" {
		t.Fatalf("expected office O2, got %q", inserted.OfficeID)
	}
}

func TestCreateOpportunityStoresUploadReference(t *testing.T) {
	var inserted store.Opportunity
	svc := newTestService(&fakeStore{
		insertOpportunityFn: func(_ context.Context, o store.Opportunity) error {
			inserted = o
			return nil
		},
	}).WithMedia(&fakeMedia{})

	_, err := svc.CreateOpportunity(context.Background(), memberSession("O1"), CreateOpportunityInput{
		Title:       "Spring Fair",
		OriginalURL: "https://example.org/fair",
		ShortLink:   "spring-fair",
		Deadline:    "2026-10-01",
	}, &Upload{Reader: strings.NewReader("png-bytes"), Size: 9, ContentType: "image/png"})
	if err != nil {
		t.Fatalf("CreateOpportunity: %v", err)
	}
	if inserted.CoverImageURL == nil || *inserted.CoverImageURL != "s3://test-bucket/test-key" {
		t.Fatalf("expected stored media reference, got %v", inserted.CoverImageURL)
	}
}

func TestUpdateOpportunityForbiddenAcrossOffices(t *testing.T) {
	svc := newTestService(&fakeStore{
		getOpportunityFn: func(context.Context, string) (store.Opportunity, error) {
			return store.Opportunity{ID: "opp-1", OfficeID: "O2"}, nil
		},
	})

	title := "New title"
	_, err := svc.UpdateOpportunity(context.Background(), memberSession("O1"), "opp-1", UpdateOpportunityInput{Title: &title})

	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusForbidden {
		t.Fatalf("expected 403 FORBIDDEN, got %v", err)
	}
}

func TestUpdateOpportunityKeepsShortLinkWhenUnchanged(t *testing.T) {
	var gotPatch store.OpportunityPatch
	svc := newTestService(&fakeStore{
		getOpportunityFn: func(context.Context, string) (store.Opportunity, error) {
			return store.Opportunity{ID: "opp-1", OfficeID: "O1", ShortLink: "opp/spring-fair"}, nil
		},
		updateOpportunityFn: func(_ context.Context, _ string, patch store.OpportunityPatch) (store.Opportunity, error) {
			gotPatch = patch
			return store.Opportunity{ID: "opp-1", OfficeID: "O1", ShortLink: "opp/spring-fair"}, nil
		},
	})

	title := "New title"
	if _, err := svc.UpdateOpportunity(context.Background(), memberSession("O1"), "opp-1", UpdateOpportunityInput{Title: &title}); err != nil {
		t.Fatalf("UpdateOpportunity: %v", err)
	}
	if gotPatch.ShortLink != nil {
		t.Fatalf("short link should be untouched, got %v", *gotPatch.ShortLink)
	}
}

func TestDeleteOpportunityNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{})

	err := svc.DeleteOpportunity(context.Background(), memberSession("O1"), "opp-unknown")

	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 NOT_FOUND, got %v", err)
	}
}

func TestCreateResourceSplitsLists(t *testing.T) {
	var inserted store.Resource
	svc := newTestService(&fakeStore{
		insertResourceFn: func(_ context.Context, r store.Resource) error {
			inserted = r
			return nil
		},
	})

	_, err := svc.CreateResource(context.Background(), memberSession("O1"), CreateResourceInput{
		Title:       "Toolkit",
		OriginalURL: "https://example.org/toolkit",
		ShortLink:   "toolkit",
		Functions:   "marketing, finance ,",
		Keywords:    "brand,assets",
	})
	if err != nil {
		t.Fatalf("CreateResource: %v", err)
	}
	if inserted.ShortLink != "res/toolkit" {
		t.Fatalf("expected namespaced short link, got %q", inserted.ShortLink)
	}
	if len(inserted.Functions) != 2 || inserted.Functions[1] != "finance" {
		t.Fatalf("unexpected functions: %v", inserted.Functions)
	}
	if len(inserted.Keywords) != 2 {
		t.Fatalf("unexpected keywords: %v", inserted.Keywords)
	}
}

func TestShortLinkNamespacesDoNotCollide(t *testing.T) {
	var lookups []string
	fs := &fakeStore{
		findOpportunityByShortLinkFn: func(_ context.Context, shortLink string) (*store.Opportunity, error) {
			lookups = append(lookups, shortLink)
			return nil, nil
		},
		findResourceByShortLinkFn: func(_ context.Context, shortLink string) (*store.Resource, error) {
			lookups = append(lookups, shortLink)
			return nil, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.CheckOpportunityShortLink(context.Background(), "spring-fair"); err != nil {
		t.Fatalf("CheckOpportunityShortLink: %v", err)
	}
	if _, err := svc.CheckResourceShortLink(context.Background(), "spring-fair"); err != nil {
		t.Fatalf("CheckResourceShortLink: %v", err)
	}
	if lookups[0] != "opp/spring-fair" || lookups[1] != "res/spring-fair" {
		t.Fatalf("expected per-kind namespaces, got %v", lookups)
	}
}

func TestSignInUnknownEmailIsUnauthorized(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, _, err := svc.SignIn(context.Background(), "stranger@example.org")

	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 UNAUTHORIZED, got %v", err)
	}
}

func TestSignInIssuesVerifiableSession(t *testing.T) {
	svc := newTestService(&fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: "user-1", Email: "avery@example.org", Role: "OFFICE_ADMIN", OfficeID: "O1"}, nil
		},
	})

	session, token, err := svc.SignIn(context.Background(), "Avery@Example.org")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if session.Role != "OFFICE_ADMIN" || session.OfficeID != "O1" {
		t.Fatalf("unexpected session: %+v", session)
	}

	roundTripped, err := svc.SessionFromToken(context.Background(), token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if roundTripped.Role != "OFFICE_ADMIN" || roundTripped.OfficeID != "O1" {
		t.Fatalf("round-tripped session mismatch: %+v", roundTripped)
	}
}
