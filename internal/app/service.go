package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"linkboard/api/internal/auth"
	"linkboard/api/internal/config"
	"linkboard/api/internal/rbac"
	"linkboard/api/internal/search"
	"linkboard/api/internal/store"
)

const (
	shortLinkPrefixOpportunity = "opp/"
	shortLinkPrefixResource    = "res/"
)

// Session is the verified identity attached to a request. It is built once by
// the session middleware and read-only afterwards.
type Session struct {
	UserID    string
	Role      string
	OfficeID  string
	JTI       string
	ExpiresAt time.Time
}

type CreateOpportunityInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	OriginalURL string `json:"originalUrl"`
	ShortLink   string `json:"shortLink"`
	Deadline    string `json:"deadline"`
	OfficeID    string `json:"officeId"`
}

type UpdateOpportunityInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	OriginalURL *string `json:"originalUrl"`
	ShortLink   *string `json:"shortLink"`
	Deadline    *string `json:"deadline"`
}

type CreateResourceInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	OriginalURL string `json:"originalUrl"`
	ShortLink   string `json:"shortLink"`
	Functions   string `json:"functions"`
	Keywords    string `json:"keywords"`
	OfficeID    string `json:"officeId"`
}

type UpdateResourceInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	OriginalURL *string `json:"originalUrl"`
	ShortLink   *string `json:"shortLink"`
	Functions   *string `json:"functions"`
	Keywords    *string `json:"keywords"`
}

// Upload is an incoming cover file; only the object-storage reference ends up
// in the entity row.
type Upload struct {
	Reader      io.Reader
	Size        int64
	ContentType string
}

type dataStore interface {
	GetUserByEmail(context.Context, string) (store.User, error)
	InsertOpportunity(context.Context, store.Opportunity) error
	GetOpportunity(context.Context, string) (store.Opportunity, error)
	FindOpportunityByShortLink(context.Context, string) (*store.Opportunity, error)
	ListOpportunitiesByOffice(context.Context, string) ([]store.Opportunity, error)
	UpdateOpportunity(context.Context, string, store.OpportunityPatch) (store.Opportunity, error)
	DeleteOpportunity(context.Context, string) (bool, error)
	InsertResource(context.Context, store.Resource) error
	GetResource(context.Context, string) (store.Resource, error)
	FindResourceByShortLink(context.Context, string) (*store.Resource, error)
	ListResourcesByOffice(context.Context, string) ([]store.Resource, error)
	UpdateResource(context.Context, string, store.ResourcePatch) (store.Resource, error)
	DeleteResource(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

type revocationStore interface {
	RevokeSession(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type mediaStore interface {
	Upload(ctx context.Context, reader io.Reader, size int64, contentType string) (string, error)
}

type searchService interface {
	Search(q search.Query) []search.Result
	Index(kind search.Kind, record search.Record)
	Delete(kind search.Kind, id string)
}

type Service struct {
	cfg         config.Config
	store       dataStore
	revocations revocationStore
	media       mediaStore
	search      searchService
}

func New(cfg config.Config, dataStore *store.PostgresStore) *Service {
	return &Service{cfg: cfg, store: dataStore}
}

func (s *Service) WithRevocations(revocations revocationStore) *Service {
	s.revocations = revocations
	return s
}

func (s *Service) WithMedia(media mediaStore) *Service {
	s.media = media
	return s
}

func (s *Service) WithSearch(searchSvc searchService) *Service {
	s.search = searchSvc
	return s
}

func (s *Service) IdPToken() string {
	return s.cfg.IdPToken
}

func (s *Service) SessionCookieName() string {
	return s.cfg.SessionCookie
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SignIn exchanges an identity-provider-asserted email for a session
// credential. The user must already exist; this service never provisions
// accounts.
func (s *Service) SignIn(ctx context.Context, email string) (Session, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return Session{}, "", errUnauthorized()
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, "", errUnauthorized()
	}
	if err != nil {
		return Session{}, "", err
	}

	token, err := auth.Issue([]byte(s.cfg.JWTSecret), user.ID, string(rbac.Normalize(user.Role)), user.OfficeID, s.cfg.SessionTTL)
	if err != nil {
		return Session{}, "", err
	}

	identity, err := auth.Verify([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, "", err
	}
	return sessionFromIdentity(identity), token, nil
}

// SessionFromToken verifies the credential and checks the revocation list.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	identity, err := auth.Verify([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, identity.JTI)
		if err != nil {
			return Session{}, err
		}
		if revoked {
			return Session{}, auth.ErrInvalidToken
		}
	}
	return sessionFromIdentity(identity), nil
}

func (s *Service) Logout(ctx context.Context, session Session) error {
	if s.revocations == nil || session.JTI == "" {
		return nil
	}
	return s.revocations.RevokeSession(ctx, session.JTI, session.ExpiresAt)
}

func sessionFromIdentity(identity auth.Identity) Session {
	return Session{
		UserID:    identity.UserID,
		Role:      identity.Role,
		OfficeID:  identity.OfficeID,
		JTI:       identity.JTI,
		ExpiresAt: identity.Exp,
	}
}

// Opportunities

func (s *Service) CreateOpportunity(ctx context.Context, session Session, input CreateOpportunityInput, cover *Upload) (map[string]any, error) {
	fields := map[string]string{}
	validateTitle(fields, input.Title)
	validateOriginalURL(fields, input.OriginalURL)
	validateShortLink(fields, input.ShortLink)
	deadline, ok := parseDeadline(input.Deadline)
	if !ok {
		fields["deadline"] = "deadline is required"
	}
	if len(fields) > 0 {
		return nil, errValidation(fields)
	}

	officeID := input.OfficeID
	if officeID == "" {
		officeID = session.OfficeID
	}
	if !rbac.CanCreateFor(rbac.Normalize(session.Role), session.OfficeID, officeID) {
		return nil, errForbidden()
	}

	var coverRef *string
	if cover != nil {
		if s.media == nil {
			return nil, errMediaUnavailable()
		}
		reference, err := s.media.Upload(ctx, cover.Reader, cover.Size, cover.ContentType)
		if err != nil {
			return nil, err
		}
		coverRef = &reference
	}

	opportunity := store.Opportunity{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		OriginalURL:   input.OriginalURL,
		ShortLink:     shortLinkPrefixOpportunity + input.ShortLink,
		CoverImageURL: coverRef,
		Deadline:      deadline,
		OfficeID:      officeID,
	}
	if err := s.store.InsertOpportunity(ctx, opportunity); err != nil {
		return nil, mapShortLinkConflict(err)
	}

	if s.search != nil {
		s.search.Index(search.KindOpportunity, opportunityRecord(opportunity))
	}
	return map[string]any{"_id": opportunity.ID}, nil
}

// CheckOpportunityShortLink is the availability read-mode of the list
// endpoint: it answers whether the namespaced short link is already taken.
func (s *Service) CheckOpportunityShortLink(ctx context.Context, shortLink string) (bool, error) {
	found, err := s.store.FindOpportunityByShortLink(ctx, shortLinkPrefixOpportunity+shortLink)
	if err != nil {
		return false, err
	}
	return found != nil, nil
}

func (s *Service) ListOpportunities(ctx context.Context, session Session, officeID, query string) ([]map[string]any, error) {
	if officeID == "" {
		officeID = session.OfficeID
	}
	if query != "" && s.search != nil {
		results := s.search.Search(search.Query{Text: query, Kind: search.KindOpportunity, OfficeID: officeID})
		payload := make([]map[string]any, 0, len(results))
		for _, result := range results {
			payload = append(payload, searchResultPayload(result))
		}
		return payload, nil
	}

	items, err := s.store.ListOpportunitiesByOffice(ctx, officeID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, opportunityPayload(item))
	}
	return payload, nil
}

func (s *Service) UpdateOpportunity(ctx context.Context, session Session, id string, input UpdateOpportunityInput) (map[string]any, error) {
	existing, err := s.store.GetOpportunity(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound("Opportunity")
	}
	if err != nil {
		return nil, err
	}
	if !rbac.CanManage(rbac.Normalize(session.Role), session.OfficeID, existing.OfficeID) {
		return nil, errForbidden()
	}

	fields := map[string]string{}
	if input.Title != nil {
		validateTitle(fields, *input.Title)
	}
	if input.OriginalURL != nil {
		validateOriginalURL(fields, *input.OriginalURL)
	}
	patch := store.OpportunityPatch{
		Title:       input.Title,
		Description: input.Description,
		OriginalURL: input.OriginalURL,
	}
	if input.ShortLink != nil {
		validateShortLink(fields, *input.ShortLink)
		namespaced := shortLinkPrefixOpportunity + *input.ShortLink
		patch.ShortLink = &namespaced
	}
	if input.Deadline != nil {
		deadline, ok := parseDeadline(*input.Deadline)
		if !ok {
			fields["deadline"] = "deadline must be a date"
		}
		patch.Deadline = &deadline
	}
	if len(fields) > 0 {
		return nil, errValidation(fields)
	}

	updated, err := s.store.UpdateOpportunity(ctx, id, patch)
	if err != nil {
		return nil, mapShortLinkConflict(err)
	}
	if s.search != nil {
		s.search.Index(search.KindOpportunity, opportunityRecord(updated))
	}
	return opportunityPayload(updated), nil
}

func (s *Service) DeleteOpportunity(ctx context.Context, session Session, id string) error {
	existing, err := s.store.GetOpportunity(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("Opportunity")
	}
	if err != nil {
		return err
	}
	if !rbac.CanManage(rbac.Normalize(session.Role), session.OfficeID, existing.OfficeID) {
		return errForbidden()
	}

	deleted, err := s.store.DeleteOpportunity(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound("Opportunity")
	}
	if s.search != nil {
		s.search.Delete(search.KindOpportunity, id)
	}
	return nil
}

// Resources

func (s *Service) CreateResource(ctx context.Context, session Session, input CreateResourceInput) (map[string]any, error) {
	fields := map[string]string{}
	validateTitle(fields, input.Title)
	validateOriginalURL(fields, input.OriginalURL)
	validateShortLink(fields, input.ShortLink)
	if len(fields) > 0 {
		return nil, errValidation(fields)
	}

	officeID := input.OfficeID
	if officeID == "" {
		officeID = session.OfficeID
	}
	if !rbac.CanCreateFor(rbac.Normalize(session.Role), session.OfficeID, officeID) {
		return nil, errForbidden()
	}

	resource := store.Resource{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		OriginalURL: input.OriginalURL,
		ShortLink:   shortLinkPrefixResource + input.ShortLink,
		Functions:   splitList(input.Functions),
		Keywords:    splitList(input.Keywords),
		OfficeID:    officeID,
	}
	if err := s.store.InsertResource(ctx, resource); err != nil {
		return nil, mapShortLinkConflict(err)
	}

	if s.search != nil {
		s.search.Index(search.KindResource, resourceRecord(resource))
	}
	return map[string]any{"_id": resource.ID}, nil
}

func (s *Service) CheckResourceShortLink(ctx context.Context, shortLink string) (bool, error) {
	found, err := s.store.FindResourceByShortLink(ctx, shortLinkPrefixResource+shortLink)
	if err != nil {
		return false, err
	}
	return found != nil, nil
}

func (s *Service) ListResources(ctx context.Context, session Session, officeID, query string) ([]map[string]any, error) {
	if officeID == "" {
		officeID = session.OfficeID
	}
	if query != "" && s.search != nil {
		results := s.search.Search(search.Query{Text: query, Kind: search.KindResource, OfficeID: officeID})
		payload := make([]map[string]any, 0, len(results))
		for _, result := range results {
			payload = append(payload, searchResultPayload(result))
		}
		return payload, nil
	}

	items, err := s.store.ListResourcesByOffice(ctx, officeID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, resourcePayload(item))
	}
	return payload, nil
}

func (s *Service) UpdateResource(ctx context.Context, session Session, id string, input UpdateResourceInput) (map[string]any, error) {
	existing, err := s.store.GetResource(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound("Resource")
	}
	if err != nil {
		return nil, err
	}
	if !rbac.CanManage(rbac.Normalize(session.Role), session.OfficeID, existing.OfficeID) {
		return nil, errForbidden()
	}

	fields := map[string]string{}
	if input.Title != nil {
		validateTitle(fields, *input.Title)
	}
	if input.OriginalURL != nil {
		validateOriginalURL(fields, *input.OriginalURL)
	}
	patch := store.ResourcePatch{
		Title:       input.Title,
		Description: input.Description,
		OriginalURL: input.OriginalURL,
	}
	if input.ShortLink != nil {
		validateShortLink(fields, *input.ShortLink)
		namespaced := shortLinkPrefixResource + *input.ShortLink
		patch.ShortLink = &namespaced
	}
	if input.Functions != nil {
		functions := splitList(*input.Functions)
		patch.Functions = &functions
	}
	if input.Keywords != nil {
		keywords := splitList(*input.Keywords)
		patch.Keywords = &keywords
	}
	if len(fields) > 0 {
		return nil, errValidation(fields)
	}

	updated, err := s.store.UpdateResource(ctx, id, patch)
	if err != nil {
		return nil, mapShortLinkConflict(err)
	}
	if s.search != nil {
		s.search.Index(search.KindResource, resourceRecord(updated))
	}
	return resourcePayload(updated), nil
}

func (s *Service) DeleteResource(ctx context.Context, session Session, id string) error {
	existing, err := s.store.GetResource(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("Resource")
	}
	if err != nil {
		return err
	}
	if !rbac.CanManage(rbac.Normalize(session.Role), session.OfficeID, existing.OfficeID) {
		return errForbidden()
	}

	deleted, err := s.store.DeleteResource(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound("Resource")
	}
	if s.search != nil {
		s.search.Delete(search.KindResource, id)
	}
	return nil
}

// Validation and payload helpers

func validateTitle(fields map[string]string, title string) {
	if strings.TrimSpace(title) == "" {
		fields["title"] = "title is required"
	}
}

func validateOriginalURL(fields map[string]string, raw string) {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		fields["originalUrl"] = "originalUrl must be a valid http(s) URL"
	}
}

func validateShortLink(fields map[string]string, shortLink string) {
	if strings.TrimSpace(shortLink) == "" {
		fields["shortLink"] = "shortLink is required"
		return
	}
	if strings.ContainsAny(shortLink, "/ \t") {
		fields["shortLink"] = "shortLink must not contain slashes or spaces"
	}
}

func parseDeadline(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, true
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}

func mapShortLinkConflict(err error) error {
	if errors.Is(err, store.ErrShortLinkTaken) {
		return errConflict()
	}
	return err
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

// stripNamespace undoes the per-kind storage prefix so clients see the short
// link exactly as they submitted it.
func stripNamespace(shortLink string) string {
	shortLink = strings.TrimPrefix(shortLink, shortLinkPrefixOpportunity)
	return strings.TrimPrefix(shortLink, shortLinkPrefixResource)
}

func opportunityPayload(o store.Opportunity) map[string]any {
	return map[string]any{
		"_id":           o.ID,
		"title":         o.Title,
		"description":   o.Description,
		"originalUrl":   o.OriginalURL,
		"shortLink":     stripNamespace(o.ShortLink),
		"coverImageUrl": o.CoverImageURL,
		"deadline":      o.Deadline.Format(time.RFC3339),
		"officeId":      o.OfficeID,
		"createdAt":     o.CreatedAt.Format(time.RFC3339),
		"updatedAt":     o.UpdatedAt.Format(time.RFC3339),
	}
}

func resourcePayload(r store.Resource) map[string]any {
	return map[string]any{
		"_id":         r.ID,
		"title":       r.Title,
		"description": r.Description,
		"originalUrl": r.OriginalURL,
		"shortLink":   stripNamespace(r.ShortLink),
		"functions":   r.Functions,
		"keywords":    r.Keywords,
		"officeId":    r.OfficeID,
		"createdAt":   r.CreatedAt.Format(time.RFC3339),
		"updatedAt":   r.UpdatedAt.Format(time.RFC3339),
	}
}

func searchResultPayload(result search.Result) map[string]any {
	return map[string]any{
		"_id":         result.ID,
		"title":       result.Title,
		"description": result.Snippet,
		"shortLink":   stripNamespace(result.ShortLink),
		"officeId":    result.OfficeID,
	}
}

func opportunityRecord(o store.Opportunity) search.Record {
	return search.Record{
		ID:          o.ID,
		Title:       o.Title,
		Description: o.Description,
		ShortLink:   o.ShortLink,
		OfficeID:    o.OfficeID,
	}
}

func resourceRecord(r store.Resource) search.Record {
	return search.Record{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Keywords:    strings.Join(append(append([]string{}, r.Functions...), r.Keywords...), " "),
		ShortLink:   r.ShortLink,
		OfficeID:    r.OfficeID,
	}
}
