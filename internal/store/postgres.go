package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrShortLinkTaken reports a short-link uniqueness violation. It is raised by
// the database constraint, never by a check-then-insert pair, so two
// concurrent creates with the same short link can commit at most once.
var ErrShortLinkTaken = errors.New("short link already taken")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const query = `SELECT id, name, email, COALESCE(image, ''), role, office_id FROM users WHERE email = $1`
	var user User
	err := s.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.Name, &user.Email, &user.Image, &user.Role, &user.OfficeID)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Opportunities

const opportunityColumns = `id, title, description, original_url, short_link, cover_image_url, deadline, office_id, created_at, updated_at`

func (s *PostgresStore) InsertOpportunity(ctx context.Context, o Opportunity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO opportunities (id, title, description, original_url, short_link, cover_image_url, deadline, office_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, o.ID, o.Title, o.Description, o.OriginalURL, o.ShortLink, o.CoverImageURL, o.Deadline, o.OfficeID)
	if isUniqueViolation(err) {
		return ErrShortLinkTaken
	}
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOpportunity(ctx context.Context, id string) (Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = $1`, id)
	return scanOpportunity(row)
}

func (s *PostgresStore) FindOpportunityByShortLink(ctx context.Context, shortLink string) (*Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE short_link = $1`, shortLink)
	o, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) ListOpportunitiesByOffice(ctx context.Context, officeID string) ([]Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE office_id = $1`, officeID)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var items []Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateOpportunity(ctx context.Context, id string, patch OpportunityPatch) (Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE opportunities SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			original_url = COALESCE($4, original_url),
			short_link = COALESCE($5, short_link),
			cover_image_url = COALESCE($6, cover_image_url),
			deadline = COALESCE($7, deadline),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+opportunityColumns,
		id, patch.Title, patch.Description, patch.OriginalURL, patch.ShortLink, patch.CoverImageURL, patch.Deadline)
	o, err := scanOpportunity(row)
	if isUniqueViolation(err) {
		return Opportunity{}, ErrShortLinkTaken
	}
	return o, err
}

func (s *PostgresStore) DeleteOpportunity(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM opportunities WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete opportunity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Resources

const resourceColumns = `id, title, description, original_url, short_link, functions, keywords, office_id, created_at, updated_at`

func (s *PostgresStore) InsertResource(ctx context.Context, r Resource) error {
	functions, keywords, err := marshalLists(r.Functions, r.Keywords)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (id, title, description, original_url, short_link, functions, keywords, office_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.Title, r.Description, r.OriginalURL, r.ShortLink, functions, keywords, r.OfficeID)
	if isUniqueViolation(err) {
		return ErrShortLinkTaken
	}
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetResource(ctx context.Context, id string) (Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id)
	return scanResource(row)
}

func (s *PostgresStore) FindResourceByShortLink(ctx context.Context, shortLink string) (*Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE short_link = $1`, shortLink)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ListResourcesByOffice(ctx context.Context, officeID string) ([]Resource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE office_id = $1`, officeID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var items []Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateResource(ctx context.Context, id string, patch ResourcePatch) (Resource, error) {
	var functions, keywords any
	if patch.Functions != nil {
		encoded, err := json.Marshal(*patch.Functions)
		if err != nil {
			return Resource{}, fmt.Errorf("encode functions: %w", err)
		}
		functions = encoded
	}
	if patch.Keywords != nil {
		encoded, err := json.Marshal(*patch.Keywords)
		if err != nil {
			return Resource{}, fmt.Errorf("encode keywords: %w", err)
		}
		keywords = encoded
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE resources SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			original_url = COALESCE($4, original_url),
			short_link = COALESCE($5, short_link),
			functions = COALESCE($6, functions),
			keywords = COALESCE($7, keywords),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+resourceColumns,
		id, patch.Title, patch.Description, patch.OriginalURL, patch.ShortLink, functions, keywords)
	r, err := scanResource(row)
	if isUniqueViolation(err) {
		return Resource{}, ErrShortLinkTaken
	}
	return r, err
}

func (s *PostgresStore) DeleteResource(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete resource: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (Opportunity, error) {
	var o Opportunity
	err := row.Scan(&o.ID, &o.Title, &o.Description, &o.OriginalURL, &o.ShortLink,
		&o.CoverImageURL, &o.Deadline, &o.OfficeID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanResource(row rowScanner) (Resource, error) {
	var r Resource
	var functions, keywords []byte
	err := row.Scan(&r.ID, &r.Title, &r.Description, &r.OriginalURL, &r.ShortLink,
		&functions, &keywords, &r.OfficeID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Resource{}, err
	}
	if len(functions) > 0 {
		if err := json.Unmarshal(functions, &r.Functions); err != nil {
			return Resource{}, fmt.Errorf("decode functions: %w", err)
		}
	}
	if len(keywords) > 0 {
		if err := json.Unmarshal(keywords, &r.Keywords); err != nil {
			return Resource{}, fmt.Errorf("decode keywords: %w", err)
		}
	}
	return r, nil
}

func marshalLists(functions, keywords []string) ([]byte, []byte, error) {
	if functions == nil {
		functions = []string{}
	}
	if keywords == nil {
		keywords = []string{}
	}
	encodedFunctions, err := json.Marshal(functions)
	if err != nil {
		return nil, nil, fmt.Errorf("encode functions: %w", err)
	}
	encodedKeywords, err := json.Marshal(keywords)
	if err != nil {
		return nil, nil, fmt.Errorf("encode keywords: %w", err)
	}
	return encodedFunctions, encodedKeywords, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
