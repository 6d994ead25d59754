package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/profilecrm/profilecrm/internal/core"
)

// contactRow is the persisted shape of a contact
type contactRow struct {
	Username        string        `db:"username"`
	DisplayName     string        `db:"display_name"`
	Bio             string        `db:"bio"`
	Location        string        `db:"location"`
	Website         string        `db:"website"`
	JoinDate        string        `db:"join_date"`
	Followers       int           `db:"followers"`
	Following       int           `db:"following"`
	Verified        bool          `db:"verified"`
	AvatarURL       string        `db:"avatar_url"`
	BannerURL       string        `db:"banner_url"`
	Notes           string        `db:"notes"`
	Tags            string        `db:"tags"`
	List            string        `db:"list"`
	PipelineStage   string        `db:"pipeline_stage"`
	CreatedAt       int64         `db:"created_at"`
	UpdatedAt       int64         `db:"updated_at"`
	LastInteraction sql.NullInt64 `db:"last_interaction"`
	NextFollowUp    sql.NullInt64 `db:"next_follow_up"`
}

var contactColumns = []string{
	"username", "display_name", "bio", "location", "website", "join_date",
	"followers", "following", "verified", "avatar_url", "banner_url",
	"notes", "tags", "list", "pipeline_stage",
	"created_at", "updated_at", "last_interaction", "next_follow_up",
}

// created_at is written once and never updated.
const upsertContactSQL = `
	INSERT INTO contacts (
	    username, display_name, bio, location, website, join_date,
	    followers, following, verified, avatar_url, banner_url,
	    notes, tags, list, pipeline_stage,
	    created_at, updated_at, last_interaction, next_follow_up
	) VALUES (
	    :username, :display_name, :bio, :location, :website, :join_date,
	    :followers, :following, :verified, :avatar_url, :banner_url,
	    :notes, :tags, :list, :pipeline_stage,
	    :created_at, :updated_at, :last_interaction, :next_follow_up
	)
	ON CONFLICT(username) DO UPDATE SET
	    display_name = excluded.display_name,
	    bio = excluded.bio,
	    location = excluded.location,
	    website = excluded.website,
	    join_date = excluded.join_date,
	    followers = excluded.followers,
	    following = excluded.following,
	    verified = excluded.verified,
	    avatar_url = excluded.avatar_url,
	    banner_url = excluded.banner_url,
	    notes = excluded.notes,
	    tags = excluded.tags,
	    list = excluded.list,
	    pipeline_stage = excluded.pipeline_stage,
	    updated_at = excluded.updated_at,
	    last_interaction = excluded.last_interaction,
	    next_follow_up = excluded.next_follow_up
	RETURNING created_at
`

// ContactStore handles contact persistence
type ContactStore struct {
	db *DB
}

// NewContactStore creates a new contact store
func NewContactStore(db *DB) *ContactStore {
	return &ContactStore{db: db}
}

// Save upserts a contact keyed by username. Missing list, stage, tags and
// notes get their defaults, CreatedAt is kept from the first save, and
// UpdatedAt is always refreshed. The stored record is returned; the
// argument is not modified.
func (s *ContactStore) Save(ctx context.Context, contact *core.Contact) (*core.Contact, error) {
	if contact == nil {
		return nil, fmt.Errorf("%w: nil contact", core.ErrInvalidInput)
	}

	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	c := withContactDefaults(*contact)
	if err := validateStruct(c); err != nil {
		return nil, err
	}

	now := s.db.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	row, err := toContactRow(&c)
	if err != nil {
		return nil, err
	}

	query, args, err := sqlx.Named(upsertContactSQL, row)
	if err != nil {
		return nil, fmt.Errorf("bind contact: %w", err)
	}

	var createdAt int64
	if err := conn.QueryRowxContext(ctx, query, args...).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("upsert contact %s: %w", c.Username, err)
	}
	c.CreatedAt = fromMillis(createdAt)

	s.db.log.WithField("username", c.Username).Debug("contact saved")
	return &c, nil
}

// Get returns a contact by username, or nil if there is none
func (s *ContactStore) Get(ctx context.Context, username string) (*core.Contact, error) {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(contactColumns...).From("contacts").Where(sb.Equal("username", username))
	query, args := sb.Build()

	var row contactRow
	err = conn.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact %s: %w", username, err)
	}

	return row.toContact(), nil
}

// GetAll returns every contact
func (s *ContactStore) GetAll(ctx context.Context) ([]*core.Contact, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(contactColumns...).From("contacts")
	return s.selectContacts(ctx, sb)
}

// GetByList returns the contacts assigned to a list, in no particular order
func (s *ContactStore) GetByList(ctx context.Context, listID string) ([]*core.Contact, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(contactColumns...).From("contacts").Where(sb.Equal("list", listID))
	return s.selectContacts(ctx, sb)
}

// GetByPipelineStage returns the contacts in a stage, in no particular order
func (s *ContactStore) GetByPipelineStage(ctx context.Context, stage string) ([]*core.Contact, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(contactColumns...).From("contacts").Where(sb.Equal("pipeline_stage", stage))
	return s.selectContacts(ctx, sb)
}

// DueFollowUps returns contacts whose next follow-up is at or before the
// given time, soonest first
func (s *ContactStore) DueFollowUps(ctx context.Context, before time.Time) ([]*core.Contact, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(contactColumns...).
		From("contacts").
		Where(
			sb.IsNotNull("next_follow_up"),
			sb.LessEqualThan("next_follow_up", toMillis(before)),
		).
		OrderBy("next_follow_up").Asc()
	return s.selectContacts(ctx, sb)
}

// Delete removes a contact. Interactions logged for it are kept.
func (s *ContactStore) Delete(ctx context.Context, username string) error {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, `DELETE FROM contacts WHERE username = ?`, username); err != nil {
		return fmt.Errorf("delete contact %s: %w", username, err)
	}

	s.db.log.WithField("username", username).Debug("contact deleted")
	return nil
}

// Update merges a partial update into an existing contact and saves it.
// It fails with core.ErrContactNotFound, without writing, if the contact
// does not exist.
func (s *ContactStore) Update(ctx context.Context, username string, patch core.ContactPatch) (*core.Contact, error) {
	existing, err := s.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrContactNotFound, username)
	}

	patch.Apply(existing)
	return s.Save(ctx, existing)
}

// Search does a case-insensitive substring match over username, display
// name, bio, notes and tag names. It scans every contact.
func (s *ContactStore) Search(ctx context.Context, query string) ([]*core.Contact, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	matches := make([]*core.Contact, 0)
	for _, c := range all {
		if contactMatches(c, q) {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

func contactMatches(c *core.Contact, q string) bool {
	fields := []string{c.Username, c.DisplayName, c.Bio, c.Notes}
	fields = append(fields, c.Tags...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Count returns total contact count
func (s *ContactStore) Count(ctx context.Context) (int, error) {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	err = conn.GetContext(ctx, &count, "SELECT COUNT(*) FROM contacts")
	return count, err
}

func (s *ContactStore) selectContacts(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]*core.Contact, error) {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	query, args := sb.Build()

	var rows []contactRow
	if err := conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}

	contacts := make([]*core.Contact, 0, len(rows))
	for i := range rows {
		contacts = append(contacts, rows[i].toContact())
	}
	return contacts, nil
}

// withContactDefaults fills absent fields and normalizes timestamps to the
// millisecond precision the database keeps
func withContactDefaults(c core.Contact) core.Contact {
	if c.List == "" {
		c.List = core.DefaultList
	}
	if c.PipelineStage == "" {
		c.PipelineStage = core.DefaultPipelineStage
	}
	if c.Tags == nil {
		c.Tags = []string{}
	} else {
		c.Tags = append([]string(nil), c.Tags...)
	}
	if !c.CreatedAt.IsZero() {
		c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Millisecond)
	}
	c.LastInteraction = truncatedCopy(c.LastInteraction)
	c.NextFollowUp = truncatedCopy(c.NextFollowUp)
	return c
}

func truncatedCopy(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Millisecond)
	return &v
}

func toContactRow(c *core.Contact) (*contactRow, error) {
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	return &contactRow{
		Username:        c.Username,
		DisplayName:     c.DisplayName,
		Bio:             c.Bio,
		Location:        c.Location,
		Website:         c.Website,
		JoinDate:        c.JoinDate,
		Followers:       c.Followers,
		Following:       c.Following,
		Verified:        c.Verified,
		AvatarURL:       c.AvatarURL,
		BannerURL:       c.BannerURL,
		Notes:           c.Notes,
		Tags:            string(tags),
		List:            c.List,
		PipelineStage:   c.PipelineStage,
		CreatedAt:       toMillis(c.CreatedAt),
		UpdatedAt:       toMillis(c.UpdatedAt),
		LastInteraction: nullMillis(c.LastInteraction),
		NextFollowUp:    nullMillis(c.NextFollowUp),
	}, nil
}

func (r *contactRow) toContact() *core.Contact {
	c := &core.Contact{
		Username:        r.Username,
		DisplayName:     r.DisplayName,
		Bio:             r.Bio,
		Location:        r.Location,
		Website:         r.Website,
		JoinDate:        r.JoinDate,
		Followers:       r.Followers,
		Following:       r.Following,
		Verified:        r.Verified,
		AvatarURL:       r.AvatarURL,
		BannerURL:       r.BannerURL,
		Notes:           r.Notes,
		List:            r.List,
		PipelineStage:   r.PipelineStage,
		CreatedAt:       fromMillis(r.CreatedAt),
		UpdatedAt:       fromMillis(r.UpdatedAt),
		LastInteraction: fromNullMillis(r.LastInteraction),
		NextFollowUp:    fromNullMillis(r.NextFollowUp),
	}

	if err := json.Unmarshal([]byte(r.Tags), &c.Tags); err != nil || c.Tags == nil {
		c.Tags = []string{}
	}
	return c
}
