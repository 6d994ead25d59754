package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/profilecrm/profilecrm/internal/core"
)

type interactionRow struct {
	ID              string `db:"id"`
	ContactUsername string `db:"contact_username"`
	Type            string `db:"type"`
	Content         string `db:"content"`
	Metadata        string `db:"metadata"`
	Timestamp       int64  `db:"timestamp"`
}

var interactionColumns = []string{"id", "contact_username", "type", "content", "metadata", "timestamp"}

type logInput struct {
	ContactUsername string `validate:"required"`
	Type            string `validate:"oneof=note dm reply like retweet mention follow"`
}

// InteractionStore handles interaction persistence
type InteractionStore struct {
	db       *DB
	contacts *ContactStore
}

// NewInteractionStore creates a new interaction store. contacts is used to
// stamp LastInteraction on the contact an interaction is logged for.
func NewInteractionStore(db *DB, contacts *ContactStore) *InteractionStore {
	return &InteractionStore{db: db, contacts: contacts}
}

// Log records an interaction, then touches the contact's LastInteraction.
//
// The two steps are independent writes. The interaction is committed first
// and Log succeeds once it is; the contact touch is best effort and its
// failure (including the contact not existing) is logged and ignored.
func (s *InteractionStore) Log(ctx context.Context, username string, typ core.InteractionType, content string, metadata map[string]any) (*core.Interaction, error) {
	if err := validateStruct(logInput{ContactUsername: username, Type: string(typ)}); err != nil {
		return nil, err
	}

	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate interaction id: %w", err)
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	interaction := &core.Interaction{
		ID:              id.String(),
		ContactUsername: username,
		Type:            typ,
		Content:         content,
		Metadata:        metadata,
		Timestamp:       s.db.now(),
	}

	row, err := toInteractionRow(interaction)
	if err != nil {
		return nil, err
	}

	_, err = conn.NamedExecContext(ctx, `
		INSERT INTO interactions (id, contact_username, type, content, metadata, timestamp)
		VALUES (:id, :contact_username, :type, :content, :metadata, :timestamp)
	`, row)
	if err != nil {
		return nil, fmt.Errorf("insert interaction: %w", err)
	}

	s.touchContact(ctx, username, interaction.Timestamp)

	return interaction, nil
}

// touchContact sets LastInteraction on the contact. Best effort: failure is
// never returned to the caller.
func (s *InteractionStore) touchContact(ctx context.Context, username string, at time.Time) {
	_, err := s.contacts.Update(ctx, username, core.ContactPatch{LastInteraction: &at})
	if err == nil {
		return
	}

	log := s.db.log.WithField("username", username)
	if errors.Is(err, core.ErrContactNotFound) {
		log.Debug("interaction logged for unknown contact")
		return
	}
	log.WithError(err).Warn("failed to update last interaction")
}

// Get returns an interaction by id, or nil if there is none
func (s *InteractionStore) Get(ctx context.Context, id string) (*core.Interaction, error) {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(interactionColumns...).From("interactions").Where(sb.Equal("id", id))
	query, args := sb.Build()

	var row interactionRow
	err = conn.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get interaction %s: %w", id, err)
	}

	return row.toInteraction(), nil
}

// GetForContact returns a contact's interactions, most recent first
func (s *InteractionStore) GetForContact(ctx context.Context, username string) ([]*core.Interaction, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(interactionColumns...).
		From("interactions").
		Where(sb.Equal("contact_username", username)).
		OrderBy("timestamp").Desc()
	return s.selectInteractions(ctx, sb)
}

// GetAll returns every interaction
func (s *InteractionStore) GetAll(ctx context.Context) ([]*core.Interaction, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(interactionColumns...).From("interactions")
	return s.selectInteractions(ctx, sb)
}

// Delete removes an interaction unconditionally. The contact's
// LastInteraction is left as is.
func (s *InteractionStore) Delete(ctx context.Context, id string) error {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, `DELETE FROM interactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete interaction %s: %w", id, err)
	}
	return nil
}

// put writes an interaction verbatim, replacing any with the same id
func (s *InteractionStore) put(ctx context.Context, interaction *core.Interaction) error {
	if interaction == nil {
		return fmt.Errorf("%w: null interaction", core.ErrInvalidInput)
	}

	conn, err := s.db.handle(ctx)
	if err != nil {
		return err
	}

	row, err := toInteractionRow(interaction)
	if err != nil {
		return err
	}

	_, err = conn.NamedExecContext(ctx, `
		INSERT INTO interactions (id, contact_username, type, content, metadata, timestamp)
		VALUES (:id, :contact_username, :type, :content, :metadata, :timestamp)
		ON CONFLICT(id) DO UPDATE SET
		    contact_username = excluded.contact_username,
		    type = excluded.type,
		    content = excluded.content,
		    metadata = excluded.metadata,
		    timestamp = excluded.timestamp
	`, row)
	if err != nil {
		return fmt.Errorf("put interaction %s: %w", interaction.ID, err)
	}
	return nil
}

func (s *InteractionStore) selectInteractions(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]*core.Interaction, error) {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	query, args := sb.Build()

	var rows []interactionRow
	if err := conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}

	interactions := make([]*core.Interaction, 0, len(rows))
	for i := range rows {
		interactions = append(interactions, rows[i].toInteraction())
	}
	return interactions, nil
}

func toInteractionRow(i *core.Interaction) (*interactionRow, error) {
	metadata := i.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return &interactionRow{
		ID:              i.ID,
		ContactUsername: i.ContactUsername,
		Type:            string(i.Type),
		Content:         i.Content,
		Metadata:        string(data),
		Timestamp:       toMillis(i.Timestamp),
	}, nil
}

func (r *interactionRow) toInteraction() *core.Interaction {
	i := &core.Interaction{
		ID:              r.ID,
		ContactUsername: r.ContactUsername,
		Type:            core.InteractionType(r.Type),
		Content:         r.Content,
		Timestamp:       fromMillis(r.Timestamp),
	}
	if err := json.Unmarshal([]byte(r.Metadata), &i.Metadata); err != nil || i.Metadata == nil {
		i.Metadata = map[string]any{}
	}
	return i
}
