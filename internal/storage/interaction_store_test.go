package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profilecrm/profilecrm/internal/core"
)

func TestInteractionStore_Log_TouchesContact(t *testing.T) {
	s, clock := testStore(t)
	ctx := context.Background()

	mustSave(t, s, &core.Contact{Username: "alice"})
	clock.Advance(time.Hour)

	interaction, err := s.Interactions.Log(ctx, "alice", core.InteractionNote, "hello", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, interaction.ID)
	assert.Equal(t, "alice", interaction.ContactUsername)
	assert.Equal(t, core.InteractionNote, interaction.Type)
	assert.Equal(t, "hello", interaction.Content)
	assert.Equal(t, map[string]any{}, interaction.Metadata)
	assert.True(t, interaction.Timestamp.Equal(clock.Now()))

	alice, err := s.Contacts.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, alice.LastInteraction)
	assert.True(t, alice.LastInteraction.Equal(interaction.Timestamp))
	assert.True(t, alice.UpdatedAt.Equal(interaction.Timestamp))

	got, err := s.Interactions.Get(ctx, interaction.ID)
	require.NoError(t, err)
	assert.Equal(t, interaction, got)
}

func TestInteractionStore_Log_UnknownContact(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	_, err := s.Interactions.Log(ctx, "ghost", core.InteractionNote, "hello", nil)
	require.NoError(t, err)

	interactions, err := s.Interactions.GetForContact(ctx, "ghost")
	require.NoError(t, err)
	assert.Len(t, interactions, 1)

	ghost, err := s.Contacts.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, ghost, "logging must not create a contact")
}

func TestInteractionStore_Log_Invalid(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		typ      core.InteractionType
	}{
		{"empty username", "", core.InteractionNote},
		{"unknown type", "alice", core.InteractionType("poke")},
		{"empty type", "alice", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Interactions.Log(ctx, tt.username, tt.typ, "x", nil)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}

	all, err := s.Interactions.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInteractionStore_AllTypesAccepted(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	for _, typ := range core.InteractionTypes {
		_, err := s.Interactions.Log(ctx, "alice", typ, "", nil)
		assert.NoError(t, err, "type %s", typ)
	}
}

func TestInteractionStore_GetForContact_NewestFirst(t *testing.T) {
	s, clock := testStore(t)
	ctx := context.Background()

	mustSave(t, s, &core.Contact{Username: "alice"})
	for _, content := range []string{"1", "2", "3"} {
		clock.Advance(time.Millisecond)
		_, err := s.Interactions.Log(ctx, "alice", core.InteractionDM, content, nil)
		require.NoError(t, err)
	}
	_, err := s.Interactions.Log(ctx, "bob", core.InteractionDM, "other", nil)
	require.NoError(t, err)

	got, err := s.Interactions.GetForContact(ctx, "alice")
	require.NoError(t, err)

	contents := make([]string, 0, len(got))
	for _, i := range got {
		contents = append(contents, i.Content)
	}
	assert.Equal(t, []string{"3", "2", "1"}, contents)
}

func TestInteractionStore_Metadata(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	metadata := map[string]any{
		"tweetId": "1789",
		"likes":   float64(12),
		"thread":  []any{"a", "b"},
	}
	logged, err := s.Interactions.Log(ctx, "alice", core.InteractionReply, "nice", metadata)
	require.NoError(t, err)

	got, err := s.Interactions.Get(ctx, logged.ID)
	require.NoError(t, err)
	assert.Equal(t, metadata, got.Metadata)
}

func TestInteractionStore_Delete(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	mustSave(t, s, &core.Contact{Username: "alice"})
	logged, err := s.Interactions.Log(ctx, "alice", core.InteractionLike, "", nil)
	require.NoError(t, err)

	require.NoError(t, s.Interactions.Delete(ctx, logged.ID))

	got, err := s.Interactions.Get(ctx, logged.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	alice, err := s.Contacts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.NotNil(t, alice.LastInteraction, "lastInteraction survives deletion")
}
