package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/profilecrm/profilecrm/internal/core"
	"github.com/profilecrm/profilecrm/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testServer creates a test server over an in-memory store
func testServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()

	db, err := storage.Open(context.Background(), storage.Config{InMemory: true})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	store := storage.NewStore(db)
	return New(Config{Store: store, Version: "test"}), store
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}

// --- Health ---

func TestAPI_Health(t *testing.T) {
	srv, _ := testServer(t)

	rr := do(t, srv, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[map[string]interface{}](t, rr)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
	assert.Equal(t, float64(core.SchemaVersion), resp["schemaVersion"])
}

// --- Contacts ---

func TestAPI_SaveAndGetContact(t *testing.T) {
	srv, _ := testServer(t)

	rr := do(t, srv, "PUT", "/api/v1/contacts/alice", `{"displayName": "Alice", "followers": 10}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	saved := decode[core.Contact](t, rr)
	assert.Equal(t, "alice", saved.Username)
	assert.Equal(t, core.DefaultPipelineStage, saved.PipelineStage)
	assert.Equal(t, core.DefaultList, saved.List)
	assert.Equal(t, []string{}, saved.Tags)

	rr = do(t, srv, "GET", "/api/v1/contacts/alice", "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[core.Contact](t, rr)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, 10, got.Followers)
}

func TestAPI_SaveContact_Body(t *testing.T) {
	srv, store := testServer(t)

	rr := do(t, srv, "PUT", "/api/v1/contacts", `{"username": "bob", "bio": "Designer"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	bob, err := store.Contacts.Get(context.Background(), "bob")
	require.NoError(t, err)
	require.NotNil(t, bob)
	assert.Equal(t, "Designer", bob.Bio)
}

func TestAPI_SaveContact_Invalid(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"invalid json", "/api/v1/contacts/alice", "invalid"},
		{"missing username", "/api/v1/contacts", `{"bio": "x"}`},
		{"mismatched username", "/api/v1/contacts/alice", `{"username": "bob"}`},
		{"negative followers", "/api/v1/contacts/alice", `{"followers": -5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, "PUT", tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}
}

func TestAPI_GetContact_NotFound(t *testing.T) {
	srv, _ := testServer(t)

	rr := do(t, srv, "GET", "/api/v1/contacts/nobody", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	resp := decode[map[string]string](t, rr)
	assert.Contains(t, resp["error"], "contact not found")
}

func TestAPI_UpdateContact(t *testing.T) {
	srv, store := testServer(t)
	ctx := context.Background()

	_, err := store.Contacts.Save(ctx, &core.Contact{Username: "alice", Bio: "Builder"})
	require.NoError(t, err)

	rr := do(t, srv, "PATCH", "/api/v1/contacts/alice", `{"pipelineStage": "qualified", "tags": ["vip"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	updated := decode[core.Contact](t, rr)
	assert.Equal(t, "qualified", updated.PipelineStage)
	assert.Equal(t, []string{"vip"}, updated.Tags)
	assert.Equal(t, "Builder", updated.Bio)

	rr = do(t, srv, "PATCH", "/api/v1/contacts/ghost", `{"notes": "x"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	ghost, err := store.Contacts.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, ghost)
}

func TestAPI_DeleteContact(t *testing.T) {
	srv, store := testServer(t)
	ctx := context.Background()

	_, err := store.Contacts.Save(ctx, &core.Contact{Username: "alice"})
	require.NoError(t, err)

	rr := do(t, srv, "DELETE", "/api/v1/contacts/alice", "")
	require.Equal(t, http.StatusOK, rr.Code)

	alice, err := store.Contacts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, alice)
}

func TestAPI_GetContacts_Filters(t *testing.T) {
	srv, store := testServer(t)
	ctx := context.Background()

	for _, c := range []*core.Contact{
		{Username: "alice", List: "vip", PipelineStage: "qualified"},
		{Username: "bob", List: "vip"},
		{Username: "carol", Bio: "Go developer", PipelineStage: "qualified"},
	} {
		_, err := store.Contacts.Save(ctx, c)
		require.NoError(t, err)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"alice", "bob", "carol"}},
		{"?list=vip", []string{"alice", "bob"}},
		{"?stage=qualified", []string{"alice", "carol"}},
		{"?list=vip&stage=qualified", []string{"alice"}},
		{"?q=developer", []string{"carol"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := do(t, srv, "GET", "/api/v1/contacts"+tt.query, "")
			require.Equal(t, http.StatusOK, rr.Code)

			var names []string
			for _, c := range decode[[]core.Contact](t, rr) {
				names = append(names, c.Username)
			}
			assert.ElementsMatch(t, tt.want, names)
		})
	}
}

func TestAPI_FollowUps(t *testing.T) {
	srv, _ := testServer(t)

	rr := do(t, srv, "PUT", "/api/v1/contacts/alice", `{"nextFollowUp": "2024-01-01T09:00:00Z"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, srv, "PUT", "/api/v1/contacts/bob", `{"nextFollowUp": "2024-06-01T09:00:00Z"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, srv, "GET", "/api/v1/followups?before=2024-03-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rr.Code)
	due := decode[[]core.Contact](t, rr)
	require.Len(t, due, 1)
	assert.Equal(t, "alice", due[0].Username)

	rr = do(t, srv, "GET", "/api/v1/followups?before=tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- Lists & Tags ---

func TestAPI_Lists(t *testing.T) {
	srv, store := testServer(t)

	rr := do(t, srv, "POST", "/api/v1/lists", `{"name": "Leads"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	list := decode[core.List](t, rr)
	assert.Equal(t, "Leads", list.Name)
	assert.Equal(t, storage.DefaultListColor, list.Color)

	rr = do(t, srv, "POST", "/api/v1/lists", `{"name": ""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	_, err := store.Contacts.Save(context.Background(), &core.Contact{Username: "alice", List: list.ID})
	require.NoError(t, err)

	rr = do(t, srv, "GET", "/api/v1/lists/"+list.ID+"/contacts", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Contact](t, rr), 1)

	rr = do(t, srv, "GET", "/api/v1/lists", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.List](t, rr), 1)

	rr = do(t, srv, "DELETE", "/api/v1/lists/"+list.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, srv, "GET", "/api/v1/lists/"+list.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_Tags(t *testing.T) {
	srv, _ := testServer(t)

	rr := do(t, srv, "POST", "/api/v1/tags", `{"name": "vip", "color": "#ff00ff"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	tag := decode[core.Tag](t, rr)
	assert.Equal(t, "#ff00ff", tag.Color)

	rr = do(t, srv, "GET", "/api/v1/tags/"+tag.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, srv, "DELETE", "/api/v1/tags/"+tag.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, srv, "GET", "/api/v1/tags", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]core.Tag](t, rr))

	rr = do(t, srv, "GET", "/api/v1/tags/"+tag.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// --- Interactions ---

func TestAPI_LogInteraction(t *testing.T) {
	srv, store := testServer(t)
	ctx := context.Background()

	_, err := store.Contacts.Save(ctx, &core.Contact{Username: "alice"})
	require.NoError(t, err)

	rr := do(t, srv, "POST", "/api/v1/interactions",
		`{"contactUsername": "alice", "type": "dm", "content": "hey", "metadata": {"threadId": "42"}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	logged := decode[core.Interaction](t, rr)
	assert.Equal(t, core.InteractionDM, logged.Type)
	assert.Equal(t, "42", logged.Metadata["threadId"])

	alice, err := store.Contacts.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, alice.LastInteraction)
	assert.True(t, alice.LastInteraction.Equal(logged.Timestamp))

	rr = do(t, srv, "GET", "/api/v1/contacts/alice/interactions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Interaction](t, rr), 1)

	rr = do(t, srv, "GET", "/api/v1/interactions/"+logged.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, srv, "DELETE", "/api/v1/interactions/"+logged.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, srv, "GET", "/api/v1/interactions/"+logged.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_LogInteraction_Invalid(t *testing.T) {
	srv, _ := testServer(t)

	rr := do(t, srv, "POST", "/api/v1/interactions", `{"contactUsername": "alice", "type": "poke"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, "POST", "/api/v1/interactions", `{"type": "note"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- Settings ---

func TestAPI_Settings(t *testing.T) {
	srv, _ := testServer(t)

	rr := do(t, srv, "GET", "/api/v1/settings/theme", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, "PUT", "/api/v1/settings/theme", `{"mode": "dark"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, srv, "GET", "/api/v1/settings/theme", "")
	require.Equal(t, http.StatusOK, rr.Code)
	setting := decode[core.Setting](t, rr)
	assert.Equal(t, "theme", setting.Key)
	assert.JSONEq(t, `{"mode": "dark"}`, string(setting.Value))

	rr = do(t, srv, "PUT", "/api/v1/settings/theme", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, "GET", "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Setting](t, rr), 1)
}

func TestAPI_Settings_TooLarge(t *testing.T) {
	srv, store := testServer(t)

	// Still valid JSON if it were cut at the limit
	rr := do(t, srv, "PUT", "/api/v1/settings/big", strings.Repeat("7", maxSettingSize+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	_, found, err := store.Settings.Get(context.Background(), "big")
	require.NoError(t, err)
	assert.False(t, found, "nothing stored")

	rr = do(t, srv, "PUT", "/api/v1/settings/big", strings.Repeat("7", maxSettingSize))
	require.Equal(t, http.StatusOK, rr.Code)

	value, found, err := store.Settings.Get(context.Background(), "big")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, value, maxSettingSize)
}

// --- Stats, export, import ---

func TestAPI_Stats(t *testing.T) {
	srv, store := testServer(t)
	ctx := context.Background()

	for _, c := range []*core.Contact{
		{Username: "a"},
		{Username: "b"},
		{Username: "c", PipelineStage: "qualified"},
	} {
		_, err := store.Contacts.Save(ctx, c)
		require.NoError(t, err)
	}

	rr := do(t, srv, "GET", "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)

	stats := decode[core.Stats](t, rr)
	assert.Equal(t, 3, stats.TotalContacts)
	assert.Equal(t, map[string]int{"new": 2, "qualified": 1}, stats.ByStage)
}

func TestAPI_ExportImport(t *testing.T) {
	src, srcStore := testServer(t)
	ctx := context.Background()

	_, err := srcStore.Contacts.Save(ctx, &core.Contact{Username: "alice", Tags: []string{"vip"}})
	require.NoError(t, err)
	_, err = srcStore.Tags.Create(ctx, "vip", "")
	require.NoError(t, err)
	_, err = srcStore.Interactions.Log(ctx, "alice", core.InteractionNote, "hi", nil)
	require.NoError(t, err)

	rr := do(t, src, "GET", "/api/v1/export", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "profilecrm-export-")
	exported := rr.Body.String()

	dst, dstStore := testServer(t)
	rr = do(t, dst, "POST", "/api/v1/import", exported)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, core.ImportSummary{Contacts: 1, Tags: 1, Interactions: 1}, decode[core.ImportSummary](t, rr))

	alice, err := dstStore.Contacts.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.Equal(t, []string{"vip"}, alice.Tags)
}

func TestAPI_Import_WrongVersion(t *testing.T) {
	srv, store := testServer(t)

	rr := do(t, srv, "POST", "/api/v1/import", `{"version": 2, "contacts": [{"username": "alice"}]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	count, err := store.Contacts.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	rr = do(t, srv, "POST", "/api/v1/import", `nope`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_Integrity(t *testing.T) {
	srv, store := testServer(t)

	_, err := store.Contacts.Save(context.Background(), &core.Contact{Username: "alice", Tags: []string{"missing"}})
	require.NoError(t, err)

	rr := do(t, srv, "GET", "/api/v1/integrity", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Clean  bool                 `json:"clean"`
		Report core.IntegrityReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Clean)
	assert.Equal(t, []core.DanglingRef{{From: "alice", Target: "missing"}}, resp.Report.MissingTags)
}

// --- Helpers ---

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", core.ErrContactNotFound), http.StatusNotFound},
		{core.ErrListNotFound, http.StatusNotFound},
		{core.ErrTagNotFound, http.StatusNotFound},
		{core.ErrInteractionNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: bad", core.ErrInvalidInput), http.StatusBadRequest},
		{core.ErrUnsupportedVersion, http.StatusBadRequest},
		{fmt.Errorf("%w: disk", core.ErrStoreInit), http.StatusServiceUnavailable},
		{errors.New("disk I/O error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestAPI_RespondError(t *testing.T) {
	srv, _ := testServer(t)
	rr := httptest.NewRecorder()

	srv.respondError(rr, http.StatusBadRequest, "test error")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "test error", decode[map[string]string](t, rr)["error"])
}
