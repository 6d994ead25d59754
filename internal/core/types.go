// Package core defines the fundamental types for ProfileCRM.
// A contact is a scraped social profile plus everything you know about the person behind it.
package core

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the version tag written into export bundles and
// recorded as the database user_version.
const SchemaVersion = 1

// Defaults applied when a contact is saved without them.
const (
	DefaultList          = "default"
	DefaultPipelineStage = "new"
)

// -----------------------------------------------------------------------------
// CONTACT - A social profile you are tracking
// -----------------------------------------------------------------------------

// Contact is keyed by the profile handle. Username and CreatedAt never change
// once the record exists.
//
// List, Tags and the interactions pointing at a contact are soft references:
// nothing enforces that the list or tags exist.
type Contact struct {
	Username    string `json:"username" validate:"required"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	Website     string `json:"website"`
	JoinDate    string `json:"joinDate"` // As shown on the profile, e.g. "Joined March 2009"
	Followers   int    `json:"followers" validate:"gte=0"`
	Following   int    `json:"following" validate:"gte=0"`
	Verified    bool   `json:"verified"`
	AvatarURL   string `json:"avatarUrl"`
	BannerURL   string `json:"bannerUrl"`

	// CRM fields
	Notes         string   `json:"notes"`
	Tags          []string `json:"tags"` // Tag names, not ids
	List          string   `json:"list"` // List id
	PipelineStage string   `json:"pipelineStage"`

	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	LastInteraction *time.Time `json:"lastInteraction"`
	NextFollowUp    *time.Time `json:"nextFollowUp"`
}

// ContactPatch is a partial update. Nil fields are left untouched.
type ContactPatch struct {
	DisplayName     *string    `json:"displayName,omitempty"`
	Bio             *string    `json:"bio,omitempty"`
	Location        *string    `json:"location,omitempty"`
	Website         *string    `json:"website,omitempty"`
	JoinDate        *string    `json:"joinDate,omitempty"`
	Followers       *int       `json:"followers,omitempty"`
	Following       *int       `json:"following,omitempty"`
	Verified        *bool      `json:"verified,omitempty"`
	AvatarURL       *string    `json:"avatarUrl,omitempty"`
	BannerURL       *string    `json:"bannerUrl,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	Tags            *[]string  `json:"tags,omitempty"`
	List            *string    `json:"list,omitempty"`
	PipelineStage   *string    `json:"pipelineStage,omitempty"`
	LastInteraction *time.Time `json:"lastInteraction,omitempty"`
	NextFollowUp    *time.Time `json:"nextFollowUp,omitempty"`
}

// Apply merges the patch into c.
func (p ContactPatch) Apply(c *Contact) {
	setString(&c.DisplayName, p.DisplayName)
	setString(&c.Bio, p.Bio)
	setString(&c.Location, p.Location)
	setString(&c.Website, p.Website)
	setString(&c.JoinDate, p.JoinDate)
	setString(&c.AvatarURL, p.AvatarURL)
	setString(&c.BannerURL, p.BannerURL)
	setString(&c.Notes, p.Notes)
	setString(&c.List, p.List)
	setString(&c.PipelineStage, p.PipelineStage)
	if p.Followers != nil {
		c.Followers = *p.Followers
	}
	if p.Following != nil {
		c.Following = *p.Following
	}
	if p.Verified != nil {
		c.Verified = *p.Verified
	}
	if p.Tags != nil {
		c.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.LastInteraction != nil {
		t := *p.LastInteraction
		c.LastInteraction = &t
	}
	if p.NextFollowUp != nil {
		t := *p.NextFollowUp
		c.NextFollowUp = &t
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// -----------------------------------------------------------------------------
// LIST & TAG - User-defined groupings
// -----------------------------------------------------------------------------

// List groups contacts. Contacts reference it by id.
type List struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tag labels contacts. Contacts reference it by name, not id.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// -----------------------------------------------------------------------------
// INTERACTION - Something that happened between you and a contact
// -----------------------------------------------------------------------------

// InteractionType is the kind of touchpoint
type InteractionType string

const (
	InteractionNote    InteractionType = "note"
	InteractionDM      InteractionType = "dm"
	InteractionReply   InteractionType = "reply"
	InteractionLike    InteractionType = "like"
	InteractionRetweet InteractionType = "retweet"
	InteractionMention InteractionType = "mention"
	InteractionFollow  InteractionType = "follow"
)

// InteractionTypes lists every valid interaction type.
var InteractionTypes = []InteractionType{
	InteractionNote,
	InteractionDM,
	InteractionReply,
	InteractionLike,
	InteractionRetweet,
	InteractionMention,
	InteractionFollow,
}

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool {
	for _, known := range InteractionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Interaction is immutable once logged.
type Interaction struct {
	ID              string          `json:"id"`
	ContactUsername string          `json:"contactUsername"`
	Type            InteractionType `json:"type"`
	Content         string          `json:"content"`
	Metadata        map[string]any  `json:"metadata"`
	Timestamp       time.Time       `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// SETTINGS, STATS, EXPORT
// -----------------------------------------------------------------------------

// Setting is an opaque JSON value stored under a key.
type Setting struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Stats is the dashboard aggregate. It is recomputed on every request.
type Stats struct {
	TotalContacts      int                     `json:"totalContacts"`
	ByStage            map[string]int          `json:"byStage"`
	ByList             map[string]int          `json:"byList"`
	TotalInteractions  int                     `json:"totalInteractions"`
	InteractionsByType map[InteractionType]int `json:"interactionsByType"`
	RecentContacts     []*Contact              `json:"recentContacts"`
}

// ExportBundle is the portable snapshot of every data collection.
// Settings are not part of it.
type ExportBundle struct {
	Version      int            `json:"version"`
	ExportedAt   int64          `json:"exportedAt"` // Epoch milliseconds
	Contacts     []*Contact     `json:"contacts"`
	Lists        []*List        `json:"lists"`
	Tags         []*Tag         `json:"tags"`
	Interactions []*Interaction `json:"interactions"`
}

// ImportSummary counts the records written by an import. On a partial
// import it reflects what was committed before the failure.
type ImportSummary struct {
	Contacts     int `json:"contacts"`
	Lists        int `json:"lists"`
	Tags         int `json:"tags"`
	Interactions int `json:"interactions"`
}

// DanglingRef is a soft reference whose target does not exist.
type DanglingRef struct {
	From   string `json:"from"`   // Referencing record key
	Target string `json:"target"` // Missing list id, tag name or username
}

// IntegrityReport lists every dangling soft reference in the store.
type IntegrityReport struct {
	MissingLists         []DanglingRef `json:"missingLists"`
	MissingTags          []DanglingRef `json:"missingTags"`
	OrphanedInteractions []DanglingRef `json:"orphanedInteractions"`
}

// Clean reports whether no dangling references were found.
func (r *IntegrityReport) Clean() bool {
	return len(r.MissingLists) == 0 && len(r.MissingTags) == 0 && len(r.OrphanedInteractions) == 0
}
