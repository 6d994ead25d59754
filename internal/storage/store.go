package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/profilecrm/profilecrm/internal/core"
)

// recentContactsLimit is how many newest contacts Stats reports
const recentContactsLimit = 5

// Store is the local CRM store: every collection accessor over one
// database, plus the operations that span collections.
//
// Cross-collection operations are sequences of independent single-table
// writes. Nothing here is atomic across collections.
type Store struct {
	db *DB

	Contacts     *ContactStore
	Lists        *ListStore
	Tags         *TagStore
	Interactions *InteractionStore
	Settings     *SettingStore
}

// NewStore wires the collection accessors over db. db may still be
// unopened; the first call into any accessor opens it.
func NewStore(db *DB) *Store {
	contacts := NewContactStore(db)
	return &Store{
		db:           db,
		Contacts:     contacts,
		Lists:        NewListStore(db),
		Tags:         NewTagStore(db),
		Interactions: NewInteractionStore(db, contacts),
		Settings:     NewSettingStore(db),
	}
}

// DB returns the underlying database handle
func (s *Store) DB() *DB {
	return s.db
}

// Stats scans contacts and interactions and aggregates them
func (s *Store) Stats(ctx context.Context) (*core.Stats, error) {
	var (
		contacts     []*core.Contact
		interactions []*core.Interaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		contacts, err = s.Contacts.GetAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		interactions, err = s.Interactions.GetAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &core.Stats{
		TotalContacts:      len(contacts),
		ByStage:            make(map[string]int),
		ByList:             make(map[string]int),
		TotalInteractions:  len(interactions),
		InteractionsByType: make(map[core.InteractionType]int),
	}

	for _, c := range contacts {
		stats.ByStage[c.PipelineStage]++
		stats.ByList[c.List]++
	}
	for _, i := range interactions {
		stats.InteractionsByType[i.Type]++
	}

	recent := slices.Clone(contacts)
	slices.SortStableFunc(recent, func(a, b *core.Contact) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(recent) > recentContactsLimit {
		recent = recent[:recentContactsLimit]
	}
	stats.RecentContacts = recent

	return stats, nil
}

// Export snapshots contacts, lists, tags and interactions into a bundle.
// Settings are not exported.
func (s *Store) Export(ctx context.Context) (*core.ExportBundle, error) {
	bundle := &core.ExportBundle{Version: core.SchemaVersion}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		bundle.Contacts, err = s.Contacts.GetAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		bundle.Lists, err = s.Lists.GetAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		bundle.Tags, err = s.Tags.GetAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		bundle.Interactions, err = s.Interactions.GetAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	bundle.ExportedAt = toMillis(s.db.now())
	return bundle, nil
}

// Import upserts every record in the bundle. The version is checked before
// anything is written. Contacts go through the same default-filling path as
// Save; lists, tags and interactions are written as given. Records are
// written one at a time, so a failure part way leaves the earlier ones in
// place; the returned summary counts them.
func (s *Store) Import(ctx context.Context, bundle *core.ExportBundle) (*core.ImportSummary, error) {
	if bundle == nil {
		return nil, fmt.Errorf("%w: empty bundle", core.ErrInvalidInput)
	}
	if bundle.Version != core.SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", core.ErrUnsupportedVersion, bundle.Version, core.SchemaVersion)
	}

	summary := &core.ImportSummary{}

	for _, c := range bundle.Contacts {
		if _, err := s.Contacts.Save(ctx, c); err != nil {
			return summary, fmt.Errorf("import contact: %w", err)
		}
		summary.Contacts++
	}
	for _, l := range bundle.Lists {
		if err := s.Lists.put(ctx, l); err != nil {
			return summary, fmt.Errorf("import list: %w", err)
		}
		summary.Lists++
	}
	for _, t := range bundle.Tags {
		if err := s.Tags.put(ctx, t); err != nil {
			return summary, fmt.Errorf("import tag: %w", err)
		}
		summary.Tags++
	}
	for _, i := range bundle.Interactions {
		if err := s.Interactions.put(ctx, i); err != nil {
			return summary, fmt.Errorf("import interaction: %w", err)
		}
		summary.Interactions++
	}

	s.db.log.WithFields(map[string]interface{}{
		"contacts":     summary.Contacts,
		"lists":        summary.Lists,
		"tags":         summary.Tags,
		"interactions": summary.Interactions,
	}).Info("import complete")

	return summary, nil
}

// CheckReferences reports soft references that point at nothing: contacts
// on a missing list, contacts carrying an unknown tag name, and interactions
// whose contact is gone. It only reads.
func (s *Store) CheckReferences(ctx context.Context) (*core.IntegrityReport, error) {
	bundle, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}

	lists := make(map[string]bool, len(bundle.Lists))
	for _, l := range bundle.Lists {
		lists[l.ID] = true
	}
	tags := make(map[string]bool, len(bundle.Tags))
	for _, t := range bundle.Tags {
		tags[t.Name] = true
	}
	contacts := make(map[string]bool, len(bundle.Contacts))
	for _, c := range bundle.Contacts {
		contacts[c.Username] = true
	}

	report := &core.IntegrityReport{}
	for _, c := range bundle.Contacts {
		if c.List != core.DefaultList && !lists[c.List] {
			report.MissingLists = append(report.MissingLists, core.DanglingRef{From: c.Username, Target: c.List})
		}
		for _, name := range c.Tags {
			if !tags[name] {
				report.MissingTags = append(report.MissingTags, core.DanglingRef{From: c.Username, Target: name})
			}
		}
	}
	for _, i := range bundle.Interactions {
		if !contacts[i.ContactUsername] {
			report.OrphanedInteractions = append(report.OrphanedInteractions, core.DanglingRef{From: i.ID, Target: i.ContactUsername})
		}
	}

	return report, nil
}

// WriteBundle encodes a bundle as indented JSON
func WriteBundle(w io.Writer, bundle *core.ExportBundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(bundle)
}

// ReadBundle decodes a bundle. It does not check the version; Import does.
func ReadBundle(r io.Reader) (*core.ExportBundle, error) {
	var bundle core.ExportBundle
	if err := json.NewDecoder(r).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("%w: decode bundle: %w", core.ErrInvalidInput, err)
	}
	return &bundle, nil
}
