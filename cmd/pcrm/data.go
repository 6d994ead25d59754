package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/profilecrm/profilecrm/internal/core"
	"github.com/profilecrm/profilecrm/internal/storage"
)

// statusCmd prints the dashboard summary
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			due, err := store.Contacts.DueFollowUps(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			fmt.Println(bold("ProfileCRM Status"))
			fmt.Println()
			fmt.Printf("   Database:     %s\n", cfg.DatabasePath())
			fmt.Printf("   Contacts:     %d\n", stats.TotalContacts)
			fmt.Printf("   Interactions: %d\n", stats.TotalInteractions)
			fmt.Printf("   Follow-ups:   %d due\n", len(due))

			printCounts("By stage", stats.ByStage)
			printCounts("By list", stats.ByList)

			byType := make(map[string]int, len(stats.InteractionsByType))
			for t, n := range stats.InteractionsByType {
				byType[string(t)] = n
			}
			printCounts("Interactions by type", byType)

			if len(stats.RecentContacts) > 0 {
				fmt.Println()
				fmt.Println(bold("Recently added"))
				for _, c := range stats.RecentContacts {
					printContactLine(c)
				}
			}
			return nil
		},
	}
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println()
	fmt.Println(bold(title))
	for _, k := range keys {
		fmt.Printf("   %-20s %d\n", k, counts[k])
	}
}

// logCmd records an interaction
func logCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <username> <type> [content...]",
		Short: "Log an interaction with a contact",
		Long: fmt.Sprintf(`Log an interaction with a contact and stamp its last interaction time.

Types: %s`, joinTypes()),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			username := strings.TrimPrefix(args[0], "@")
			typ := core.InteractionType(strings.ToLower(args[1]))
			content := strings.Join(args[2:], " ")

			interaction, err := store.Interactions.Log(cmd.Context(), username, typ, content, nil)
			if err != nil {
				return err
			}

			fmt.Printf("Logged %s with @%s (%s)\n", interaction.Type, username, dim(interaction.ID))

			contact, err := store.Contacts.Get(cmd.Context(), username)
			if err != nil {
				return err
			}
			if contact == nil {
				fmt.Println(yellow("   Note: @" + username + " is not a saved contact."))
			}
			return nil
		},
	}
}

func joinTypes() string {
	names := make([]string, 0, len(core.InteractionTypes))
	for _, t := range core.InteractionTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

// exportCmd writes the export bundle to a file or stdout
func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export contacts, lists, tags and interactions as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			bundle, err := store.Export(cmd.Context())
			if err != nil {
				return err
			}

			if len(args) == 0 || args[0] == "-" {
				return storage.WriteBundle(os.Stdout, bundle)
			}

			f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				return err
			}
			if err := storage.WriteBundle(f, bundle); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Exported %d contacts, %d lists, %d tags, %d interactions to %s\n",
				len(bundle.Contacts), len(bundle.Lists), len(bundle.Tags), len(bundle.Interactions), args[0])
			return nil
		},
	}
}

// importCmd applies an export bundle
func importCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import an export bundle (upserts, never deletes)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			bundle, err := storage.ReadBundle(r)
			if err != nil {
				return err
			}
			if bundle.Version != core.SchemaVersion {
				return fmt.Errorf("%w: got %d, want %d", core.ErrUnsupportedVersion, bundle.Version, core.SchemaVersion)
			}

			fmt.Printf("Bundle from %s: %d contacts, %d lists, %d tags, %d interactions\n",
				time.UnixMilli(bundle.ExportedAt).Local().Format("2006-01-02 15:04"),
				len(bundle.Contacts), len(bundle.Lists), len(bundle.Tags), len(bundle.Interactions))

			if !yes {
				if args[0] == "-" {
					return fmt.Errorf("reading the bundle from stdin requires --yes")
				}
				ok, err := confirm("Records with the same key will be overwritten. Continue?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}

			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			summary, err := store.Import(cmd.Context(), bundle)
			if summary != nil {
				fmt.Printf("Imported %d contacts, %d lists, %d tags, %d interactions\n",
					summary.Contacts, summary.Lists, summary.Tags, summary.Interactions)
			}
			if err != nil {
				return fmt.Errorf("import stopped part way: %w", err)
			}
			fmt.Println(green("Import complete."))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

// checkCmd reports dangling references. It exits non-zero when any exist.
func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Find contacts and interactions pointing at missing records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			report, err := store.CheckReferences(cmd.Context())
			if err != nil {
				return err
			}

			if report.Clean() {
				fmt.Println(green("No dangling references."))
				return nil
			}

			printRefs("Contacts on a missing list", "@%s -> list %s", report.MissingLists)
			printRefs("Contacts with an unknown tag", "@%s -> #%s", report.MissingTags)
			printRefs("Interactions for a missing contact", "%s -> @%s", report.OrphanedInteractions)

			total := len(report.MissingLists) + len(report.MissingTags) + len(report.OrphanedInteractions)
			return fmt.Errorf("found %d dangling references", total)
		},
	}
}

func printRefs(title, format string, refs []core.DanglingRef) {
	if len(refs) == 0 {
		return
	}
	fmt.Printf("%s (%d)\n", red(title), len(refs))
	for _, ref := range refs {
		fmt.Printf("   "+format+"\n", ref.From, ref.Target)
	}
	fmt.Println()
}

// confirm asks a yes/no question on the terminal. It refuses to guess when
// stdin is not a terminal.
func confirm(question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("stdin is not a terminal; pass --yes to confirm")
	}

	fmt.Printf("%s [y/N] ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
