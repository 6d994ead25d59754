package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/profilecrm/profilecrm/internal/core"
)

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "contacts",
		Aliases: []string{"c"},
		Short:   "Manage contacts",
	}

	cmd.AddCommand(contactsListCmd())
	cmd.AddCommand(contactsGetCmd())
	cmd.AddCommand(contactsSearchCmd())
	cmd.AddCommand(contactsUpdateCmd())
	cmd.AddCommand(contactsDeleteCmd())
	cmd.AddCommand(contactsFollowUpsCmd())

	return cmd
}

func contactsListCmd() *cobra.Command {
	var listID, stage string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts, optionally by list or pipeline stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			var contacts []*core.Contact
			switch {
			case listID != "":
				contacts, err = store.Contacts.GetByList(cmd.Context(), listID)
			case stage != "":
				contacts, err = store.Contacts.GetByPipelineStage(cmd.Context(), stage)
			default:
				contacts, err = store.Contacts.GetAll(cmd.Context())
			}
			if err != nil {
				return err
			}

			if len(contacts) == 0 {
				fmt.Println("No contacts found.")
				return nil
			}

			fmt.Printf("%s (%d)\n\n", bold("Contacts"), len(contacts))
			for _, c := range contacts {
				printContactLine(c)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listID, "list", "", "list id")
	cmd.Flags().StringVar(&stage, "stage", "", "pipeline stage")
	return cmd
}

func contactsGetCmd() *cobra.Command {
	var withInteractions bool

	cmd := &cobra.Command{
		Use:   "get <username>",
		Short: "Show a contact as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			username := strings.TrimPrefix(args[0], "@")
			contact, err := store.Contacts.Get(cmd.Context(), username)
			if err != nil {
				return err
			}
			if contact == nil {
				return fmt.Errorf("%w: %s", core.ErrContactNotFound, username)
			}

			if !withInteractions {
				return printJSON(os.Stdout, contact)
			}

			interactions, err := store.Interactions.GetForContact(cmd.Context(), username)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, map[string]interface{}{
				"contact":      contact,
				"interactions": interactions,
			})
		},
	}

	cmd.Flags().BoolVarP(&withInteractions, "interactions", "i", false, "include interactions")
	return cmd
}

func contactsSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search username, name, bio, notes and tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			query := strings.Join(args, " ")
			contacts, err := store.Contacts.Search(cmd.Context(), query)
			if err != nil {
				return err
			}

			if len(contacts) == 0 {
				fmt.Printf("No contacts match %q.\n", query)
				return nil
			}

			fmt.Printf("Found %d contacts:\n\n", len(contacts))
			for _, c := range contacts {
				printContactLine(c)
			}
			return nil
		},
	}
}

func contactsUpdateCmd() *cobra.Command {
	var (
		stage, listID, notes, followUp string
		tags                           []string
	)

	cmd := &cobra.Command{
		Use:   "update <username>",
		Short: "Change CRM fields on a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch core.ContactPatch
			flags := cmd.Flags()
			if flags.Changed("stage") {
				patch.PipelineStage = &stage
			}
			if flags.Changed("list") {
				patch.List = &listID
			}
			if flags.Changed("notes") {
				patch.Notes = &notes
			}
			if flags.Changed("tags") {
				patch.Tags = &tags
			}
			if flags.Changed("follow-up") {
				t, err := time.ParseInLocation("2006-01-02", followUp, time.Local)
				if err != nil {
					return fmt.Errorf("follow-up must be YYYY-MM-DD: %w", err)
				}
				patch.NextFollowUp = &t
			}

			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			updated, err := store.Contacts.Update(cmd.Context(), strings.TrimPrefix(args[0], "@"), patch)
			if err != nil {
				return err
			}

			fmt.Println(green("Contact updated."))
			printContactLine(updated)
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "pipeline stage")
	cmd.Flags().StringVar(&listID, "list", "", "list id")
	cmd.Flags().StringVar(&notes, "notes", "", "notes (replaces existing)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tag names (replaces existing)")
	cmd.Flags().StringVar(&followUp, "follow-up", "", "next follow-up date (YYYY-MM-DD)")
	return cmd
}

func contactsDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a contact (its interactions are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimPrefix(args[0], "@")
			if !yes {
				ok, err := confirm(fmt.Sprintf("Delete @%s?", username))
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

			if err := store.Contacts.Delete(cmd.Context(), username); err != nil {
				return err
			}
			fmt.Printf("Deleted @%s.\n", username)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func contactsFollowUpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "followups",
		Short: "Contacts due for follow-up",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			due, err := store.Contacts.DueFollowUps(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			if len(due) == 0 {
				fmt.Println("Nothing due.")
				return nil
			}

			fmt.Printf("%s (%d)\n\n", bold("Due for follow-up"), len(due))
			for _, c := range due {
				fmt.Printf("   %s  @%s\n", yellow(formatTime(c.NextFollowUp)), c.Username)
			}
			return nil
		},
	}
}
