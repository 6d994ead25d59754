package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func listsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Manage lists",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show all lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			lists, err := store.Lists.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(lists) == 0 {
				fmt.Println("No lists yet.")
				return nil
			}

			for _, l := range lists {
				fmt.Printf("   %s  %-24s %s\n", dim(l.ID), l.Name, l.Color)
			}
			return nil
		},
	})

	var color string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			list, err := store.Lists.Create(cmd.Context(), args[0], color)
			if err != nil {
				return err
			}
			fmt.Printf("Created list %s (%s)\n", bold(list.Name), list.ID)
			return nil
		},
	}
	create.Flags().StringVar(&color, "color", "", "display color")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a list (contacts keep their list id)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			if err := store.Lists.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted list %s. Run 'pcrm check' to find contacts still pointing at it.\n", args[0])
			return nil
		},
	})

	return cmd
}

func tagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Manage tags",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show all tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			tags, err := store.Tags.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(tags) == 0 {
				fmt.Println("No tags yet.")
				return nil
			}

			for _, t := range tags {
				fmt.Printf("   %s  #%-23s %s\n", dim(t.ID), t.Name, t.Color)
			}
			return nil
		},
	})

	var color string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			tag, err := store.Tags.Create(cmd.Context(), args[0], color)
			if err != nil {
				return err
			}
			fmt.Printf("Created tag %s (%s)\n", bold("#"+tag.Name), tag.ID)
			return nil
		},
	}
	create.Flags().StringVar(&color, "color", "", "display color")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a tag (contacts keep the tag name)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			if err := store.Tags.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted tag %s.\n", args[0])
			return nil
		},
	})

	return cmd
}
