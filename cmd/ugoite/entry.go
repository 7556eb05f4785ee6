package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/google/uuid"
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "manage entries",
}

var (
	entryAuthor string
	entryParent string
	entryForm   string
)

var entryCreateCmd = &cobra.Command{
	Use:   "create FILE",
	Short: "create an entry from a markdown file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		entry, err := h.Entries.CreateEntry(cmdContext(), uuid.NewString(), string(raw), entryAuthor)
		if err != nil {
			return err
		}
		return printResult(entry)
	},
}

var entryUpdateCmd = &cobra.Command{
	Use:   "update ID FILE",
	Short: "update an entry, enforcing optimistic concurrency on --parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		entry, err := h.Entries.UpdateEntry(cmdContext(), args[0], string(raw), entryParent, entryAuthor)
		if err != nil {
			return err
		}
		return printResult(entry)
	},
}

var entryShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "show an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		entry, err := h.Entries.GetEntry(cmdContext(), args[0])
		if err != nil {
			return err
		}
		return printResult(entry)
	},
}

var entryContentCmd = &cobra.Command{
	Use:   "content ID",
	Short: "print an entry's canonical markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		md, err := h.Entries.GetEntryContent(cmdContext(), args[0])
		if err != nil {
			return err
		}
		cmd.Println(md)
		return nil
	},
}

var entryListCmd = &cobra.Command{
	Use:   "list",
	Short: "list non-deleted entries, optionally filtered by --form",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		if entryForm != "" {
			rows, err := h.Entries.ListEntries(cmdContext(), entryForm)
			if err != nil {
				return err
			}
			return printResult(rows)
		}
		rows, err := h.Entries.ListAllEntries(cmdContext())
		if err != nil {
			return err
		}
		return printResult(rows)
	},
}

var entryDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "soft-delete an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		return h.Entries.DeleteEntry(cmdContext(), args[0], false)
	},
}

var entryHistoryCmd = &cobra.Command{
	Use:   "history ID",
	Short: "list an entry's revisions, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		revs, err := h.Entries.GetEntryHistory(cmdContext(), args[0], entryForm)
		if err != nil {
			return err
		}
		return printResult(revs)
	},
}

var entryRestoreCmd = &cobra.Command{
	Use:   "restore ID REVISION_ID",
	Short: "restore an entry to a prior revision",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		entry, err := h.Entries.RestoreEntry(cmdContext(), args[0], args[1], entryAuthor)
		if err != nil {
			return err
		}
		return printResult(entry)
	},
}

var entryLinkCmd = &cobra.Command{
	Use:   "link SOURCE TARGET KIND",
	Short: "create a bidirectional link between two entries",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		link, err := h.Entries.CreateLink(cmdContext(), args[0], args[1], args[2])
		if err != nil {
			return err
		}
		return printResult(link)
	},
}

var entryUnlinkCmd = &cobra.Command{
	Use:   "unlink LINK_ID",
	Short: "delete a link by id from every entry that carries it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		return h.Entries.DeleteLink(cmdContext(), args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{entryCreateCmd, entryUpdateCmd, entryRestoreCmd} {
		c.Flags().StringVar(&entryAuthor, "author", "", "revision author")
	}
	entryUpdateCmd.Flags().StringVar(&entryParent, "parent", "", "parent revision id (optimistic concurrency)")
	entryListCmd.Flags().StringVar(&entryForm, "form", "", "restrict to one form")
	entryHistoryCmd.Flags().StringVar(&entryForm, "form", "", "the entry's form, if already known")

	entryCmd.AddCommand(entryCreateCmd, entryUpdateCmd, entryShowCmd, entryContentCmd,
		entryListCmd, entryDeleteCmd, entryHistoryCmd, entryRestoreCmd, entryLinkCmd, entryUnlinkCmd)
}
