// internal/cli/books.go
package cli

import (
	"fmt"
	"io"

	"libraripro/internal/catalog"
	"libraripro/internal/circulation"

	"github.com/spf13/cobra"
)

func (c *cli) newBooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List, add, show and remove catalog books",
	}
	cmd.AddCommand(
		c.newBooksListCmd(),
		c.newBooksAddCmd(),
		c.newBooksShowCmd(),
		c.newBooksRemoveCmd(),
		c.newBooksLookupCmd(),
	)
	return cmd
}

func (c *cli) newBooksListCmd() *cobra.Command {
	var f catalog.Filter
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = catalog.Status(status)
			books, err := c.session.catalog.ListBooks(cmd.Context(), f)
			if err != nil {
				return err
			}
			return c.emit(cmd, books, func(w io.Writer) {
				header(w, "Books (%d)", len(books))
				for _, b := range books {
					fmt.Fprintf(w, "  %-6s %s %s by %s\n", b.ID, bookStatus(b.Status), b.Title, b.Author)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "Match title, author, ISBN or id")
	cmd.Flags().StringVar(&f.Category, "category", "", "Only books in this category")
	cmd.Flags().StringVar(&status, "status", "", "Only Available or Issued books")
	return cmd
}

func (c *cli) newBooksAddCmd() *cobra.Command {
	var in catalog.BookInput

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book to the catalog",
		Long: `Add a book to the catalog. New books are Available.

Examples:
  libraryctl books add --title Dune --author "Frank Herbert" --category "Science Fiction"
  libraryctl books add --title Emma --author "Jane Austen" --category Classics --isbn 9780141439587`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := c.session.catalog.AddBook(cmd.Context(), in)
			if err != nil {
				return err
			}
			return c.emit(cmd, book, func(w io.Writer) {
				ok(w, "Added %s %q", book.ID, book.Title)
			})
		},
	}

	cmd.Flags().StringVar(&in.Title, "title", "", "Title (required)")
	cmd.Flags().StringVar(&in.Author, "author", "", "Author (required)")
	cmd.Flags().StringVar(&in.Category, "category", "", "Category (required)")
	cmd.Flags().StringVar(&in.ISBN, "isbn", "", "ISBN")
	cmd.Flags().StringVar(&in.Publisher, "publisher", "", "Publisher")
	cmd.Flags().IntVar(&in.Year, "year", 0, "Publication year")
	cmd.Flags().StringVar(&in.Description, "description", "", "Description")
	return cmd
}

func (c *cli) newBooksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := c.session.catalog.GetBook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.emit(cmd, book, func(w io.Writer) { printBook(w, book) })
		},
	}
}

func (c *cli) newBooksRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a book that is not on loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.session.catalog.RemoveBook(cmd.Context(), args[0]); err != nil {
				return err
			}
			ok(cmd.OutOrStdout(), "Removed %s", args[0])
			return nil
		},
	}
}

func (c *cli) newBooksLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <code>",
		Short: "Find books by scanned ISBN or id and show who holds them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			holdings, err := c.session.ledger.LookupByCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.emit(cmd, holdings, func(w io.Writer) {
				if len(holdings) == 0 {
					warn(w, "No book matches %q", args[0])
					return
				}
				for _, h := range holdings {
					printHolding(w, h)
				}
			})
		},
	}
}

func printHolding(w io.Writer, h circulation.Holding) {
	fmt.Fprintf(w, "  %-6s %s %s\n", h.BookID, bookStatus(catalog.Status(h.Status)), h.Title)
	if t := h.Transaction; t != nil {
		fmt.Fprintf(w, "         on loan as %s to %s (%s), due %s\n", t.ID, t.MemberName, t.MemberID, t.DueDate)
	}
}
