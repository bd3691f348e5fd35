// internal/cli/members.go
package cli

import (
	"fmt"
	"io"

	"libraripro/internal/membership"

	"github.com/spf13/cobra"
)

func (c *cli) newMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List, add, show and remove members",
	}
	cmd.AddCommand(
		c.newMembersListCmd(),
		c.newMembersAddCmd(),
		c.newMembersShowCmd(),
		c.newMembersRemoveCmd(),
	)
	return cmd
}

func (c *cli) newMembersListCmd() *cobra.Command {
	var (
		query      string
		memberType string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := c.session.members.ListMembers(cmd.Context(), membership.Filter{
				Query:  query,
				Type:   membership.MemberType(memberType),
				Status: membership.MemberStatus(status),
			})
			if err != nil {
				return err
			}
			return c.emit(cmd, members, func(w io.Writer) {
				header(w, "Members (%d)", len(members))
				for _, m := range members {
					fmt.Fprintf(w, "  %-6s %s %-8s %s <%s>\n", m.ID, memberStatus(m.Status), m.Type, m.Name, m.Email)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Match name, email or phone")
	cmd.Flags().StringVar(&memberType, "type", "", "Only members of this type")
	cmd.Flags().StringVar(&status, "status", "", "Only Active or Inactive members")
	return cmd
}

func (c *cli) newMembersAddCmd() *cobra.Command {
	var (
		in         membership.MemberInput
		memberType string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Enrol a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Type = membership.MemberType(memberType)
			member, err := c.session.members.AddMember(cmd.Context(), in)
			if err != nil {
				return err
			}
			return c.emit(cmd, member, func(w io.Writer) {
				ok(w, "Added %s %s", member.ID, member.Name)
			})
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "Full name (required)")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address (required, unique)")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&memberType, "type", string(membership.TypeStudent), "Student, Faculty, Staff, Public or Admin")
	cmd.Flags().StringVar(&in.Address, "address", "", "Postal address")
	return cmd
}

func (c *cli) newMembersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			member, err := c.session.members.GetMember(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.emit(cmd, member, func(w io.Writer) { printMember(w, member) })
		},
	}
}

func (c *cli) newMembersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a member with no books on loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.session.members.RemoveMember(cmd.Context(), args[0]); err != nil {
				return err
			}
			ok(cmd.OutOrStdout(), "Removed %s", args[0])
			return nil
		},
	}
}
