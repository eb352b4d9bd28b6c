package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"embysub/internal/config"
	"embysub/internal/store"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect users mirrored from Emby",
	}
	usersCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users that have logged in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				users, err := st.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(users) == 0 {
					fmt.Fprintln(out, "No users have logged in yet")
					return nil
				}
				rows := make([][]string, 0, len(users))
				for _, user := range users {
					lastLogin := "never"
					if user.LastLogin != nil {
						lastLogin = humanize.Time(*user.LastLogin)
					}
					rows = append(rows, []string{user.ID, user.Name, string(user.Role), humanize.Time(user.CreatedAt), lastLogin})
				}
				fmt.Fprint(out, renderTable([]string{"ID", "Name", "Role", "Created", "Last Login"}, rows))
				return nil
			})
		},
	})
	return usersCmd
}
