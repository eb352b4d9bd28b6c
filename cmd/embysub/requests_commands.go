package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"embysub/internal/config"
	"embysub/internal/logging"
	"embysub/internal/notifications"
	"embysub/internal/store"
	"embysub/internal/subscriptions"
)

// operator is the identity the CLI acts as when moderating requests.
var operator = &store.User{ID: "cli", Name: "embysub-cli", Role: store.RoleAdmin}

func newRequestsCommand(ctx *commandContext) *cobra.Command {
	requestsCmd := &cobra.Command{
		Use:     "requests",
		Aliases: []string{"req"},
		Short:   "Inspect and moderate subscription requests",
	}
	requestsCmd.AddCommand(newRequestsListCommand(ctx))
	requestsCmd.AddCommand(newRequestsModerateCommand(ctx, "approve"))
	requestsCmd.AddCommand(newRequestsModerateCommand(ctx, "reject"))
	return requestsCmd
}

func newRequestsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlag string
		userFlag   string
		limit      int
		skip       int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.RequestFilter{UserID: strings.TrimSpace(userFlag), Limit: limit, Skip: skip}
			if raw := strings.TrimSpace(statusFlag); raw != "" {
				status, ok := store.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("invalid status %q (use pending, approved, rejected or completed)", raw)
				}
				filter.Status = status
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				reqs, err := st.ListRequests(cmd.Context(), filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(reqs) == 0 {
					fmt.Fprintln(out, "No requests found")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "TMDB", "Type", "Season", "Title", "User", "Status", "Requested"},
					buildRequestRows(reqs),
					0,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&statusFlag, "status", "s", "", "Only show requests with this status")
	cmd.Flags().StringVarP(&userFlag, "user", "u", "", "Only show requests made by this Emby user id")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of rows")
	cmd.Flags().IntVar(&skip, "skip", 0, "Rows to skip")
	return cmd
}

func buildRequestRows(reqs []*store.Request) [][]string {
	rows := make([][]string, 0, len(reqs))
	for _, req := range reqs {
		season := "all"
		if req.SpecificSeason != nil {
			season = strconv.Itoa(*req.SpecificSeason)
		}
		user := req.UserName
		if user == "" {
			user = req.UserID
		}
		rows = append(rows, []string{
			strconv.FormatInt(req.ID, 10),
			req.TMDBID,
			req.MediaType,
			season,
			req.Title,
			user,
			formatStatusLabel(string(req.Status)),
			humanize.Time(req.RequestDate),
		})
	}
	return rows
}

func newRequestsModerateCommand(ctx *commandContext, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <request-id>",
		Short: strings.ToUpper(action[:1]) + action[1:] + " a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid request id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
				svc := subscriptions.NewService(st, nil, notifications.NewService(cfg), logger)
				apply := svc.Approve
				if action == "reject" {
					apply = svc.Reject
				}
				req, err := apply(cmd.Context(), operator, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Request %d (%s) is now %s\n", req.ID, req.Title, req.Status)
				return nil
			})
		},
	}
}
