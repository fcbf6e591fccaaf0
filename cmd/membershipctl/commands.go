package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	membership "go-membership"
	"go-membership/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the membership tables",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			if err := a.store.Migrate(ctx); err != nil {
				return err
			}
			exempted, err := a.engine.SyncPublicCommunity(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Migrated namespace %q (%d public memberships marked exempt)\n", a.store.Namespace(), exempted)
			return nil
		}),
	}
}

func newUserCmd() *cobra.Command {
	var (
		user    database.UserRecord
		userCmd = &cobra.Command{
			Use:   "user",
			Short: "Manage the user directory",
		}
		upsertCmd = &cobra.Command{
			Use:   "upsert <id>",
			Short: "Create or update a user",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				user.ID = args[0]
				if err := a.directory.UpsertUser(ctx, &user); err != nil {
					return err
				}
				fmt.Printf("Saved user %s\n", user.ID)
				return nil
			}),
		}
	)

	upsertCmd.Flags().StringVar(&user.Email, "email", "", "Email address")
	upsertCmd.Flags().StringVar(&user.Phone, "phone", "", "Phone number")
	upsertCmd.Flags().StringVar(&user.DisplayName, "name", "", "Display name")
	upsertCmd.Flags().BoolVar(&user.IsSuperuser, "superuser", false, "Grant superuser rights")

	userCmd.AddCommand(upsertCmd)
	return userCmd
}

func newCommunityCmd() *cobra.Command {
	var (
		spec            membership.NewCommunity
		public          bool
		includeInactive bool
		status          string
		communityCmd    = &cobra.Command{
			Use:   "community",
			Short: "Manage communities",
		}
		createCmd = &cobra.Command{
			Use:   "create <name>",
			Short: "Create a community",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				spec.Name = args[0]
				if public {
					if a.engine.PublicCommunityID() == "" {
						return fmt.Errorf("--public requires MEMBERSHIP_PUBLIC_COMMUNITY_ID or --public-community")
					}
					spec.ID = a.engine.PublicCommunityID()
				}
				community, err := a.engine.CreateCommunity(ctx, spec)
				if err != nil {
					return err
				}
				printCommunity(community)
				return nil
			}),
		}
		deleteCmd = &cobra.Command{
			Use:   "delete <community-id>",
			Short: "Delete a community (superuser only)",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				if err := a.engine.DeleteCommunity(ctx, args[0], actingAs); err != nil {
					return err
				}
				fmt.Printf("Deleted community %s\n", args[0])
				return nil
			}),
		}
		listCmd = &cobra.Command{
			Use:   "list",
			Short: "List communities",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				communities, err := a.engine.ListCommunities(ctx, includeInactive)
				if err != nil {
					return err
				}
				for _, community := range communities {
					printCommunity(community)
				}
				return nil
			}),
		}
		recordsCmd = &cobra.Command{
			Use:   "records <community-id>",
			Short: "List a community's membership records",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				records, err := a.engine.ListCommunityRecords(ctx, args[0], membership.Status(status), actingAs)
				if err != nil {
					return err
				}
				for _, record := range records {
					printRecord(record)
				}
				return nil
			}),
		}
	)

	createCmd.Flags().StringVar(&spec.ID, "id", "", "Community id (generated when empty)")
	createCmd.Flags().StringVar(&spec.AdminID, "admin", "", "Initial administrator user id")
	createCmd.Flags().BoolVar(&public, "public", false, "Create the configured public community")
	listCmd.Flags().BoolVar(&includeInactive, "all", false, "Include inactive communities")
	recordsCmd.Flags().StringVar(&status, "status", "", "Only list records with this status")

	communityCmd.AddCommand(createCmd, deleteCmd, listCmd, recordsCmd)
	return communityCmd
}

func newJoinCmd() *cobra.Command {
	var (
		details membership.JoinDetails
		role    string
		joinCmd = &cobra.Command{
			Use:   "join <community-id>",
			Short: "Request to join a community",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				details.Role = membership.Role(role)
				record, err := a.engine.RequestJoin(ctx, userID, args[0], details)
				if err != nil {
					return err
				}
				printRecord(record)
				return nil
			}),
		}
	)

	joinCmd.Flags().StringVar(&userID, "user", "", "Requesting user id")
	joinCmd.Flags().StringVar(&role, "role", "", "Requested role")
	joinCmd.Flags().StringVar(&details.BlockRef, "block", "", "Block reference")
	joinCmd.Flags().StringVar(&details.Address, "address", "", "Address within the community")
	_ = joinCmd.MarkFlagRequired("user")
	return joinCmd
}

func newCancelCmd() *cobra.Command {
	var cancelCmd = &cobra.Command{
		Use:   "cancel <community-id>",
		Short: "Withdraw a pending join request",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			if err := a.engine.CancelRequest(ctx, userID, args[0]); err != nil {
				return err
			}
			fmt.Printf("Cancelled request of %s for %s\n", userID, args[0])
			return nil
		}),
	}

	cancelCmd.Flags().StringVar(&userID, "user", "", "Requesting user id")
	_ = cancelCmd.MarkFlagRequired("user")
	return cancelCmd
}

func newDecideCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "decide <record-id> <approve|reject>",
		Short:     "Approve or reject a pending request",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(membership.DecisionApprove), string(membership.DecisionReject)},
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			record, err := a.engine.Decide(ctx, args[0], membership.Decision(args[1]), actingAs)
			if err != nil {
				return err
			}
			printRecord(record)
			return nil
		}),
	}
}

func newLeaveCmd() *cobra.Command {
	var leaveCmd = &cobra.Command{
		Use:   "leave <community-id>",
		Short: "Leave a community",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			result, err := a.engine.Leave(ctx, userID, args[0])
			if err != nil {
				return err
			}
			switch result.Outcome {
			case membership.OutcomeLeftAndSucceeded:
				fmt.Printf("%s left %s; %s is the new administrator\n", userID, args[0], result.NewAdminID)
			case membership.OutcomeLeftAndCommunityDeactivated:
				fmt.Printf("%s left %s; the community has no administrator and is now inactive\n", userID, args[0])
			default:
				fmt.Printf("%s left %s\n", userID, args[0])
			}
			return nil
		}),
	}

	leaveCmd.Flags().StringVar(&userID, "user", "", "Leaving user id")
	_ = leaveCmd.MarkFlagRequired("user")
	return leaveCmd
}

func newPresidentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign-president <community-id> <user>",
		Short: "Make a user the community's administrator (superuser only)",
		Long:  "The user may be given by id, email or phone number.",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			community, err := a.engine.AssignPresident(ctx, args[0], args[1], actingAs)
			if err != nil {
				return err
			}
			printCommunity(community)
			return nil
		}),
	}
}

func newLeaderCmd() *cobra.Command {
	var (
		leaderCmd = &cobra.Command{
			Use:   "leader",
			Short: "Manage elected leader assignments",
		}
		assignCmd = &cobra.Command{
			Use:   "assign <community-id> <mp|mla|councillor> <user>",
			Short: "Assign a leader (superuser only)",
			Args:  cobra.ExactArgs(3),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				leader, err := a.engine.AssignLeader(ctx, args[0], args[2], membership.LeaderType(args[1]), actingAs)
				if err != nil {
					return err
				}
				printLeader(leader)
				return nil
			}),
		}
		revokeCmd = &cobra.Command{
			Use:   "revoke <community-id> <mp|mla|councillor>",
			Short: "Revoke a leader (superuser only)",
			Args:  cobra.ExactArgs(2),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				if err := a.engine.RevokeLeader(ctx, args[0], membership.LeaderType(args[1]), actingAs); err != nil {
					return err
				}
				fmt.Printf("Revoked %s of %s\n", args[1], args[0])
				return nil
			}),
		}
		listCmd = &cobra.Command{
			Use:   "list <community-id>",
			Short: "List active leaders",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				leaders, err := a.engine.ListLeaders(ctx, args[0])
				if err != nil {
					return err
				}
				for _, leader := range leaders {
					printLeader(leader)
				}
				return nil
			}),
		}
	)

	leaderCmd.AddCommand(assignCmd, revokeCmd, listCmd)
	return leaderCmd
}

func newRequestsCmd() *cobra.Command {
	var requestsCmd = &cobra.Command{
		Use:   "requests",
		Short: "Show a user's requests, one per community",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			requests, err := a.engine.MyRequests(ctx, userID)
			if err != nil {
				return err
			}
			for _, record := range requests {
				printRecord(record)
			}
			return nil
		}),
	}

	requestsCmd.Flags().StringVar(&userID, "user", "", "User id")
	_ = requestsCmd.MarkFlagRequired("user")
	return requestsCmd
}

func newSweepCmd() *cobra.Command {
	var sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run a reconciliation sweep",
		Long:  "Without --user every pass runs globally. With --user only that user's records are pruned.",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			var scope = membership.GlobalScope()
			if userID != "" {
				scope = membership.UserScope(userID)
			}

			var report = a.engine.Sweep(ctx, scope)
			printReport(report)
			return report.Err()
		}),
	}

	sweepCmd.Flags().StringVar(&userID, "user", "", "Only sweep this user's records")
	return sweepCmd
}
