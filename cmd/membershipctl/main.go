package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	membership "go-membership"
	"go-membership/config"
	"go-membership/database"
)

var (
	cfg      config.Config
	actingAs string
	userID   string
)

func main() {
	// Flags default to the environment; validation waits until flags are parsed.
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := config.ParseEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var rootCmd = &cobra.Command{
		Use:   "membershipctl",
		Short: "Manage community memberships",
		Long: `Membershipctl administers community memberships stored in PostgreSQL or SQLite.
It enforces one active membership per user, handles join requests, leaving and
administrator succession, and runs reconciliation sweeps.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
	}

	var flags = rootCmd.PersistentFlags()
	flags.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "Database driver (postgres or sqlite)")
	flags.StringVar(&cfg.DBDSN, "db", cfg.DBDSN, "Database connection string")
	flags.StringVar(&cfg.Namespace, "namespace", cfg.Namespace, "Table name prefix")
	flags.StringVar(&cfg.PublicCommunityID, "public-community", cfg.PublicCommunityID, "Id of the always-public community")
	flags.DurationVar(&cfg.RejectionRetention, "rejection-retention", cfg.RejectionRetention, "How long rejected records are kept")
	flags.DurationVar(&cfg.RejoinCooldown, "rejoin-cooldown", cfg.RejoinCooldown, "Wait after a rejection before re-requesting")
	flags.BoolVar(&cfg.PresidentMembership, "president-membership", cfg.PresidentMembership, "Give assigned presidents an approved admin membership")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&actingAs, "as", "", "Acting user id for privileged operations")

	rootCmd.AddCommand(
		newMigrateCmd(),
		newUserCmd(),
		newCommunityCmd(),
		newJoinCmd(),
		newCancelCmd(),
		newDecideCmd(),
		newLeaveCmd(),
		newPresidentCmd(),
		newLeaderCmd(),
		newRequestsCmd(),
		newSweepCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}

	// Logs go to stderr so they don't mix with command output
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// app bundles what every subcommand needs.
type app struct {
	db        *sqlx.DB
	store     *membership.Store
	directory *database.Directory
	engine    *membership.Engine
	logger    *slog.Logger
}

func openApp(ctx context.Context) (*app, error) {
	var logger = newLogger()

	db, err := database.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := membership.NewStore(db, cfg.Namespace)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var (
		directory = database.NewDirectory(db, cfg.Namespace)
		opts      = []membership.Option{
			membership.WithPublicCommunity(cfg.PublicCommunityID),
			membership.WithRejectionRetention(cfg.RejectionRetention),
			membership.WithRejoinCooldown(cfg.RejoinCooldown),
			membership.WithLogger(logger),
		}
	)
	if cfg.PresidentMembership {
		opts = append(opts, membership.WithPresidentMembership())
	}

	return &app{
		db:        db,
		store:     store,
		directory: directory,
		engine:    membership.New(store, directory, opts...),
		logger:    logger,
	}, nil
}

func (a *app) Close() {
	_ = a.db.Close()
}

// withApp opens the database for the duration of fn.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var ctx = cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return fn(ctx, a, args)
	}
}

func printCommunity(c membership.Community) {
	var admin = c.AdminID
	if admin == "" {
		admin = "-"
	}
	fmt.Printf("%s\t%s\tactive=%t\tadmin=%s\n", c.ID, c.Name, c.IsActive, admin)
}

func printRecord(r membership.Record) {
	fmt.Printf("%s\tuser=%s\tcommunity=%s\t%s\t%s\trequested=%s\n",
		r.ID, r.UserID, r.CommunityID, r.Status, r.Role, r.RequestedAt.Format("2006-01-02 15:04:05"))
}

func printLeader(l membership.LeaderAssignment) {
	fmt.Printf("%s\t%s\tuser=%s\tassigned_by=%s\n", l.CommunityID, l.LeaderType, l.UserID, l.AssignedBy)
}

func printReport(report membership.SweepReport) {
	for _, pass := range report.Passes {
		switch {
		case pass.Skipped:
			fmt.Printf("%-20s skipped\n", pass.Pass)
		case pass.Err != nil:
			fmt.Printf("%-20s error: %v\n", pass.Pass, pass.Err)
		default:
			fmt.Printf("%-20s %d\n", pass.Pass, pass.Count)
		}
	}
	fmt.Printf("%-20s %d\n", "total", report.Total())
}
