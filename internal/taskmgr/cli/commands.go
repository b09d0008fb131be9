package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/api"
	"github.com/gartstein/eagle/internal/taskmgr/config"
	e "github.com/gartstein/eagle/internal/taskmgr/errors"
	"github.com/gartstein/eagle/internal/taskmgr/events"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"github.com/gartstein/eagle/internal/taskmgr/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	version = "dev"
	commit  = "none"
)

// SetVersion sets the version reported by 'eagle version'.
func SetVersion(v, c string) {
	version = v
	commit = c
}

type Option func(*root)

// WithLogger replaces the console logger built from --verbose.
func WithLogger(l *zap.Logger) Option {
	return func(r *root) { r.logger = l }
}

type root struct {
	configPath string
	backend    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
	render *Renderer
}

// Execute runs the eagle command tree.
func Execute() error {
	cmd := NewRootCommand()
	err := cmd.Execute()
	if err != nil {
		NewRenderer(cmd.ErrOrStderr()).Error(err)
	}
	return err
}

func NewRootCommand(opts ...Option) *cobra.Command {
	r := &root{}
	for _, opt := range opts {
		opt(r)
	}

	cmd := &cobra.Command{
		Use:   "eagle",
		Short: "Eagle task manager",
		Long: `eagle manages the tasks of your company from the terminal.
It works offline against an embedded database or online against an eagle server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return r.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&r.configPath, "config", "eagle.yaml", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&r.backend, "backend", "", "store backend: local or remote (overrides BACKEND)")
	cmd.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		r.loginCmd(),
		r.logoutCmd(),
		r.whoamiCmd(),
		r.companiesCmd(),
		r.usersCmd(),
		r.tasksCmd(),
		r.createCmd(),
		r.statusCmd(),
		r.statsCmd(),
		r.notificationsCmd(),
		r.pingCmd(),
		versionCmd(),
	)
	return cmd
}

func (r *root) setup(cmd *cobra.Command) error {
	r.render = NewRenderer(cmd.OutOrStdout())

	cfg, err := config.Load(r.configPath)
	if err != nil {
		return err
	}
	if r.backend != "" {
		cfg.Backend = r.backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	r.cfg = cfg

	if r.logger == nil {
		r.logger, err = newLogger(r.verbose)
		if err != nil {
			return err
		}
	}
	return nil
}

// newLogger builds a console logger on stderr, warn level unless verbose.
func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zc.Level.SetLevel(zapcore.DebugLevel)
	}
	zc.DisableStacktrace = true
	return zc.Build()
}

// withApp opens the backend for the duration of fn.
func (r *root) withApp(fn func(ctx context.Context, app *App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := NewApp(ctx, r.cfg, r.logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				r.logger.Warn("failed to close store", zap.Error(err))
			}
		}()
		return fn(ctx, app, args)
	}
}

func (r *root) loginCmd() *cobra.Command {
	var (
		username  string
		password  string
		companyID int64
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		RunE: r.withApp(func(ctx context.Context, app *App, _ []string) error {
			user, err := app.sessions.Login(ctx, username, password, companyID)
			if err != nil {
				return err
			}
			r.render.Success("Signed in as %s (%s, company %d)", user.Username, user.Role, user.CompanyID)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	cmd.Flags().Int64VarP(&companyID, "company", "c", 1, "company id")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (r *root) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		RunE: r.withApp(func(ctx context.Context, app *App, _ []string) error {
			if _, err := app.sessions.Restore(ctx); err != nil {
				return err
			}
			if err := app.sessions.Logout(ctx); err != nil {
				return err
			}
			r.render.Success("Signed out")
			return nil
		}),
	}
}

func (r *root) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: r.withApp(func(ctx context.Context, app *App, _ []string) error {
			user, err := app.sessions.Restore(ctx)
			if err != nil {
				return err
			}
			if user == nil {
				r.render.Info("Not signed in")
				return nil
			}
			r.render.Success("%s (%s, company %d)", user.Username, user.Role, user.CompanyID)
			return nil
		}),
	}
}

func (r *root) companiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "companies",
		Short: "List companies",
		RunE: r.withApp(func(ctx context.Context, app *App, _ []string) error {
			if err := app.workflow.Initialize(ctx, nil); err != nil {
				return err
			}
			r.render.Companies(app.workflow.Companies())
			return nil
		}),
	}
}

func (r *root) usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the users of your company",
		RunE: r.withApp(func(ctx context.Context, app *App, _ []string) error {
			if _, err := app.RequireUser(ctx); err != nil {
				return err
			}
			r.render.Users(app.workflow.Users())
			return nil
		}),
	}
}

func (r *root) tasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"ls", "list"},
		Short:   "List the tasks you can see, newest first",
		RunE: r.withApp(func(ctx context.Context, app *App, _ []string) error {
			if _, err := app.RequireUser(ctx); err != nil {
				return err
			}
			r.render.Tasks(app.workflow.Tasks())
			return nil
		}),
	}
}

func (r *root) createCmd() *cobra.Command {
	var (
		title       string
		description string
		assignee    string
		priority    string
		deadline    string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task (admins only)",
		RunE: r.withApp(func(ctx context.Context, app *App, _ []string) error {
			user, err := app.RequireUser(ctx)
			if err != nil {
				return err
			}

			input := models.TaskInput{
				Title:       title,
				Description: description,
				Priority:    normalizePriority(priority),
			}
			if assignee != "" {
				id, err := resolveAssignee(app.workflow.Users(), assignee)
				if err != nil {
					return err
				}
				input.AssignedTo = id
			}
			if deadline != "" {
				d, err := api.ParseDeadline(deadline)
				if err != nil {
					return err
				}
				input.Deadline = &d
			}

			id, err := app.workflow.Create(ctx, input, *user)
			if err != nil {
				return err
			}
			r.render.Success("Created task #%d: %s", id, title)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "task title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&assignee, "assignee", "a", "", "assignee username or id")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Low, Medium, High or Critical (default Medium)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline as YYYY-MM-DD or RFC 3339")
	return cmd
}

func (r *root) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Change the status of a task",
		Long:  `Status is one of Pending, "In Progress" (or in-progress) and Completed.`,
		Args:  cobra.ExactArgs(2),
		RunE: r.withApp(func(ctx context.Context, app *App, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: invalid task id %q", e.ErrValidation, args[0])
			}
			user, err := app.RequireUser(ctx)
			if err != nil {
				return err
			}

			status := normalizeStatus(args[1])
			if err := app.workflow.SetStatus(ctx, taskID, status, *user); err != nil {
				return err
			}
			r.render.Success("Task #%d is now %s", taskID, status)
			return nil
		}),
	}
}

func (r *root) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the tasks you can see",
		RunE: r.withApp(func(ctx context.Context, app *App, _ []string) error {
			if _, err := app.RequireUser(ctx); err != nil {
				return err
			}
			r.render.Stats(app.workflow.Stats())
			return nil
		}),
	}
}

func (r *root) notificationsCmd() *cobra.Command {
	var push string
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show task notifications as they arrive",
		Long: `notifications subscribes to the task events addressed to the signed-in user
and shows each one until interrupted. With --push it shows a single
notification and exits.`,
	}
	cmd.RunE = r.withApp(func(ctx context.Context, app *App, _ []string) error {
		receiver := notify.NewReceiver(r.render, r.logger)
		if cmd.Flags().Changed("push") {
			return receiver.HandlePush(ctx, &push)
		}

		user, err := app.sessions.Restore(ctx)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("%w: not signed in, run 'eagle login' first", e.ErrUnauthorized)
		}
		if len(r.cfg.KafkaBrokers) == 0 {
			return fmt.Errorf("no KAFKA_BROKERS configured")
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		consumer := events.NewConsumer(r.cfg.KafkaBrokers, events.GroupFor(user.ID), r.cfg.Topic, r.logger)
		defer consumer.Close()
		consumer.RegisterHandler(eventHandler(*user, receiver))

		r.render.Info("Waiting for notifications for %s, press Ctrl+C to stop", user.Username)
		consumer.Run(ctx)
		return nil
	})
	cmd.Flags().StringVar(&push, "push", "", "show one notification with this text and exit")

	cmd.AddCommand(&cobra.Command{
		Use:   "click <action>",
		Short: "Resolve a notification action to the view it opens",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			receiver := notify.NewReceiver(r.render, r.logger)
			if path, ok := receiver.HandleClick(args[0]); ok {
				r.render.Success("open %s", path)
				return nil
			}
			r.render.Info("dismissed")
			return nil
		},
	})
	return cmd
}

// eventHandler displays the events addressed to user and skips the rest.
func eventHandler(user models.User, receiver *notify.Receiver) func(context.Context, events.Event) error {
	return func(ctx context.Context, event events.Event) error {
		if event.RecipientID != user.ID {
			return nil
		}
		return receiver.HandleEvent(ctx, event)
	}
}

func (r *root) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the health of the eagle server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := grpc.NewClient(r.cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("%w: %v", e.ErrStoreUnavailable, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), r.cfg.RequestTimeout)
			defer cancel()

			start := time.Now()
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
			if err != nil {
				return fmt.Errorf("%w: %v", e.ErrStoreUnavailable, err)
			}
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%w: server is %s", e.ErrStoreUnavailable, resp.GetStatus())
			}
			r.render.Success("%s is serving (%s)", r.cfg.GRPCAddr, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "eagle %s (%s)\n", version, commit)
		},
	}
}

// resolveAssignee accepts a username or a numeric user id.
func resolveAssignee(users []models.User, value string) (int64, error) {
	for _, u := range users {
		if u.Username == value {
			return u.ID, nil
		}
	}
	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		return id, nil
	}
	return 0, fmt.Errorf("%w: unknown assignee %q", e.ErrValidation, value)
}

func normalizeStatus(s string) models.Status {
	want := strings.NewReplacer("-", " ", "_", " ").Replace(s)
	for _, st := range []models.Status{models.StatusPending, models.StatusInProgress, models.StatusCompleted} {
		if strings.EqualFold(string(st), want) {
			return st
		}
	}
	return models.Status(s)
}

func normalizePriority(p string) models.Priority {
	for _, pr := range []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical} {
		if strings.EqualFold(string(pr), p) {
			return pr
		}
	}
	return models.Priority(p)
}
