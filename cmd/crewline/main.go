package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crewline/internal/app"
	"crewline/internal/config"
	"crewline/internal/db"
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/server"
	"crewline/internal/status"
	"crewline/internal/store/postgrest"
)

var rootCmd = &cobra.Command{
	Use:   "crewline",
	Short: "Crewline marketplace lifecycle CLI",
	Long: `Crewline runs the client/professional project lifecycle over a plain CRUD store.
- Projects move open -> assigned -> in_progress -> work_submitted -> work_approved -> completed -> archived.
- Professionals apply; accepting one application rejects every other pending one.
- Every operation converges when re-run after a failure; 'crewline project reconcile' finishes interrupted accepts.
- Event log: view with 'crewline log tail <project>'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CREWLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(applicationCmd())
	rootCmd.AddCommand(workCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default crewline.yml and create the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				fmt.Printf("Initialized crewline workspace (%s backend, config %s)\n", rt.Config.Store.Backend, path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeaders, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				secret := viper.GetString("jwt-secret")
				if secret == "" {
					secret = os.Getenv("CREWLINE_JWT_SECRET")
				}
				if secret == "" {
					return fmt.Errorf("CREWLINE_JWT_SECRET is required for bearer auth")
				}
				if addr == "" {
					addr = rt.Config.Server.Addr
				}
				if basePath == "" {
					basePath = rt.Config.Server.BasePath
				}
				worker := rt.Reconciler()
				cfg := server.Config{
					Engine:   rt.Engine,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret:              secret,
						AllowLegacyActorHeader: legacyHeaders,
						DevLogin:               devLogin,
					},
					Logger:     rt.Logger.WithField("component", "http"),
					Gatherer:   rt.Registry,
					Reconciler: worker,
				}
				if b, ok := rt.Store.(interface{ BreakerState() postgrest.CircuitState }); ok {
					cfg.Breaker = b
				}
				handler, err := server.New(cfg)
				if err != nil {
					return err
				}
				if rt.Config.Reconcile.Enabled {
					if err := worker.Start(ctx); err != nil {
						return err
					}
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Crewline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	cmd.Flags().BoolVar(&legacyHeaders, "allow-legacy-headers", false, "accept X-Actor-Id/X-Actor-Role without credentials")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectActionCmd("start", "Start work on an assigned project (as the assignee)",
		func(ctx context.Context, e engine.Engine, id, actor string) (domain.Project, error) {
			return e.StartWork(ctx, engine.StartWorkOptions{ProjectID: id, ActorID: actor})
		}))
	prj.AddCommand(projectActionCmd("cancel", "Cancel a project (as the client)",
		func(ctx context.Context, e engine.Engine, id, actor string) (domain.Project, error) {
			return e.CancelProject(ctx, id, actor)
		}))
	prj.AddCommand(projectActionCmd("dispute", "Open a dispute (as either party)",
		func(ctx context.Context, e engine.Engine, id, actor string) (domain.Project, error) {
			return e.DisputeProject(ctx, id, actor)
		}))
	prj.AddCommand(projectReconcileCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var title, desc string
	var budget float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project (as the client)",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.CreateProjectOptions{ClientID: actor, Title: title, Description: desc, Budget: budget})
				if err != nil {
					return err
				}
				return printProjects(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&desc, "description", "", "project description")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f engine.ProjectFilter
	var st string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = status.ProjectStatus(st)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				return printProjects(items...)
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client", "", "filter by client")
	cmd.Flags().StringVar(&f.AssignedTo, "assigned-to", "", "filter by assigned professional")
	cmd.Flags().StringVar(&st, "status", "", "filter by status")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show project and its applications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				apps, err := e.ListApplications(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "applications": apps})
				}
				if err := printProjects(p); err != nil {
					return err
				}
				return printApplications(apps...)
			})
		},
	}
}

func projectActionCmd(use, short string, run func(context.Context, engine.Engine, string, string) (domain.Project, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <project-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := run(ctx, e, args[0], actor)
				if err != nil {
					return err
				}
				return printProjects(p)
			})
		},
	}
}

func projectReconcileCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reconcile [project-id]",
		Short: "Finish interrupted application accepts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("pass a project id or --all")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if all {
					sum, err := rt.Reconciler().RunOnce(ctx)
					if err != nil {
						return err
					}
					return printJSON(sum)
				}
				res, err := rt.Engine.Reconcile(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "reconcile every assigned project")
	return cmd
}

func applicationCmd() *cobra.Command {
	ap := &cobra.Command{Use: "application", Aliases: []string{"app"}, Short: "Apply and decide on applications"}
	ap.AddCommand(applicationApplyCmd())
	ap.AddCommand(applicationListCmd())
	ap.AddCommand(applicationDecideCmd("accept", engine.Accept))
	ap.AddCommand(applicationDecideCmd("reject", engine.Reject))
	return ap
}

func applicationApplyCmd() *cobra.Command {
	var proposal string
	cmd := &cobra.Command{
		Use:   "apply <project-id>",
		Short: "Apply to an open project (as a professional)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Apply(ctx, engine.ApplyOptions{ProjectID: args[0], ProfessionalID: actor, Proposal: proposal})
				if err != nil {
					return err
				}
				return printApplications(a)
			})
		},
	}
	cmd.Flags().StringVar(&proposal, "proposal", "", "proposal text")
	return cmd
}

func applicationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List applications of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListApplications(ctx, args[0])
				if err != nil {
					return err
				}
				return printApplications(items...)
			})
		},
	}
}

func applicationDecideCmd(use string, outcome engine.Outcome) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <application-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " an application (as the client)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Decide(ctx, engine.DecideOptions{ApplicationID: args[0], Outcome: outcome, ActorID: actor})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if err := printProjects(res.Project); err != nil {
					return err
				}
				if len(res.Rejected) > 0 {
					fmt.Printf("rejected %d other application(s): %s\n", len(res.Rejected), strings.Join(res.Rejected, ", "))
				}
				return nil
			})
		},
	}
}

func workCmd() *cobra.Command {
	w := &cobra.Command{Use: "work", Short: "Submit and review delivered work"}

	var artifact string
	submit := &cobra.Command{
		Use:   "submit <project-id>",
		Short: "Submit work for review (as the assignee)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SubmitWork(ctx, engine.SubmitWorkOptions{ProjectID: args[0], ActorID: actor, ArtifactRef: artifact})
				if err != nil {
					return err
				}
				return printProjects(p)
			})
		},
	}
	submit.Flags().StringVar(&artifact, "artifact", "", "reference to the delivered artifact")

	var notes string
	revise := &cobra.Command{
		Use:   "revise <project-id>",
		Short: "Request changes (as the client)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RequestRevision(ctx, engine.RevisionOptions{ProjectID: args[0], ActorID: actor, Notes: notes})
				if err != nil {
					return err
				}
				return printProjects(p)
			})
		},
	}
	revise.Flags().StringVar(&notes, "notes", "", "what needs to change")

	w.AddCommand(submit, revise, projectActionCmd("approve", "Approve work and complete the project (as the client)",
		func(ctx context.Context, e engine.Engine, id, actor string) (domain.Project, error) {
			return e.ApproveWork(ctx, engine.ApproveOptions{ProjectID: id, ActorID: actor})
		}))
	return w
}

func reviewCmd() *cobra.Command {
	var rating int
	var comment string
	cmd := &cobra.Command{
		Use:   "review <project-id>",
		Short: "Review the other party of a finished project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SubmitReview(ctx, engine.ReviewOptions{ProjectID: args[0], ReviewerID: actor, Rating: rating, Comment: comment})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("review %s recorded as %s (project %s)\n", res.Review.ID, res.Review.ReviewerRole, res.Project.Status)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&rating, "rating", 0, "rating 1-5")
	cmd.Flags().StringVar(&comment, "comment", "", "comment")
	return cmd
}

func dashboardCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the dashboard snapshot for the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.Dashboard.Refresh(ctx, actor, domain.Role(role))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				if err := printProjects(snap.Projects...); err != nil {
					return err
				}
				if err := printApplications(snap.Applications...); err != nil {
					return err
				}
				fmt.Printf("%d payment(s), %d review(s)\n", len(snap.Payments), len(snap.Reviews))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleClient), "client or professional")
	return cmd
}

func notificationsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List the actor's notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListNotifications(ctx, actor, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable(table.Row{"Created", "Kind", "Title", "Message"})
				for _, it := range items {
					t.AppendRow(table.Row{it.CreatedAt, it.Kind, it.Title, it.Message})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of notifications")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail <project-id>",
		Short: "Tail a project's events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvents(ctx, args[0], n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable(table.Row{"#", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, ev := range items {
					t.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + ":" + ev.EntityID, ev.ActorID, ev.Payload})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var role, name string
	create := &cobra.Command{
		Use:   "create <actor-id>",
		Short: "Create an API key; the raw key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, raw, err := e.CreateAPIKey(ctx, engine.CreateAPIKeyOptions{ActorID: args[0], Role: domain.Role(role), Name: name})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "role": key.Role, "key": raw})
				}
				fmt.Printf("API key %s for %s (%s):\n%s\n", key.ID, key.ActorID, key.Role, raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&role, "role", string(domain.RoleProfessional), "client, professional or admin")
	create.Flags().StringVar(&name, "name", "", "label")

	var actor string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					for i := range keys {
						keys[i].KeyHash = ""
					}
					return printJSON(keys)
				}
				t := newTable(table.Row{"ID", "Actor", "Role", "Name", "Created"})
				for _, key := range keys {
					t.AppendRow(table.Row{key.ID, key.ActorID, key.Role, key.Name, key.CreatedAt})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	list.Flags().StringVar(&actor, "actor", "", "filter by actor")

	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RevokeAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}

	k.AddCommand(create, list, revoke)
	return k
}

func tokenCmd() *cobra.Command {
	var role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the actor using CREWLINE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			if err := app.LoadEnv(viper.GetString("workspace")); err != nil {
				return err
			}
			r, ok := domain.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := server.SignToken(os.Getenv("CREWLINE_JWT_SECRET"), actor, r, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleClient), "client, professional or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

func actorID() (string, error) {
	actor := strings.TrimSpace(viper.GetString("actor-id"))
	if actor == "" {
		return "", fmt.Errorf("--actor-id (or CREWLINE_ACTOR_ID) required")
	}
	return actor, nil
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(header)
	return t
}

func printProjects(items ...domain.Project) error {
	if viper.GetBool("json") {
		if len(items) == 1 {
			return printJSON(items[0])
		}
		return printJSON(items)
	}
	t := newTable(table.Row{"ID", "Title", "Status", "Client", "Assigned", "Budget", "Updated"})
	for _, p := range items {
		t.AppendRow(table.Row{p.ID, p.Title, p.Status, p.ClientID, p.Assignee(), p.Budget, p.UpdatedAt})
	}
	fmt.Println(t.Render())
	return nil
}

func printApplications(items ...domain.Application) error {
	if viper.GetBool("json") {
		if len(items) == 1 {
			return printJSON(items[0])
		}
		return printJSON(items)
	}
	t := newTable(table.Row{"ID", "Project", "Professional", "Status", "Created"})
	for _, a := range items {
		t.AppendRow(table.Row{a.ID, a.ProjectID, a.ProfessionalID, a.Status, a.CreatedAt})
	}
	fmt.Println(t.Render())
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
