package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dyluth/lodge/internal/config"
	"github.com/dyluth/lodge/internal/history"
	"github.com/dyluth/lodge/internal/instance"
	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/internal/logging"
	"github.com/dyluth/lodge/internal/notify"
	"github.com/dyluth/lodge/internal/printer"
	"github.com/dyluth/lodge/internal/rebuild"
	"github.com/dyluth/lodge/internal/resolver"
	"github.com/dyluth/lodge/internal/tenant"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/spf13/cobra"
)

// Environment fallbacks for the identity flags.
const (
	EnvTenant = "LODGE_TENANT"
	EnvActor  = "LODGE_ACTOR"
)

var (
	configPath string
	tenantFlag string
	actorFlag  string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lodge",
	Short: "Lodge - datasheet revision and value-set lifecycle",
	Long: `Lodge manages engineering datasheets: layouts of typed fields whose values
move through Draft, Verified and Approved states, with an append-only revision
history and Requirement, Offered and As-Built value sets for comparing what was
asked for against what was delivered.

All state lives in Redis. Commands read lodge.yml from the current directory
or the nearest parent; run 'lodge init' to create one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "Path to lodge.yml (default: discovered from the working directory)")
	rootCmd.PersistentFlags().StringVar(&tenantFlag, "tenant", "", "Tenant to act for (env "+EnvTenant+")")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor performing the operation (env "+EnvActor+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine events to stderr")
}

// session is an open connection to a Lodge instance.
type session struct {
	cfg    *config.LodgeConfig
	store  *datasheet.Client
	engine *lifecycle.Engine
	scope  lifecycle.Scope
}

func (s *session) Close() {
	s.store.Close()
}

// openSession loads lodge.yml, connects to Redis and builds an engine that
// publishes notifications and queues summary rebuilds like the server does.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := instance.LoadConfig(configPath)
	if errors.Is(err, instance.ErrNoWorkspace) {
		return nil, printer.Error(
			"no Lodge workspace found",
			"No lodge.yml in this directory or any parent.",
			[]string{"Create one:\n  lodge init", "Point at one:\n  lodge --config path/to/lodge.yml ..."},
		)
	}
	if err != nil {
		return nil, printer.Error("invalid configuration", err.Error(), nil)
	}

	store, err := instance.Connect(ctx, cfg)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			err.Error(),
			map[string]string{"Instance": cfg.Instance, "Redis": cfg.Redis.URL},
			[]string{"Check that Redis is running and redis.url in lodge.yml is correct."},
		)
	}

	opts := []lifecycle.Option{
		lifecycle.WithTenantGate(tenant.NewRedisGate(store)),
		lifecycle.WithNotifier(notify.NewPublisher(store)),
		lifecycle.WithRebuilder(rebuild.NewQueue(store)),
		lifecycle.WithTxPolicy(instance.TxPolicy(cfg)),
		lifecycle.WithMaxPageSize(cfg.Revisions.MaxPageSize),
	}
	if verbose {
		opts = append(opts, lifecycle.WithLogger(logging.Console(os.Stderr, "lodge")))
	}

	return &session{
		cfg:    cfg,
		store:  store,
		engine: lifecycle.NewEngine(store, opts...),
		scope:  scopeFromFlags(os.Getenv),
	}, nil
}

// scopeFromFlags prefers --tenant/--actor and falls back to the environment.
// Missing values are left empty for the engine to reject.
func scopeFromFlags(getenv func(string) string) lifecycle.Scope {
	scope := lifecycle.Scope{TenantID: tenantFlag, ActorID: actorFlag}
	if scope.TenantID == "" {
		scope.TenantID = getenv(EnvTenant)
	}
	if scope.ActorID == "" {
		scope.ActorID = getenv(EnvActor)
	}
	return scope
}

// fail turns engine and resolver errors into printed reports.
func fail(err error) error {
	var ambiguous *resolver.AmbiguousError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ambiguous):
		return printer.Error("ambiguous short ID", resolver.FormatAmbiguousError(ambiguous), nil)
	case resolver.IsNotFoundError(err):
		return printer.Error("Not found", err.Error(), []string{"List documents:\n  lodge doc list"})
	default:
		return printer.LifecycleError(err)
	}
}

func (s *session) documentID(ctx context.Context, ref string) (string, error) {
	return resolver.ResolveDocumentID(ctx, s.store, ref)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	return history.FormatJSON(printer.Out, v)
}

// parseAssignments turns --set key=value pairs and --clear keys into a patch
// map where nil clears the entry.
func parseAssignments(sets, clears []string) (map[string]*string, error) {
	out := make(map[string]*string, len(sets)+len(clears))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return nil, printer.Error("invalid --set", fmt.Sprintf("Expected key=value, got %q", s), nil)
		}
		v := value
		out[key] = &v
	}
	for _, key := range clears {
		if _, dup := out[key]; dup {
			return nil, printer.Error("conflicting flags", fmt.Sprintf("%q is both set and cleared", key), nil)
		}
		out[key] = nil
	}
	return out, nil
}
