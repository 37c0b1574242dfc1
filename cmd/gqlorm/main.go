package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"gqlorm/internal/actions"
	"gqlorm/internal/app"
	"gqlorm/internal/config"
	"gqlorm/internal/record"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

const shutdownTimeout = 10 * time.Second

// Actions accepted by --action.
const (
	actionFetch          = "fetch"
	actionDestroy        = "destroy"
	actionQuery          = "query"
	actionMutate         = "mutate"
	actionSimpleQuery    = "simple-query"
	actionSimpleMutation = "simple-mutation"
	actionPrint          = "print"
	actionIntrospect     = "introspect"
	actionWatch          = "watch"
)

var knownActions = []string{
	actionFetch, actionDestroy, actionQuery, actionMutate,
	actionSimpleQuery, actionSimpleMutation, actionPrint, actionIntrospect, actionWatch,
}

// command is one CLI invocation.
type command struct {
	Action      string
	Entity      string
	ID          string
	Name        string
	Document    string
	Filter      *record.Record
	Variables   *record.Record
	Multiple    bool
	BypassCache bool
}

func main() {
	if err := run(); err != nil {
		slog.Error("gqlorm error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func registerCommandFlags(fs *pflag.FlagSet) {
	fs.Bool("version", false, "Print version and exit")
	fs.String("action", actionFetch, "Action to run: "+strings.Join(knownActions, ", "))
	fs.String("entity", "", "Entity (model) name, e.g. posts")
	fs.String("id", "", "Record id for destroy, or a single-record fetch")
	fs.String("name", "", "Custom query or mutation name")
	fs.String("filter", "", "JSON object of filter values or mutation arguments")
	fs.String("document", "", "GraphQL document text for simple-query and simple-mutation")
	fs.String("variables", "", "JSON object of variables for simple-query and simple-mutation")
	fs.Bool("multiple", true, "Custom query returns a collection")
	fs.Bool("bypass-cache", false, "Skip cached responses")
}

func run() error {
	registerCommandFlags(pflag.CommandLine)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("gqlorm %s (%s)\n", Version, Commit)
		return nil
	}

	cmd, err := parseCommand(pflag.CommandLine)
	if err != nil {
		return err
	}

	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	logger, loggerProvider, err := app.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	a.AttachLoggerProvider(loggerProvider)

	if err := a.Init(context.Background()); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	}()

	if cmd.Action == actionWatch {
		return watch(a)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, a, cmd, os.Stdout)
}

// parseCommand reads the command flags and checks the inputs each action
// needs.
func parseCommand(fs *pflag.FlagSet) (command, error) {
	var cmd command
	cmd.Action, _ = fs.GetString("action")
	cmd.Entity, _ = fs.GetString("entity")
	cmd.ID, _ = fs.GetString("id")
	cmd.Name, _ = fs.GetString("name")
	cmd.Document, _ = fs.GetString("document")
	cmd.Multiple, _ = fs.GetBool("multiple")
	cmd.BypassCache, _ = fs.GetBool("bypass-cache")

	var err error
	filter, _ := fs.GetString("filter")
	if cmd.Filter, err = parseJSONObject("filter", filter); err != nil {
		return command{}, err
	}
	variables, _ := fs.GetString("variables")
	if cmd.Variables, err = parseJSONObject("variables", variables); err != nil {
		return command{}, err
	}

	switch cmd.Action {
	case actionFetch, actionPrint:
		if cmd.Entity == "" {
			return command{}, fmt.Errorf("--entity is required for %s", cmd.Action)
		}
		if cmd.ID != "" {
			if cmd.Filter == nil {
				cmd.Filter = record.New()
			}
			cmd.Filter.Set("id", cmd.ID)
		}
	case actionDestroy:
		if cmd.Entity == "" || cmd.ID == "" {
			return command{}, fmt.Errorf("--entity and --id are required for destroy")
		}
	case actionQuery, actionMutate:
		if cmd.Entity == "" || cmd.Name == "" {
			return command{}, fmt.Errorf("--entity and --name are required for %s", cmd.Action)
		}
	case actionSimpleQuery, actionSimpleMutation:
		if strings.TrimSpace(cmd.Document) == "" {
			return command{}, fmt.Errorf("--document is required for %s", cmd.Action)
		}
	case actionIntrospect, actionWatch:
	default:
		return command{}, fmt.Errorf("unknown action %q (valid: %s)", cmd.Action, strings.Join(knownActions, ", "))
	}
	return cmd, nil
}

func parseJSONObject(flag, raw string) (*record.Record, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	rec, err := record.DecodeObject([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", flag, err)
	}
	return rec, nil
}

// execute runs a one-shot action and writes its JSON result to out.
func execute(ctx context.Context, a *app.App, cmd command, out io.Writer) error {
	svc := a.Service()
	if svc == nil {
		return fmt.Errorf("app is not initialized")
	}

	var result any
	switch cmd.Action {
	case actionFetch:
		inserted, err := svc.Fetch(ctx, cmd.Entity, actions.FetchParams{Filter: cmd.Filter, BypassCache: cmd.BypassCache})
		if err != nil {
			return err
		}
		result = inserted
	case actionDestroy:
		if err := svc.Destroy(ctx, cmd.Entity, cmd.ID); err != nil {
			return err
		}
		result = map[string]any{"destroyed": cmd.ID, "entity": cmd.Entity}
	case actionQuery:
		inserted, err := svc.Query(ctx, cmd.Entity, cmd.Name, actions.QueryParams{
			Filter:      cmd.Filter,
			Multiple:    cmd.Multiple,
			BypassCache: cmd.BypassCache,
		})
		if err != nil {
			return err
		}
		result = inserted
	case actionMutate:
		inserted, err := svc.Mutate(ctx, cmd.Entity, cmd.Name, cmd.Filter)
		if err != nil {
			return err
		}
		result = inserted
	case actionSimpleQuery:
		data, err := svc.SimpleQuery(ctx, cmd.Document, cmd.Variables, cmd.BypassCache)
		if err != nil {
			return err
		}
		result = data
	case actionSimpleMutation:
		data, err := svc.SimpleMutation(ctx, cmd.Document, cmd.Variables)
		if err != nil {
			return err
		}
		result = data
	case actionPrint:
		doc, err := svc.BuildFetch(ctx, cmd.Entity, actions.FetchParams{Filter: cmd.Filter})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, doc.Text); err != nil {
			return err
		}
		if doc.Variables == nil || doc.Variables.Len() == 0 {
			return nil
		}
		result = doc.Variables
	case actionIntrospect:
		snapshot, err := a.Loader().Load(ctx)
		if err != nil {
			return err
		}
		result = map[string]any{
			"fingerprint":     snapshot.Fingerprint,
			"connection_mode": string(snapshot.Mode),
			"queries":         snapshot.Index.QueryNames(),
			"mutations":       snapshot.Index.MutationNames(),
		}
	default:
		return fmt.Errorf("action %q cannot run once", cmd.Action)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// watch keeps the schema fresh until a signal arrives.
func watch(a *app.App) error {
	serverErrors, err := a.Start(context.Background())
	if err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	_, err = a.WaitForStop(stop, serverErrors)
	return err
}
