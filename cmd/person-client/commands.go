package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/okian/crudapp/internal/client"
	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/logger"
	"github.com/spf13/cobra"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultSeedCount   = 100
	defaultSeedWorkers = 4
)

// App holds the root command and the flags shared by every subcommand.
type App struct {
	rootCmd *cobra.Command

	baseURL string
	timeout time.Duration
	verbose bool

	// logOut receives log lines; stdout is kept for command output.
	logOut io.Writer
	log    logger.Logger
}

func newApp() *App {
	a := &App{logOut: os.Stderr}
	a.rootCmd = &cobra.Command{
		Use:           "person-client",
		Short:         "Command line client for the person API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithWriter(a.logOut)); err != nil {
				return err
			}
			if a.verbose {
				_ = logger.SetLevelString("debug")
			}
			a.log = logger.Named("person-client")
			return nil
		},
	}
	a.rootCmd.PersistentFlags().StringVar(&a.baseURL, "url", client.DefaultBaseURL, "base URL of the person API")
	a.rootCmd.PersistentFlags().DurationVar(&a.timeout, "timeout", defaultTimeout, "per-request timeout")
	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	installListCmd(a)
	installGetCmd(a)
	installCreateCmd(a)
	installEditCmd(a)
	installDeleteCmd(a)
	installSeedCmd(a)
	return a
}

// Execute runs the command line. Failures are logged before returning.
func (a *App) Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := a.rootCmd.ExecuteContext(ctx)
	if err != nil {
		if a.log == nil {
			_ = logger.Init(logger.WithWriter(a.logOut))
			a.log = logger.Named("person-client")
		}
		a.log.Error(context.Background(), "command failed", logger.Error(err))
	}
	return err
}

func (a *App) client() *client.Client {
	return client.New(a.baseURL, client.WithTimeout(a.timeout))
}

// print writes v as indented JSON to the command's stdout.
func (a *App) print(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid person id %q", s)
	}
	return id, nil
}

func installListCmd(a *App) {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every person",
		Long:  "Fetch the person list once and print it. No retry is made on failure.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			persons, err := a.client().List(ctx)
			if err != nil {
				return err
			}
			a.log.Info(ctx, "person list received", logger.Int("count", len(persons)), logger.Any("persons", persons))
			return a.print(cmd, persons)
		},
	}
	a.rootCmd.AddCommand(cmd)
}

func installGetCmd(a *App) {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := a.client().Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.print(cmd, p)
		},
	}
	a.rootCmd.AddCommand(cmd)
}

// personFlags binds the editable person fields to cmd.
func personFlags(cmd *cobra.Command, p *model.Person) {
	cmd.Flags().StringVar(&p.FirstName, "first", "", "first name")
	cmd.Flags().StringVar(&p.LastName, "last", "", "last name")
	cmd.Flags().StringVar(&p.EmailAddress, "email", "", "email address")
	cmd.Flags().StringVar(&p.StreetAddress, "street", "", "street address")
	cmd.Flags().StringVar(&p.City, "city", "", "city")
	cmd.Flags().StringVar(&p.State, "state", "", "two letter state code")
	cmd.Flags().StringVar(&p.ZipCode, "zip", "", "five digit zip code")
}

func installCreateCmd(a *App) {
	var (
		p   model.Person
		key string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a person",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.client().Create(cmd.Context(), p, key)
			if err != nil {
				return err
			}
			if res.Duplicate {
				a.log.Info(cmd.Context(), "idempotency key already used", logger.String("key", key))
			}
			return a.print(cmd, res)
		},
	}
	personFlags(cmd, &p)
	cmd.Flags().StringVar(&key, "idempotency-key", "", "optional key that makes the create safe to retry")
	a.rootCmd.AddCommand(cmd)
}

func installEditCmd(a *App) {
	var p model.Person
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a person",
		Long:  "Load the person, apply the given flags and save it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c := a.client()
			cur, err := c.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			set := func(name string, dst *string, v string) {
				if cmd.Flags().Changed(name) {
					*dst = v
				}
			}
			set("first", &cur.FirstName, p.FirstName)
			set("last", &cur.LastName, p.LastName)
			set("email", &cur.EmailAddress, p.EmailAddress)
			set("street", &cur.StreetAddress, p.StreetAddress)
			set("city", &cur.City, p.City)
			set("state", &cur.State, p.State)
			set("zip", &cur.ZipCode, p.ZipCode)

			updated, err := c.Update(cmd.Context(), cur)
			if err != nil {
				return err
			}
			return a.print(cmd, updated)
		},
	}
	personFlags(cmd, &p)
	a.rootCmd.AddCommand(cmd)
}

func installDeleteCmd(a *App) {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.client().Delete(cmd.Context(), id); err != nil {
				return err
			}
			a.log.Info(cmd.Context(), "person deleted", logger.Int64("person_id", id))
			return nil
		},
	}
	a.rootCmd.AddCommand(cmd)
}

func installSeedCmd(a *App) {
	var count, workers int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create random persons concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.client().Seed(cmd.Context(), count, workers)
			if perr := a.print(cmd, res); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d of %d creates failed", res.Failed, res.Total())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", defaultSeedCount, "number of persons to create")
	cmd.Flags().IntVar(&workers, "workers", defaultSeedWorkers, "number of concurrent requests")
	a.rootCmd.AddCommand(cmd)
}
