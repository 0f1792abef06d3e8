// FILE: lixenwraith/iniconf/cmd/iniconf/commands.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lixenwraith/iniconf"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	declPath    string
	staticPath  string
	prefix      string
	sapi        string
	logLevel    string
	passThrough bool
	threads     bool
}

// session is one built manager with a worker table ready for a request.
type session struct {
	manager *iniconf.Manager
	host    *iniconf.MemoryHost
	table   *iniconf.Table
	static  string
	logger  zerolog.Logger
}

func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	settings, err := iniconf.ResolveSettings(iniconf.Settings{
		LogLevel:   o.logLevel,
		SAPI:       o.sapi,
		StaticFile: o.staticPath,
	})
	if err != nil {
		return nil, err
	}
	logger := iniconf.NewLogger(settings.LogLevel, cmd.ErrOrStderr())

	static := settings.StaticFile
	if static == "" {
		var origin iniconf.DiscoveryOrigin
		static, origin = iniconf.LocateStaticFile(iniconf.DefaultDiscoveryOptions("iniconf"), nil)
		if origin != iniconf.OriginNone {
			logger.Debug().Str("path", static).Str("origin", string(origin)).Msg("Using discovered static file")
		}
	}

	var hostOpts []iniconf.HostOption
	if settings.SAPI != "" {
		hostOpts = append(hostOpts, iniconf.WithSAPI(settings.SAPI))
	}
	if o.threads {
		hostOpts = append(hostOpts, iniconf.WithThreads())
	}
	host := iniconf.NewMemoryHost(hostOpts...)

	b := iniconf.NewBuilder().
		WithDeclarations(o.declPath).
		WithHost(host).
		WithSettings(settings).
		WithLogger(logger).
		WithStaticFile(static).
		WithArgs(nil)
	if o.passThrough {
		b.WithMapper(nil)
	} else {
		b.WithMapper(iniconf.PrefixMapper(o.prefix))
	}

	m, err := b.Build()
	if err != nil {
		if m == nil || !errors.Is(err, iniconf.ErrStaticNotFound) {
			return nil, err
		}
		logger.Warn().Err(err).Msg("Continuing without static configuration")
		static = ""
	}
	host.FinishStartup()

	return &session{
		manager: m,
		host:    host,
		table:   host.StartThread(),
		static:  static,
		logger:  logger,
	}, nil
}

func newResolveCmd(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "resolve [alias...]",
		Short: "Run one request and print the resolved value of every option",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.open(cmd)
			if err != nil {
				return err
			}
			if err := s.manager.RequestInit(s.table); err != nil {
				return err
			}
			defer s.manager.RequestShutdown(s.table)

			ids, err := selectOptions(s.manager, args)
			if err != nil {
				return err
			}
			return printResolved(cmd.OutOrStdout(), s, ids, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or toml")
	return cmd
}

func newNamesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "names",
		Short: "Print the directive name generated for every alias",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.open(cmd)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tALIAS\tDIRECTIVE\tTYPE\tSYSTEM")
			for _, opt := range s.manager.Options() {
				for n, alias := range opt.Names {
					name, ok := s.manager.DirectiveName(opt.ID, n)
					if !ok {
						name = "-"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", opt.ID, alias, name, opt.Type, opt.System)
				}
			}
			return w.Flush()
		},
	}
}

func newExportCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Write the resolved values as a static configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.open(cmd)
			if err != nil {
				return err
			}
			if err := s.manager.RequestInit(s.table); err != nil {
				return err
			}
			defer s.manager.RequestShutdown(s.table)

			values, err := s.manager.Effective(s.table)
			if err != nil {
				return err
			}
			if err := iniconf.WriteStaticFile(args[0], values); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d values to %s\n", len(values), args[0])
			return err
		},
	}
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	var (
		poll     time.Duration
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload the static file on change and print updated options",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.open(cmd)
			if err != nil {
				return err
			}
			if s.static == "" {
				return fmt.Errorf("watch needs a static file (--static or INICONF_STATIC)")
			}

			opts := iniconf.DefaultWatchOptions()
			opts.PollInterval = poll
			opts.Debounce = debounce
			w, err := s.manager.WatchStatic(s.host, s.static, opts)
			if err != nil {
				return err
			}
			defer w.Stop()
			changes := w.Subscribe()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "watching %s\n", s.static)
			for {
				select {
				case <-ctx.Done():
					return nil
				case name, ok := <-changes:
					if !ok {
						return nil
					}
					id, known := s.manager.Lookup(name)
					if !known {
						fmt.Fprintf(out, "event: %s\n", name)
						continue
					}
					if err := s.manager.RequestInit(s.table); err != nil {
						return err
					}
					text, _ := s.manager.String(s.table, id)
					fmt.Fprintf(out, "%s = %s (%s)\n", name, text, s.manager.Source(s.table, id))
					s.manager.RequestShutdown(s.table)
					s.host.Deactivate(s.table)
				}
			}
		},
	}
	cmd.Flags().DurationVar(&poll, "poll", iniconf.DefaultPollInterval, "file stat poll interval")
	cmd.Flags().DurationVar(&debounce, "debounce", iniconf.DefaultDebounce, "reload debounce period")
	return cmd
}

// selectOptions maps aliases to option IDs; no aliases selects every option.
func selectOptions(m *iniconf.Manager, aliases []string) ([]iniconf.ID, error) {
	options := m.Options()
	if len(aliases) == 0 {
		ids := make([]iniconf.ID, len(options))
		for i, opt := range options {
			ids[i] = opt.ID
		}
		return ids, nil
	}

	byAlias := make(map[string]iniconf.ID)
	for _, opt := range options {
		for _, alias := range opt.Names {
			byAlias[alias] = opt.ID
		}
	}
	ids := make([]iniconf.ID, 0, len(aliases))
	for _, alias := range aliases {
		id, ok := byAlias[alias]
		if !ok {
			return nil, fmt.Errorf("%w: %s", iniconf.ErrUnknownOption, alias)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type resolvedOption struct {
	Alias    string `json:"alias"`
	Value    any    `json:"value"`
	Source   string `json:"source"`
	Modified bool   `json:"modified"`
}

func printResolved(out io.Writer, s *session, ids []iniconf.ID, format string) error {
	m := s.manager
	switch strings.ToLower(format) {
	case "toml":
		return m.Dump(s.table, out)
	case "json":
		rows := make([]resolvedOption, 0, len(ids))
		for _, id := range ids {
			opt := m.Options()[id]
			rows = append(rows, resolvedOption{
				Alias:    opt.Names[0],
				Value:    m.Get(s.table, id),
				Source:   string(m.Source(s.table, id)),
				Modified: m.IsModified(s.table, id),
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "text", "":
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ALIAS\tVALUE\tSOURCE\tMODIFIED")
		for _, id := range ids {
			text, err := m.String(s.table, id)
			if err != nil {
				text = fmt.Sprintf("<%v>", err)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", m.Options()[id].Names[0], text, m.Source(s.table, id), m.IsModified(s.table, id))
		}
		return w.Flush()
	}
	return fmt.Errorf("unknown format %q", format)
}
