package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/v0xg/ohmycomment/internal/settings"
)

// withStore opens the settings store for a one-shot command.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *settings.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cmd.Context(), store)
}

func newPersonaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Manage personas (named system prompts)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				personas, err := store.Personas(ctx)
				if err != nil {
					return err
				}
				if len(personas) == 0 {
					fmt.Println("No personas. Add one with 'ohmycomment persona add <name> <prompt>'.")
					return nil
				}
				for _, p := range personas {
					mark := " "
					if p.IsDefault {
						mark = "*"
					}
					fmt.Printf("%s %s  %s\n", mark, p.ID, p.Name)
					if verbose {
						fmt.Printf("    %s\n", p.Prompt)
					}
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <prompt>",
		Short: "Add a persona",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				p, err := store.AddPersona(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Printf("✓ Added %s (%s)\n", p.Name, p.ID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "default <id>",
		Short: "Make a persona the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				if err := store.SelectDefault(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("✓ Default persona is now %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				err := store.RemovePersona(ctx, args[0])
				if errors.Is(err, settings.ErrNotFound) {
					return fmt.Errorf("no persona with id %s", args[0])
				}
				if err != nil {
					return err
				}
				fmt.Printf("✓ Removed %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pin <host> <id>",
		Short: "Use a persona whenever a page on host asks for a reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				if err := store.PinHostPersona(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("✓ %s now uses %s\n", args[0], args[1])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unpin <host>",
		Short: "Drop a host's persona pin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				return store.UnpinHost(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pins",
		Short: "List host persona pins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				pins, err := store.HostPersonas(ctx)
				if err != nil {
					return err
				}
				hosts := make([]string, 0, len(pins))
				for h := range pins {
					hosts = append(hosts, h)
				}
				sort.Strings(hosts)
				for _, h := range hosts {
					fmt.Printf("%s  %s\n", h, pins[h])
				}
				return nil
			})
		},
	})

	return cmd
}

func newHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Turn the assistant off on some sites",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "disable <pattern>",
		Short: "Disable on hosts matching a glob such as *.example.com",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				if err := store.DisableHost(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("✓ Disabled on %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "enable <pattern>",
		Short: "Remove a disabled-host pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				if err := store.EnableHost(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("✓ Enabled on %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List disabled-host patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				patterns, err := store.DisabledHosts(ctx)
				if err != nil {
					return err
				}
				for _, p := range patterns {
					fmt.Println(p)
				}
				return nil
			})
		},
	})

	return cmd
}

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored API key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key]",
		Short: "Store the API key (reads stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				fmt.Fprint(os.Stderr, "API key: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read key: %w", err)
				}
				key = line
			}
			if strings.TrimSpace(key) == "" {
				return errors.New("empty key")
			}
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				if err := store.SetAPIKey(ctx, key); err != nil {
					return err
				}
				fmt.Println("✓ API key saved")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				return store.SetAPIKey(ctx, "")
			})
		},
	})

	return cmd
}

func newUsageCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show request and token counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				if reset {
					if err := store.ResetUsage(ctx); err != nil {
						return err
					}
					fmt.Println("✓ Usage reset")
					return nil
				}
				u, err := store.Usage(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Requests:      %d\n", u.RequestCount)
				fmt.Printf("Input tokens:  %d\n", u.TotalInputTokens)
				fmt.Printf("Output tokens: %d\n", u.TotalOutputTokens)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Zero the counters")
	return cmd
}

func newThemeCmd() *cobra.Command {
	var toggle bool
	cmd := &cobra.Command{
		Use:   "theme",
		Short: "Show or toggle the stored light/dark theme",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				var theme string
				var err error
				if toggle {
					theme, err = store.ToggleTheme(ctx)
				} else {
					theme, err = store.Theme(ctx)
				}
				if err != nil {
					return err
				}
				fmt.Println(theme)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&toggle, "toggle", false, "Switch between light and dark")
	return cmd
}
