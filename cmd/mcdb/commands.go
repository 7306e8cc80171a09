package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/mcdb"
)

var errMiss = errors.New("not found")

func serversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "Print the parsed server topology",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(_ context.Context, c mcdb.Cache[string]) error {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "HOST\tPORT\tWEIGHT\tROLE")
				for _, s := range c.Servers() {
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", s.Host, s.Port, s.Weight, s.Role)
				}
				return w.Flush()
			})
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY...",
		Short: "Read one or more keys from a slave",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c mcdb.Cache[string]) error {
				if len(args) == 1 {
					v, ok, err := c.Get(ctx, args[0])
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("%s: %w", args[0], errMiss)
					}
					fmt.Println(v)
					return nil
				}
				vals, err := c.GetMulti(ctx, args)
				if err != nil {
					return err
				}
				for _, k := range args {
					if v, ok := vals[k]; ok {
						fmt.Printf("%s\t%s\n", k, v)
					}
				}
				return nil
			})
		},
	}
}

func setCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "set KEY VALUE [KEY VALUE...]",
		Short: "Store values on the master",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return errors.New("expected KEY VALUE pairs")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c mcdb.Cache[string]) error {
				if len(args) > 2 {
					if mode != "set" {
						return fmt.Errorf("--mode %s takes a single pair", mode)
					}
					items := make(map[string]string, len(args)/2)
					for i := 0; i < len(args); i += 2 {
						items[args[i]] = args[i+1]
					}
					res, err := c.SetMulti(ctx, items)
					if err != nil {
						return err
					}
					for _, k := range res.FailedKeys() {
						fmt.Fprintf(os.Stderr, "%s: %v\n", k, res.Failed[k])
					}
					if len(res.Failed) > 0 {
						return fmt.Errorf("%d of %d keys not stored", len(res.Failed), len(items))
					}
					return nil
				}

				var (
					ok  bool
					err error
				)
				switch mode {
				case "set":
					ok, err = c.Set(ctx, args[0], args[1])
				case "add":
					ok, err = c.Add(ctx, args[0], args[1])
				case "replace":
					ok, err = c.Replace(ctx, args[0], args[1])
				default:
					return fmt.Errorf("unknown mode %q", mode)
				}
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: not stored", args[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "set", "set, add or replace")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY...",
		Short: "Delete keys on the master",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c mcdb.Cache[string]) error {
				res, err := c.DeleteMulti(ctx, args)
				if err != nil {
					return err
				}
				for _, k := range res.FailedKeys() {
					fmt.Fprintf(os.Stderr, "%s: %v\n", k, res.Failed[k])
				}
				return nil
			})
		},
	}
}

func counterCmd(use, short string, up bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " KEY [DELTA]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta := int64(1)
			if len(args) == 2 {
				var err error
				if delta, err = strconv.ParseInt(args[1], 10, 64); err != nil {
					return fmt.Errorf("delta: %w", err)
				}
			}
			return withCache(func(ctx context.Context, c mcdb.Cache[string]) error {
				var (
					n   int64
					err error
				)
				if up {
					n, err = c.Increment(ctx, args[0], delta)
				} else {
					n, err = c.Decrement(ctx, args[0], delta)
				}
				if err != nil {
					return err
				}
				fmt.Println(n)
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the master's memory accounting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(ctx context.Context, c mcdb.Cache[string]) error {
				st, err := c.Stats(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "server\t%s\n", st.Server)
				fmt.Fprintf(w, "limit_maxbytes\t%d\n", st.LimitMaxBytes)
				fmt.Fprintf(w, "bytes\t%d\n", st.Bytes)
				if st.LimitMaxBytes > st.Bytes {
					fmt.Fprintf(w, "available\t%d\n", st.LimitMaxBytes-st.Bytes)
				}
				if raw {
					names := make([]string, 0, len(st.Raw))
					for k := range st.Raw {
						names = append(names, k)
					}
					sort.Strings(names)
					for _, k := range names {
						fmt.Fprintf(w, "%s\t%s\n", k, st.Raw[k])
					}
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print every stat the server reported")
	return cmd
}

func flushCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Remove every key on the master",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to flush without --yes")
			}
			return withCache(func(ctx context.Context, c mcdb.Cache[string]) error {
				_, err := c.Flush(ctx)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the flush")
	return cmd
}
