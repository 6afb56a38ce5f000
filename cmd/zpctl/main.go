// Command zpctl is a thin CLI wrapper around the zenoh package: scout
// for a router, put/get a key, or subscribe and print samples as they
// arrive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	zenoh "github.com/frankplus/zenoh-pico"
	"github.com/frankplus/zenoh-pico/config"
	"github.com/frankplus/zenoh-pico/internal/zerrors"
	"github.com/frankplus/zenoh-pico/internal/zlog"
)

const (
	exitOK = iota
	exitConfigError
	exitConnectionError
	exitRuntimeError
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		peer         string
		scoutTimeout time.Duration
		verbose      bool
	)

	root := &cobra.Command{
		Use:           "zpctl",
		Short:         "scout, put, get, and subscribe against a zenoh-pico router",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&peer, "peer", "", "router locator, e.g. tcp/127.0.0.1:7447 (omit to scout)")
	root.PersistentFlags().DurationVar(&scoutTimeout, "scout-timeout", 0, "scouting window (default from config)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "log session activity to stderr")

	buildConfig := func() (*config.Config, error) {
		var opts []config.Option
		if peer != "" {
			opts = append(opts, config.WithPeer(peer))
		}
		if scoutTimeout > 0 {
			opts = append(opts, config.WithScoutingTimeout(scoutTimeout))
		}
		return config.New(opts...)
	}

	openOpts := func() []zenoh.OpenOption {
		if !verbose {
			return nil
		}
		return []zenoh.OpenOption{zenoh.WithLogger(zlog.NewLogrus())}
	}

	root.AddCommand(
		scoutCmd(&peer, &scoutTimeout),
		putCmd(buildConfig, openOpts),
		getCmd(buildConfig, openOpts),
		subCmd(buildConfig, openOpts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "zpctl:", err)
		return exitCodeFor(err)
	}
	return exitOK
}

func exitCodeFor(err error) int {
	switch err.(type) {
	case *zerrors.ParseError, *zerrors.StateError:
		return exitConfigError
	case *zerrors.IoError, *zerrors.TimeoutError:
		return exitConnectionError
	default:
		return exitRuntimeError
	}
}

func scoutCmd(peer *string, timeout *time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "scout",
		Short: "discover routers on the local multicast group",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			ctx, cancel := signalContext()
			defer cancel()
			hellos, err := zenoh.Scout(ctx, cfg, zenoh.WhatRouter|zenoh.WhatPeer, *timeout)
			if err != nil {
				return err
			}
			for _, h := range hellos {
				fmt.Printf("%x\twhatami=%d\tlocators=%v\n", h.ZenohID, h.WhatAmI, h.Locators)
			}
			return nil
		},
	}
}

func putCmd(buildConfig func() (*config.Config, error), openOpts func() []zenoh.OpenOption) *cobra.Command {
	var encoding string
	cmd := &cobra.Command{
		Use:   "put <key-expr> <value>",
		Short: "write a value under a key expression",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			sess, err := zenoh.Open(ctx, cfg, openOpts()...)
			if err != nil {
				return err
			}
			defer sess.Close(ctx)

			var writeOpts []zenoh.WriteOption
			if encoding != "" {
				writeOpts = append(writeOpts, zenoh.WithEncoding(encoding))
			}
			return sess.Write(ctx, args[0], []byte(args[1]), writeOpts...)
		},
	}
	cmd.Flags().StringVar(&encoding, "encoding", "", "encoding tag attached to the payload")
	return cmd
}

func getCmd(buildConfig func() (*config.Config, error), openOpts func() []zenoh.OpenOption) *cobra.Command {
	var predicate string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "get <selector>",
		Short: "query matching queryables and print every reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			if timeout > 0 {
				var c context.CancelFunc
				ctx, c = context.WithTimeout(ctx, timeout)
				defer c()
			}
			sess, err := zenoh.Open(ctx, cfg, openOpts()...)
			if err != nil {
				return err
			}
			defer sess.Close(ctx)

			outcome, err := sess.QueryCollect(ctx, args[0], predicate, zenoh.ConsolidationFull)
			if err != nil {
				return err
			}
			for _, v := range outcome.Values {
				fmt.Printf("%s\t%s\n", v.Key, v.Payload)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&predicate, "predicate", "", "query predicate")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for replies")
	return cmd
}

func subCmd(buildConfig func() (*config.Config, error), openOpts func() []zenoh.OpenOption) *cobra.Command {
	var reliable bool
	cmd := &cobra.Command{
		Use:   "sub <key-expr>",
		Short: "subscribe and print every matching sample until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			sess, err := zenoh.Open(ctx, cfg, openOpts()...)
			if err != nil {
				return err
			}
			defer sess.Close(ctx)

			sub, err := sess.DeclareSubscriber(ctx, args[0], reliable, func(s zenoh.Sample) {
				fmt.Printf("%s\t%s\n", s.Key, s.Payload)
			})
			if err != nil {
				return err
			}
			defer sub.Undeclare(ctx)

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&reliable, "reliable", true, "request reliable delivery of matching samples")
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
