package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tusklang/tusk-go/internal/runtime"
)

func newServeCmd() *cobra.Command {
	var port int
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve configuration over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if !cmd.Flags().Changed("port") {
				port = rt.Settings().Server.Port
			}
			if !watch {
				watch = rt.Settings().Server.Watch
			}

			server := runtime.NewServer(rt, runtime.WithVersion(version))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				err := server.ListenAndServe(fmt.Sprintf(":%d", port))
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})

			if watch {
				g.Go(func() error {
					err := rt.WatchConfig(gctx)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				})
			}

			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Listen port")
	cmd.Flags().BoolVar(&watch, "watch", false, "Watch the config hierarchy and stream changes")
	return cmd
}
