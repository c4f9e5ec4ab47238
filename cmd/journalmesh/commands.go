package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hupe1980/journalmesh"
	"github.com/hupe1980/journalmesh/api"
	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/tool"
)

// Run starts the HTTP server and blocks until SIGINT or SIGTERM.
func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, g)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	addr := rt.cfg.Server.Addr
	if c.Addr != "" {
		addr = c.Addr
	}

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(rt.mesh, func(o *api.Options) {
		o.Logger = rt.logger
		o.RequestTimeout = rt.cfg.Supervisor.DelegationTimeout * time.Duration(rt.cfg.Supervisor.MaxRounds)
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("journalmesh.serve.listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	rt.logger.Info("journalmesh.serve.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// Run answers the message and prints the result.
func (c *QueryCmd) Run(g *Globals) error {
	ctx := context.Background()

	rt, err := newRuntime(ctx, g, func(o *journalmesh.Options) {
		if c.Stream {
			o.EnableStreaming = true
			o.OnChunk = func(label, text string) { fmt.Fprintf(stderr, "[%s] %s", label, text) }
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	res, err := rt.mesh.Query(ctx, c.Message, core.Caller{UserID: c.User, AuthToken: c.Token})
	if err != nil {
		return err
	}

	if c.Stream {
		fmt.Fprintln(stderr)
	}

	if !c.Full {
		_, err = fmt.Fprintln(stdout, res.OutputText)
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(res)
}

// Run prints the tool catalog.
func (c *ToolsCmd) Run(g *Globals) error {
	rt, err := newRuntime(context.Background(), g)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	catalog := rt.mesh.Tools()

	categories := make([]tool.Category, 0, len(catalog))
	for cat := range catalog {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	for _, cat := range categories {
		fmt.Fprintf(stdout, "%s:\n", cat)
		for _, name := range catalog[cat] {
			fmt.Fprintf(stdout, "  %s\n", name)
		}
	}

	return nil
}

// Run prints version information.
func (c *VersionCmd) Run() error {
	_, err := fmt.Fprintf(stdout, "journalmesh %s (%s)\n", version, commit)
	return err
}
