// chatomatic - A streaming chat client for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatomatic/internal/cli"
	"github.com/jeranaias/chatomatic/internal/cloud"
	"github.com/jeranaias/chatomatic/internal/config"
	"github.com/jeranaias/chatomatic/internal/engine"
	"github.com/jeranaias/chatomatic/internal/model"
	"github.com/jeranaias/chatomatic/internal/server"
	uichat "github.com/jeranaias/chatomatic/internal/ui/chat"
)

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	case cli.CmdServe:
		if err := runServe(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdChat:
		if err := runPlain(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		// Fall back to the plain REPL when stdout is not a terminal,
		// since the TUI needs a real screen
		if args.Plain || !cli.IsStdoutTTY() {
			if err := runPlain(args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
		if err := runTUI(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// =============================================================================
// SETUP
// =============================================================================

// loadConfig resolves configuration and applies CLI overrides on top.
func loadConfig(args cli.Args) (*config.Config, error) {
	var cfg *config.Config
	if args.ConfigPath != "" {
		loaded, err := config.LoadFromPath(args.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", args.ConfigPath, err)
		}
		config.SetGlobal(loaded)
		cfg = loaded
	} else {
		cfg = config.Global()
	}

	// CLI args override config
	if args.Model != "" {
		cfg.Endpoint.Model = args.Model
	}
	if args.BaseURL != "" {
		cfg.Endpoint.BaseURL = args.BaseURL
	}
	if args.Wire != "" {
		cfg.Endpoint.Wire = args.Wire
	}
	if args.Listen != "" {
		cfg.Server.ListenAddr = args.Listen
	}
	if args.NoMarkdown {
		cfg.UI.Markdown = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildEngine wires the conversation store, the streaming client, and any
// quick prompts configured by the user.
func buildEngine(cfg *config.Config) *engine.Engine {
	client := cloud.NewClient(cfg.ClientConfig())
	eng := engine.New(model.NewStore(), client)

	for name, text := range cfg.Prompts {
		eng.Prompts().Set(name, text)
	}
	return eng
}

// =============================================================================
// MODES
// =============================================================================

// runTUI starts the full-screen terminal interface.
func runTUI(args cli.Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := buildEngine(cfg)
	m := uichat.New(ctx, eng, uichat.Options{
		ModelName: cfg.Endpoint.Model,
		Markdown:  cfg.UI.Markdown,
	})

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

// runPlain starts the line-oriented REPL.
func runPlain(args cli.Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	return cli.RunChat(cfg, buildEngine(cfg), args.Quiet)
}

// runServe runs the streaming relay until interrupted.
func runServe(args cli.Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", 0)
	client := cloud.NewClient(cfg.ClientConfig())
	srv := server.NewServer(cfg.Server.ListenAddr, client).WithLogger(logger)

	// Pick up config edits without a restart; the new settings apply to
	// requests via the global config, the upstream client keeps its
	// endpoint until restart.
	watcher, err := config.NewWatcher(func(updated *config.Config) {
		logger.Printf("config reloaded | model %s", updated.Endpoint.Model)
	})
	if err == nil {
		if err := watcher.Watch(); err == nil {
			defer watcher.Close()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Printf("relay listening on %s", srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Printf("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
