// Package main provides the standalone GH risk MCP server. It needs no external services:
// predictions and advice live in SQLite under the data directory.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gh-risk-server/internal/config"
	"github.com/gh-risk-server/internal/mcp"
)

func main() {
	// stdout carries the protocol, so diagnostics go to stderr.
	log.SetOutput(os.Stderr)
	if err := run(); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}
	log.Println("GH risk MCP server (lite) stopped")
}

func run() error {
	cfg := config.LoadLiteConfig()
	log.Printf("Starting GH risk MCP server (lite) with transport: %s", cfg.Transport)
	log.Printf("Data directory: %s", cfg.DataDir)

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}
	defer server.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return server.Run(ctx)
}
