// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command marco-polo maps a codebase into a UML class diagram from the
// command line.
//
// Usage:
//
//	marco-polo /path/to/project                  # Mermaid diagram to stdout
//	marco-polo /path/to/project -o diagram.mmd   # write to a file
//	marco-polo diagnostics /path/to/project      # list model diagnostics
//	marco-polo watch /path/to/project -o out.mmd # re-render on change
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wseabra/marco-polo/services/cartograph/config"
	"github.com/wseabra/marco-polo/services/cartograph/graph"
	"github.com/wseabra/marco-polo/services/cartograph/mermaid"
	"github.com/wseabra/marco-polo/services/cartograph/scanner"
)

// Flag values shared across commands.
var (
	outputPath     string
	workerCount    int
	heuristicsPath string
	verbose        bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "marco-polo [path]",
		Short: "Map a codebase into a UML class diagram",
		Long: "marco-polo scans a project tree, classifies the relationships\n" +
			"between its classes, and renders a Mermaid classDiagram.",
		Args: cobra.ExactArgs(1),
		Run:  runDiagramCommand,
	}
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "Write output to a file instead of stdout")
	rootCmd.PersistentFlags().IntVar(&workerCount, "workers", 0, "Parallel workers (0 = NumCPU)")
	rootCmd.PersistentFlags().StringVar(&heuristicsPath, "heuristics", "", "Heuristics YAML overriding the embedded defaults")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	diagnosticsCmd := &cobra.Command{
		Use:   "diagnostics [path]",
		Short: "List model diagnostics for a project",
		Args:  cobra.ExactArgs(1),
		Run:   runDiagnosticsCommand,
	}

	watchCmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a project and re-render the diagram on change",
		Args:  cobra.ExactArgs(1),
		Run:   runWatchCommand,
	}

	rootCmd.AddCommand(diagnosticsCmd, watchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging routes slog to stderr so stdout stays clean for diagram
// output.
func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// buildGraph scans root and builds its class graph.
func buildGraph(ctx context.Context, root string) (*graph.BuildResult, *scanner.ScanResult, error) {
	heuristics, err := loadHeuristics()
	if err != nil {
		return nil, nil, err
	}

	scannerOpts := []scanner.ScannerOption{scanner.WithHeuristics(heuristics)}
	builderOpts := []graph.BuilderOption{graph.WithHeuristics(heuristics)}
	if workerCount > 0 {
		scannerOpts = append(scannerOpts, scanner.WithWorkerCount(workerCount))
		builderOpts = append(builderOpts, graph.WithWorkerCount(workerCount))
	}

	scanResult, err := scanner.NewScanner(scannerOpts...).Scan(ctx, root)
	if err != nil {
		return nil, nil, err
	}

	result, err := graph.NewBuilder(builderOpts...).Build(ctx, scanResult.Batch)
	if err != nil {
		return nil, nil, err
	}
	return result, scanResult, nil
}

func loadHeuristics() (*config.Heuristics, error) {
	if heuristicsPath == "" {
		return config.Default()
	}
	return config.Load(heuristicsPath)
}

// writeOutput writes text to the output file or stdout.
func writeOutput(text string) error {
	if outputPath == "" {
		fmt.Print(text)
		return nil
	}
	return os.WriteFile(outputPath, []byte(text), 0o644)
}

func runDiagramCommand(_ *cobra.Command, args []string) {
	setupLogging()
	ctx := context.Background()

	result, scanResult, err := buildGraph(ctx, args[0])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	for path, ferr := range scanResult.FileErrors {
		fmt.Fprintf(os.Stderr, "warning: %s: %v\n", path, ferr)
	}
	for _, d := range result.Diagnostics {
		fmt.Fprintf(os.Stderr, "diagnostic: %s\n", d)
	}

	if err := writeOutput(mermaid.Render(result.Graph)); err != nil {
		log.Fatalf("Error writing output: %v", err)
	}
}

func runDiagnosticsCommand(_ *cobra.Command, args []string) {
	setupLogging()
	ctx := context.Background()

	result, scanResult, err := buildGraph(ctx, args[0])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("Scanned %d files, %d classes, %d edges\n",
		scanResult.FilesScanned,
		result.Graph.ClassCount(),
		result.Graph.EdgeCount())

	if len(result.Diagnostics) == 0 && len(scanResult.FileErrors) == 0 {
		fmt.Println("No diagnostics.")
		return
	}
	for path, ferr := range scanResult.FileErrors {
		fmt.Printf("file error: %s: %v\n", path, ferr)
	}
	for _, d := range result.Diagnostics {
		fmt.Printf("%s\n", d)
	}
}

func runWatchCommand(_ *cobra.Command, args []string) {
	setupLogging()
	root := args[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	heuristics, err := loadHeuristics()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	scannerOpts := []scanner.ScannerOption{scanner.WithHeuristics(heuristics)}
	builderOpts := []graph.BuilderOption{graph.WithHeuristics(heuristics)}
	if workerCount > 0 {
		scannerOpts = append(scannerOpts, scanner.WithWorkerCount(workerCount))
		builderOpts = append(builderOpts, graph.WithWorkerCount(workerCount))
	}
	sc := scanner.NewScanner(scannerOpts...)
	builder := graph.NewBuilder(builderOpts...)

	render := func(scanResult *scanner.ScanResult) {
		result, err := builder.Build(ctx, scanResult.Batch)
		if err != nil {
			slog.Error("build failed", slog.Any("error", err))
			return
		}
		if err := writeOutput(mermaid.Render(result.Graph)); err != nil {
			slog.Error("write failed", slog.Any("error", err))
			return
		}
		slog.Info("diagram updated",
			slog.Int("classes", result.Graph.ClassCount()),
			slog.Int("edges", result.Graph.EdgeCount()))
	}

	// Initial render before entering the watch loop.
	scanResult, err := sc.Scan(ctx, root)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	render(scanResult)

	watcher := scanner.NewWatcher(sc)
	if err := watcher.Watch(ctx, root, render); err != nil && ctx.Err() == nil {
		log.Fatalf("Watch error: %v", err)
	}
}
