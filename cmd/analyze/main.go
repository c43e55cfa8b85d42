// Command analyze inspects QLink save records and configuration files.
//
//	analyze summary <record.txt>   mode, clock, scores, tiles per form, linkable pairs
//	analyze hint <record.txt>      first linkable pair and its path
//	analyze validate <dir>         decodes every *.txt record and *.json config in dir
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/qlink/game/engine"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "inspect QLink records and configurations",
		Commands: []*cli.Command{
			{
				Name:      "summary",
				Usage:     "describe a saved record",
				ArgsUsage: "<record.txt>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					rec, err := readRecord(cmd.Args().First())
					if err != nil {
						return err
					}
					summarize(cmd.Root().Writer, rec)
					return nil
				},
			},
			{
				Name:      "hint",
				Usage:     "print a pair that can be linked right now",
				ArgsUsage: "<record.txt>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					rec, err := readRecord(cmd.Args().First())
					if err != nil {
						return err
					}
					hint(cmd.Root().Writer, rec)
					return nil
				},
			},
			{
				Name:      "validate",
				Usage:     "check every record and config in a directory",
				ArgsUsage: "<dir>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					dir := cmd.Args().First()
					if dir == "" {
						dir = "."
					}
					results, err := validateDir(dir)
					if err != nil {
						return err
					}
					if failed := report(cmd.Root().Writer, results); failed > 0 {
						return fmt.Errorf("%d of %d files failed validation", failed, len(results))
					}
					return nil
				},
			},
		},
	}
}

func readRecord(path string) (*engine.Record, error) {
	if path == "" {
		return nil, fmt.Errorf("record file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rec, err := engine.DecodeRecord(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

func players(rec *engine.Record) int {
	if rec.Mode == engine.ModeDuo {
		return 2
	}
	return 1
}

func summarize(w io.Writer, rec *engine.Record) {
	g := rec.Grid()

	fmt.Fprintf(w, "Mode: %s\n", rec.Mode)
	fmt.Fprintf(w, "Grid: %d x %d (playable %d x %d)\n", rec.Cols, rec.Rows,
		rec.Cols-2*engine.Margin, rec.Rows-2*engine.Margin)
	fmt.Fprintf(w, "Time left: %ds\n", rec.TimeLeft)
	for i := 0; i < players(rec); i++ {
		fmt.Fprintf(w, "Player %d: score %d at %s\n", i+1, rec.Scores[i], rec.Players[i])
	}
	fmt.Fprintf(w, "Textures: %d %d %d\n", rec.Textures[0], rec.Textures[1], rec.Textures[2])

	counts := g.FormCounts()
	forms := make([]int, 0, len(counts))
	for f := range counts {
		forms = append(forms, int(f))
	}
	sort.Ints(forms)
	fmt.Fprintf(w, "Tiles left: %d\n", g.Remaining())
	for _, f := range forms {
		fmt.Fprintf(w, "  form %d: %d\n", f, counts[engine.Form(f)])
	}

	selected := 0
	for y := range rec.States {
		for _, s := range rec.States[y] {
			if s == engine.Active {
				selected++
			}
		}
	}
	if selected > 0 {
		fmt.Fprintf(w, "Selected tiles: %d\n", selected)
	}

	if len(rec.PowerUps) > 0 {
		parts := make([]string, len(rec.PowerUps))
		for i, p := range rec.PowerUps {
			parts[i] = p.Kind.String() + p.Pos.String()
		}
		fmt.Fprintf(w, "Power-ups: %s\n", strings.Join(parts, " "))
	}

	pairs := engine.CountPairs(g)
	fmt.Fprintf(w, "Linkable pairs: %d\n", pairs)
	if pairs == 0 {
		fmt.Fprintln(w, "No moves left: the session ends on load")
	}
}

func hint(w io.Writer, rec *engine.Record) {
	a, b, path, ok := engine.FindPair(rec.Grid())
	if !ok {
		fmt.Fprintln(w, "No linkable pair")
		return
	}
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = p.String()
	}
	fmt.Fprintf(w, "Link %s and %s\n", a, b)
	fmt.Fprintf(w, "Path: %s (%d turns)\n", strings.Join(parts, " -> "), len(path)-2)
}

// ValidationResult captures the outcome of validating a single file.
type ValidationResult struct {
	File  string
	Kind  string
	Valid bool
	Error string
	Info  string
}

// validateDir checks every record and config directly inside dir.
func validateDir(dir string) ([]ValidationResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var results []ValidationResult
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		switch filepath.Ext(entry.Name()) {
		case ".txt":
			results = append(results, validateRecord(path))
		case ".json":
			results = append(results, validateConfig(path))
		}
	}
	return results, nil
}

func validateRecord(path string) ValidationResult {
	result := ValidationResult{File: filepath.Base(path), Kind: "record"}
	rec, err := readRecord(path)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Valid = true
	result.Info = fmt.Sprintf("%s, %dx%d, %d tiles", rec.Mode, rec.Cols, rec.Rows, rec.Grid().Remaining())
	return result
}

func validateConfig(path string) ValidationResult {
	result := ValidationResult{File: filepath.Base(path), Kind: "config"}
	data, err := os.ReadFile(path)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read file: %v", err)
		return result
	}
	cfg, err := engine.ParseGameConfig(data)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Valid = true
	result.Info = fmt.Sprintf("%s, %dx%d, %d forms, %ds", cfg.Mode, cfg.Cols, cfg.Rows, cfg.Forms, cfg.MaxTime)
	return result
}

// report prints the results and returns how many failed.
func report(w io.Writer, results []ValidationResult) int {
	failed := 0
	for _, r := range results {
		if r.Valid {
			fmt.Fprintf(w, "ok    %-7s %s (%s)\n", r.Kind, r.File, r.Info)
			continue
		}
		failed++
		fmt.Fprintf(w, "FAIL  %-7s %s: %s\n", r.Kind, r.File, r.Error)
	}
	fmt.Fprintf(w, "%d files, %d failed\n", len(results), failed)
	return failed
}
