package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/mwpkit/pkg/engine"
	"github.com/openfroyo/mwpkit/pkg/service"
)

// watchDelay collapses bursts of editor writes into one run.
const watchDelay = 300 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var logicFile string

	cmd := &cobra.Command{
		Use:   "watch <model.xml>",
		Short: "Recompute minimal working products whenever the model or logic changes",
		Long: `Watch a model and its logic file and print the minimal working products
each time either changes. Errors are printed and watching continues.

Without --logic, the logic written in the document is used.`,
		Example: `  mwpkit watch car.xml --logic logic.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.close()

			files := []string{args[0]}
			if logicFile != "" {
				files = append(files, logicFile)
			}

			runs := 0
			return watchLoop(rt.ctx, *rt.logger(), files, watchDelay, func() {
				if runs > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "\n--- %s ---\n", time.Now().Format(time.TimeOnly))
				}
				runs++
				if err := runWatched(cmd, rt, args[0], logicFile); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", engine.KindOf(err), err)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&logicFile, "logic", "l", "", "logic mapping file (.yaml, .json or .cue)")
	return cmd
}

// watchLoop calls run once, then again whenever files change and stay
// quiet for delay, until ctx is done.
func watchLoop(ctx context.Context, logger zerolog.Logger, files []string, delay time.Duration, run func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Directories are watched because editors often replace files by
	// renaming, which drops a watch on the file itself.
	watched := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		watched[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", f, err)
		}
	}

	run()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
				continue
			}
			logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Watched file changed")
			fire = time.After(delay)

		case <-fire:
			fire = nil
			run()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// runWatched rereads both files and prints one enumeration.
func runWatched(cmd *cobra.Command, rt *runtime, modelPath, logicFile string) error {
	doc, err := readDocument(modelPath)
	if err != nil {
		return err
	}

	if logicFile == "" {
		resp, err := rt.svc.CalculateMWP(rt.ctx, service.CalculateRequest{Document: doc})
		if err != nil {
			return err
		}
		return render(cmd, resp, func(w io.Writer) {
			printProducts(w, resp.MWPConfigurations, resp.Stats)
			printPolicyViolations(w, resp.PolicyViolations)
		})
	}

	logic, err := rt.logicFrom(logicFile)
	if err != nil {
		return err
	}
	resp, err := rt.svc.TranslateAndEnumerate(rt.ctx, service.TranslateRequest{Document: doc, Logic: logic})
	if err != nil {
		return err
	}
	return render(cmd, resp, func(w io.Writer) {
		printProducts(w, resp.MWPConfigurations, resp.Stats)
		printPolicyViolations(w, resp.PolicyViolations)
	})
}
