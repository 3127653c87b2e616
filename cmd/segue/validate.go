package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/graph"
	"github.com/satindergrewal/segue/internal/project"
)

var validateCmd = &cobra.Command{
	Use:   "validate <project>",
	Short: "Check a project for broken references and out-of-range checkpoints",
	Long: `Loads the project and lists every violation. With --decode the assets
are decoded first so checkpoint times are checked against real track
lengths.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decode, _ := cmd.Flags().GetBool("decode")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ws := project.NewWorkspace(args[0])
		if res := ws.Open(); !res.OK {
			return fmt.Errorf("%s", res.Reason)
		}

		out := cmd.OutOrStdout()
		if decode {
			cfg.ProjectPath = args[0]
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			for _, failure := range decodeAll(ctx, ws) {
				fmt.Fprintln(out, "decode:", failure)
			}
		}

		vs := graph.Validate(ws.Graph())
		for _, v := range vs {
			fmt.Fprintln(out, v)
		}
		if len(vs) > 0 {
			return fmt.Errorf("%d violations", len(vs))
		}
		fmt.Fprintf(out, "%s: %d tracks, ok\n", args[0], ws.Graph().TrackCount())
		return nil
	},
}

func init() {
	validateCmd.Flags().Bool("decode", false, "decode assets to measure track lengths")
	validateCmd.Flags().Duration("timeout", 2*time.Minute, "decode time limit")
}

// decodeAll decodes every asset and records the lengths on the workspace.
// It returns one line per asset that could not be decoded.
func decodeAll(ctx context.Context, ws *project.Workspace) []string {
	ds := audio.NewDecodeService(assetOpener(ctx, cfg), cfg.FFmpegPath)
	defer ds.Close()
	ds.OnReady(ws.SetAssetLength)
	ws.RequestDecodes(ds)

	var failures []string
	for _, a := range ws.Graph().Assets() {
		if err := ds.Wait(ctx, a.ID); err != nil {
			failures = append(failures, fmt.Sprintf("%s (%s): %v", a.ID, a.SourcePath, err))
		}
	}
	return failures
}
