package cmd

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/achilleasa/bvhbuild/config"
)

// Print the effective settings after merging the config file and flags.
func ShowSettings(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		logger.Error(err)
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		logger.Error(err)
		return err
	}

	logger.Noticef("build settings\n%s", cfg.Build.Table())
	logger.Noticef("scene settings\n%s", sceneTable(cfg))
	return nil
}

func sceneTable(cfg config.Config) string {
	budget := "unlimited"
	if cfg.Arena.MaxBytes > 0 {
		budget = humanize.Bytes(uint64(cfg.Arena.MaxBytes))
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Setting", "Value"})
	table.Append([]string{"Kind", cfg.Scene.Kind})
	table.Append([]string{"Count", humanize.Comma(int64(cfg.Scene.Count))})
	table.Append([]string{"Seed", fmt.Sprintf("%d", cfg.Scene.Seed)})
	table.Append([]string{"Time steps", fmt.Sprintf("%d", cfg.Scene.TimeSteps)})
	table.Append([]string{"Static", fmt.Sprintf("%t", cfg.Scene.Static)})
	table.Append([]string{"Strand segments", fmt.Sprintf("%d", cfg.Scene.StrandSegments)})
	table.Append([]string{"Strand fallback", cfg.Scene.StrandFallback})
	table.Append([]string{"Level", fmt.Sprintf("%g", cfg.Scene.Level)})
	table.Append([]string{"Cached patches", fmt.Sprintf("%t", cfg.Scene.Cached)})
	table.Append([]string{"Node budget", budget})
	table.Render()
	return buf.String()
}
