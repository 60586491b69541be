package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/midas/pkg/gateway/config"
	"github.com/vango-go/midas/pkg/gateway/upstream"
	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/diagnosis"
)

func newDiagnoseCmd(stdout, stderr io.Writer) *cobra.Command {
	var transcript string
	cmd := &cobra.Command{
		Use:   "diagnose <image>",
		Short: "Assess a photo of a damaged device and print the structured result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			profile, err := config.LoadProfile(cfg.ProfilePath)
			if err != nil {
				return fmt.Errorf("load profile: %w", err)
			}
			logger := newLogger(cfg, stderr)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			frame := camera.Frame{Data: data, MediaType: http.DetectContentType(data), CapturedAt: time.Now()}

			ctx := cmd.Context()
			engine, err := upstream.Factory{Config: cfg, Logger: logger}.Chat(ctx)
			if err != nil {
				return err
			}
			var cache *diagnosis.Cache
			if cfg.DiagnosisCacheDir != "" {
				cache, err = diagnosis.OpenCache(diagnosis.CacheOptions{
					Dir:    cfg.DiagnosisCacheDir,
					TTL:    cfg.DiagnosisCacheTTL,
					Logger: logger,
				})
				if err != nil {
					return err
				}
				defer cache.Close()
			}

			d := diagnosis.New(engine, diagnosis.Options{
				Model:  cfg.Model,
				Prompt: profile.DiagnosisPrompt,
				Cache:  cache,
				Logger: logger,
			})
			res, err := d.Diagnose(ctx, frame, transcript)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&transcript, "transcript", "", "the user's description of the problem")
	return cmd
}
