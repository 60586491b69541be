package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/vango-go/midas/pkg/gateway/config"
	"github.com/vango-go/midas/pkg/repair/history"
)

func newHistoryCmd(stdout io.Writer) *cobra.Command {
	var (
		opts  history.ListOptions
		query string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded repairs, optionally filtered through a jq expression",
		Example: `  midas history --limit 10
  midas history --jq '.[] | select(.success | not) | .fault'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.HistoryDSN == "" {
				return errors.New("MIDAS_HISTORY_DSN must be set")
			}
			ctx := cmd.Context()
			store, err := history.Open(ctx, cfg.HistoryDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(ctx, opts)
			if err != nil {
				return err
			}
			return printRecords(stdout, records, query)
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum records to list")
	cmd.Flags().StringVar(&opts.DeviceID, "device-id", "", "only list records from this device")
	cmd.Flags().StringVar(&opts.DeviceModel, "device-model", "", "only list records for this device model")
	cmd.Flags().StringVar(&query, "jq", "", "jq expression applied to the record array")
	return cmd
}

// printRecords writes records as indented JSON, or each result of query
// when one is given.
func printRecords(w io.Writer, records []history.Record, query string) error {
	if records == nil {
		records = []history.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if query == "" {
		return enc.Encode(records)
	}

	results, err := runJQ(records, query)
	if err != nil {
		return err
	}
	for _, v := range results {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

// runJQ evaluates query against the JSON form of v.
func runJQ(v any, query string) ([]any, error) {
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", query, err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}

	var out []any
	iter := q.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return nil, fmt.Errorf("jq: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
