package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/pmdesk/internal/appconfig"
	"pkt.systems/pmdesk/internal/backend"
	"pkt.systems/pslog"
)

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Read and write backend CRUD records",
	}
	cmd.AddCommand(newRecordsListCmd())
	cmd.AddCommand(newRecordsGetCmd())
	cmd.AddCommand(newRecordsCreateCmd())
	cmd.AddCommand(newRecordsUpdateCmd())
	cmd.AddCommand(newRecordsDeleteCmd())
	return cmd
}

type recordsFlags struct {
	cfgPath string
}

func (f *recordsFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.cfgPath, "config", "c", "", "path to config file")
}

func (f *recordsFlags) client(cmd *cobra.Command) (*backend.Client, error) {
	cfg, err := appconfig.Load(f.cfgPath)
	if err != nil {
		return nil, err
	}
	return newBackendClient(cfg, pslog.Ctx(cmd.Context()), nil)
}

func newRecordsListCmd() *cobra.Command {
	var flags recordsFlags
	var filters []string
	cmd := &cobra.Command{
		Use:   "list <table>",
		Short: "List rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseFilters(filters)
			if err != nil {
				return err
			}
			client, err := flags.client(cmd)
			if err != nil {
				return err
			}
			rows, err := client.List(cmd.Context(), args[0], query)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "query filter key=value (repeatable)")
	return cmd
}

func newRecordsGetCmd() *cobra.Command {
	var flags recordsFlags
	cmd := &cobra.Command{
		Use:   "get <table> <id>",
		Short: "Print one row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client(cmd)
			if err != nil {
				return err
			}
			row, err := client.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, row)
		},
	}
	flags.bind(cmd)
	return cmd
}

func newRecordsCreateCmd() *cobra.Command {
	var flags recordsFlags
	cmd := &cobra.Command{
		Use:   "create <table> <json|->",
		Short: "Insert a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := readRecord(cmd, args[1])
			if err != nil {
				return err
			}
			client, err := flags.client(cmd)
			if err != nil {
				return err
			}
			row, err := client.Create(cmd.Context(), args[0], record)
			if err != nil {
				return err
			}
			return printJSON(cmd, row)
		},
	}
	flags.bind(cmd)
	return cmd
}

func newRecordsUpdateCmd() *cobra.Command {
	var flags recordsFlags
	cmd := &cobra.Command{
		Use:   "update <table> <id> <json|->",
		Short: "Apply field updates to a row",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := readRecord(cmd, args[2])
			if err != nil {
				return err
			}
			client, err := flags.client(cmd)
			if err != nil {
				return err
			}
			row, err := client.Update(cmd.Context(), args[0], args[1], updates)
			if err != nil {
				return err
			}
			return printJSON(cmd, row)
		},
	}
	flags.bind(cmd)
	return cmd
}

func newRecordsDeleteCmd() *cobra.Command {
	var flags recordsFlags
	cmd := &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Remove a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client(cmd)
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", args[0], args[1])
			return err
		},
	}
	flags.bind(cmd)
	return cmd
}

func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

// readRecord takes a JSON object inline, or from stdin when arg is "-".
func readRecord(cmd *cobra.Command, arg string) (backend.Record, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
	}
	var record backend.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	if len(record) == 0 {
		return nil, errors.New("record must not be empty")
	}
	return record, nil
}

func printJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
