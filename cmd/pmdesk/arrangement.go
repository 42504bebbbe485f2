package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/pmdesk/internal/appconfig"
	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

func newArrangementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arrangement",
		Short: "Export, import or validate a user's grid arrangement",
	}
	cmd.AddCommand(newArrangementExportCmd())
	cmd.AddCommand(newArrangementImportCmd())
	cmd.AddCommand(newArrangementValidateCmd())
	return cmd
}

type arrangementFlags struct {
	cfgPath string
	user    string
}

func (f *arrangementFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "workspace user (default http.default_user)")
}

func (f *arrangementFlags) load() (appconfig.Config, schema.UserID, error) {
	cfg, err := appconfig.Load(f.cfgPath)
	if err != nil {
		return appconfig.Config{}, "", err
	}
	user := f.user
	if user == "" {
		user = cfg.HTTP.DefaultUser
	}
	userID := schema.UserID(user)
	if err := schema.ValidateUserID(userID); err != nil {
		return appconfig.Config{}, "", err
	}
	return cfg, userID, nil
}

func newArrangementExportCmd() *cobra.Command {
	var flags arrangementFlags
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a user's arrangement blob to a file or stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, userID, err := flags.load()
			if err != nil {
				return err
			}
			svc, err := offlineService(cfg, pslog.Ctx(cmd.Context()), true)
			if err != nil {
				return err
			}
			resp, err := svc.ExportArrangement(cmd.Context(), schema.WorkspaceRequest{UserID: userID})
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(append(resp.Data, '\n'))
				return err
			}
			if err := os.WriteFile(output, resp.Data, 0o600); err != nil {
				return fmt.Errorf("write arrangement: %w", err)
			}
			pslog.Ctx(cmd.Context()).Info("arrangement exported", "user", userID, "path", output)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newArrangementImportCmd() *cobra.Command {
	var flags arrangementFlags
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Replace a user's arrangement with a blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, userID, err := flags.load()
			if err != nil {
				return err
			}
			data, err := readArrangement(cmd, args[0])
			if err != nil {
				return err
			}
			svc, err := offlineService(cfg, pslog.Ctx(cmd.Context()), true)
			if err != nil {
				return err
			}
			resp, err := svc.ImportArrangement(cmd.Context(), schema.ImportArrangementRequest{UserID: userID, Data: data})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d cells for %s\n", len(resp.Snapshot.Grid.Cells), userID)
			return err
		},
	}
	flags.bind(cmd)
	return cmd
}

func newArrangementValidateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check that a blob would import cleanly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			data, err := readArrangement(cmd, args[0])
			if err != nil {
				return err
			}
			svc, err := offlineService(cfg, pslog.Ctx(cmd.Context()), false)
			if err != nil {
				return err
			}
			resp, err := svc.ImportArrangement(cmd.Context(), schema.ImportArrangementRequest{UserID: "validate", Data: data})
			if err != nil {
				return err
			}
			grid := resp.Snapshot.Grid
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "valid: %d cells, %d breakpoints\n", len(grid.Cells), len(grid.Layouts))
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func readArrangement(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read arrangement: %w", err)
	}
	return data, nil
}
