package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pkt.systems/pmdesk/internal/appconfig"
	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

func newViewsCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "views",
		Short: "List registered view types and the sidebar",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			svc, err := offlineService(cfg, pslog.Ctx(cmd.Context()), false)
			if err != nil {
				return err
			}
			viewsResp, err := svc.ListViews(cmd.Context())
			if err != nil {
				return err
			}
			navResp, err := svc.ListNav(cmd.Context(), schema.WorkspaceRequest{UserID: "views"})
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "VIEW")
			for _, viewType := range viewsResp.Types {
				_, _ = fmt.Fprintln(w, viewType)
			}
			_, _ = fmt.Fprintln(w)
			_, _ = fmt.Fprintln(w, "NAV\tLABEL\tTYPE\tALIASES")
			for _, item := range navResp.Items {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%v\n", item.Index, item.Label, item.Type, item.Aliases)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
