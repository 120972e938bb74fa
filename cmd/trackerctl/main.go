package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	deliveriesapi "github.com/chrismessina/delivery-tracker/internal/api/deliveries_api"
	"github.com/chrismessina/delivery-tracker/internal/models"
	"github.com/chrismessina/delivery-tracker/internal/services/tracking"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "trackerctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var apiURL string
	client := func() *apiClient { return newAPIClient(apiURL) }

	cmd := &cobra.Command{
		Use:          "trackerctl",
		Short:        "Delivery tracker command line client",
		SilenceUsage: true,
	}
	defaultURL := os.Getenv("TRACKER_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "tracker-api base URL")

	cmd.AddCommand(
		newListCmd(client),
		newAddCmd(client),
		newArchiveCmd(client),
		newRefreshCmd(client),
	)
	return cmd
}

func newListCmd(client func() *apiClient) *cobra.Command {
	var carrier, search string
	var archived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deliveries, active ones grouped by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if carrier != "" {
				q.Set("carrier", carrier)
			}
			if search != "" {
				q.Set("q", search)
			}

			if archived {
				var ds []deliveriesapi.DeliveryView
				if err := client().do(cmd.Context(), http.MethodGet, "/v1/deliveries/archived", q, nil, &ds); err != nil {
					return err
				}
				printDeliveries(cmd.OutOrStdout(), "Archived", ds)
				return nil
			}

			var g deliveriesapi.GroupsView
			if err := client().do(cmd.Context(), http.MethodGet, "/v1/deliveries", q, nil, &g); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printDeliveries(out, "Arriving today", g.ArrivingToday)
			printDeliveries(out, "In transit", g.InTransit)
			printDeliveries(out, "Delivered", g.Delivered)
			printDeliveries(out, "Unknown", g.Unknown)
			return nil
		},
	}
	cmd.Flags().StringVar(&carrier, "carrier", "", "only this carrier key")
	cmd.Flags().StringVarP(&search, "query", "q", "", "search in name and tracking number")
	cmd.Flags().BoolVar(&archived, "archived", false, "list archived deliveries")
	return cmd
}

func newAddCmd(client func() *apiClient) *cobra.Command {
	var in models.DeliveryCreateInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			var v deliveriesapi.DeliveryView
			if err := client().do(cmd.Context(), http.MethodPost, "/v1/deliveries", nil, in, &v); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", v.Name, v.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "delivery name")
	cmd.Flags().StringVar(&in.TrackingNumber, "tracking", "", "tracking number")
	cmd.Flags().StringVar(&in.Carrier, "carrier", "", "carrier key")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("tracking")
	_ = cmd.MarkFlagRequired("carrier")
	return cmd
}

func newArchiveCmd(client func() *apiClient) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive (or --undo: unarchive) a delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "archive"
			if undo {
				action = "unarchive"
			}
			var v deliveriesapi.DeliveryView
			path := "/v1/deliveries/" + url.PathEscape(args[0]) + "/" + action
			if err := client().do(cmd.Context(), http.MethodPost, path, nil, nil, &v); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", action, v.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "unarchive instead")
	return cmd
}

func newRefreshCmd(client func() *apiClient) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh tracking data now",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"force": {strconv.FormatBool(force)}}
			var rep tracking.Report
			if err := client().do(cmd.Context(), http.MethodPost, "/v1/refresh", q, nil, &rep); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "refreshed %d, skipped %d, failed %d\n", rep.Refreshed, rep.Skipped, rep.Summary.TotalErrors)
			if n := rep.Notification; n != nil {
				fmt.Fprintf(out, "%s: %s\n", n.Title, n.Message)
				if n.Hint != "" {
					fmt.Fprintln(out, n.Hint)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "ignore the staleness window")
	return cmd
}

func printDeliveries(w io.Writer, title string, ds []deliveriesapi.DeliveryView) {
	if len(ds) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d)\n", title, len(ds))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, d := range ds {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Carrier, d.TrackingNumber, d.Label)
	}
	_ = tw.Flush()
}
