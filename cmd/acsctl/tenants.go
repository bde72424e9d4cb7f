package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <tenant_id>",
	Short: "Start (or idempotently re-start) a tenant's worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec tenantRecord
		if err := controlCall(cmd, http.MethodPost, "/control/tenants/"+url.PathEscape(args[0])+"/start", &rec); err != nil {
			return err
		}
		printRecords(rec)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <tenant_id>",
	Short: "Stop a tenant's worker (idempotent)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := controlCall(cmd, http.MethodPost, "/control/tenants/"+url.PathEscape(args[0])+"/stop", nil); err != nil {
			return err
		}
		fmt.Printf("tenant %s stopped\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tenant registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var recs []tenantRecord
		if err := controlCall(cmd, http.MethodGet, "/control/tenants", &recs); err != nil {
			return err
		}
		printRecords(recs...)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health <tenant_id>",
	Short: "Show one tenant's current record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec tenantRecord
		if err := controlCall(cmd, http.MethodGet, "/control/tenants/"+url.PathEscape(args[0]), &rec); err != nil {
			return err
		}
		printRecords(rec)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, listCmd, healthCmd)
}

type tenantRecord struct {
	TenantID       string    `json:"tenant_id"`
	State          string    `json:"state"`
	PID            int       `json:"pid"`
	ListenPort     int       `json:"listen_port"`
	StartedAt      time.Time `json:"started_at"`
	LastHealthOKAt time.Time `json:"last_health_ok_at"`
	RestartCount   int       `json:"restart_count"`
	Generation     uint64    `json:"generation"`
}

type controlError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func controlCall(cmd *cobra.Command, method, path string, out any) error {
	routerAddr, _ := cmd.Flags().GetString("router")

	req, err := http.NewRequest(method, "http://"+routerAddr+path, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach router at %s: %w", routerAddr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var ce controlError
		if json.Unmarshal(body, &ce) == nil && ce.Message != "" {
			return fmt.Errorf("%s (%s)", ce.Message, ce.Code)
		}
		return fmt.Errorf("router returned %s", resp.Status)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func printRecords(recs ...tenantRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tSTATE\tPID\tPORT\tGEN\tRESTARTS\tSTARTED")
	for _, rec := range recs {
		started := ""
		if !rec.StartedAt.IsZero() {
			started = rec.StartedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			rec.TenantID, rec.State, rec.PID, rec.ListenPort, rec.Generation, rec.RestartCount, started)
	}
	_ = w.Flush()
}
