package clientcmd

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// NewQueueCommand builds the queue command group. apiURL resolves the
// server base URL at run time.
func NewQueueCommand(apiURL func() string) *cobra.Command {
	queueCmd := &cobra.Command{Use: "queue", Short: "Queue operations"}
	queueCmd.AddCommand(
		newSendCommand(apiURL),
		newClaimCommand(apiURL),
		newAckCommand(apiURL),
		newRequeueCommand(apiURL),
		newCountCommand(apiURL),
		newStatsCommand(apiURL),
		newIndexCommand(apiURL),
	)
	return queueCmd
}

func newSendCommand(apiURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Enqueue an entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			payloadJSON, _ := cmd.Flags().GetString("payload")
			priority, _ := cmd.Flags().GetFloat64("priority")
			earliestMs, _ := cmd.Flags().GetInt64("earliest-get-ms")
			streamPaths, _ := cmd.Flags().GetStringArray("stream")

			var payload map[string]any
			if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
				return fmt.Errorf("--payload must be a JSON object: %w", err)
			}
			streams, err := readStreamFlags(streamPaths)
			if err != nil {
				return err
			}
			return callAPI(cmd.OutOrStdout(), apiURL(), "/v1/send", map[string]any{
				"payload":       payload,
				"priority":      priority,
				"earliestGetMs": earliestMs,
				"streams":       streams,
			})
		},
	}
	cmd.Flags().String("payload", "{}", "Entry payload as a JSON object")
	cmd.Flags().Float64("priority", 0, "Priority (smaller claims first)")
	cmd.Flags().Int64("earliest-get-ms", 0, "Earliest claim instant, ms since epoch (0 = now)")
	cmd.Flags().StringArray("stream", nil, "Attach a file as name=path (repeatable)")
	return cmd
}

func newClaimCommand(apiURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim one entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			queryJSON, _ := cmd.Flags().GetString("query")
			leaseMs, _ := cmd.Flags().GetInt64("lease-ms")
			waitMs, _ := cmd.Flags().GetInt64("wait-ms")

			var query map[string]any
			if err := json.Unmarshal([]byte(queryJSON), &query); err != nil {
				return fmt.Errorf("--query must be a JSON object: %w", err)
			}
			return callAPI(cmd.OutOrStdout(), apiURL(), "/v1/claim", map[string]any{
				"query":   query,
				"leaseMs": leaseMs,
				"waitMs":  waitMs,
			})
		},
	}
	cmd.Flags().String("query", "{}", "Payload filter as a JSON object")
	cmd.Flags().Int64("lease-ms", 60000, "Lease duration in ms")
	cmd.Flags().Int64("wait-ms", 3000, "How long to wait for an entry (negative: one attempt)")
	return cmd
}

func newAckCommand(apiURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge a claimed entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			return callAPI(cmd.OutOrStdout(), apiURL(), "/v1/ack", map[string]any{"token": token})
		},
	}
	cmd.Flags().String("token", "", "Claim token from a previous claim")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newRequeueCommand(apiURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Put a claimed entry back in line",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			priority, _ := cmd.Flags().GetFloat64("priority")
			earliestMs, _ := cmd.Flags().GetInt64("earliest-get-ms")
			return callAPI(cmd.OutOrStdout(), apiURL(), "/v1/requeue", map[string]any{
				"token":         token,
				"priority":      priority,
				"earliestGetMs": earliestMs,
			})
		},
	}
	cmd.Flags().String("token", "", "Claim token from a previous claim")
	cmd.Flags().Float64("priority", 0, "New priority")
	cmd.Flags().Int64("earliest-get-ms", 0, "New earliest claim instant, ms since epoch")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newCountCommand(apiURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			queryJSON, _ := cmd.Flags().GetString("query")
			running, _ := cmd.Flags().GetString("running")

			var query map[string]any
			if err := json.Unmarshal([]byte(queryJSON), &query); err != nil {
				return fmt.Errorf("--query must be a JSON object: %w", err)
			}
			return callAPI(cmd.OutOrStdout(), apiURL(), "/v1/count", map[string]any{
				"query":   query,
				"running": running,
			})
		},
	}
	cmd.Flags().String("query", "{}", "Payload filter as a JSON object")
	cmd.Flags().String("running", "any", "Lease state filter: any|only|not")
	return cmd
}

func newStatsCommand(apiURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show total/running/waiting entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(apiURL() + "/v1/stats")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(out)))
			if resp.StatusCode >= 400 {
				return fmt.Errorf("server returned %s", resp.Status)
			}
			return nil
		},
	}
}

func newIndexCommand(apiURL func() string) *cobra.Command {
	indexCmd := &cobra.Command{Use: "index", Short: "Index management"}

	ensureGet := &cobra.Command{
		Use:   "ensure-get",
		Short: "Ensure the claim and reap indexes exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			before, _ := cmd.Flags().GetStringArray("before-sort")
			after, _ := cmd.Flags().GetStringArray("after-sort")
			beforeKeys, err := parseIndexKeyFlags(before)
			if err != nil {
				return err
			}
			afterKeys, err := parseIndexKeyFlags(after)
			if err != nil {
				return err
			}
			return callAPI(cmd.OutOrStdout(), apiURL(), "/v1/index/ensure-get", map[string]any{
				"beforeSort": beforeKeys,
				"afterSort":  afterKeys,
			})
		},
	}
	ensureGet.Flags().StringArray("before-sort", nil, "Payload sort field before priority, as field[:1|-1] (repeatable)")
	ensureGet.Flags().StringArray("after-sort", nil, "Payload sort field after created, as field[:1|-1] (repeatable)")

	ensureCount := &cobra.Command{
		Use:   "ensure-count",
		Short: "Ensure a count index exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, _ := cmd.Flags().GetStringArray("field")
			includeRunning, _ := cmd.Flags().GetBool("include-running")
			keys, err := parseIndexKeyFlags(fields)
			if err != nil {
				return err
			}
			return callAPI(cmd.OutOrStdout(), apiURL(), "/v1/index/ensure-count", map[string]any{
				"fields":         keys,
				"includeRunning": includeRunning,
			})
		},
	}
	ensureCount.Flags().StringArray("field", nil, "Payload field to index, as field[:1|-1] (repeatable)")
	ensureCount.Flags().Bool("include-running", false, "Prefix the index with the lease-state field")

	indexCmd.AddCommand(ensureGet, ensureCount)
	return indexCmd
}

// parseIndexKeyFlags parses field[:1|-1] specs; the direction defaults to
// ascending.
func parseIndexKeyFlags(specs []string) ([]map[string]any, error) {
	var out []map[string]any
	for _, spec := range specs {
		field, dir := spec, "1"
		if name, d, ok := strings.Cut(spec, ":"); ok {
			field, dir = name, d
		}
		var direction int
		switch dir {
		case "1":
			direction = 1
		case "-1":
			direction = -1
		default:
			return nil, fmt.Errorf("index key %q: direction must be 1 or -1", spec)
		}
		out = append(out, map[string]any{"field": field, "direction": direction})
	}
	return out, nil
}

// readStreamFlags loads name=path attachments into wire form.
func readStreamFlags(specs []string) ([]map[string]string, error) {
	var out []map[string]string
	for _, spec := range specs {
		name, path, ok := strings.Cut(spec, "=")
		if !ok {
			path = spec
			name = filepath.Base(spec)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", spec, err)
		}
		out = append(out, map[string]string{
			"name": name,
			"data": base64.StdEncoding.EncodeToString(b),
		})
	}
	return out, nil
}

// callAPI posts body as JSON and prints the response.
func callAPI(w io.Writer, base, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(base+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(out) > 0 {
		fmt.Fprintln(w, strings.TrimSpace(string(out)))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	fmt.Fprintln(w, "status:", resp.Status)
	return nil
}
