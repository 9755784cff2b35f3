package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// apiClient calls the certification admin API with a bearer token.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

type apiError struct {
	Status           int
	Code             string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e *apiError) Error() string {
	if e.ErrorDescription != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.ErrorDescription)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Code)
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return nil, apiErr
	}
	return data, nil
}

type remoteFlags struct {
	server  string
	token   string
	timeout time.Duration
}

func (f *remoteFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", envOr("SEALCTL_SERVER", "http://localhost:8080"), "admin API base URL")
	cmd.Flags().StringVar(&f.token, "token", os.Getenv("SEALCTL_TOKEN"), "admin bearer token (default $SEALCTL_TOKEN)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "request timeout")
}

func (f *remoteFlags) client() (*apiClient, error) {
	if f.token == "" {
		return nil, fmt.Errorf("a bearer token is required: pass --token or set SEALCTL_TOKEN")
	}
	return &apiClient{baseURL: f.server, token: f.token, http: &http.Client{Timeout: f.timeout}}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func newChainCmd() *cobra.Command {
	var (
		flags    remoteFlags
		provider string
	)
	cmd := &cobra.Command{
		Use:   "chain <ownership-id>",
		Short: "Certify a seal ownership with the active or named provider",
		Example: `  sealctl chain 1024
  sealctl chain 1024 --provider polygon`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			raw, err := c.do(cmd.Context(), http.MethodPost,
				"/admin/seal-ownerships/"+url.PathEscape(args[0])+"/chain",
				map[string]string{"provider": provider})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&provider, "provider", "", "provider name (default: configured active provider)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var (
		flags  remoteFlags
		verify bool
	)
	cmd := &cobra.Command{
		Use:   "status <ownership-id>",
		Short: "Show the chain status of a seal ownership, optionally re-verifying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			path := "/admin/seal-ownerships/" + url.PathEscape(args[0])
			if verify {
				path += "/verify"
			} else {
				path += "/chain"
			}
			raw, err := c.do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&verify, "verify", false, "recompute the reference id against the stored certificate")
	return cmd
}

func newProvidersCmd() *cobra.Command {
	var flags remoteFlags
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List notarization providers and their configuration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			raw, err := c.do(cmd.Context(), http.MethodGet, "/admin/chain/providers", nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	flags.bind(cmd)
	return cmd
}
