// Package main implements the playbookctl CLI for manual operations
// against a running playbookd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the playbookd HTTP server.
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "playbookctl",
	Short: "CLI for playbookd HTTP server operations",
	Long: `playbookctl is a command-line interface for interacting with the playbookd HTTP server.
It provides commands for pulling ranked context and recording feedback against playbook bullets.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9090", "playbookd server URL")
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(healthCmd)
}

var contextCmd = &cobra.Command{
	Use:   "context <task>",
	Short: "Fetch ranked context for a task description",
	Long: `Fetch the relevant playbook bullets, anti-patterns, and history snippets
ranked against a task description.

Examples:
  playbookctl context "fix the flaky auth test"
  playbookctl context --workspace /repo/path "add a retry to the upload client"`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <bullet-id> <helpful|harmful>",
	Short: "Record feedback against a playbook bullet",
	Long: `Record a helpful or harmful feedback event against a bullet, updating
its score and maturity.

Examples:
  playbookctl feedback b-1234 helpful
  playbookctl feedback b-1234 harmful --reason "broke the build"`,
	Args: cobra.ExactArgs(2),
	RunE: runFeedback,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check playbookd server health",
	Long: `Check the health status of the playbookd HTTP server.

Examples:
  playbookctl health
  playbookctl health --server http://localhost:8080`,
	RunE: runHealth,
}

var (
	contextWorkspace string
	feedbackReason   string
	feedbackSession  string
)

func init() {
	contextCmd.Flags().StringVar(&contextWorkspace, "workspace", "", "repo path to cascade with the global playbook")
	feedbackCmd.Flags().StringVar(&feedbackReason, "reason", "", "free-text reason for the feedback")
	feedbackCmd.Flags().StringVar(&feedbackSession, "session", "", "session path the feedback was observed in")
}

// ContextRequest matches internal/httpapi.ContextRequest
type ContextRequest struct {
	Task      string `json:"task"`
	Workspace string `json:"workspace"`
}

// ContextResponse matches internal/httpapi.ContextResponse, trimmed to
// the fields the CLI prints.
type ContextResponse struct {
	Task            string `json:"task"`
	RelevantBullets []struct {
		Bullet struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"bullet"`
		Final float64 `json:"final"`
	} `json:"relevantBullets"`
	AntiPatterns []struct {
		Bullet struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"bullet"`
		Final float64 `json:"final"`
	} `json:"antiPatterns"`
	SuggestedHistoryQueries []string `json:"suggestedHistoryQueries"`
}

// FeedbackRequest matches internal/httpapi.FeedbackRequest
type FeedbackRequest struct {
	BulletID    string `json:"bulletId"`
	Type        string `json:"type"`
	SessionPath string `json:"sessionPath,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// FeedbackResponse matches internal/httpapi.FeedbackResponse
type FeedbackResponse struct {
	Applied bool `json:"applied"`
}

// HealthResponse matches internal/httpapi.HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

func runContext(cmd *cobra.Command, args []string) error {
	reqBody := ContextRequest{Task: args[0], Workspace: contextWorkspace}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/context", serverURL)
	resp, err := postJSON(url, reqJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}

	var ctxResp ContextResponse
	if err := json.NewDecoder(resp.Body).Decode(&ctxResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Task: %s\n\n", ctxResp.Task)
	fmt.Println("Relevant bullets:")
	for _, rb := range ctxResp.RelevantBullets {
		fmt.Printf("  [%s] (%.2f) %s\n", rb.Bullet.ID, rb.Final, rb.Bullet.Content)
	}
	if len(ctxResp.AntiPatterns) > 0 {
		fmt.Println("\nAnti-patterns:")
		for _, rb := range ctxResp.AntiPatterns {
			fmt.Printf("  [%s] (%.2f) %s\n", rb.Bullet.ID, rb.Final, rb.Bullet.Content)
		}
	}
	if len(ctxResp.SuggestedHistoryQueries) > 0 {
		fmt.Println("\nSuggested history queries:")
		for _, q := range ctxResp.SuggestedHistoryQueries {
			fmt.Printf("  %s\n", q)
		}
	}

	return nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	bulletID, feedbackType := args[0], args[1]
	if feedbackType != "helpful" && feedbackType != "harmful" {
		return fmt.Errorf("feedback type must be \"helpful\" or \"harmful\", got %q", feedbackType)
	}

	reqBody := FeedbackRequest{
		BulletID:    bulletID,
		Type:        feedbackType,
		SessionPath: feedbackSession,
		Reason:      feedbackReason,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/feedback", serverURL)
	resp, err := postJSON(url, reqJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}

	var fbResp FeedbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&fbResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Recorded %s feedback on %s (applied=%v)\n", feedbackType, bulletID, fbResp.Applied)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}

func postJSON(url string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	return resp, nil
}

func errorFromResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}
