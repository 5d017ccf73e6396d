package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// runReload POSTs to the running server's /bots/{id}/reload route and
// prints its response body, so an operator can trigger a recompile without
// restarting the process.
func runReload(ctx context.Context, serverAddr, botID string) error {
	url := fmt.Sprintf("%s/bots/%s/reload", serverAddr, botID)

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("reload: build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reload: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reload: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reload: server returned %d: %s", resp.StatusCode, body)
	}

	fmt.Printf("reloaded %s: %s\n", botID, body)
	return nil
}
