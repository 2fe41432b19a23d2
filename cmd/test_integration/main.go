package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

const (
	baseURL = "http://localhost:8080"
)

// Smoke test against a running server. Requires a live LLM backend and,
// when GRAPH_BACKEND=memgraph, a reachable Memgraph.
func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Integration Test...")

	if !sendRequest("GET", "/healthz", nil, nil) {
		fmt.Println("FAILED: health check")
		os.Exit(1)
	}

	// 1. Process a piece of context
	fmt.Println("1. Processing context...")
	var result struct {
		ContextItemID string  `json:"context_item_id"`
		Confidence    float64 `json:"overall_confidence"`
		Action        string  `json:"recommended_action"`
	}
	payload := map[string]string{
		"text":   "Jane Smith will review the Atlas launch plan by Friday. Mark owns the rollout checklist.",
		"source": "chat",
	}
	if !sendRequest("POST", "/process", payload, &result) {
		fmt.Println("FAILED: process context")
		os.Exit(1)
	}
	fmt.Printf("   confidence=%.2f action=%s context=%s\n", result.Confidence, result.Action, result.ContextItemID)

	// 2. Look the extracted entity up
	fmt.Println("2. Fetching entity...")
	if !sendRequest("GET", "/entities/"+url.PathEscape("Jane Smith"), nil, nil) {
		fmt.Println("FAILED: get entity")
		os.Exit(1)
	}

	// 3. Fetch the reasoning trace
	fmt.Println("3. Fetching trace...")
	if !sendRequest("GET", "/traces/"+result.ContextItemID, nil, nil) {
		fmt.Println("FAILED: get trace")
		os.Exit(1)
	}

	fmt.Println("Integration Test PASSED")
}

func sendRequest(method, path string, payload any, out any) bool {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			fmt.Printf("   marshal error: %v\n", err)
			return false
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		fmt.Printf("   request error: %v\n", err)
		return false
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("   %s %s error: %v\n", method, path, err)
		return false
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("   %s %s -> %d: %s\n", method, path, resp.StatusCode, string(data))
		return false
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			fmt.Printf("   decode error: %v\n", err)
			return false
		}
	}
	return true
}
