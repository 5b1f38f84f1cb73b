package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// dispatch triggers one webhook delivery pass against a running server.
// Meant to be invoked from cron.
func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var (
		baseURL = flag.String("url", envOr("RECRUITFLOW_API_URL", "http://localhost:8080"), "Base URL of the recruitflow API")
		secret  = flag.String("secret", os.Getenv("RECRUITFLOW_CRON_SECRET"), "Cron secret for the internal dispatch route")
		timeout = flag.Duration("timeout", 30*time.Second, "Request timeout")
	)
	flag.Parse()

	if *secret == "" {
		log.Fatal("cron secret is required (set RECRUITFLOW_CRON_SECRET or pass -secret)")
	}

	req, err := http.NewRequest(http.MethodPost, *baseURL+"/internal/outbox/dispatch", nil)
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("x-cron-secret", *secret)

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("Dispatch request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Dispatch failed: status %d: %s", resp.StatusCode, string(body))
	}

	fmt.Println(string(body))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
