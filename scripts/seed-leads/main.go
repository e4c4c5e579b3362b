package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/wolfman30/leadflow/internal/leads"
)

type seedFile struct {
	OrgID string                    `json:"org_id"`
	Leads []leads.CreateLeadRequest `json:"leads"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed-leads <leads-file.json>")
		fmt.Println("Example: go run ./scripts/seed-leads testdata/sample-leads.json")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("error reading file: %v\n", err)
		os.Exit(1)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Printf("error parsing JSON: %v\n", err)
		os.Exit(1)
	}
	if seed.OrgID == "" {
		fmt.Println("org_id is required")
		os.Exit(1)
	}

	fmt.Printf("Seeding %d leads into %s at %s\n", len(seed.Leads), seed.OrgID, apiURL)

	ctx := context.Background()
	client := &http.Client{Timeout: 30 * time.Second}
	failed := 0
	for i, lead := range seed.Leads {
		id, err := createLead(ctx, client, apiURL, seed.OrgID, lead)
		if err != nil {
			failed++
			fmt.Printf("  [%d/%d] %s: %v\n", i+1, len(seed.Leads), lead.Name, err)
			continue
		}
		fmt.Printf("  [%d/%d] %s -> %s\n", i+1, len(seed.Leads), lead.Name, id)
	}
	if failed > 0 {
		fmt.Printf("%d of %d leads failed\n", failed, len(seed.Leads))
		os.Exit(1)
	}
}

func createLead(ctx context.Context, client *http.Client, apiURL, orgID string, lead leads.CreateLeadRequest) (string, error) {
	body, err := json.Marshal(lead)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/leads", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Org-Id", orgID)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var created leads.Lead
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	return created.ID, nil
}
