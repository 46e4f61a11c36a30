// Command smoke exercises a running server end to end: it triggers a
// discovery run and reads back matches, clusters and a material search.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "server to test")
	companyID := flag.String("company", "", "company id for the demand-capture search (optional)")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Minute}

	steps := []struct {
		name     string
		method   string
		endpoint string
		payload  interface{}
	}{
		{"Health", http.MethodGet, "/healthz", nil},
		{"Discovery run", http.MethodPost, "/discovery/run", nil},
		{"Top matches", http.MethodGet, "/insights/matches?limit=5", nil},
		{"Clusters", http.MethodGet, "/insights/clusters", nil},
		{"Material search", http.MethodPost, "/search/materials", map[string]string{"query": "slag", "company_id": *companyID}},
	}

	for i, step := range steps {
		fmt.Printf("%d. %s...\n", i+1, step.name)
		if !sendRequest(client, step.method, *baseURL+step.endpoint, step.payload) {
			fmt.Printf("FAILED: %s\n", step.name)
			os.Exit(1)
		}
		fmt.Printf("PASSED: %s\n", step.name)
	}
}

func sendRequest(client *http.Client, method, url string, payload interface{}) bool {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return true
}
