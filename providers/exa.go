// providers/exa.go
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// SearchClient queries the Exa web search API as the generic evidence
// fallback. Zero results, non-2xx responses and transport errors all
// collapse into "no evidence" text — nothing thrown past this boundary.
// A missing EXA_API_KEY disables the provider entirely (configuration-layer
// concern; the judge just sees "No web search available.").
type SearchClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewSearchClient() *SearchClient {
	return &SearchClient{
		baseURL: "https://api.exa.ai",
		apiKey:  strings.TrimSpace(os.Getenv("EXA_API_KEY")),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// NewSearchClientWithBase is used by tests to point at a fake Exa.
func NewSearchClientWithBase(baseURL, apiKey string) *SearchClient {
	c := NewSearchClient()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.apiKey = apiKey
	return c
}

// Enabled reports whether an API key is configured.
func (c *SearchClient) Enabled() bool {
	return c.apiKey != ""
}

type exaRequest struct {
	Query         string      `json:"query"`
	NumResults    int         `json:"numResults"`
	Contents      exaContents `json:"contents"`
	Type          string      `json:"type"`
	UseAutoprompt bool        `json:"useAutoprompt"`
}

type exaContents struct {
	Text exaText `json:"text"`
}

type exaText struct {
	MaxCharacters int `json:"maxCharacters"`
}

type exaResponse struct {
	Results []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Text  string `json:"text"`
	} `json:"results"`
}

// Search runs a neural web search and formats the ranked results as plain
// evidence text for the judge.
func (c *SearchClient) Search(ctx context.Context, query string) string {
	if !c.Enabled() {
		return "No web search available."
	}

	payload, err := json.Marshal(exaRequest{
		Query:         query,
		NumResults:    5,
		Contents:      exaContents{Text: exaText{MaxCharacters: 1000}},
		Type:          "neural",
		UseAutoprompt: true,
	})
	if err != nil {
		return "Web search failed."
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return "Web search failed."
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[EXA] ⚠️ Search request failed: %v", err)
		return "Web search failed."
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[EXA] ⚠️ Search returned %d", resp.StatusCode)
		return "Web search failed."
	}

	var data exaResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "Web search failed."
	}

	if len(data.Results) == 0 {
		return "No search results found."
	}

	var b strings.Builder
	b.WriteString("WEB SEARCH RESULTS:\n\n")
	for _, result := range data.Results {
		fmt.Fprintf(&b, "SOURCE: %s\n", result.Title)
		fmt.Fprintf(&b, "URL: %s\n", result.URL)
		if result.Text != "" {
			fmt.Fprintf(&b, "CONTENT: %s\n", result.Text)
		}
		b.WriteString("\n---\n\n")
	}
	return b.String()
}
