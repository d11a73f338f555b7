package coretools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/stepwise/pkg/toolexecutor"
)

const (
	duckDuckGoURL     = "https://api.duckduckgo.com/"
	userAgent         = "stepwise/1.0 (+https://github.com/harun/stepwise)"
	defaultMaxResults = 5
	relatedTopics     = 3
	fetchContentLimit = 5000
	fetchBodyLimit    = 1 << 20
	summaryLimit      = 200
)

type searchRequest struct {
	Query      string `mapstructure:"q"`
	MaxResults int    `mapstructure:"max_results"`
}

type fetchRequest struct {
	URL string `mapstructure:"url"`
}

// instantAnswer is the subset of the DuckDuckGo instant answer payload we read
type instantAnswer struct {
	Answer        string `json:"Answer"`
	AnswerURL     string `json:"AnswerURL"`
	Definition    string `json:"Definition"`
	DefinitionURL string `json:"DefinitionURL"`
	Abstract      string `json:"Abstract"`
	AbstractURL   string `json:"AbstractURL"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

type searchResult struct {
	Title   string
	URL     string
	Snippet string
	Source  string
}

func (r searchResult) toMap() map[string]interface{} {
	return map[string]interface{}{
		"title":   r.Title,
		"url":     r.URL,
		"snippet": r.Snippet,
		"source":  r.Source,
	}
}

func webSearchTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "web.search",
		Description: "Search the web for current information and return snippets.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "q", Type: "string", Description: "Search query", Required: true},
			{Name: "max_results", Type: "integer", Description: "Maximum number of results", Default: defaultMaxResults},
		},
		Timeout: 15 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var req searchRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			query := strings.TrimSpace(req.Query)
			if query == "" {
				return failure("Query cannot be empty"), nil
			}
			if req.MaxResults <= 0 {
				req.MaxResults = defaultMaxResults
			}

			results, summary, err := instantAnswerSearch(ctx, opts, query)
			if err != nil {
				log.Debug().Err(err).Str("query", query).Msg("Instant answer lookup failed")
			}
			if len(results) == 0 {
				if kb, ok := knowledgeResult(query); ok {
					results = append(results, kb)
				}
			}
			if len(results) == 0 {
				results = append(results, guidanceResult(query))
			}
			if len(results) > req.MaxResults {
				results = results[:req.MaxResults]
			}
			if summary == "" {
				summary = results[0].Snippet
				if r := []rune(summary); len(r) > summaryLimit {
					summary = string(r[:summaryLimit]) + "..."
				}
			}

			items := make([]interface{}, len(results))
			for i, r := range results {
				items[i] = r.toMap()
			}
			return map[string]interface{}{
				"query":   query,
				"results": items,
				"count":   len(items),
				"summary": summary,
				"status":  "completed",
			}, nil
		},
	}
}

// instantAnswerSearch queries the DuckDuckGo instant answer API
func instantAnswerSearch(ctx context.Context, opts Options, query string) ([]searchResult, string, error) {
	endpoint, err := url.Parse(opts.SearchURL)
	if err != nil {
		return nil, "", err
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")
	endpoint.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, "", err
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := opts.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.NewDecoder(io.LimitReader(resp.Body, fetchBodyLimit)).Decode(&answer); err != nil {
		return nil, "", fmt.Errorf("decode search response: %w", err)
	}

	var results []searchResult
	summary := ""
	if answer.Answer != "" {
		summary = answer.Answer
		results = append(results, searchResult{"Direct Answer", answer.AnswerURL, answer.Answer, "DuckDuckGo Instant Answer"})
	}
	if answer.Definition != "" {
		results = append(results, searchResult{"Definition: " + query, answer.DefinitionURL, answer.Definition, "DuckDuckGo Definition"})
		if summary == "" {
			summary = answer.Definition
		}
	}
	if answer.Abstract != "" && summary == "" {
		summary = answer.Abstract
		results = append(results, searchResult{"Overview: " + query, answer.AbstractURL, answer.Abstract, "DuckDuckGo Abstract"})
	}

	added := 0
	for _, topic := range answer.RelatedTopics {
		if added == relatedTopics {
			break
		}
		if topic.Text == "" {
			continue
		}
		title := topic.Text
		if r := []rune(title); len(r) > 80 {
			title = string(r[:80]) + "..."
		}
		results = append(results, searchResult{title, topic.FirstURL, topic.Text, "DuckDuckGo Related"})
		added++
	}
	return results, summary, nil
}

// knowledgeResult points common topics at authoritative sources
func knowledgeResult(query string) (searchResult, bool) {
	lower := strings.ToLower(query)
	containsAny := func(terms ...string) bool {
		for _, t := range terms {
			if strings.Contains(lower, t) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny("python", "javascript", "golang", "programming", "code", "algorithm"):
		return searchResult{
			Title:   "Programming Information: " + query,
			URL:     "https://developer.mozilla.org",
			Snippet: "For programming questions, check official documentation, Stack Overflow, or GitHub. I can also help with specific coding problems or explain programming concepts directly.",
			Source:  "Programming Knowledge",
		}, true
	case containsAny("formula", "equation", "theory", "science", "physics", "chemistry", "math"):
		return searchResult{
			Title:   "Science/Math Information: " + query,
			URL:     "https://www.wolframalpha.com",
			Snippet: "For scientific and mathematical information, consider Wolfram Alpha, Khan Academy, or academic sources. I can also help explain concepts or solve specific problems.",
			Source:  "Science Knowledge",
		}, true
	case containsAny("business", "finance", "investment", "market", "economy"):
		return searchResult{
			Title:   "Business/Finance Information: " + query,
			URL:     "https://finance.yahoo.com",
			Snippet: "For business and financial information, check reputable sources like Yahoo Finance, Bloomberg, or the Financial Times. I can help explain concepts or analyze specific topics.",
			Source:  "Business Knowledge",
		}, true
	}
	return searchResult{}, false
}

func guidanceResult(query string) searchResult {
	return searchResult{
		Title:   "Search Guidance for: " + query,
		URL:     "https://duckduckgo.com/?q=" + url.QueryEscape(query),
		Snippet: fmt.Sprintf("I found limited results for '%s'. For comprehensive results try a web search engine directly, or tell me more about what you are looking for.", query),
		Source:  "Search Assistant",
	}
}

func webFetchTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "web.fetch",
		Description: "Fetch a web page or API response over HTTP(S).",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "url", Type: "string", Description: "URL to fetch", Required: true},
		},
		Timeout: 15 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var req fetchRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			target, err := url.Parse(strings.TrimSpace(req.URL))
			if err != nil || target.Host == "" {
				return failure("Invalid URL: %s", req.URL), nil
			}
			if target.Scheme != "http" && target.Scheme != "https" {
				return failure("Unsupported URL scheme: %s", target.Scheme), nil
			}

			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
			if err != nil {
				return nil, err
			}
			httpReq.Header.Set("User-Agent", userAgent)

			resp, err := opts.HTTPClient.Do(httpReq)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 400 {
				return map[string]interface{}{
					"error":  fmt.Sprintf("HTTP %d", resp.StatusCode),
					"url":    target.String(),
					"status": resp.StatusCode,
				}, nil
			}

			contentType := resp.Header.Get("Content-Type")
			content := fmt.Sprintf("Binary content (%d bytes)", len(body))
			truncated := false
			if strings.Contains(contentType, "text") || strings.Contains(contentType, "json") {
				text := []rune(string(body))
				if len(text) > fetchContentLimit {
					text = text[:fetchContentLimit]
					truncated = true
				}
				content = string(text)
			}

			return map[string]interface{}{
				"url":          target.String(),
				"status":       resp.StatusCode,
				"content_type": contentType,
				"content":      content,
				"truncated":    truncated,
			}, nil
		},
	}
}
