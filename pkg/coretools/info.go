package coretools

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/harun/stepwise/pkg/toolexecutor"
)

type summarizeRequest struct {
	Text         string `mapstructure:"text"`
	MaxSentences int    `mapstructure:"max_sentences"`
}

type weatherRequest struct {
	Location string `mapstructure:"location"`
}

type stockRequest struct {
	Symbol string `mapstructure:"symbol"`
}

func summarizeTool() toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "text.summarize",
		Description: "Summarize text by keeping its leading and trailing sentences.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "text", Type: "string", Description: "Text to summarize", Required: true},
			{Name: "max_sentences", Type: "integer", Description: "Maximum number of sentences in the summary", Default: 3},
		},
		Timeout: 10 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			req := summarizeRequest{MaxSentences: 3}
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			return summarize(req.Text, req.MaxSentences), nil
		},
	}
}

// summarize keeps the first and last halves of the sentence budget. An odd
// budget gives the extra sentence to the head.
func summarize(text string, maxSentences int) map[string]interface{} {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	sentences := strings.Split(text, ". ")
	if len(sentences) <= maxSentences {
		return map[string]interface{}{
			"summary":         text,
			"original_length": len(text),
			"summary_length":  len(text),
		}
	}

	tail := maxSentences / 2
	head := maxSentences - tail
	kept := append([]string{}, sentences[:head]...)
	kept = append(kept, sentences[len(sentences)-tail:]...)
	summary := strings.Join(kept, ". ")

	return map[string]interface{}{
		"summary":           summary,
		"original_length":   len(text),
		"summary_length":    len(summary),
		"compression_ratio": float64(len(summary)) / float64(len(text)),
	}
}

func systemInfoTool() toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "system.info",
		Description: "Report the host platform, CPU count and runtime version.",
		Timeout:     5 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			hostname, err := os.Hostname()
			if err != nil {
				hostname = "unknown"
			}
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)

			return map[string]interface{}{
				"platform":     runtime.GOOS,
				"architecture": runtime.GOARCH,
				"cpus":         runtime.NumCPU(),
				"go_version":   runtime.Version(),
				"hostname":     hostname,
				"goroutines":   runtime.NumGoroutine(),
				"heap_alloc":   mem.HeapAlloc,
			}, nil
		},
	}
}

func weatherInfoTool() toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "weather.info",
		Description: "Explain how to get current weather for a location.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "location", Type: "string", Description: "Location for weather information", Default: "your area"},
		},
		Timeout: 3 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			req := weatherRequest{Location: "your area"}
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"message": "Weather Information for " + req.Location,
				"guidance": []interface{}{
					"I cannot access real-time weather data without a weather API key.",
					"Here are the best ways to get current weather:",
					"1. Check weather.com or a weather app on your device",
					"2. Ask a voice assistant",
					"3. Search 'weather' plus your city name in a web browser",
					"4. Use local news websites or TV weather forecasts",
				},
				"alternatives": []interface{}{
					"I can help you write a script that fetches weather from a free API",
					"I can provide general information about weather patterns",
				},
			}, nil
		},
	}
}

func stockInfoTool() toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "stock.info",
		Description: "Explain how to get a current stock price for a symbol.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "symbol", Type: "string", Description: "Stock symbol (e.g. AAPL, GOOGL, TSLA)", Default: "the requested stock"},
		},
		Timeout: 3 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			req := stockRequest{Symbol: "the requested stock"}
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"message": "Stock Price Information for " + req.Symbol,
				"guidance": []interface{}{
					"I cannot access real-time stock market data without a financial API key.",
					"Here are the best ways to get current stock prices:",
					"1. Check financial websites like Yahoo Finance, Google Finance, or Bloomberg",
					"2. Use your broker's app or website",
					"3. Search '[company name] stock price' for instant results",
					"4. Check the company's investor relations page",
				},
				"alternatives": []interface{}{
					"I can help you write a script that fetches stock prices from a free API",
					"I can explain how stock markets work",
				},
				"suggestion": fmt.Sprintf("Try searching '%s stock price' or visiting finance.yahoo.com/quote/%s",
					req.Symbol, strings.ToUpper(req.Symbol)),
			}, nil
		},
	}
}
