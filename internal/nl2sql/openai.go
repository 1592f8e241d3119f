package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	historyLimit       = 5
	generateMaxTokens  = 1000
	summaryMaxTokens   = 120
	summarySampleRows  = 3
	summaryTemperature = 0.3
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAIGenerator speaks the OpenAI-compatible chat completions protocol.
type OpenAIGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
	now         func() time.Time
}

func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.1
	}
	return &OpenAIGenerator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: temperature,
		client:      &http.Client{Timeout: timeout},
		now:         time.Now,
	}, nil
}

// GenerateSQL builds the generation prompt, invokes the model and
// normalizes its reply into candidate SQL. Normalization strips a markdown
// fence and guarantees a terminating semicolon; it never rewrites the SQL.
func (g *OpenAIGenerator) GenerateSQL(ctx context.Context, req Request) (Generation, error) {
	currentYear := g.now().Year()
	content, tokens, err := g.complete(ctx, systemPrompt(currentYear), buildPrompt(req, currentYear), g.temperature, generateMaxTokens)
	if err != nil {
		return Generation{}, &GenerationError{Err: err}
	}
	sql := cleanSQL(content)
	if sql == ";" {
		return Generation{}, &GenerationError{Err: fmt.Errorf("model returned empty SQL")}
	}
	return Generation{SQL: sql, TokensUsed: tokens}, nil
}

// SummarizeResults asks the model for a 1-2 sentence plain-English reading
// of the first few result rows.
func (g *OpenAIGenerator) SummarizeResults(ctx context.Context, question string, columns []string, rows []map[string]any) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User question: %s\nResults (first few rows):\n", question)
	sample := rows
	if len(sample) > summarySampleRows {
		sample = sample[:summarySampleRows]
	}
	for _, row := range sample {
		parts := make([]string, 0, len(columns))
		for _, column := range columns {
			parts = append(parts, fmt.Sprintf("%s: %v", column, row[column]))
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}
	b.WriteString("\nIn 1-2 sentences, confidently describe what the results show in plain English. " +
		"Assume the SQL query and results already answer the user's question exactly. " +
		"Do not hedge or express uncertainty - just state the answer as a fact. " +
		"If the results are a list, summarize the key finding(s). If it's a single value, explain what it means.")

	system := "You are a helpful assistant that summarizes SQL query results for end users."
	content, _, err := g.complete(ctx, system, b.String(), summaryTemperature, summaryMaxTokens)
	if err != nil {
		return "", &GenerationError{Err: err}
	}
	return strings.TrimSpace(content), nil
}

func (g *OpenAIGenerator) complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, int, error) {
	payload := map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", 0, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", 0, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", 0, fmt.Errorf("empty chat completion choices")
	}
	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}

func systemPrompt(currentYear int) string {
	return fmt.Sprintf(`You are an expert SQL developer. Your task is to convert natural language queries into safe, read-only SQL queries.

IMPORTANT RULES:
1. ONLY generate SELECT statements - no INSERT, UPDATE, DELETE, DROP, etc.
2. Use proper SQL syntax for the warehouse database
3. Include appropriate WHERE clauses for filtering
4. Use meaningful column aliases when needed
5. Add LIMIT clauses for large result sets
6. Use proper JOIN syntax when multiple tables are involved
7. ALWAYS prefix table names with the 'warehouse.' schema (e.g., warehouse.dim_player, warehouse.fact_player_stats)
8. Pay attention to data types - use numeric values for numeric columns, strings for text columns
9. For follow-up questions, use context from previous queries to make specific queries
10. When referring to "that player" or similar, use the specific player information from chat history
11. IMPORTANT: The current year is %d. When users say "this year", "current year", "now", etc., use %d in your queries
12. Return ONLY the SQL query, no explanations or markdown formatting

The user will provide a natural language query, database schema information and chat history for context.

Generate a clean, safe SQL query that answers the user's question.`, currentYear, currentYear)
}

// buildPrompt assembles the user message: rendered schema, at most the last
// five history turns (assistant turns annotated with their SQL and result
// summary so follow-ups keep context), the current-year line and the
// question itself.
func buildPrompt(req Request, currentYear int) string {
	var parts []string
	if req.Schema != "" {
		parts = append(parts, req.Schema)
	}

	history := req.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	if len(history) > 0 {
		parts = append(parts, "CHAT HISTORY:")
		for _, turn := range history {
			role := "User"
			if turn.Role != "user" {
				role = "Assistant"
			}
			content := turn.Content
			if turn.Role == "assistant" && turn.SQLQuery != "" {
				content += fmt.Sprintf(" [SQL: %s]", turn.SQLQuery)
			}
			if turn.Role == "assistant" && turn.ResultSummary != "" {
				content += fmt.Sprintf(" [Results: %s]", turn.ResultSummary)
			}
			parts = append(parts, fmt.Sprintf("%s: %s", role, content))
		}
		parts = append(parts, "")
	}

	parts = append(parts, fmt.Sprintf("CURRENT YEAR: %d", currentYear))
	parts = append(parts, fmt.Sprintf("USER QUERY: %s", req.Question))
	parts = append(parts, "\nGenerate a SQL query to answer this question:")
	return strings.Join(parts, "\n")
}

// cleanSQL strips a single surrounding markdown fence, trims whitespace and
// appends a terminating semicolon if absent.
func cleanSQL(raw string) string {
	sql := strings.TrimSpace(raw)
	if strings.HasPrefix(sql, "```sql") {
		sql = sql[len("```sql"):]
	} else if strings.HasPrefix(sql, "```") {
		sql = sql[len("```"):]
	}
	sql = strings.TrimSuffix(strings.TrimSpace(sql), "```")
	sql = strings.TrimSpace(sql)
	if !strings.HasSuffix(sql, ";") {
		sql += ";"
	}
	return sql
}
