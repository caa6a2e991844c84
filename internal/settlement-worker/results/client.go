package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/sportkey"
)

const (
	DefaultBaseURL = "https://api.the-odds-api.com"
	apiVersion     = "v4"
	userAgent      = "parlay-settlement/1.0"
)

var ErrNoAPIKey = errors.New("no results api key configured")

// Config do cliente do provedor de resultados
type Config struct {
	BaseURL    string
	APIKeys    []string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// RateLimits é a cota informada pelos headers da última resposta
type RateLimits struct {
	RequestsRemaining int
	RequestsUsed      int
}

// Client consulta placares e catálogo de esportes na The Odds API (v4).
// Faz rotação de chaves em 401/429 ou cota zerada, retry com backoff e
// passa cada chamada por um circuit breaker.
type Client struct {
	log        *zap.Logger
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	retryDelay time.Duration

	mu         sync.Mutex
	keys       []string
	keyIdx     int
	rateLimits RateLimits
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	keys := make([]string, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}

	c := &Client{
		log:        log,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		keys:       keys,
		rateLimits: RateLimits{RequestsRemaining: -1},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "results-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// erros de cliente (exceto 401/429) não indicam provedor fora do ar
		IsSuccessful: func(err error) bool {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				return httpErr.StatusCode < 500 && !httpErr.rotatable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c
}

// FetchSportsCatalog lista os esportes (título → chave) do provedor
func (c *Client) FetchSportsCatalog(ctx context.Context) ([]sportkey.Sport, error) {
	body, err := c.doRequestWithRetry(ctx, "/sports", url.Values{"all": {"true"}})
	if err != nil {
		return nil, fmt.Errorf("fetch sports catalog: %w", err)
	}

	var resp []sportResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse sports response: %w", err)
	}

	out := make([]sportkey.Sport, 0, len(resp))
	for _, s := range resp {
		out = append(out, sportkey.Sport{Key: s.Key, Title: s.Title})
	}
	return out, nil
}

// FetchCompletedGames devolve os jogos finalizados nos últimos daysBack dias
func (c *Client) FetchCompletedGames(ctx context.Context, sportKey string, daysBack int) ([]domain.GameRecord, error) {
	params := url.Values{"dateFormat": {"iso"}}
	if daysBack > 0 {
		params.Set("daysFrom", strconv.Itoa(daysBack))
	}
	games, err := c.fetchScores(ctx, sportKey, params)
	if err != nil {
		return nil, fmt.Errorf("fetch completed games %s: %w", sportKey, err)
	}
	return filter(games, true), nil
}

// FetchActiveGames devolve os jogos ainda não finalizados
func (c *Client) FetchActiveGames(ctx context.Context, sportKey string) ([]domain.GameRecord, error) {
	games, err := c.fetchScores(ctx, sportKey, url.Values{"dateFormat": {"iso"}})
	if err != nil {
		return nil, fmt.Errorf("fetch active games %s: %w", sportKey, err)
	}
	return filter(games, false), nil
}

// RateLimits devolve a última cota conhecida (-1 = desconhecida)
func (c *Client) RateLimits() RateLimits {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimits
}

func (c *Client) fetchScores(ctx context.Context, sportKey string, params url.Values) ([]domain.GameRecord, error) {
	body, err := c.doRequestWithRetry(ctx, "/sports/"+url.PathEscape(sportKey)+"/scores", params)
	if err != nil {
		return nil, err
	}

	var resp []scoreResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse scores response: %w", err)
	}

	games := make([]domain.GameRecord, 0, len(resp))
	for _, r := range resp {
		games = append(games, r.toGame())
	}
	return games, nil
}

func filter(games []domain.GameRecord, completed bool) []domain.GameRecord {
	out := make([]domain.GameRecord, 0, len(games))
	for _, g := range games {
		if g.Completed == completed {
			out = append(out, g)
		}
	}
	return out
}

// doRequestWithRetry repete a chamada com backoff exponencial.
// 401/429 trocam de chave antes da próxima tentativa; outros 4xx não repetem.
func (c *Client) doRequestWithRetry(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		key, err := c.currentKey()
		if err != nil {
			return nil, err
		}

		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, path, params, key)
		})
		if err == nil {
			return res.([]byte), nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, err
		}

		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			if httpErr.rotatable() {
				c.rotateKey(key)
				continue
			}
			if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, path string, params url.Values, key string) ([]byte, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("apiKey", key)
	fullURL := fmt.Sprintf("%s/%s%s?%s", c.baseURL, apiVersion, path, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	c.updateRateLimits(resp.Header, key)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return body, nil
}

func (c *Client) currentKey() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.keys) == 0 {
		return "", ErrNoAPIKey
	}
	return c.keys[c.keyIdx%len(c.keys)], nil
}

// rotateKey avança para a próxima chave, a não ser que outra chamada já tenha trocado
func (c *Client) rotateKey(used string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.keys) < 2 || c.keys[c.keyIdx%len(c.keys)] != used {
		return
	}
	c.keyIdx = (c.keyIdx + 1) % len(c.keys)
	c.log.Warn("rotating results api key", zap.Int("keyIndex", c.keyIdx))
}

func (c *Client) updateRateLimits(headers http.Header, key string) {
	c.mu.Lock()
	if remaining := headers.Get("x-requests-remaining"); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimits.RequestsRemaining = val
		}
	}
	if used := headers.Get("x-requests-used"); used != "" {
		if val, err := strconv.Atoi(used); err == nil {
			c.rateLimits.RequestsUsed = val
		}
	}
	exhausted := c.rateLimits.RequestsRemaining == 0
	c.mu.Unlock()

	if exhausted {
		c.rotateKey(key)
	}
}

// HTTPError representa uma resposta não-200 do provedor
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) rotatable() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusTooManyRequests
}

type sportResponse struct {
	Key    string `json:"key"`
	Group  string `json:"group"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

type scoreResponse struct {
	ID           string              `json:"id"`
	SportKey     string              `json:"sport_key"`
	SportTitle   string              `json:"sport_title"`
	CommenceTime string              `json:"commence_time"`
	Completed    bool                `json:"completed"`
	HomeTeam     string              `json:"home_team"`
	AwayTeam     string              `json:"away_team"`
	Scores       []scoreResponsePair `json:"scores"`
	LastUpdate   *string             `json:"last_update"`
}

type scoreResponsePair struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

func (r scoreResponse) toGame() domain.GameRecord {
	g := domain.GameRecord{
		ID:        r.ID,
		SportKey:  r.SportKey,
		HomeTeam:  r.HomeTeam,
		AwayTeam:  r.AwayTeam,
		Completed: r.Completed,
	}
	if t, err := time.Parse(time.RFC3339, r.CommenceTime); err == nil {
		g.CommenceTime = t
	}
	for _, s := range r.Scores {
		g.Scores = append(g.Scores, domain.Score{Name: s.Name, Score: s.Score})
	}
	return g
}
