package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
)

// DefaultURL is the public Piston execute endpoint.
const DefaultURL = "https://emkc.org/api/v2/piston/execute"

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrUnavailable         = errors.New("judge temporarily unavailable")
)

// Verdict is the judged result of running a submission.
type Verdict struct {
	IsCorrect bool   `json:"is_correct"`
	Message   string `json:"message"`
	Output    string `json:"output"`
	Stderr    string `json:"stderr,omitempty"`
}

type langRuntime struct {
	version   string
	extension string
}

var runtimes = map[string]langRuntime{
	"python":     {"3.10.0", "py"},
	"javascript": {"18.15.0", "js"},
	"typescript": {"1.32.3", "ts"},
	"java":       {"15.0.2", "java"},
	"c":          {"10.2.0", "c"},
	"cpp":        {"10.2.0", "cpp"},
	"ruby":       {"3.0.1", "rb"},
	"go":         {"1.16.2", "go"},
	"php":        {"8.2.3", "php"},
	"rust":       {"1.68.2", "rs"},
	"bash":       {"5.2.0", "sh"},
}

// Supported reports whether language can be executed.
func Supported(language string) bool {
	_, ok := runtimes[strings.ToLower(language)]
	return ok
}

type file struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type executeRequest struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Files    []file `json:"files"`
}

type executeResponse struct {
	Run struct {
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
		Output string `json:"output"`
		Code   int    `json:"code"`
	} `json:"run"`
}

// Settings configures a Client.
type Settings struct {
	URL     string
	Timeout time.Duration
	// FailureThreshold is the failure ratio that opens the breaker once
	// MinRequests calls have been seen.
	FailureThreshold float64
	MinRequests      uint32
	OpenTimeout      time.Duration
}

// DefaultSettings returns settings for the public Piston instance.
func DefaultSettings() Settings {
	return Settings{
		URL:              DefaultURL,
		Timeout:          15 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
		OpenTimeout:      30 * time.Second,
	}
}

// Client runs submissions on a Piston-compatible service behind a circuit
// breaker.
type Client struct {
	url    string
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// New returns a Client for s. A nil logger disables logging.
func New(s Settings, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.URL == "" {
		s.URL = DefaultURL
	}
	c := &Client{
		url:    s.URL,
		http:   &http.Client{Timeout: s.Timeout},
		logger: logger,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "judge",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// A solver abandoning the request says nothing about judge health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c
}

// Judge runs code in the problem's language and compares the trimmed
// output with the expected output.
func (c *Client) Judge(ctx context.Context, p adventure.Problem, code string) (Verdict, error) {
	lang := strings.ToLower(p.Language)
	rt, ok := runtimes[lang]
	if !ok {
		return Verdict{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, p.Language)
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.execute(ctx, executeRequest{
			Language: lang,
			Version:  rt.version,
			Files:    []file{{Name: "Main." + rt.extension, Content: code}},
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Verdict{}, err
	}

	run := res.(*executeResponse).Run
	return Compare(p.ExpectedOutput, run.Output, run.Stderr), nil
}

// Compare builds the verdict for output against expected. Both sides are
// trimmed of surrounding whitespace.
func Compare(expected, output, stderr string) Verdict {
	want := strings.TrimSpace(expected)
	got := strings.TrimSpace(output)
	v := Verdict{IsCorrect: want == got, Output: got, Stderr: stderr}
	if v.IsCorrect {
		v.Message = "Correct! Well done."
	} else {
		v.Message = fmt.Sprintf("Incorrect. Expected:\n%s\n\nYour output:\n%s", want, got)
	}
	return v
}

func (c *Client) execute(ctx context.Context, req executeRequest) (*executeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("code execution request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("code execution failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode execute response: %w", err)
	}
	return &out, nil
}

// State returns the breaker state, exposed for readiness checks.
func (c *Client) State() gobreaker.State {
	return c.cb.State()
}
