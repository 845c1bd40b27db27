package judge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
)

func helloProblem() adventure.Problem {
	return adventure.Problem{
		Title:          "Hello",
		Description:    "Print hello",
		Language:       "Python",
		CodeSnippet:    "print()",
		ExpectedOutput: "Hello World\n",
		Difficulty:     1,
	}
}

func TestJudgeSendsPistonPayload(t *testing.T) {
	var got executeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"run":{"stdout":"Hello World\n","stderr":"","output":"Hello World\n","code":0}}`))
	}))
	defer srv.Close()

	s := DefaultSettings()
	s.URL = srv.URL
	c := New(s, nil)

	v, err := c.Judge(context.Background(), helloProblem(), `print("Hello World")`)
	require.NoError(t, err)
	assert.True(t, v.IsCorrect)
	assert.Equal(t, "Correct! Well done.", v.Message)

	assert.Equal(t, "python", got.Language)
	assert.Equal(t, "3.10.0", got.Version)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "Main.py", got.Files[0].Name)
	assert.Equal(t, `print("Hello World")`, got.Files[0].Content)
}

func TestJudgeIncorrectOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"run":{"output":"Goodbye\n"}}`))
	}))
	defer srv.Close()

	s := DefaultSettings()
	s.URL = srv.URL
	v, err := New(s, nil).Judge(context.Background(), helloProblem(), "print('Goodbye')")
	require.NoError(t, err)
	assert.False(t, v.IsCorrect)
	assert.Equal(t, "Incorrect. Expected:\nHello World\n\nYour output:\nGoodbye", v.Message)
	assert.Equal(t, "Goodbye", v.Output)
}

func TestJudgeUnsupportedLanguage(t *testing.T) {
	p := helloProblem()
	p.Language = "cobol"
	_, err := New(DefaultSettings(), nil).Judge(context.Background(), p, "")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestJudgeOpensBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "runner crashed", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := Settings{URL: srv.URL, Timeout: time.Second, FailureThreshold: 0.5, MinRequests: 2, OpenTimeout: time.Minute}
	c := New(s, nil)

	for i := 0; i < 2; i++ {
		_, err := c.Judge(context.Background(), helloProblem(), "")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnavailable))
		assert.Contains(t, err.Error(), "status 502")
	}

	_, err := c.Judge(context.Background(), helloProblem(), "")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCompareTrimsWhitespace(t *testing.T) {
	assert.True(t, Compare("2\n", "  2  \n", "").IsCorrect)
	assert.False(t, Compare("2", "3", "").IsCorrect)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("Go"))
	assert.True(t, Supported("bash"))
	assert.False(t, Supported("cobol"))
}
