package validator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/pas2cs/internal/llm"
)

func TestClientSatisfiesValidator(t *testing.T) {
	var _ Validator = (*Client)(nil)
}

func TestValidate_EmptyInputSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	v := New(llm.New(llm.Config{BaseURL: server.URL}, nil), "review", nil)

	assert.Equal(t, "", v.Validate(context.Background(), ""))
	assert.Equal(t, "", v.Validate(context.Background(), "  \n"))
	assert.Equal(t, int32(0), calls.Load())
}

func TestValidate_ReturnsCorrectedCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"code\":\"fixed\"}"}}]}`))
	}))
	defer server.Close()

	v := New(llm.New(llm.Config{BaseURL: server.URL}, nil), "review", nil)
	assert.Equal(t, "fixed", v.Validate(context.Background(), "broken"))
}

func TestValidate_ErrorStatusReturnsInputUnchanged(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusBadGateway} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte("nope"))
		}))

		input := "  public class A\r\n{\n\tint x; }\n\n"
		v := New(llm.New(llm.Config{BaseURL: server.URL}, nil), "review", nil)
		assert.Equal(t, input, v.Validate(context.Background(), input))

		server.Close()
	}
}

func TestValidate_MalformedEnvelopeReturnsInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`not json at all`))
	}))
	defer server.Close()

	v := New(llm.New(llm.Config{BaseURL: server.URL}, nil), "review", nil)
	assert.Equal(t, "class A {}", v.Validate(context.Background(), "class A {}"))
}

type stubCompleter struct {
	content string
	err     error
	system  string
	user    string
}

func (s *stubCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.system, s.user = system, user
	return s.content, s.err
}

func TestReview_RequestContent(t *testing.T) {
	stub := &stubCompleter{content: "  int y;  "}
	v := New(stub, "checker prompt", nil)

	got, err := v.Review(context.Background(), "int x;")
	require.NoError(t, err)
	assert.Equal(t, "int y;", got)
	assert.Equal(t, "checker prompt", stub.system)
	assert.Equal(t, "Review and fix the following C# code:\n\nint x;", stub.user)
}

func TestReview_SurfacesErrors(t *testing.T) {
	v := New(&stubCompleter{err: errors.New("network down")}, "p", nil)

	_, err := v.Review(context.Background(), "int x;")
	assert.Error(t, err)
	assert.Equal(t, "int x;", v.Validate(context.Background(), "int x;"))
}

func TestReview_EmptyAnswer(t *testing.T) {
	v := New(&stubCompleter{content: `{"code":null}`}, "p", nil)

	_, err := v.Review(context.Background(), "int x;")
	assert.ErrorIs(t, err, ErrEmptyReview)
	assert.Equal(t, "int x;", v.Validate(context.Background(), "int x;"))
}
