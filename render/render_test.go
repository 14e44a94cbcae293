package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vinayprograms/renderkit/errors"
)

func newOpenAIError(code int) *openai.Error {
	req := httptest.NewRequest(http.MethodPost, "https://api.openai.com/v1/images/generations", nil)
	return &openai.Error{
		Message:    "provider says no",
		StatusCode: code,
		Request:    req,
		Response:   &http.Response{StatusCode: code, Request: req},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCode
	}{
		{"openai_429", newOpenAIError(429), errors.ErrCodeRateLimit},
		{"openai_503", newOpenAIError(503), errors.ErrCodeUnavailable},
		{"openai_502", newOpenAIError(502), errors.ErrCodeUnavailable},
		{"openai_400", newOpenAIError(400), errors.ErrCodeInvalidInput},
		{"openai_401", newOpenAIError(401), errors.ErrCodeUnauthorized},
		{"openai_500", newOpenAIError(500), errors.ErrCodeInternal},
		{"googleapi_429", &googleapi.Error{Code: 429, Message: "quota"}, errors.ErrCodeRateLimit},
		{"googleapi_504", &googleapi.Error{Code: 504}, errors.ErrCodeUnavailable},
		{"googleapi_408", &googleapi.Error{Code: 408}, errors.ErrCodeTimeout},
		{"googleapi_403", &googleapi.Error{Code: 403}, errors.ErrCodeForbidden},
		{"grpc_exhausted", status.Error(codes.ResourceExhausted, "slow down"), errors.ErrCodeRateLimit},
		{"grpc_unavailable", status.Error(codes.Unavailable, "overloaded"), errors.ErrCodeUnavailable},
		{"grpc_deadline", status.Error(codes.DeadlineExceeded, "late"), errors.ErrCodeTimeout},
		{"grpc_invalid", status.Error(codes.InvalidArgument, "bad"), errors.ErrCodeInvalidInput},
		{"grpc_unauthenticated", status.Error(codes.Unauthenticated, "key"), errors.ErrCodeUnauthorized},
		{"wrapped_grpc", fmt.Errorf("call: %w", status.Error(codes.ResourceExhausted, "x")), errors.ErrCodeRateLimit},
		{"deadline", context.DeadlineExceeded, errors.ErrCodeTimeout},
		{"canceled", context.Canceled, errors.ErrCodeCanceled},
		{"plain", stderrors.New("429 in the message but not structured"), errors.ErrCodeInternal},
		{"already_classified", errors.BadResponse("no image"), errors.ErrCodeBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, "test")
			if code := errors.Code(got); code != tt.want {
				t.Errorf("Classify() code = %v, want %v (%v)", code, tt.want, got)
			}
		})
	}

	if Classify(nil, "test") != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestClassify_SetsProvider(t *testing.T) {
	e := errors.As(Classify(status.Error(codes.Unavailable, "x"), ProviderGemini))
	if e == nil || e.Provider() != ProviderGemini {
		t.Errorf("provider not set: %+v", e)
	}
	if e.Metadata()["grpc_code"] != "Unavailable" {
		t.Errorf("metadata = %v", e.Metadata())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"mock", Config{Provider: ProviderMock}, false},
		{"gemini_with_key", Config{Provider: ProviderGemini, APIKey: "k"}, false},
		{"gemini_no_key", Config{Provider: ProviderGemini}, true},
		{"openai_no_key", Config{Provider: ProviderOpenAI}, true},
		{"empty", Config{}, true},
		{"unknown", Config{Provider: "midjourney"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInferProvider(t *testing.T) {
	tests := map[string]string{
		"gemini-3-pro-image-preview": ProviderGemini,
		"imagen-3.0-generate-002":    ProviderGemini,
		"gpt-image-1":                ProviderOpenAI,
		"dall-e-3":                   ProviderOpenAI,
		"stable-diffusion":           "",
	}
	for model, want := range tests {
		if got := InferProvider(model); got != want {
			t.Errorf("InferProvider(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestNew_Mock(t *testing.T) {
	r, err := New(context.Background(), Config{Provider: ProviderMock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := r.(*Mock); !ok {
		t.Errorf("New(mock) = %T", r)
	}
}

func TestGeminiRenderer_ExtractsImage(t *testing.T) {
	var gotPrompt string
	r := &GeminiRenderer{
		modelName:   DefaultGeminiModel,
		aspectRatio: "2:3",
		generate: func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
			gotPrompt = string(parts[0].(genai.Text))
			return &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{Parts: []genai.Part{
						genai.Text("here you go"),
						genai.Blob{MIMEType: "image/png", Data: []byte("PNGDATA")},
					}},
				}},
			}, nil
		},
	}

	data, err := r.Render(context.Background(), Request{Prompt: "a lighthouse"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(data) != "PNGDATA" {
		t.Errorf("data = %q", data)
	}
	if gotPrompt != "a lighthouse\n\nAspect ratio: 2:3." {
		t.Errorf("prompt = %q", gotPrompt)
	}
}

func TestGeminiRenderer_Errors(t *testing.T) {
	textOnly := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text("sorry")}}}},
	}

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		err  error
		want errors.ErrorCode
	}{
		{"no_image", textOnly, nil, errors.ErrCodeBadResponse},
		{"nil_response", nil, nil, errors.ErrCodeBadResponse},
		{"rate_limited", nil, status.Error(codes.ResourceExhausted, "quota"), errors.ErrCodeRateLimit},
		{"blocked", nil, &genai.BlockedError{}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &GeminiRenderer{generate: func(context.Context, ...genai.Part) (*genai.GenerateContentResponse, error) {
				return tt.resp, tt.err
			}}
			_, err := r.Render(context.Background(), Request{Prompt: "x"})
			if code := errors.Code(err); code != tt.want {
				t.Errorf("code = %v, want %v (%v)", code, tt.want, err)
			}
		})
	}
}

func TestGeminiRenderer_EmptyPromptNeverCalls(t *testing.T) {
	called := false
	r := &GeminiRenderer{generate: func(context.Context, ...genai.Part) (*genai.GenerateContentResponse, error) {
		called = true
		return nil, nil
	}}
	_, err := r.Render(context.Background(), Request{Prompt: "  "})
	if !errors.Is(err, errors.ErrCodeInvalidInput) || called {
		t.Errorf("err = %v, called = %v", err, called)
	}
}

func TestOpenAIRenderer(t *testing.T) {
	image := []byte("\x89PNG fake")
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/images/generations" {
			http.NotFound(w, r)
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["prompt"] != "a lighthouse" || body["size"] != "1024x1536" {
			http.Error(w, `{"error":{"message":"bad body"}}`, http.StatusBadRequest)
			return
		}
		if _, ok := body["response_format"]; ok {
			http.Error(w, `{"error":{"message":"response_format not supported"}}`, http.StatusBadRequest)
			return
		}
		if n == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limit","type":"requests"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"created": 1,
			"data":    []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(image)}},
		})
	}))
	defer srv.Close()

	r, err := NewOpenAIRenderer(OpenAIConfig{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIRenderer: %v", err)
	}

	// First call is throttled and must not be retried by the SDK.
	_, err = r.Render(context.Background(), Request{Prompt: "a lighthouse"})
	if !errors.Is(err, errors.ErrCodeRateLimit) {
		t.Fatalf("first call: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("SDK retried: %d calls", calls.Load())
	}

	data, err := r.Render(context.Background(), Request{Prompt: "a lighthouse"})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !bytes.Equal(data, image) {
		t.Errorf("data = %q", data)
	}
}

func TestNewOpenAIRenderer_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIRenderer(OpenAIConfig{}); err == nil {
		t.Error("expected error without api key")
	}
}

func TestMock(t *testing.T) {
	m := NewMock(WithMockFunc(func(ctx context.Context, req Request, call int) ([]byte, error) {
		if call == 1 {
			return nil, errors.RateLimited("first call throttled")
		}
		return []byte(req.Prompt), nil
	}))

	if _, err := m.Render(context.Background(), Request{Prompt: "p"}); !errors.IsResource(err) {
		t.Fatalf("first call: %v", err)
	}
	data, err := m.Render(context.Background(), Request{Prompt: "p"})
	if err != nil || string(data) != "p" {
		t.Fatalf("second call = %q, %v", data, err)
	}
	if m.Calls() != 2 || m.CallsFor("p") != 2 || m.CallsFor("q") != 0 {
		t.Errorf("calls = %d / %d", m.Calls(), m.CallsFor("p"))
	}
}

func TestMock_DelayHonorsContext(t *testing.T) {
	m := NewMock(WithMockDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Render(ctx, Request{Prompt: "p"})
	if !errors.Is(err, errors.ErrCodeTimeout) {
		t.Errorf("err = %v, want TIMEOUT", err)
	}
}

func TestMock_DefaultReturnsPNG(t *testing.T) {
	data, err := NewMock().Render(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 96 {
		t.Errorf("bounds = %v", b)
	}
}

func TestPlaceholder_Deterministic(t *testing.T) {
	if !bytes.Equal(Placeholder("a", ""), Placeholder("a", "")) {
		t.Error("same seed should give same image")
	}
	if bytes.Equal(Placeholder("a", ""), Placeholder("a", "failed")) {
		t.Error("failure border should change the image")
	}
}

type closingRenderer struct {
	Mock
	closed bool
}

func (c *closingRenderer) Close() error {
	c.closed = true
	return nil
}

func TestWithTracing_ForwardsClose(t *testing.T) {
	inner := &closingRenderer{}
	wrapped := WithTracing(inner, "gemini", "m")

	closer, ok := wrapped.(io.Closer)
	if !ok {
		t.Fatal("traced renderer does not implement io.Closer")
	}
	if err := closer.Close(); err != nil || !inner.closed {
		t.Errorf("Close() = %v, inner closed = %v", err, inner.closed)
	}

	if err := WithTracing(NewMock(), "mock", "").(io.Closer).Close(); err != nil {
		t.Errorf("Close on a renderer without a client = %v", err)
	}
}
