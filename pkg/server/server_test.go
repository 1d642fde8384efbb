package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/berkguzel/iamrisk/pkg/errs"
	"github.com/berkguzel/iamrisk/pkg/metrics"
	"github.com/berkguzel/iamrisk/pkg/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GeneratePolicy(ctx context.Context, prompt string) (types.PolicyDocument, error) {
	args := m.Called(ctx, prompt)
	return args.Get(0).(types.PolicyDocument), args.Error(1)
}

func (m *MockGenerator) ExplainPolicy(ctx context.Context, doc types.PolicyDocument) (string, error) {
	args := m.Called(ctx, doc)
	return args.String(0), args.Error(1)
}

type MockPolicySource struct {
	mock.Mock
}

func (m *MockPolicySource) GetPolicyDocument(ctx context.Context, policyArn string) (types.PolicyDocument, error) {
	args := m.Called(ctx, policyArn)
	return args.Get(0).(types.PolicyDocument), args.Error(1)
}

const adminPolicyJSON = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`

func readOnlyDoc() types.PolicyDocument {
	return types.PolicyDocument{
		Version: "2012-10-17",
		Statement: types.Statements{{
			Effect:   "Allow",
			Action:   []interface{}{"s3:GetObject", "s3:ListBucket"},
			Resource: []interface{}{"arn:aws:s3:::customer-logs", "arn:aws:s3:::customer-logs/*"},
		}},
	}
}

func newTestServer(gen *MockGenerator) *Server {
	cfg := Config{Metrics: metrics.New(), MaxBodyBytes: 4096}
	if gen != nil {
		cfg.Generator = gen
	}
	return New(cfg)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	rec, body := do(t, newTestServer(nil).Router(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRequestID_IsPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	newTestServer(nil).Router().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestRequestID_GeneratesUUID(t *testing.T) {
	rec, _ := do(t, newTestServer(nil).Router(), http.MethodGet, "/health", "")
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestRequestID_AvailableToHandlers(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-456")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-456", seen)
	assert.Equal(t, "req-456", rec.Header().Get(RequestIDHeader))
}

func TestAccessLog_UnmatchedRoutesShareOneSeries(t *testing.T) {
	srv := newTestServer(nil)
	h := srv.Router()
	for _, path := range []string{"/a", "/b", "/c", "/x/y/z"} {
		rec, _ := do(t, h, http.MethodGet, path, "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(srv.metrics.Registry(), "iamrisk_http_requests_total"))

	rec, _ := do(t, h, http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), `iamrisk_http_requests_total{code="404",route="unmatched"} 4`)
	assert.NotContains(t, rec.Body.String(), `route="/x/y/z"`)
}

func TestAnalyzePolicy_ByARN(t *testing.T) {
	const arn = "arn:aws:iam::123456789012:policy/read-logs"

	t.Run("fetches the managed policy", func(t *testing.T) {
		source := &MockPolicySource{}
		source.On("GetPolicyDocument", mock.Anything, arn).Return(readOnlyDoc(), nil)
		srv := New(Config{Policies: source})

		rec, body := do(t, srv.Router(), http.MethodPost, "/analyze-policy", `{"policy_arn":"`+arn+`"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		analysis := body["risk_analysis"].(map[string]interface{})
		assert.Equal(t, "MINIMAL", analysis["risk_level"])
		source.AssertExpectations(t)
	})

	t.Run("inline policy wins over policy_arn", func(t *testing.T) {
		source := &MockPolicySource{}
		srv := New(Config{Policies: source})

		rec, _ := do(t, srv.Router(), http.MethodPost, "/analyze-policy", `{"policy":`+adminPolicyJSON+`,"policy_arn":"`+arn+`"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		source.AssertNotCalled(t, "GetPolicyDocument", mock.Anything, mock.Anything)
	})

	t.Run("fetch failure is a bad gateway", func(t *testing.T) {
		source := &MockPolicySource{}
		source.On("GetPolicyDocument", mock.Anything, arn).
			Return(types.PolicyDocument{}, errs.Wrap(errs.KindFetch, "aws.GetPolicyDocument", "failed to get policy "+arn, errors.New("AccessDenied")))
		srv := New(Config{Policies: source})

		rec, body := do(t, srv.Router(), http.MethodPost, "/analyze-policy", `{"policy_arn":"`+arn+`"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "fetch", body["kind"])
	})

	t.Run("no policy source configured", func(t *testing.T) {
		rec, body := do(t, newTestServer(nil).Router(), http.MethodPost, "/analyze-policy", `{"policy_arn":"`+arn+`"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, body["error"], "policy lookup is not configured")
	})
}

func TestAnalyzePolicy(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantLevel  string
		wantError  string
		wantKind   string
	}{
		{
			name:       "embedded policy object",
			body:       `{"policy":` + adminPolicyJSON + `}`,
			wantStatus: http.StatusOK,
			wantLevel:  "HIGH",
		},
		{
			name:       "policy as a string",
			body:       `{"policy":` + mustQuote(adminPolicyJSON) + `}`,
			wantStatus: http.StatusOK,
			wantLevel:  "HIGH",
		},
		{
			name:       "yaml policy string",
			body:       `{"policy":"Version: \"2012-10-17\"\nStatement:\n  Effect: Allow\n  Action: s3:GetObject\n  Resource: arn:aws:s3:::logs/*\n"}`,
			wantStatus: http.StatusOK,
			wantLevel:  "MINIMAL",
		},
		{
			name:       "missing policy",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "No policy provided",
			wantKind:   "validation",
		},
		{
			name:       "invalid json",
			body:       `{"policy":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid json",
			wantKind:   "validation",
		},
		{
			name:       "structurally invalid policy",
			body:       `{"policy":{"Version":"2012-10-17","Statement":[{"Effect":"Maybe","Action":"*"}]}}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Effect must be Allow or Deny",
			wantKind:   "validation",
		},
		{
			name:       "body too large",
			body:       `{"policy":"` + strings.Repeat("a", 5000) + `"}`,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantKind:   "validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, newTestServer(nil).Router(), http.MethodPost, "/analyze-policy", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantLevel != "" {
				assert.Equal(t, true, body["success"])
				analysis := body["risk_analysis"].(map[string]interface{})
				assert.Equal(t, tt.wantLevel, analysis["risk_level"])
				assert.NotNil(t, analysis["issues"])
				assert.NotNil(t, analysis["recommendations"])
				return
			}
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantKind, body["kind"])
			if tt.wantError != "" {
				assert.Contains(t, body["error"], tt.wantError)
			}
		})
	}
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGeneratePolicy(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(*MockGenerator)
		wantStatus int
		wantKind   string
	}{
		{
			name: "success",
			body: `{"prompt":"Allow read-only access to S3 bucket customer-logs"}`,
			setup: func(g *MockGenerator) {
				g.On("GeneratePolicy", mock.Anything, "Allow read-only access to S3 bucket customer-logs").Return(readOnlyDoc(), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing prompt",
			body:       `{"prompt":"  "}`,
			setup:      func(g *MockGenerator) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   "validation",
		},
		{
			name: "generation fails",
			body: `{"prompt":"anything"}`,
			setup: func(g *MockGenerator) {
				g.On("GeneratePolicy", mock.Anything, "anything").Return(types.PolicyDocument{},
					errs.Wrap(errs.KindGeneration, "generator.GeneratePolicy", "failed to generate policy", errors.New("rate limited")))
			},
			wantStatus: http.StatusBadGateway,
			wantKind:   "generation",
		},
		{
			name: "generated policy is invalid",
			body: `{"prompt":"anything"}`,
			setup: func(g *MockGenerator) {
				g.On("GeneratePolicy", mock.Anything, "anything").Return(types.PolicyDocument{},
					errs.Validation("policy.Parse", "missing required field Statement"))
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   "validation",
		},
		{
			name: "unexpected failure",
			body: `{"prompt":"anything"}`,
			setup: func(g *MockGenerator) {
				g.On("GeneratePolicy", mock.Anything, "anything").Return(types.PolicyDocument{}, errors.New("boom"))
			},
			wantStatus: http.StatusInternalServerError,
			wantKind:   "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &MockGenerator{}
			tt.setup(gen)

			rec, body := do(t, newTestServer(gen).Router(), http.MethodPost, "/generate-policy", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, true, body["success"])
				assert.Equal(t, "2012-10-17", body["policy"].(map[string]interface{})["Version"])
				assert.Equal(t, "MINIMAL", body["risk_analysis"].(map[string]interface{})["risk_level"])
			} else {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, tt.wantKind, body["kind"])
			}
			gen.AssertExpectations(t)
		})
	}
}

func TestExplainPolicy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		gen := &MockGenerator{}
		gen.On("ExplainPolicy", mock.Anything, mock.MatchedBy(func(doc types.PolicyDocument) bool {
			return doc.Version == "2012-10-17" && len(doc.Statement) == 1
		})).Return("Grants every action on every resource.", nil)

		rec, body := do(t, newTestServer(gen).Router(), http.MethodPost, "/explain-policy", `{"policy":`+adminPolicyJSON+`}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Grants every action on every resource.", body["explanation"])
		assert.Equal(t, true, body["success"])
		gen.AssertExpectations(t)
	})

	t.Run("missing policy", func(t *testing.T) {
		rec, body := do(t, newTestServer(&MockGenerator{}).Router(), http.MethodPost, "/explain-policy", `{"policy":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No policy provided", body["error"])
	})

	t.Run("explanation fails", func(t *testing.T) {
		gen := &MockGenerator{}
		gen.On("ExplainPolicy", mock.Anything, mock.Anything).Return("",
			errs.Wrap(errs.KindExplanation, "generator.ExplainPolicy", "failed to explain policy", errors.New("timeout")))

		rec, body := do(t, newTestServer(gen).Router(), http.MethodPost, "/explain-policy", `{"policy":`+adminPolicyJSON+`}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "explanation", body["kind"])
	})

	t.Run("generator not configured", func(t *testing.T) {
		rec, body := do(t, newTestServer(nil).Router(), http.MethodPost, "/explain-policy", `{"policy":`+adminPolicyJSON+`}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, body["error"], "OPENAI_API_KEY")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(nil).Router()
	do(t, h, http.MethodPost, "/analyze-policy", `{"policy":`+adminPolicyJSON+`}`)

	rec, _ := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `iamrisk_analyses_total{level="HIGH"} 1`)
	assert.Contains(t, out, `iamrisk_http_requests_total{code="200",route="/analyze-policy"} 1`)
}

func TestRecoverer(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("unexpected")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&body))
	assert.Equal(t, "internal error", body["error"])
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestServer(nil).ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	assert.NoError(t, <-done)
}
