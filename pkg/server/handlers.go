package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/berkguzel/iamrisk/pkg/errs"
	"github.com/berkguzel/iamrisk/pkg/metrics"
	"github.com/berkguzel/iamrisk/pkg/policy"
	"github.com/berkguzel/iamrisk/pkg/types"
)

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type policyRequest struct {
	// Policy is either a policy object or a string holding one.
	Policy json.RawMessage `json:"policy"`
	// PolicyARN names a managed policy to fetch when Policy is absent.
	PolicyARN string `json:"policy_arn"`
}

type generateResponse struct {
	Policy       types.PolicyDocument `json:"policy"`
	RiskAnalysis types.RiskReport     `json:"risk_analysis"`
	Success      bool                 `json:"success"`
}

type explainResponse struct {
	Explanation string `json:"explanation"`
	Success     bool   `json:"success"`
}

type analyzeResponse struct {
	RiskAnalysis types.RiskReport `json:"risk_analysis"`
	Success      bool             `json:"success"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Success bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind errs.Kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind.String(), Success: false})
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindGeneration, errs.KindExplanation, errs.KindFetch:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s request_id=%s: %v", r.Method, r.URL.Path, RequestIDFromContext(r.Context()), err)
	}
	writeError(w, status, kind, err.Error())
}

// decode reads a JSON body, answering 400 on malformed input and 413 when the
// body exceeds the size limit.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errs.KindValidation, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, errs.KindValidation, "invalid json")
		return false
	}
	return true
}

// policyFromRequest accepts the policy as an embedded object or as a JSON
// (or YAML) string.
func policyFromRequest(raw json.RawMessage) (types.PolicyDocument, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return types.PolicyDocument{}, false, nil
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return types.PolicyDocument{}, true, errs.Wrap(errs.KindValidation, "server.policy", "policy is not a valid string", err)
		}
		if strings.TrimSpace(text) == "" {
			return types.PolicyDocument{}, false, nil
		}
		trimmed = []byte(text)
	}

	doc, err := policy.Parse(trimmed)
	return doc, true, err
}

// resolvePolicy returns the inline policy of req, or fetches the managed
// policy it names. It writes the error response itself and reports false.
func (s *Server) resolvePolicy(w http.ResponseWriter, r *http.Request, req policyRequest) (types.PolicyDocument, bool) {
	doc, ok, err := policyFromRequest(req.Policy)
	if ok {
		if err != nil {
			s.fail(w, r, err)
			return types.PolicyDocument{}, false
		}
		return doc, true
	}

	arn := strings.TrimSpace(req.PolicyARN)
	if arn == "" {
		writeError(w, http.StatusBadRequest, errs.KindValidation, "No policy provided")
		return types.PolicyDocument{}, false
	}
	if s.policies == nil {
		writeError(w, http.StatusServiceUnavailable, errs.KindUnknown, "policy lookup is not configured: AWS credentials are unavailable")
		return types.PolicyDocument{}, false
	}

	doc, err = s.policies.GetPolicyDocument(r.Context(), arn)
	if err != nil {
		s.fail(w, r, err)
		return types.PolicyDocument{}, false
	}
	return doc, true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) generatorAvailable(w http.ResponseWriter) bool {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, errs.KindUnknown, "policy generation is not configured: OPENAI_API_KEY is not set")
		return false
	}
	return true
}

func (s *Server) generatePolicy(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, errs.KindValidation, "No prompt provided")
		return
	}
	if !s.generatorAvailable(w) {
		return
	}

	doc, err := s.generator.GeneratePolicy(r.Context(), req.Prompt)
	s.metrics.ObserveGenerator(metrics.OperationGenerate, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	report := s.scorer.Analyze(doc)
	s.metrics.ObserveReport(report)
	writeJSON(w, http.StatusOK, generateResponse{Policy: doc, RiskAnalysis: report, Success: true})
}

func (s *Server) explainPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if !decode(w, r, &req) {
		return
	}
	doc, ok := s.resolvePolicy(w, r, req)
	if !ok {
		return
	}
	if !s.generatorAvailable(w) {
		return
	}

	explanation, err := s.generator.ExplainPolicy(r.Context(), doc)
	s.metrics.ObserveGenerator(metrics.OperationExplain, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, explainResponse{Explanation: explanation, Success: true})
}

func (s *Server) analyzePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if !decode(w, r, &req) {
		return
	}
	doc, ok := s.resolvePolicy(w, r, req)
	if !ok {
		return
	}

	report := s.scorer.Analyze(doc)
	s.metrics.ObserveReport(report)
	writeJSON(w, http.StatusOK, analyzeResponse{RiskAnalysis: report, Success: true})
}
