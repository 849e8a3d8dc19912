// Copyright 2025 QueryGate
// SPDX-License-Identifier: Apache-2.0
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sandbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"querygate/platform/shared/logger"
	"querygate/platform/shared/types"
)

// APIHandlers exposes the sandbox pipeline over HTTP. Every endpoint
// requires a bearer token; the agent identity comes from its claims,
// never from the request body, so an agent cannot submit on behalf of
// another.
type APIHandlers struct {
	service   *Service
	jwtSecret []byte
	defaults  SubmitOptions
	log       *logger.Logger
}

// NewAPIHandlers creates the handler set.
func NewAPIHandlers(service *Service, jwtSecret []byte) *APIHandlers {
	return &APIHandlers{
		service:   service,
		jwtSecret: jwtSecret,
		log:       logger.New("api"),
	}
}

// SetDefaults applies deployment-wide submission defaults. A request
// body can still select a mode or enable templates explicitly.
func (h *APIHandlers) SetDefaults(defaults SubmitOptions) {
	h.defaults = defaults
}

// Register mounts all sandbox routes on the router.
func (h *APIHandlers) Register(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/prompts", h.submitPrompt).Methods("POST")
	api.HandleFunc("/requests", h.listRequests).Methods("GET")
	api.HandleFunc("/requests/{id}", h.getRequest).Methods("GET")
	api.HandleFunc("/requests/{id}/decision", h.decideApproval).Methods("POST")
	api.HandleFunc("/requests/{id}/execute", h.executeRequest).Methods("POST")
	api.HandleFunc("/approvals", h.listApprovals).Methods("GET")
}

// identity is the authenticated caller extracted from JWT claims.
type identity struct {
	AgentID string
	UserID  string
	Role    string
}

func (h *APIHandlers) authenticate(r *http.Request) (*identity, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, errors.New("missing bearer token")
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	id := &identity{
		AgentID: getClaimString(claims, "agent_id"),
		UserID:  getClaimString(claims, "user_id"),
		Role:    getClaimString(claims, "role"),
	}
	if id.AgentID == "" {
		return nil, errors.New("token has no agent_id claim")
	}
	return id, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

type submitPromptRequest struct {
	Prompt       string `json:"prompt"`
	SessionID    string `json:"session_id,omitempty"`
	AutoApprove  bool   `json:"auto_approve"`
	UseTemplates bool   `json:"use_templates"`
	Mode         string `json:"sandbox_mode,omitempty"`
}

func (h *APIHandlers) submitPrompt(w http.ResponseWriter, r *http.Request) {
	id, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var body submitPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	opts := SubmitOptions{
		AutoApprove:  body.AutoApprove,
		UseTemplates: body.UseTemplates || h.defaults.UseTemplates,
		Mode:         types.SandboxMode(body.Mode),
	}
	if opts.Mode == "" {
		opts.Mode = h.defaults.Mode
	}

	result, err := h.service.SubmitPrompt(r.Context(), id.AgentID, id.UserID, body.SessionID, body.Prompt, opts)
	if err != nil {
		h.log.Error(id.AgentID, "", "Submit failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "submission failed")
		return
	}

	status := http.StatusOK
	if !result.Success && result.Status == types.StatusRejected {
		status = http.StatusForbidden
	}
	writeJSON(w, status, result)
}

type decisionRequest struct {
	Approved        bool   `json:"approved"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

func (h *APIHandlers) decideApproval(w http.ResponseWriter, r *http.Request) {
	id, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if id.Role != "approver" && id.Role != "admin" {
		writeError(w, http.StatusForbidden, "approval requires the approver role")
		return
	}

	var body decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	requestID := mux.Vars(r)["id"]
	req, err := h.service.DecideApproval(r.Context(), requestID, body.Approved, id.UserID, body.RejectionReason)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "request not found")
		case errors.Is(err, ErrNotPending):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.log.Error(id.AgentID, requestID, "Decision failed", map[string]interface{}{"error": err.Error()})
			writeError(w, http.StatusInternalServerError, "decision failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *APIHandlers) executeRequest(w http.ResponseWriter, r *http.Request) {
	id, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	requestID := mux.Vars(r)["id"]
	req, err := h.service.GetRequest(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	// Agents execute only their own requests; approvers and admins any.
	if req.AgentID != id.AgentID && id.Role != "approver" && id.Role != "admin" {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}

	result, err := h.service.Execute(r.Context(), requestID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "request not found")
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (h *APIHandlers) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	requestID := mux.Vars(r)["id"]
	req, err := h.service.GetRequest(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	// Agents only see their own requests; approvers and admins see all.
	if req.AgentID != id.AgentID && id.Role != "approver" && id.Role != "admin" {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *APIHandlers) listRequests(w http.ResponseWriter, r *http.Request) {
	id, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	filter := RequestFilter{
		AgentID: id.AgentID,
		Status:  types.RequestStatus(r.URL.Query().Get("status")),
		Limit:   parseLimit(r.URL.Query().Get("limit")),
	}
	if id.Role == "approver" || id.Role == "admin" {
		filter.AgentID = r.URL.Query().Get("agent_id")
	}

	requests, err := h.service.ListRequests(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}

func (h *APIHandlers) listApprovals(w http.ResponseWriter, r *http.Request) {
	id, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if id.Role != "approver" && id.Role != "admin" {
		writeError(w, http.StatusForbidden, "listing approvals requires the approver role")
		return
	}

	pending, err := h.service.PendingApprovals(r.Context(), parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"approvals": pending,
		"count":     len(pending),
	})
}

func parseLimit(raw string) int {
	if raw == "" {
		return 50
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 50
	}
	if n > 500 {
		return 500
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
