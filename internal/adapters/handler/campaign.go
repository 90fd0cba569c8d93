package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"walkmate-bot/internal/core/domain"
	"walkmate-bot/internal/core/ports"
)

// ShipmentTemplate is the approved template used by /send-shipment
const ShipmentTemplate = "shipment_details"

// CampaignResponse is the answer of the operator send triggers
type CampaignResponse struct {
	OK     bool        `json:"ok"`
	Status int         `json:"status,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// CampaignHandler exposes operator-triggered sends guarded by a shared api_key
type CampaignHandler struct {
	gateway     ports.MessageGateway
	apiKey      string
	defaultLang string
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(gateway ports.MessageGateway, apiKey, defaultLang string) *CampaignHandler {
	if defaultLang == "" {
		defaultLang = "en_US"
	}
	return &CampaignHandler{
		gateway:     gateway,
		apiKey:      apiKey,
		defaultLang: defaultLang,
	}
}

// SendText handles GET /send-whatsapp?api_key&to&text (inside the 24h window)
func (h *CampaignHandler) SendText(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusForbidden, CampaignResponse{Error: "Unauthorized"})
		return
	}

	q := r.URL.Query()
	to := NormalizeRecipient(q.Get("to"))
	text := strings.TrimSpace(q.Get("text"))
	if to == "" || text == "" {
		writeJSON(w, http.StatusBadRequest, CampaignResponse{Error: "Missing 'to' or 'text' query param"})
		return
	}

	result, err := h.gateway.SendText(r.Context(), to, text)
	h.respond(w, "text", to, result, err)
}

// SendTemplate handles GET /send-template?api_key&to&name&lang&policy&vars
func (h *CampaignHandler) SendTemplate(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusForbidden, CampaignResponse{Error: "Unauthorized"})
		return
	}

	q := r.URL.Query()
	to := NormalizeRecipient(q.Get("to"))
	name := strings.TrimSpace(q.Get("name"))
	if to == "" || name == "" {
		writeJSON(w, http.StatusBadRequest, CampaignResponse{Error: "Missing 'to' or 'name' query param"})
		return
	}

	tmpl := domain.Template{
		Name:           name,
		LanguageCode:   firstNonEmpty(strings.TrimSpace(q.Get("lang")), h.defaultLang),
		LanguagePolicy: firstNonEmpty(strings.TrimSpace(q.Get("policy")), "deterministic"),
		BodyParams:     SplitVars(q.Get("vars")),
	}

	result, err := h.gateway.SendTemplate(r.Context(), to, tmpl)
	h.respond(w, "template:"+name, to, result, err)
}

// SendShipment handles GET /send-shipment with the five shipment_details variables
func (h *CampaignHandler) SendShipment(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusForbidden, CampaignResponse{Error: "Unauthorized"})
		return
	}

	q := r.URL.Query()
	to := NormalizeRecipient(q.Get("to"))
	fields := []string{"order_id", "cases", "vehicle", "driver_name", "driver_contact"}
	params := make([]string, 0, len(fields))
	var missing []string
	for _, f := range fields {
		v := strings.TrimSpace(q.Get(f))
		if v == "" {
			missing = append(missing, f)
		}
		params = append(params, v)
	}
	if to == "" {
		missing = append([]string{"to"}, missing...)
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, CampaignResponse{Error: "Missing query params: " + strings.Join(missing, ", ")})
		return
	}

	tmpl := domain.Template{
		Name:           ShipmentTemplate,
		LanguageCode:   "en_US",
		LanguagePolicy: "deterministic",
		BodyParams:     params,
	}

	result, err := h.gateway.SendTemplate(r.Context(), to, tmpl)
	h.respond(w, "template:"+ShipmentTemplate, to, result, err)
}

func (h *CampaignHandler) authorized(r *http.Request) bool {
	if h.apiKey == "" {
		return false
	}
	got := r.URL.Query().Get("api_key")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) == 1
}

// respond mirrors the provider answer: {ok, status, data}
func (h *CampaignHandler) respond(w http.ResponseWriter, kind, to string, result *domain.SendResult, err error) {
	if result == nil {
		slog.Error("Campaign send failed",
			"error", err,
			"type", kind,
			"to", to,
		)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNetwork) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, CampaignResponse{Error: err.Error()})
		return
	}

	slog.Info("Campaign send completed",
		"type", kind,
		"to", to,
		"status_code", result.StatusCode,
		"message_id", result.MessageID,
	)

	var data interface{}
	if jsonErr := json.Unmarshal(result.Body, &data); jsonErr != nil {
		data = map[string]string{"raw": string(result.Body)}
	}

	writeJSON(w, result.StatusCode, CampaignResponse{
		OK:     result.OK(),
		Status: result.StatusCode,
		Data:   data,
	})
}

// NormalizeRecipient strips spaces and a leading '+' from a phone number
func NormalizeRecipient(to string) string {
	return strings.ReplaceAll(strings.TrimSpace(to), "+", "")
}

// SplitVars turns "a, b,,c" into ["a","b","c"]
func SplitVars(csv string) []string {
	var out []string
	for _, v := range strings.Split(csv, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
