package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkmate-bot/internal/core/domain"
)

// recordingServer captures the last request body and answers with a fixed response
func recordingServer(t *testing.T, status int, response string) (*httptest.Server, *map[string]interface{}, *http.Header) {
	t.Helper()
	captured := map[string]interface{}{}
	headers := http.Header{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v21.0/PHONE_ID/messages", r.URL.Path)
		for k, v := range r.Header {
			headers[k] = v
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured, &headers
}

func newTestClient(baseURL string) *WhatsAppClient {
	return NewWhatsAppClient(ClientConfig{
		BaseURL:     baseURL,
		APIVersion:  "v21.0",
		PhoneID:     "PHONE_ID",
		AccessToken: "TOKEN",
		Timeout:     2 * time.Second,
	})
}

func TestSendText_Success(t *testing.T) {
	srv, captured, headers := recordingServer(t, http.StatusOK, `{"messages":[{"id":"wamid.OUT1"}]}`)
	client := newTestClient(srv.URL)

	result, err := client.SendText(context.Background(), "919999999999", "hello")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "wamid.OUT1", result.MessageID)
	assert.Equal(t, "Bearer TOKEN", headers.Get("Authorization"))
	assert.Equal(t, "whatsapp", (*captured)["messaging_product"])
	assert.Equal(t, "text", (*captured)["type"])
	assert.Equal(t, map[string]interface{}{"body": "hello"}, (*captured)["text"])
}

func TestSendImage_LinkVersusMediaID(t *testing.T) {
	srv, captured, _ := recordingServer(t, http.StatusOK, `{"messages":[{"id":"wamid.OUT2"}]}`)
	client := newTestClient(srv.URL)

	_, err := client.SendImage(context.Background(), "91", "https://cdn.example.com/2205.jpg", "Black")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"link": "https://cdn.example.com/2205.jpg", "caption": "Black"}, (*captured)["image"])

	_, err = client.SendImage(context.Background(), "91", "1234567890", "Blue")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": "1234567890", "caption": "Blue"}, (*captured)["image"])
}

func TestSendButtons_Payload(t *testing.T) {
	srv, captured, _ := recordingServer(t, http.StatusOK, `{"messages":[{"id":"wamid.OUT3"}]}`)
	client := newTestClient(srv.URL)

	_, err := client.SendButtons(context.Background(), "91", "pick one", []domain.Button{{ID: "option_1", Title: "1"}, {ID: "option_2", Title: "2"}})
	require.NoError(t, err)

	interactive := (*captured)["interactive"].(map[string]interface{})
	assert.Equal(t, "button", interactive["type"])
	buttons := interactive["action"].(map[string]interface{})["buttons"].([]interface{})
	require.Len(t, buttons, 2)
	assert.Equal(t, map[string]interface{}{"type": "reply", "reply": map[string]interface{}{"id": "option_2", "title": "2"}}, buttons[1])
}

func TestSendButtons_RejectsTooMany(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0")
	_, err := client.SendButtons(context.Background(), "91", "x", []domain.Button{{}, {}, {}, {}})
	assert.Error(t, err)
}

func TestSendTemplate_ComponentsAndPolicy(t *testing.T) {
	srv, captured, _ := recordingServer(t, http.StatusOK, `{"messages":[{"id":"wamid.OUT4"}]}`)
	client := newTestClient(srv.URL)

	_, err := client.SendTemplate(context.Background(), "91", domain.Template{
		Name:           "shipment_details",
		LanguageCode:   "en_US",
		LanguagePolicy: "deterministic",
		BodyParams:     []string{"ORD-1", "12"},
	})
	require.NoError(t, err)

	tmpl := (*captured)["template"].(map[string]interface{})
	assert.Equal(t, "shipment_details", tmpl["name"])
	assert.Equal(t, map[string]interface{}{"code": "en_US", "policy": "deterministic"}, tmpl["language"])
	components := tmpl["components"].([]interface{})
	require.Len(t, components, 1)
	body := components[0].(map[string]interface{})
	assert.Equal(t, "body", body["type"])
	assert.Len(t, body["parameters"], 2)
}

func TestSendTemplate_NoParamsOmitsComponents(t *testing.T) {
	srv, captured, _ := recordingServer(t, http.StatusOK, `{}`)
	client := newTestClient(srv.URL)

	_, err := client.SendTemplate(context.Background(), "91", domain.Template{Name: "hello_world", LanguageCode: "en_US"})
	require.NoError(t, err)

	tmpl := (*captured)["template"].(map[string]interface{})
	_, hasComponents := tmpl["components"]
	assert.False(t, hasComponents)
}

func TestSend_ProviderErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		sentinel error
	}{
		{"token expired", 190, domain.ErrTokenExpired},
		{"rate limited", 131056, domain.ErrRateLimited},
		{"window closed", 131047, domain.ErrWindowClosed},
		{"template mismatch", 132000, domain.ErrTemplateMismatch},
		{"invalid recipient", 131026, domain.ErrRecipientInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]interface{}{
				"error": map[string]interface{}{
					"message":    "rejected",
					"code":       tt.code,
					"error_data": map[string]string{"details": "detail for " + tt.name},
				},
			})
			srv, _, _ := recordingServer(t, http.StatusBadRequest, string(body))
			client := newTestClient(srv.URL)

			result, err := client.SendText(context.Background(), "91", "x")

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel))
			require.NotNil(t, result)
			assert.Equal(t, http.StatusBadRequest, result.StatusCode)

			var perr *domain.ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.code, perr.Code)
			assert.Equal(t, "detail for "+tt.name, perr.Detail())
		})
	}
}

func TestSend_UnparseableErrorBody(t *testing.T) {
	srv, _, _ := recordingServer(t, http.StatusBadGateway, `upstream down`)
	client := newTestClient(srv.URL)

	_, err := client.SendText(context.Background(), "91", "x")

	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 0, perr.Code)
	assert.Equal(t, "upstream down", perr.Detail())
	assert.False(t, errors.Is(err, domain.ErrNetwork))
}

func TestSend_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := newTestClient(url)
	result, err := client.SendText(context.Background(), "91", "x")

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, domain.ErrNetwork))
}

func TestSend_TimeoutIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewWhatsAppClient(ClientConfig{BaseURL: srv.URL, APIVersion: "v21.0", PhoneID: "PHONE_ID", Timeout: 50 * time.Millisecond})
	_, err := client.SendText(context.Background(), "91", "x")

	assert.True(t, errors.Is(err, domain.ErrNetwork))
}

func TestIsMediaURL(t *testing.T) {
	assert.True(t, IsMediaURL("https://x/y.jpg"))
	assert.True(t, IsMediaURL("HTTP://x/y.jpg"))
	assert.False(t, IsMediaURL("1234567890"))
	assert.False(t, IsMediaURL(""))
}
