package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSendEnv(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv("DB_PASS", "test")
	t.Setenv("WHATSAPP_TOKEN", "token-123")
	t.Setenv("WHATSAPP_PHONE_ID", "555")
	t.Setenv("GRAPH_API_BASE_URL", baseURL)
	t.Setenv("GRAPH_API_VERSION", "v21.0")
}

func TestSendTemplateCommand(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/555/messages", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))
		w.Write([]byte(`{"messages":[{"id":"wamid.T1"}]}`))
	}))
	defer srv.Close()
	setSendEnv(t, srv.URL)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"send", "--to", "+919876543210", "template", "--name", "promo", "--vars", "Asha, 20%"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "919876543210", captured["to"])
	tmpl := captured["template"].(map[string]interface{})
	assert.Equal(t, "promo", tmpl["name"])
	assert.Contains(t, out.String(), "wamid.T1")
}

func TestSendTextCommand_ProviderRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Re-engagement message","code":131047}}`))
	}))
	defer srv.Close()
	setSendEnv(t, srv.URL)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"send", "--to", "919876543210", "text", "hello", "there"})
	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, out.String(), "131047")
}
