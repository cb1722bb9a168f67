package aihelper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"jersey-hub/app/config"
)

func TestExtractTextJoinsParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{Text: `{"name":"Home`}, {Text: ` Jersey"}`}},
			},
		}},
	}

	text, err := extractText(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Home Jersey"}`, text)
}

func TestExtractTextSafetyBlocked(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}

	_, err := extractText(resp)
	require.ErrorIs(t, err, ErrContentBlocked)
}

func TestExtractTextEmptyResponse(t *testing.T) {
	_, err := extractText(nil)
	require.ErrorIs(t, err, ErrInvalidResponse)

	_, err = extractText(&genai.GenerateContentResponse{})
	require.ErrorIs(t, err, ErrInvalidResponse)

	_, err = extractText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}})
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseCopyResponse(t *testing.T) {
	raw := `{"name":"Maillot Domicile 24/25","description":"<p>...</p>","short_description":"Maillot officiel."}`

	parsed, err := ParseCopyResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Maillot Domicile 24/25", parsed.Name)
	assert.Equal(t, "Maillot officiel.", parsed.ShortDescription)
}

func TestParseCopyResponseStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"name\":\"Home Jersey\",\"description\":\"<p>x</p>\",\"short_description\":\"s\"}\n```"

	parsed, err := ParseCopyResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Home Jersey", parsed.Name)
}

func TestParseCopyResponseInvalid(t *testing.T) {
	_, err := ParseCopyResponse("sorry, I cannot help with that")
	require.ErrorIs(t, err, ErrInvalidResponse)

	_, err = ParseCopyResponse(`{"name":"","description":""}`)
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestImageClientEdit(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req ImageEditRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "remove background", req.Prompt)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(payload)}},
		})
	}))
	defer server.Close()

	c := NewImageClient(config.AIConfig{ImageEndpoint: server.URL, ImageAPIKey: "sk-test"})

	result, err := c.Edit(context.Background(), ImageEditRequest{
		ImageURL: "https://example.com/a.jpg",
		Prompt:   "remove background",
		Model:    "image-edit-1",
	})
	require.NoError(t, err)
	assert.Equal(t, payload, result.Data)
}

func TestImageClientEditError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "prompt rejected"}})
	}))
	defer server.Close()

	c := NewImageClient(config.AIConfig{ImageEndpoint: server.URL})

	_, err := c.Edit(context.Background(), ImageEditRequest{ImageURL: "x", Prompt: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt rejected")
}
