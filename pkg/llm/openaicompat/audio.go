package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/parley-llm/parley/pkg/chat"
	"github.com/parley-llm/parley/pkg/llm"
)

// DefaultVoice is used for speech synthesis when the caller does not pick
// one via Options.Extra["voice"].
const DefaultVoice = "alloy"

// Transcribe converts audio to text via /v1/audio/transcriptions. The
// audio bytes are sent as a multipart file upload alongside the model
// name, matching the OpenAI transcription endpoint.
func (c *Client) Transcribe(ctx context.Context, audio []byte, req *llm.Request) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", chat.NewBackendError("failed to build transcription request: "+err.Error(), "")
	}
	if _, err := fw.Write(audio); err != nil {
		return "", chat.NewBackendError("failed to build transcription request: "+err.Error(), "")
	}
	if err := mw.WriteField("model", req.Model); err != nil {
		return "", chat.NewBackendError("failed to build transcription request: "+err.Error(), "")
	}
	if err := mw.Close(); err != nil {
		return "", chat.NewBackendError("failed to build transcription request: "+err.Error(), "")
	}

	url := c.baseURL + "/v1/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", chat.NewBackendError("failed to create HTTP request: "+err.Error(), "")
	}

	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return "", MapHTTPError(httpResp)
	}

	var tr TranscriptionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&tr); err != nil {
		return "", chat.NewBackendError("failed to parse transcription response: "+err.Error(), "")
	}

	return tr.Text, nil
}

// speechRequest is the JSON body for /v1/audio/speech.
type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

// Speech synthesizes audio from text via /v1/audio/speech and returns the
// raw audio bytes. The voice can be selected through Options.Extra["voice"].
func (c *Client) Speech(ctx context.Context, text string, req *llm.Request) ([]byte, error) {
	voice := DefaultVoice
	if v, ok := req.Extra["voice"].(string); ok && v != "" {
		voice = v
	}

	body, err := json.Marshal(speechRequest{
		Model: req.Model,
		Input: text,
		Voice: voice,
	})
	if err != nil {
		return nil, chat.NewBackendError("failed to marshal speech request: "+err.Error(), "")
	}

	url := c.baseURL + "/v1/audio/speech"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, chat.NewBackendError("failed to create HTTP request: "+err.Error(), "")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	audio, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, chat.NewBackendError("failed to read speech response: "+err.Error(), "")
	}

	return audio, nil
}
