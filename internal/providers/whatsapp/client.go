package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"campaigns/internal/domain"
)

// Client sends template messages through the WhatsApp Cloud API. One send
// operation; retries, if any, are the caller's concern.
type Client struct {
	AccessToken string
	HTTP        *http.Client

	BaseURL    string
	APIVersion string
}

type SendRequest struct {
	PhoneNumberID string
	To            string
	TemplateName  string
	Language      string
	// Variables are the resolved body parameters in template position order.
	Variables []string
}

type SendResponse struct {
	MessageID string
	Status    int
	Raw       []byte
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type apiResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (c *Client) SendTemplate(ctx context.Context, req SendRequest) (SendResponse, error) {
	params := make([]map[string]string, 0, len(req.Variables))
	for _, v := range req.Variables {
		params = append(params, map[string]string{"type": "text", "text": v})
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                req.To,
		"type":              "template",
		"template": map[string]any{
			"name":     req.TemplateName,
			"language": map[string]string{"code": req.Language},
			"components": []map[string]any{
				{"type": "body", "parameters": params},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResponse{}, err
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	version := c.APIVersion
	if version == "" {
		version = "v19.0"
	}
	endpoint := fmt.Sprintf("%s/%s/%s/messages", baseURL, version, req.PhoneNumberID)

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return SendResponse{}, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	out := SendResponse{Status: resp.StatusCode, Raw: raw}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Error.Message != "" {
			return out, &domain.SendError{
				Provider: "whatsapp",
				Code:     strconv.Itoa(apiErr.Error.Code),
				Message:  apiErr.Error.Message,
			}
		}
		return out, errors.New("whatsapp send failed")
	}

	var ok apiResponse
	_ = json.Unmarshal(raw, &ok)
	if len(ok.Messages) > 0 {
		out.MessageID = ok.Messages[0].ID
	}
	return out, nil
}
