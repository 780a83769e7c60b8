// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmia-foundation/mmia/lib/netutil"
)

// SpeechConfig configures a SpeechClient.
type SpeechConfig struct {
	// URL is the recognition endpoint root. When empty it is derived
	// from Region.
	URL        string
	Key        string
	Region     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// SpeechClient recognizes audio with a speech-to-text REST service.
type SpeechClient struct {
	endpoint   string
	key        string
	httpClient *http.Client
}

// NewSpeechClient returns a client for config.
func NewSpeechClient(config SpeechConfig) (*SpeechClient, error) {
	endpoint := strings.TrimRight(config.URL, "/")
	if endpoint == "" {
		if config.Region == "" {
			return nil, fmt.Errorf("transcriber: speech URL or region is required")
		}
		endpoint = fmt.Sprintf("https://%s.stt.speech.microsoft.com", config.Region)
	}
	if config.Key == "" {
		return nil, fmt.Errorf("transcriber: speech key is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &SpeechClient{
		endpoint:   endpoint + "/speech/recognition/conversation/cognitiveservices/v1",
		key:        config.Key,
		httpClient: httpClient,
	}, nil
}

type recognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	CombinedPhrases   []struct {
		Text string `json:"text"`
	} `json:"combinedPhrases"`
}

// SpeechError is a rejected recognition request.
type SpeechError struct {
	StatusCode int
	Body       string
}

func (e *SpeechError) Error() string {
	return fmt.Sprintf("transcriber: speech service returned %d", e.StatusCode)
}

// ResponseBody returns the response body for failure logs.
func (e *SpeechError) ResponseBody() string { return e.Body }

// Transcribe implements Backend.
func (c *SpeechClient) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	query := url.Values{"language": {language}, "format": {"simple"}}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?"+query.Encode(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("transcriber: creating request: %w", err)
	}
	request.Header.Set("Content-Type", "audio/mpeg")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("transcriber: recognition request: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", &SpeechError{StatusCode: response.StatusCode, Body: netutil.ErrorBody(response.Body)}
	}

	var result recognitionResponse
	if err := netutil.DecodeResponse(response.Body, &result); err != nil {
		return "", fmt.Errorf("transcriber: decoding recognition: %w", err)
	}
	if len(result.CombinedPhrases) > 0 {
		var text strings.Builder
		for _, phrase := range result.CombinedPhrases {
			text.WriteString(phrase.Text)
		}
		return text.String(), nil
	}
	switch result.RecognitionStatus {
	case "", "Success":
		return result.DisplayText, nil
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return "", nil
	}
	return "", fmt.Errorf("transcriber: recognition status %s", result.RecognitionStatus)
}
