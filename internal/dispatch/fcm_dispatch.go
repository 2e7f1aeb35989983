package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 64 << 10

// FCMClient posts messages to the FCM HTTP v1 send endpoint using a
// bearer access token.
type FCMClient struct {
	Endpoint    string
	AccessToken string
	Client      *http.Client
}

func NewFCMClient(endpoint, accessToken string) *FCMClient {
	return &FCMClient{Endpoint: endpoint, AccessToken: accessToken, Client: &http.Client{Timeout: 3 * time.Second}}
}

// FCMEndpoint returns the v1 send URL for a Firebase project.
func FCMEndpoint(projectID string) string {
	return fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", projectID)
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      fcmAndroid        `json:"android"`
	APNS         fcmAPNS           `json:"apns"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority     string `json:"priority"`
	Notification struct {
		ChannelID string `json:"channel_id"`
	} `json:"notification"`
}

type fcmAPNS struct {
	Payload struct {
		APS struct {
			Category string `json:"category"`
			Sound    string `json:"sound"`
		} `json:"aps"`
	} `json:"payload"`
}

type fcmErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

func (f *FCMClient) Send(ctx context.Context, msg Message) error {
	var body fcmRequest
	body.Message = fcmMessage{
		Token:        msg.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}
	body.Message.Android.Priority = "high"
	body.Message.Android.Notification.ChannelID = msg.Channel
	body.Message.APNS.Payload.APS.Category = msg.Channel
	body.Message.APNS.Payload.APS.Sound = "default"

	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("fcm: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoint, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("fcm: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.AccessToken)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fcm: send: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return classifyFCMError(resp.StatusCode, raw)
}

func classifyFCMError(status int, raw []byte) error {
	var eb fcmErrorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return fmt.Errorf("fcm: status %d", status)
	}
	code := ""
	for _, d := range eb.Error.Details {
		if d.ErrorCode != "" {
			code = d.ErrorCode
			break
		}
	}
	switch {
	case code == "UNREGISTERED":
		return fmt.Errorf("%w: %s", ErrTokenUnregistered, eb.Error.Message)
	case code == "INVALID_ARGUMENT" && strings.Contains(strings.ToLower(eb.Error.Message), "registration token"):
		return fmt.Errorf("%w: %s", ErrTokenInvalid, eb.Error.Message)
	}
	if code == "" {
		code = eb.Error.Status
	}
	return fmt.Errorf("fcm: status %d %s: %s", status, code, eb.Error.Message)
}
