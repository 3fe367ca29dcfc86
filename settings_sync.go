package poe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
	"go.uber.org/zap"
)

// SettingsSyncer pushes a bot's current SettingsResponse to Poe's platform
// so the platform's cached view of the bot's capabilities stays current
// (C9, spec.md §4.9).
type SettingsSyncer struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewSettingsSyncer builds a SettingsSyncer against the platform's
// settings-sync endpoint.
func NewSettingsSyncer(baseURL string, logger *zap.Logger) *SettingsSyncer {
	return &SettingsSyncer{
		BaseURL:    baseURL,
		HTTPClient: http.DefaultClient,
		Logger:     logger,
	}
}

// Sync calls handler once for its current settings and POSTs them to
// …/bot/update_settings/{name}/{key}/{version}. Call this at boot, and
// again whenever a hosted bot's declared settings change (see
// cmd/poeserver's manifest watch, SPEC_FULL.md's C9 expansion). A bot with
// no name or access key is skipped with a warning rather than failing boot.
func (s *SettingsSyncer) Sync(ctx context.Context, botName, accessKey string, handler Handler) error {
	if botName == "" || accessKey == "" {
		s.Logger.Warn("skipping settings sync: bot lacks a name or access key")
		return nil
	}

	resp, err := handler.GetSettings(ctx, SettingsRequest{Version: ProtocolVersion, Type: "settings"})
	if err != nil {
		return perrors.WrapBotCallError(botName, err)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return perrors.NewInvalidParameter("failed to marshal settings response")
	}

	url := fmt.Sprintf("%s/bot/update_settings/%s/%s/%s", s.BaseURL, botName, accessKey, ProtocolVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return perrors.NewBotError("failed to build settings sync request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := s.HTTPClient.Do(httpReq)
	if err != nil {
		return perrors.NewBotError(fmt.Sprintf("error syncing settings for bot %s", botName), err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return perrors.NewBotError(fmt.Sprintf("settings sync for bot %s returned status %d", botName, httpResp.StatusCode), nil)
	}

	s.Logger.Info("settings synced", zap.String("bot", botName))
	return nil
}

// Fetch calls …/bot/fetch_settings/{name}/{key}/{version} with no body, for
// callers that want to read the platform's currently cached settings for a
// bot rather than push a local SettingsResponse.
func (s *SettingsSyncer) Fetch(ctx context.Context, botName, accessKey string) (SettingsResponse, error) {
	url := fmt.Sprintf("%s/bot/fetch_settings/%s/%s/%s", s.BaseURL, botName, accessKey, ProtocolVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return SettingsResponse{}, perrors.NewBotError("failed to build settings fetch request", err)
	}

	httpResp, err := s.HTTPClient.Do(httpReq)
	if err != nil {
		return SettingsResponse{}, perrors.NewBotError(fmt.Sprintf("error fetching settings for bot %s", botName), err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return SettingsResponse{}, perrors.NewBotError(fmt.Sprintf("settings fetch for bot %s returned status %d", botName, httpResp.StatusCode), nil)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return SettingsResponse{}, perrors.NewBotError(fmt.Sprintf("error reading settings fetch response for bot %s", botName), err)
	}
	return DecodeSettingsResponse(body)
}
