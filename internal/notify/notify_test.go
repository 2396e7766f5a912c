package notify

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpatel-quant/fnopipeline/internal/config"
)

func TestNewSendGridFallsBackToNoop(t *testing.T) {
	logger := log.New(io.Discard, "", 0)

	tests := []struct {
		name string
		cfg  config.EmailConfig
	}{
		{"disabled", config.EmailConfig{Enabled: false}},
		{"no key", config.EmailConfig{Enabled: true, FromEmail: "ops@example.com", Recipients: []string{"a@example.com"}}},
		{"no recipients", config.EmailConfig{Enabled: true, APIKey: "SG.x", FromEmail: "ops@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewSendGrid(tt.cfg, logger)
			_, isNoop := n.(Noop)
			assert.True(t, isNoop)
			assert.NoError(t, n.Send("subject", "body", nil))
		})
	}
}

func TestNewSendGridWithFullConfig(t *testing.T) {
	cfg := config.EmailConfig{
		Enabled:    true,
		APIKey:     "SG.test-key",
		FromEmail:  "ops@example.com",
		FromName:   "Pipeline",
		Recipients: []string{"desk@example.com", "risk@example.com"},
	}
	n := NewSendGrid(cfg, log.New(io.Discard, "", 0))

	sg, ok := n.(*SendGridNotifier)
	require.True(t, ok)
	assert.Equal(t, "SG.test-key", sg.apiKey)
	assert.Len(t, sg.recipients, 2)
}

func TestBuildAttachmentTypes(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("out/AURIGIN_1_parsed_trades.csv"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", contentType("EXPIRY_DELIVERY_20250626.xlsx"))
	assert.Equal(t, "text/plain", contentType("summary.txt"))
	assert.Equal(t, "application/octet-stream", contentType("blob.bin"))

	_, err := buildAttachment("/nonexistent/file.csv")
	assert.Error(t, err)
}
