// internal/controller/settings_controller.go
package controller

import (
	"net/http"

	"github.com/unclebandit/outreach-backend/internal/ai"
)

// KeyLister reports the configured Gemini keys without their secrets.
type KeyLister interface {
	KeyStatus() []ai.KeyStatus
}

var _ KeyLister = (*ai.Client)(nil)

type SettingsController struct {
	Keys KeyLister
}

// ListAPIKeys returns the masked key list in rotation order.
func (c *SettingsController) ListAPIKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.Keys.KeyStatus())
}
