package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/audio-transcribe/backend/internal/pipeline"
)

// settingsKeys defines which keys are allowed and their display metadata
var settingsKeys = []SettingDef{
	{Key: pipeline.SettingDefaultLanguage, Label: "Default Language", Group: "transcription", Placeholder: "ru"},
	{Key: pipeline.SettingDefaultEngine, Label: "Default Engine", Group: "transcription", Placeholder: "whisper.cpp"},
}

type SettingDef struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Group       string `json:"group"`
	Placeholder string `json:"placeholder"`
}

// SettingsStore persists runtime settings.
type SettingsStore interface {
	GetAllSettings() (map[string]string, error)
	SetSetting(key, value string) error
	DeleteSetting(key string) error
}

// EngineLister reports the registered engine names.
type EngineLister interface {
	Engines() []string
	Language(lang string) string
	DefaultEngine() string
}

type SettingsHandler struct {
	store   SettingsStore
	engines EngineLister
}

func NewSettingsHandler(store SettingsStore, engines EngineLister) *SettingsHandler {
	return &SettingsHandler{store: store, engines: engines}
}

type settingResponse struct {
	SettingDef
	Value     string `json:"value"`
	HasValue  bool   `json:"has_value"`
	Effective string `json:"effective"`
}

// GetSettings returns the runtime settings with their effective values
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.GetAllSettings()
	if err != nil {
		jsonError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}

	result := make([]settingResponse, 0, len(settingsKeys))
	for _, def := range settingsKeys {
		val := all[def.Key]
		effective := h.engines.DefaultEngine()
		if def.Key == pipeline.SettingDefaultLanguage {
			effective = h.engines.Language("")
		}
		result = append(result, settingResponse{
			SettingDef: def,
			Value:      val,
			HasValue:   val != "",
			Effective:  effective,
		})
	}

	jsonResponse(w, map[string]interface{}{
		"settings": result,
		"engines":  h.engines.Engines(),
	}, http.StatusOK)
}

// UpdateSettings saves settings from the request body. An empty value
// clears the setting so the configured default applies again.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Validate everything before writing anything
	allowed := make(map[string]bool)
	for _, def := range settingsKeys {
		allowed[def.Key] = true
	}
	for key, value := range updates {
		if !allowed[key] {
			jsonError(w, "unknown setting: "+key, http.StatusBadRequest)
			return
		}
		if key == pipeline.SettingDefaultEngine && value != "" && !contains(h.engines.Engines(), value) {
			jsonError(w, "unknown engine: "+value, http.StatusBadRequest)
			return
		}
	}

	for key, value := range updates {
		var err error
		if value == "" {
			err = h.store.DeleteSetting(key)
		} else {
			err = h.store.SetSetting(key, value)
		}
		if err != nil {
			jsonError(w, "failed to save setting: "+key, http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
