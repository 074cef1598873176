package api

import (
	"encoding/json"
	"net/http"

	"CollectLedger/api/constants"
	"CollectLedger/internal/logger"
)

// Error response helper
func RespondWithError(w http.ResponseWriter, status int, errMsg string) {
	logger.Log().WithField("status", status).Warn("[ERROR] " + errMsg)
	w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errMsg,
	})
}

// RespondWithResult sends {success} or {success:false, error}
func RespondWithResult(w http.ResponseWriter, success bool, errMsg string) {
	w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
	if success {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
		return
	}
	LogError("RespondWithResult %s", errMsg)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": errMsg})
}

// RespondWithPayload writes the success envelope with a message and a data payload.
func RespondWithPayload(w http.ResponseWriter, status int, message string, payload interface{}) {
	w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
	w.WriteHeader(status)
	resp := map[string]interface{}{"success": true}
	if message != "" {
		resp["message"] = message
	}
	if payload != nil {
		resp["data"] = payload
	}
	json.NewEncoder(w).Encode(resp)
}

// LogInfo logs an informational message (wrapper for consistent logging)
func LogInfo(msg string, args ...interface{}) {
	if len(args) > 0 {
		logger.Log().Infof("[INFO] "+msg, args...)
	} else {
		logger.Log().Info("[INFO] " + msg)
	}
}

// LogError logs an error message (wrapper for consistent logging)
func LogError(msg string, args ...interface{}) {
	if len(args) > 0 {
		logger.Log().Errorf("[ERROR] "+msg, args...)
	} else {
		logger.Log().Error("[ERROR] " + msg)
	}
}
