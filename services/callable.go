package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"firewatch/models"
	"firewatch/store"
)

// TokenVerifier resolves an ID token to a user id.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (string, error)
}

// CallableServer exposes the registerOfflineDevice endpoint. Errors use the
// callable convention: {"error":{"status","message"}}.
type CallableServer struct {
	verifier TokenVerifier
	notifs   store.NotificationStore
	logger   *zap.Logger
	clock    func() time.Time
}

func NewCallableServer(verifier TokenVerifier, notifs store.NotificationStore, logger *zap.Logger) *CallableServer {
	return &CallableServer{
		verifier: verifier,
		notifs:   notifs,
		logger:   logger,
		clock:    time.Now,
	}
}

type registerOfflineRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

func (s *CallableServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/registerOfflineDevice", s.handleRegisterOfflineDevice)
	return mux
}

func (s *CallableServer) handleRegisterOfflineDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeCallableError(w, http.StatusMethodNotAllowed, "INVALID_ARGUMENT", "POST required")
		return
	}

	idToken := bearerToken(r)
	if idToken == "" {
		writeCallableError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Must be authenticated")
		return
	}
	userID, err := s.verifier.VerifyIDToken(r.Context(), idToken)
	if err != nil {
		s.logger.Warn("ID token rejected", zap.Error(err))
		writeCallableError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Must be authenticated")
		return
	}

	var req registerOfflineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCallableError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	if req.DeviceID == "" {
		writeCallableError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "deviceId required")
		return
	}

	deviceName := req.DeviceName
	if deviceName == "" {
		deviceName = req.DeviceID
	}
	notification := models.Notification{
		UserID:     userID,
		DeviceID:   req.DeviceID,
		DeviceName: deviceName,
		Type:       models.NotificationTypeOffline,
		Title:      "Device Registered (Offline)",
		Message:    "Device added without live data. Awaiting first signal.",
		CreatedAt:  s.clock(),
		Read:       false,
	}
	if err := s.notifs.Create(r.Context(), notification); err != nil {
		s.logger.Error("Failed to create offline notification",
			zap.String("device_id", req.DeviceID),
			zap.String("user_id", userID),
			zap.Error(err))
		writeCallableError(w, http.StatusInternalServerError, "INTERNAL", "failed to create notification")
		return
	}

	s.logger.Info("Offline device registered",
		zap.String("device_id", req.DeviceID),
		zap.String("user_id", userID))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func writeCallableError(w http.ResponseWriter, code int, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"status":  status,
			"message": message,
		},
	})
}

// Run serves the callable endpoint until the context is cancelled.
func (s *CallableServer) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Callable endpoint listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
