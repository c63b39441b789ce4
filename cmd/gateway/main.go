// Command gateway joins one room as a virtual participant, wires the
// STT/TTS/VAD/orchestrator collaborators together, and runs the session
// until the caller leaves or goes idle. Grounded on the teacher's
// cmd/agent/main.go (godotenv.Load, provider selection via os.Getenv,
// signal.Notify shutdown) generalized to this module's room-gateway
// topology and zap-backed structured logging.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lokutor-ai/lokutor-voicegateway/pkg/gatewaysession"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/orchestratorclient"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/session"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/sttclient"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/transport"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/ttspipeline"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/vad"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/vadmanager"

	"github.com/google/uuid"
)

// zapLogger adapts *zap.SugaredLogger to gatewaysession.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l zapLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l zapLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l zapLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }

func main() {
	os.Exit(run())
}

func run() int {
	zl, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: failed to build logger: %v\n", err)
		return 1
	}
	defer zl.Sync()
	logger := zapLogger{s: zl.Sugar()}

	cfg, err := gatewaysession.LoadConfigFromEnv()
	if err != nil {
		logger.Error("config_missing", "err", err)
		return 1
	}

	sessionID := uuid.NewString()
	state := gatewaysession.NewState(sessionID, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown_signal_received", "session_id", sessionID)
		cancel()
	}()

	orch := orchestratorclient.New(cfg.OrchAddr, sessionID, logger)

	classifier := vad.NewRMSClassifier(cfg.STTMinRMS)

	// vadMgr and sttClient need each other (Manager is sttClient's
	// InterimSink; sttClient is Manager's STTSink), so Manager is built
	// first with a nil STTSink and patched once sttClient exists.
	vadMgr := vadmanager.New(cfg, state, classifier, nil, orch, nil)
	sttClient := sttclient.New(cfg.STTAddr, sessionID, vadMgr, orch, logger)
	vadMgr.SetSTTSink(sttClient)

	rtc := transport.NewAdapter(ctx)
	pipeline := ttspipeline.NewPipeline(cfg, state, rtc, vadMgr, nil, orch, logger)
	vadMgr.StopTTS = pipeline.Stop

	ctrl := session.New(cfg, state, logger, rtc, vadMgr, pipeline, orch, sttClient)

	signaler := transport.NewHTTPSignaler(cfg.RoomURL, cfg.RoomToken)

	logger.Info("gateway_starting", "session_id", sessionID, "room_url", cfg.RoomURL)
	if err := ctrl.Run(ctx, signaler); err != nil {
		if errors.Is(err, gatewaysession.ErrRoomJoinFailed) {
			logger.Error("room_join_failed", "err", err)
			return 1
		}
		logger.Error("session_run_failed", "err", err)
		return 1
	}

	logger.Info("gateway_exiting", "session_id", sessionID)
	return 0
}
