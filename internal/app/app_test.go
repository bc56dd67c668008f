package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zitemo/livecards/internal/config"
	relaymock "github.com/zitemo/livecards/internal/relay/mock"
	"github.com/zitemo/livecards/internal/session"
	asrmock "github.com/zitemo/livecards/pkg/provider/asr/mock"
	llmmock "github.com/zitemo/livecards/pkg/provider/llm/mock"
)

func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nsleep 300\n"), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Room: config.RoomConfig{RoomID: "123456789", LiveURL: "https://live.douyin.com/123456789"},
		Audio: config.AudioConfig{
			FFmpegPath:      fakeFFmpeg(t),
			StreamURL:       "http://example.invalid/stream.flv",
			SampleRate:      16000,
			FrameDurationMs: 600,
			AGCTargetRMS:    0.08,
			AGCMaxGain:      4.0,
		},
		VAD: config.VADConfig{
			RMSThreshold: 0.02,
			HangoverMs:   500,
			MaxSegmentMs: 8000,
			MinSegmentMs: 200,
		},
		Diarize: config.DiarizeConfig{
			SimilarityThreshold: 0.7,
			MaxGuestSpeakers:    3,
			CentroidEMAAlpha:    0.2,
		},
		Window: config.WindowConfig{
			Duration:     30 * time.Second,
			TickInterval: time.Hour,
		},
		Analysis: config.AnalysisConfig{Timeout: 5 * time.Second},
		Persist: config.PersistConfig{
			OutputDir:     t.TempDir(),
			FsyncInterval: time.Second,
		},
		Session: config.SessionConfig{StopDrainSec: 1},
		Text:    config.TextConfig{MinChars: 3, RepeatLimit: 3},
	}
}

func testProviders() *Providers {
	return &Providers{
		ASR:         &asrmock.Recognizer{},
		AnalysisLLM: &llmmock.Provider{},
		AnswerLLM:   &llmmock.Provider{},
		Credential:  &relaymock.CredentialProvider{},
	}
}

func TestNew_BuildsControllerFromProviders(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Controller() == nil {
		t.Fatal("Controller() is nil")
	}
	if a.Health() == nil {
		t.Fatal("Health() is nil")
	}
}

func TestNew_MissingProviderFails(t *testing.T) {
	cfg := testConfig(t)
	providers := testProviders()
	providers.ASR = nil

	if _, err := New(context.Background(), cfg, providers); err == nil {
		t.Fatal("New: want error when providers.ASR is nil, got nil")
	}
}

func TestNew_WithControllerSkipsProviderValidation(t *testing.T) {
	cfg := testConfig(t)
	c := session.New(session.Deps{})

	a, err := New(context.Background(), cfg, nil, WithController(c))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Controller() != c {
		t.Fatal("Controller() did not return the injected controller")
	}
}

func TestRunAndShutdown_Lifecycle(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	// Give Run a moment to start the session before stopping it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.Controller().Status().SessionID != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if a.Controller().Status().SessionID == "" {
		t.Fatal("session never started")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	cancel()
	<-runErr
}

func TestShutdown_IsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	c := session.New(session.Deps{})
	a, err := New(context.Background(), cfg, nil, WithController(c))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestReadinessCheckers_FailWhenProviderMissing(t *testing.T) {
	cfg := testConfig(t)
	c := session.New(session.Deps{})
	a, err := New(context.Background(), cfg, nil, WithController(c))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := a.Health()
	if rec == nil {
		t.Fatal("Health() is nil")
	}

	checkers := a.readinessCheckers()
	found := false
	for _, chk := range checkers {
		if chk.Name != "asr" {
			continue
		}
		found = true
		if err := chk.Check(context.Background()); err == nil {
			t.Fatal("asr checker: want error when providers is nil, got nil")
		}
	}
	if !found {
		t.Fatal("no \"asr\" checker registered")
	}
}

func TestReadinessCheckers_PersistRootWritable(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	checkers := a.readinessCheckers()
	for _, chk := range checkers {
		if chk.Name != "persist_root" {
			continue
		}
		if err := chk.Check(context.Background()); err != nil {
			t.Fatalf("persist_root checker: %v", err)
		}
		return
	}
	t.Fatal("no \"persist_root\" checker registered")
}
