package persist

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zitemo/livecards/pkg/types"
)

func TestNew_CreatesDateRootedSessionDir(t *testing.T) {
	root := t.TempDir()
	startedAt := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	p, err := New(Config{RootDir: root}, "room123", startedAt, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close(nil)

	wantDir := filepath.Join(root, "room123", "2026-07-31")
	if _, err := os.Stat(wantDir); err != nil {
		t.Errorf("expected session dir %s to exist: %v", wantDir, err)
	}
}

func TestWriteTranscript_CountMatchesSuccessfulWrites(t *testing.T) {
	root := t.TempDir()
	p, err := New(Config{RootDir: root}, "room1", time.Now(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		p.WriteTranscript(types.Transcript{Text: "hello"})
	}
	if got := p.TranscriptCount(); got != 3 {
		t.Errorf("TranscriptCount() = %d, want 3", got)
	}

	if err := p.Close(nil); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := readLines(t, filepath.Join(root, "room1", time.Now().Format("2006-01-02"), "transcripts.jsonl"))
	if len(lines) != 3 {
		t.Errorf("transcripts.jsonl has %d lines, want 3", len(lines))
	}
	for _, l := range lines {
		if !strings.Contains(l, "hello") {
			t.Errorf("line %q missing expected text", l)
		}
	}
}

func TestWriteEvent_AppendsOneLinePerEvent(t *testing.T) {
	root := t.TempDir()
	p, err := New(Config{RootDir: root}, "room1", time.Now(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	p.WriteEvent(types.ChatEvent{EventID: "e1", Kind: types.EventChat, Content: "hi"})
	p.WriteEvent(types.ChatEvent{EventID: "e2", Kind: types.EventGift})

	if err := p.Close(nil); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := readLines(t, filepath.Join(root, "room1", time.Now().Format("2006-01-02"), "events.jsonl"))
	if len(lines) != 2 {
		t.Errorf("events.jsonl has %d lines, want 2", len(lines))
	}
}

func TestWriteSegment_SaveAudioDisabled_NoFileWritten(t *testing.T) {
	root := t.TempDir()
	p, err := New(Config{RootDir: root, SaveAudio: false}, "room1", time.Now(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close(nil)

	p.WriteSegment(types.SpeechSegment{SegmentID: "seg1", PCM: make([]byte, 64)}, 16000)

	path := filepath.Join(root, "room1", time.Now().Format("2006-01-02"), "segments", "seg1.wav")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no WAV file when SaveAudio is false")
	}
}

func TestWriteSegment_SaveAudioEnabled_WritesWAVHeader(t *testing.T) {
	root := t.TempDir()
	p, err := New(Config{RootDir: root, SaveAudio: true}, "room1", time.Now(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close(nil)

	pcm := make([]byte, 320)
	p.WriteSegment(types.SpeechSegment{SegmentID: "seg1", PCM: pcm}, 16000)

	path := filepath.Join(root, "room1", time.Now().Format("2006-01-02"), "segments", "seg1.wav")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected WAV file to exist: %v", err)
	}
	if len(data) != 44+len(pcm) {
		t.Errorf("len(data) = %d, want %d", len(data), 44+len(pcm))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE header markers")
	}
}

func TestWriteTranscript_FailureInvokesCounterAndDoesNotPanic(t *testing.T) {
	root := t.TempDir()
	p, err := New(Config{RootDir: root}, "room1", time.Now(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	p.Close(nil) // force subsequent writes to fail against a closed file

	failures := 0
	p.onFailure = func() { failures++ }
	p.WriteTranscript(types.Transcript{Text: "after close"})

	if failures != 1 {
		t.Errorf("onFailure called %d times, want 1", failures)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
