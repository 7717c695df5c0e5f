//go:build integration

package test_test

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("MEDIASSIST_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "MEDIASSIST_TEST_BIN not set; build the binary and point the variable at it")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func writeToneWAV(t *testing.T, sampleRate int, durationS float64) string {
	t.Helper()
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i := 0; i < numSamples; i++ {
		v := int16(3000)
		if (i/40)%2 == 0 {
			v = -3000
		}
		binary.LittleEndian.PutUint16(buf[headerSize+2*i:], uint16(v))
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

type backend struct {
	reports  int
	polls    atomic.Int32
	messages atomic.Int32
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/medical_reports":
		reports := []map[string]string{}
		for i := 0; i < b.reports; i++ {
			reports = append(reports, map[string]string{"_id": fmt.Sprintf("r%d", i), "filename": "labs.pdf"})
		}
		json.NewEncoder(w).Encode(map[string]any{"reports": reports})
	case "/deep_analysis":
		json.NewEncoder(w).Encode(map[string]any{"success": true, "analysis_id": "job-42", "file_count": b.reports})
	case "/analysis_status/job-42":
		status := "running"
		if b.polls.Add(1) > 2 {
			status = "completed"
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	case "/analysis_reports":
		json.NewEncoder(w).Encode(map[string]any{"reports": []map[string]any{{"report_id": "job-42", "file_count": b.reports}}})
	case "/send_message":
		b.messages.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"response": "Drink more water."})
	default:
		http.NotFound(w, r)
	}
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

// runHeadless starts the binary against b and returns its stdout and log dir.
func runHeadless(t *testing.T, b *backend, stdin string) (string, string) {
	t.Helper()
	srv := httptest.NewServer(b)
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mediassist.yaml")
	cfg := fmt.Sprintf(`backend:
  baseUrl: %s
analysis:
  pollInterval: 20ms
transcription:
  provider: fake
  fakeText: how much vitamin d should I take
`, srv.URL)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	logDir := filepath.Join(dir, "logs")
	cmd := exec.Command(testBinary, "-config", cfgPath, "-logpath", logDir, "-test", writeToneWAV(t, 16000, 0.5))
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("mediassist exited with error: %v\noutput: %s", err, out)
	}
	return string(out), logDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func TestDictationSends(t *testing.T) {
	b := &backend{reports: 1}
	out, logDir := runHeadless(t, b, cmds("KEYDOWN", "SLEEP 100", "KEYUP", "WAIT", "QUIT"))

	if !strings.Contains(out, "you: how much vitamin d should I take") {
		t.Errorf("missing sent dictation:\n%s", out)
	}
	if !strings.Contains(out, "assistant: Drink more water.") {
		t.Errorf("missing reply:\n%s", out)
	}
	if b.messages.Load() != 1 {
		t.Errorf("send_message calls = %d", b.messages.Load())
	}
	if !strings.Contains(readLog(t, logDir, "transcribe_log.txt"), "vitamin d") {
		t.Error("transcribe_log.txt should record the text")
	}
}

func TestDictationWithShiftComposes(t *testing.T) {
	b := &backend{reports: 1}
	out, _ := runHeadless(t, b, cmds("MODDOWN", "KEYDOWN", "SLEEP 100", "KEYUP", "WAIT", "MODUP", "QUIT"))

	if !strings.Contains(out, "compose: how much vitamin d should I take") {
		t.Errorf("missing compose line:\n%s", out)
	}
	if b.messages.Load() != 0 {
		t.Errorf("compose dictation was sent %d time(s)", b.messages.Load())
	}
}

func TestShiftReleasedBeforeKeyupSends(t *testing.T) {
	b := &backend{reports: 1}
	out, _ := runHeadless(t, b, cmds("MODDOWN", "KEYDOWN", "SLEEP 100", "MODUP", "KEYUP", "WAIT", "QUIT"))

	if strings.Contains(out, "compose:") || b.messages.Load() != 1 {
		t.Errorf("modifier must be sampled at release:\n%s", out)
	}
}

func TestDeepAnalysis(t *testing.T) {
	b := &backend{reports: 2}
	out, logDir := runHeadless(t, b, cmds("ANALYZE", "WAIT_ANALYSIS", "QUIT"))

	for _, want := range []string{"Deep analysis started for 2 report(s)", "Deep analysis complete.", "== Analysis results", "job-42"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "job-42") {
		t.Error("diagnostics should log the analysis lifecycle")
	}
}

func TestDeepAnalysisWithoutReports(t *testing.T) {
	out, _ := runHeadless(t, &backend{}, cmds("ANALYZE", "QUIT"))
	if !strings.Contains(out, "notice error: no medical reports available for analysis") {
		t.Errorf("output:\n%s", out)
	}
}

func TestReportsCommand(t *testing.T) {
	out, _ := runHeadless(t, &backend{reports: 3}, cmds("/reports", "/quit"))
	if !strings.Contains(out, "== Medical reports (3)") {
		t.Errorf("output:\n%s", out)
	}
}
