package stt

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/mattn/go-shellwords"
	"github.com/scribelabs/scribe-core/internal/config"
)

// execRecognizer drives a long-running external recognizer process speaking
// JSON lines: one request per fed frame on stdin, one outcome per line on
// stdout. Lets any local STT binary (whisper wrappers, kaldi scripts) plug
// in without linking against it.
type execRecognizer struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Scanner
	sampleRate int
}

type execFrame struct {
	PCMBase64  string `json:"pcm_base64"`
	SampleRate int    `json:"sample_rate"`
}

type execOutcome struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

func NewExecRecognizer(cfg config.STTConfig, sampleRate int) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	if cfg.ModelPath != "" {
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			return nil, fmt.Errorf("stt model path: %w", err)
		}
		args = append(args, "--model", cfg.ModelPath)
	}

	cmd := exec.Command(args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stt command stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stt command stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start stt command: %w", err)
	}

	return &execRecognizer{
		cmd:        cmd,
		stdin:      stdin,
		stdout:     bufio.NewScanner(stdout),
		sampleRate: sampleRate,
	}, nil
}

func (r *execRecognizer) Feed(pcm []byte) (Outcome, error) {
	req := execFrame{PCMBase64: base64.StdEncoding.EncodeToString(pcm), SampleRate: r.sampleRate}
	data, err := json.Marshal(req)
	if err != nil {
		return Outcome{}, err
	}
	data = append(data, '\n')
	if _, err := r.stdin.Write(data); err != nil {
		return Outcome{}, fmt.Errorf("write frame to stt command: %w", err)
	}

	if !r.stdout.Scan() {
		if err := r.stdout.Err(); err != nil {
			return Outcome{}, fmt.Errorf("read stt command output: %w", err)
		}
		return Outcome{}, fmt.Errorf("stt command closed its output")
	}

	var resp execOutcome
	if err := json.Unmarshal(r.stdout.Bytes(), &resp); err != nil {
		return Outcome{}, fmt.Errorf("decode stt command outcome: %w", err)
	}
	out := Outcome{Final: resp.Final, Text: resp.Text}
	for _, w := range resp.Words {
		out.Words = append(out.Words, Word{Text: w.Word, Start: w.Start, End: w.End})
	}
	return out, nil
}

func (r *execRecognizer) Close() error {
	_ = r.stdin.Close()
	return r.cmd.Wait()
}
