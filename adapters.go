package main

import (
	"context"

	"mediassist/analysis"
	"mediassist/api"
	"mediassist/audio"
	"mediassist/log"
	"mediassist/recording"
	"mediassist/transcriber"
)

// jobService exposes the backend's deep-analysis endpoints to the
// analysis controller.
type jobService struct{ client *api.Client }

func (s jobService) StartAnalysis(ctx context.Context) (analysis.Job, error) {
	res, err := s.client.StartAnalysis(ctx)
	if err != nil {
		return analysis.Job{}, err
	}
	return analysis.Job{ID: res.AnalysisID, FileCount: res.FileCount, Message: res.Message}, nil
}

func (s jobService) AnalysisStatus(ctx context.Context, id string) (analysis.Report, error) {
	res, err := s.client.AnalysisStatus(ctx, id)
	if err != nil {
		return analysis.Report{}, err
	}
	return analysis.Report{Status: analysis.Status(res.Status), Error: res.Error}, nil
}

type microphone struct{ mic *audio.Microphone }

func (m microphone) Acquire() (recording.Capture, error) {
	lease, err := m.mic.Acquire()
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// speech adapts a transcription provider to the recording controller.
type speech struct{ tr transcriber.Transcriber }

func (s speech) Transcribe(ctx context.Context, payload []byte) (string, error) {
	res, err := s.tr.Transcribe(ctx, payload)
	if err != nil {
		return "", err
	}
	log.TranscriptionText(res.Text)
	return res.Text, nil
}
