package types

import (
	"encoding/json"
	"strings"
)

// JobStatus is the client-side view of a pipeline job's lifecycle.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ParseJobStatus folds the server's finer-grained stage words into the four
// client states. Unknown words are kept verbatim and are never terminal.
func ParseJobStatus(raw string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending", "uploading":
		return JobStatusQueued
	case "processing", "transcribing", "analyzing":
		return JobStatusProcessing
	case "completed":
		return JobStatusCompleted
	case "failed":
		return JobStatusFailed
	default:
		return JobStatus(raw)
	}
}

// Terminal reports whether polling should stop on this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseJobStatus(raw)
	return nil
}

// Speaker identifies who said a transcript segment.
type Speaker string

const (
	SpeakerRep      Speaker = "rep"
	SpeakerCustomer Speaker = "customer"
)

// ParseSpeaker maps diarization labels onto call roles: the first detected
// speaker is the rep, the second the customer.
func ParseSpeaker(raw string) Speaker {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "rep", "spk_0":
		return SpeakerRep
	case "customer", "spk_1":
		return SpeakerCustomer
	default:
		return Speaker(raw)
	}
}

func (s *Speaker) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseSpeaker(raw)
	return nil
}

// Job is the identity and coarse progress of one pipeline execution.
type Job struct {
	ID                 string    `json:"job_id,omitempty"`
	Status             JobStatus `json:"status"`
	ProgressPercentage int       `json:"progress_percentage"`
}

type TranscriptSegment struct {
	Speaker   Speaker `json:"speaker"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type Transcript struct {
	Segments  []TranscriptSegment `json:"segments"`
	Duration  float64             `json:"duration"`
	WordCount int                 `json:"word_count"`
}

// Snapshot is one GET /status read. Transcript and Report show up as soon as
// the pipeline produced them, possibly before the job is completed.
type Snapshot struct {
	Job
	CurrentStep  string      `json:"current_step,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Transcript   *Transcript `json:"transcript,omitempty"`
	Report       *Report     `json:"report,omitempty"`
}

// UploadSlot is the server's answer to POST /upload.
type UploadSlot struct {
	JobID     string `json:"job_id"`
	UploadURL string `json:"upload_url"`
}
