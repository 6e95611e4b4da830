package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"sales-coach-go/internal/actionable"
	"sales-coach-go/internal/aggregator"
	"sales-coach-go/internal/export"
	"sales-coach-go/internal/logger"
	"sales-coach-go/internal/metrics"
	"sales-coach-go/internal/pipeline"
	"sales-coach-go/internal/session"
	"sales-coach-go/internal/types"
	"sales-coach-go/internal/upload"
)

// DefaultMaxUploadBytes bounds POST /api/upload bodies.
const DefaultMaxUploadBytes = 512 << 20

type Handler struct {
	sess      *session.Session
	initiator session.Initiator
	log       *logger.Logger
	maxUpload int64
}

func NewHandler(sess *session.Session, initiator session.Initiator, log *logger.Logger) *Handler {
	if log == nil {
		log = &logger.Logger{Entry: logger.Discard()}
	}
	return &Handler{sess: sess, initiator: initiator, log: log, maxUpload: DefaultMaxUploadBytes}
}

type metricsResponse struct {
	JobID   string                `json:"job_id"`
	Metrics types.CallMetrics     `json:"metrics"`
	Insight aggregator.Insight    `json:"insight"`
	Action  actionable.ActionCard `json:"action"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.View())
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	v := h.sess.View()
	if v.Transcript == nil {
		writeError(w, http.StatusNotFound, "no transcript yet")
		return
	}
	m := metrics.Summarize(v.Transcript)
	ins := aggregator.Aggregate(v.Transcript.Segments)
	writeJSON(w, http.StatusOK, metricsResponse{
		JobID:   v.JobID,
		Metrics: m,
		Insight: ins,
		Action:  actionable.Generate(m, ins),
	})
}

// Upload takes the raw audio as the request body.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	reqLog := h.log.WithRequest(r).WithField("handler", "upload")

	name := strings.TrimSpace(r.URL.Query().Get("filename"))
	if name == "" {
		reqLog.Warn("missing filename")
		writeError(w, http.StatusBadRequest, "missing filename")
		return
	}
	if r.ContentLength > h.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	body := http.MaxBytesReader(w, r.Body, h.maxUpload)

	start := time.Now()
	jobID, err := h.sess.Upload(r.Context(), h.initiator, upload.NewStream(name, body, r.ContentLength), nil)
	reqLog = reqLog.WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		reqLog.WithField("kind", pipeline.KindOf(err)).WithField("error", err.Error()).Warn("upload failed")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": session.MsgUploadFailed,
			"kind":  string(pipeline.KindOf(err)),
		})
		return
	}
	reqLog.WithField("job_id", jobID).Info("upload accepted")
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (h *Handler) Attach(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	reqLog := h.log.WithRequest(r).WithField("handler", "attach").WithField("job_id", jobID)

	if err := h.sess.Attach(r.Context(), jobID); err != nil {
		reqLog.WithField("error", err.Error()).Warn("attach failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reqLog.Info("job attached")
	writeJSON(w, http.StatusAccepted, h.sess.View())
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	reqLog := h.log.WithRequest(r).WithField("handler", "export")
	v := h.sess.View()

	name := "sales-coach.xlsx"
	if v.JobID != "" {
		name = "sales-coach-" + v.JobID + ".xlsx"
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := export.Write(w, v); err != nil {
		reqLog.WithField("error", err.Error()).Error("export failed")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
