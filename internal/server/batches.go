package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/notify"
	"github.com/ppiankov/veritas/internal/report"
	"github.com/ppiankov/veritas/internal/worker"
)

type batchCreated struct {
	ID        string `json:"id"`
	Total     int    `json:"total"`
	StatusURL string `json:"status_url"`
	EventsURL string `json:"events_url"`
}

// createBatch accepts a manifest as multipart field "file" or as the raw
// request body and starts a run over it
func (s *Server) createBatch(c echo.Context) error {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.maxUpload)

	items, err := s.readManifest(c)
	if err == nil {
		err = worker.CheckManifestSize(items, s.maxItems)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return jsonError(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("manifest failed: upload exceeds %d bytes", s.maxUpload))
		}
		return jsonError(c, http.StatusBadRequest, err.Error())
	}

	run, err := s.manager.Start(ownerID(c), items)
	if err != nil {
		if errors.Is(err, worker.ErrShuttingDown) {
			return jsonError(c, http.StatusServiceUnavailable, err.Error())
		}
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}

	s.logger.Info("batch accepted", "run_id", run.ID, "items", len(items), "owner", ownerID(c))
	return c.JSON(http.StatusAccepted, batchCreated{
		ID:        run.ID,
		Total:     len(items),
		StatusURL: "/api/batches/" + run.ID,
		EventsURL: "/api/batches/" + run.ID + "/events",
	})
}

func (s *Server) readManifest(c echo.Context) ([]model.BatchItem, error) {
	mediaType, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if mediaType != echo.MIMEMultipartForm {
		return worker.ParseManifest(c.Request().Body)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, &model.Failure{Kind: model.FailureManifest, Reason: `missing form field "file"`, Err: err}
	}
	if fh.Size > s.maxUpload {
		return nil, &http.MaxBytesError{Limit: s.maxUpload}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, &model.Failure{Kind: model.FailureManifest, Reason: "unreadable upload", Err: err}
	}
	defer func() { _ = f.Close() }()

	return worker.ParseManifest(f)
}

// run resolves :id, hiding runs that belong to another owner
func (s *Server) run(c echo.Context) (*model.BatchRun, error) {
	run, err := s.manager.Get(c.Param("id"))
	if err != nil {
		return nil, jsonError(c, http.StatusNotFound, "batch not found")
	}
	if run.OwnerID != ownerID(c) {
		return nil, jsonError(c, http.StatusNotFound, "batch not found")
	}
	return run, nil
}

func (s *Server) getBatch(c echo.Context) error {
	run, err := s.run(c)
	if run == nil {
		return err
	}
	return c.JSON(http.StatusOK, run.Snapshot())
}

func (s *Server) cancelBatch(c echo.Context) error {
	run, err := s.run(c)
	if run == nil {
		return err
	}
	if err := s.manager.Cancel(run.ID); err != nil {
		return jsonError(c, http.StatusNotFound, "batch not found")
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"id":    run.ID,
		"state": string(run.State()),
	})
}

func (s *Server) batchReport(c echo.Context) error {
	run, err := s.run(c)
	if run == nil {
		return err
	}

	data, err := s.exporter.Render(run.Items())
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", report.FileName(s.now())))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", data)
}

// batchEvents streams the run's events as server-sent events until its
// terminal event or until the client goes away
func (s *Server) batchEvents(c echo.Context) error {
	run, err := s.run(c)
	if run == nil {
		return err
	}

	// Subscribe before looking at the state so no terminal event is missed
	events, unsubscribe := s.broker.SubscribeRun(run.ID, 256)
	defer unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	if ev, ended := endedEvent(run); ended {
		return writeEvent(w, ev)
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev); err != nil {
				return err
			}
			if ev.Type.IsTerminal() {
				return nil
			}
		}
	}
}

// endedEvent rebuilds the terminal event of a run that already ended
func endedEvent(run *model.BatchRun) (notify.Event, bool) {
	snap := run.Snapshot()

	var typ notify.EventType
	switch snap.State {
	case model.RunFinished:
		typ = notify.EventRunComplete
	case model.RunCancelled:
		typ = notify.EventRunCancelled
	default:
		return notify.Event{}, false
	}

	ev := notify.Event{
		RunID:     snap.ID,
		Type:      typ,
		Index:     -1,
		Progress:  snap.Progress,
		Total:     snap.Total,
		Completed: snap.Completed,
		Failed:    snap.Failed,
	}
	ev.Message = notify.SummaryLine(ev)
	return ev, true
}

func writeEvent(w *echo.Response, ev notify.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, "event: "+string(ev.Type)+"\ndata: "+strings.TrimSpace(string(data))+"\n\n"); err != nil {
		return err
	}
	w.Flush()
	return nil
}
