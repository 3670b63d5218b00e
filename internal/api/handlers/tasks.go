package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wonny/alphalens/internal/analysis"
	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/pkg/logger"
)

const (
	writeWait    = 10 * time.Second
	streamPoll   = 5 * time.Second
	maxBodyBytes = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TaskService is the orchestrator surface exposed over HTTP
type TaskService interface {
	Create(ctx context.Context, req analysis.CreateRequest) (*contracts.AnalysisTask, error)
	Get(ctx context.Context, id string) (*contracts.AnalysisTask, error)
	Cancel(ctx context.Context, id, requesterID string) (*contracts.AnalysisTask, error)
	Subscribe(id string) (<-chan *contracts.AnalysisTask, func())
}

// TaskHandler handles analysis task endpoints
// ⭐ SSOT: Task API 핸들러는 이 구조체에서만
type TaskHandler struct {
	tasks  TaskService
	logger *logger.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks TaskService, log *logger.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		logger: log,
	}
}

// CreateResponse is returned by Create
type CreateResponse struct {
	TaskID string              `json:"task_id"`
	State  contracts.TaskState `json:"state"`
}

// Create starts a new analysis task
// POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req analysis.CreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if id := requesterID(r); id != "" {
		req.RequesterID = id
	}
	// 소유자 없는 태스크는 누구나 취소할 수 있으므로 HTTP 생성에는 필수
	req.RequesterID = strings.TrimSpace(req.RequesterID)
	if req.RequesterID == "" {
		respondError(w, http.StatusBadRequest, "X-Requester-ID header or requester_id is required")
		return
	}

	task, err := h.tasks.Create(r.Context(), req)
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, CreateResponse{TaskID: task.ID, State: task.State})
}

// Get returns the task record
// GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// CancelRequest carries the requester when no header is sent
type CancelRequest struct {
	RequesterID string `json:"requester_id"`
}

// Cancel cancels a pending or processing task
// POST /api/tasks/{id}/cancel
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	requester := requesterID(r)
	if requester == "" && r.ContentLength != 0 {
		var req CancelRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		requester = req.RequesterID
	}

	task, err := h.tasks.Cancel(r.Context(), mux.Vars(r)["id"], requester)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// Stream pushes task snapshots over a websocket until the task is terminal
// GET /api/tasks/{id}/stream
func (h *TaskHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// 구독 먼저, 조회는 나중 (사이의 변경 누락 방지)
	updates, unsubscribe := h.tasks.Subscribe(id)
	defer unsubscribe()

	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).WithField("task_id", id).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// 클라이언트 종료 감지
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	last := task
	send := func(t *contracts.AnalysisTask) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(t); err != nil {
			return false
		}
		last = t
		return !t.State.IsTerminal()
	}

	if !send(task) {
		h.closeStream(conn)
		return
	}

	ticker := time.NewTicker(streamPoll)
	defer ticker.Stop()

	for {
		select {
		case t := <-updates:
			if !send(t) {
				h.closeStream(conn)
				return
			}
		case <-ticker.C:
			// 느린 구독자는 중간 갱신을 놓칠 수 있으므로 주기적으로 재조회
			t, err := h.tasks.Get(r.Context(), id)
			if err != nil {
				return
			}
			if t.State != last.State || t.Progress != last.Progress {
				if !send(t) {
					h.closeStream(conn)
					return
				}
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *TaskHandler) closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task finished")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
