package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paiban/autoshift/internal/jobs"
	"github.com/paiban/autoshift/internal/middleware"
	"github.com/paiban/autoshift/pkg/logger"
	"github.com/paiban/autoshift/pkg/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 跨域由 CORS 中间件负责
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamFrame 推送帧：逐条事件，结束时推送一次任务快照
type StreamFrame struct {
	Type  string       `json:"type"` // event/result/error
	Event *model.Event `json:"event,omitempty"`
	Job   *model.Job   `json:"job,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Stream 通过 websocket 推送进度：先补发 since 之后的历史事件，再推送新事件，任务结束后发送 result 帧并关闭。
// 已移出内存或由其他实例执行的任务从落地存储回放。
func (h *AutoScheduleHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	since, err := parseSince(r)
	if err != nil {
		respondError(w, err)
		return
	}

	sub, err := h.jobs.Subscribe(r.Context(), id, middleware.UserID(r.Context()), since)
	if err != nil {
		respondError(w, err)
		return
	}
	defer h.jobs.Unsubscribe(sub)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithContext(r.Context()).Warn().Err(err).Str("job_id", id).Msg("websocket 升级失败")
		return
	}
	defer conn.Close()

	log := logger.WithContext(r.Context())
	log.Debug().Str("job_id", id).Int("since", since).Msg("进度订阅开始")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readPump(conn, cancel)

	events := make(chan []model.Event)
	done := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			batch, finished, err := sub.Next(ctx)
			if len(batch) > 0 {
				select {
				case events <- batch:
				case <-ctx.Done():
					return
				}
			}
			if finished {
				done <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case batch, ok := <-events:
			if !ok {
				finishStream(r.Context(), conn, sub, <-done)
				return
			}
			for i := range batch {
				if err := writeFrame(conn, StreamFrame{Type: "event", Event: &batch[i]}); err != nil {
					log.Debug().Err(err).Str("job_id", id).Msg("推送事件失败，断开订阅")
					return
				}
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// finishStream 发送结束帧并正常关闭连接
func finishStream(ctx context.Context, conn *websocket.Conn, sub *jobs.Subscription, err error) {
	if err != nil {
		if err == context.Canceled {
			return
		}
		writeFrame(conn, StreamFrame{Type: "error", Error: err.Error()})
	} else if job, getErr := sub.Job(ctx); getErr == nil {
		writeFrame(conn, StreamFrame{Type: "result", Job: job})
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}

func writeFrame(conn *websocket.Conn, frame StreamFrame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

// readPump 读取并丢弃客户端消息，连接断开时取消订阅
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
