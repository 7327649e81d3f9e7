package api

import (
	"net/http"
	"time"

	"albion-crafter/internal/profit"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// scanMessage is one frame of /ws/scan: a row, an error, or the final done.
type scanMessage struct {
	Type   string      `json:"type"`
	Row    *profit.Row `json:"row,omitempty"`
	Done   bool        `json:"done,omitempty"`
	Count  int         `json:"count,omitempty"`
	ScanID string      `json:"scan_id,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// StreamScan runs a scan over the default recipes and streams the rows in
// profit order. Query parameters are the same as /prices.
func (h *APIHandler) StreamScan(c *gin.Context) {
	cfg, err := h.configFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := func(msg scanMessage) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	rows, scanID, err := h.runScan(c.Request.Context(), nil, cfg)
	if err != nil {
		_ = send(scanMessage{Type: "error", Error: err.Error()})
		return
	}

	for i := range rows {
		if err := send(scanMessage{Type: "row", Row: &rows[i]}); err != nil {
			h.logger.Printf("websocket client gone after %d rows: %v", i, err)
			return
		}
	}
	_ = send(scanMessage{Type: "done", Done: true, Count: len(rows), ScanID: scanID})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
