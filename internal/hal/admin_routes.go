package hal

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/uwb.hal/internal/httputil"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

type adapterStatus struct {
	State      string    `json:"state"`
	Handle     string    `json:"handle,omitempty"`
	OpenedAt   time.Time `json:"opened_at,omitempty"`
	Sessions   []int32   `json:"sessions"`
	LinkLost   bool      `json:"link_lost"`
	QueueDepth int       `json:"queue_depth"`
}

func (a *Adapter) status() adapterStatus {
	a.mu.Lock()
	st := adapterStatus{State: a.state.String()}
	if a.sess != nil {
		st.Handle = a.sess.id.String()
		st.OpenedAt = a.sess.openedAt
		st.LinkLost = a.sess.lost.Load()
	}
	a.mu.Unlock()
	st.Sessions = a.Sessions()
	st.QueueDepth = a.events.Len()
	return st
}

// AttachAdminRoutes mounts the adapter status page and a raw command API on
// the debug mux. The routes are reachable only from localhost or the
// tailnet.
func (a *Adapter) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("uci-hal", "UCI adapter state", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, a.status())
	})

	// Takes one complete command packet as hex, header included. The
	// payload may exceed one fragment; Send splits it.
	debug.HandleSilentFunc("uci-send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		cmd, err := parseRawCommand(r.FormValue("packet"))
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := a.Send(r.Context(), cmd); err != nil {
			httputil.BadGateway(w, fmt.Sprintf("send failed: %v", err))
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{
			"opcode":        cmd.Opcode().String(),
			"payload_bytes": len(cmd.Payload),
		})
	})
}

// parseRawCommand accepts hex with optional spaces. The header's length
// byte is ignored in favour of the bytes actually supplied.
func parseRawCommand(s string) (uci.Command, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return uci.Command{}, fmt.Errorf("missing packet")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return uci.Command{}, fmt.Errorf("packet is not hex: %w", err)
	}
	h, err := uci.ParseHeader(b)
	if err != nil {
		return uci.Command{}, err
	}
	if h.Type != uci.MessageTypeCommand {
		return uci.Command{}, fmt.Errorf("message type %s is not a command", h.Type)
	}
	return uci.Command{GID: h.GID, OID: h.OID, Payload: b[uci.HeaderSize:]}, nil
}
