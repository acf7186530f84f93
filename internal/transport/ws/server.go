package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"spatialrefuge.dev/internal/protocol"
	"spatialrefuge.dev/internal/sim/world"
)

// requestTypes are the client messages forwarded to the world loop. Anything
// else on an established connection is dropped.
var requestTypes = map[string]bool{
	protocol.TypeRequestEnter:          true,
	protocol.TypeChunksReady:           true,
	protocol.TypeRequestExit:           true,
	protocol.TypeRequestFeatureUpgrade: true,
	protocol.TypeRequestMoveRelic:      true,
	protocol.TypeRequestModData:        true,
}

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ownerID, out := s.handshake(conn)
		if ownerID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.ProtocolVersion != protocol.Version {
				continue
			}
			if !requestTypes[base.Type] {
				continue
			}
			s.world.Inbox() <- world.CommandEnvelope{OwnerID: ownerID, Type: base.Type, Raw: msg}
		}

		// Cleanup.
		s.world.Leave() <- ownerID
	}
}

func (s *Server) handshake(conn *websocket.Conn) (ownerID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.OwnerName == "" {
		hello.OwnerName = "owner"
	}

	out = make(chan []byte, 16)

	resumeToken := ""
	if hello.Auth != nil {
		resumeToken = strings.TrimSpace(hello.Auth.Token)
	}

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		Name:        hello.OwnerName,
		ResumeToken: resumeToken,
		Out:         out,
		Resp:        respCh,
	}
	resp := <-respCh
	if resp.Err != "" || resp.OwnerID == "" {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "join rejected"), time.Now().Add(time.Second))
		return "", nil
	}

	t := s.world.Tuning()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		OwnerID:         resp.OwnerID,
		ResumeToken:     resp.ResumeToken,
		WorldParams: protocol.WorldParams{
			TickRateHz:       t.TickRateHz,
			ChunkSize:        t.ChunkSize,
			BaseHalfSize:     t.Region.BaseHalfSize,
			HalfSizePerTier:  t.Region.HalfSizePerTier,
			MaxSizeTier:      t.Region.MaxSizeTier,
			EntryCastTicks:   t.EntryCastTicks,
			ExitCastTicks:    t.ExitCastTicks,
			RelicMoveCDTicks: t.RelicMoveCooldownTicks,
		},
		Region: resp.Region,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}

	return resp.OwnerID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
