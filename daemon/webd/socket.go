package webd

import (
	"encoding/json"

	"github.com/olahol/melody"
	"github.com/rotblauer/catnav/events"
)

type websocketAction string

const (
	websocketActionEstimate    websocketAction = "estimate"
	websocketActionEnvironment websocketAction = "environment"
	websocketActionFloor       websocketAction = "floor"
	websocketActionError       websocketAction = "error"
)

type broadcast struct {
	Action websocketAction `json:"action"`
	Data   any             `json:"data"`
}

// initMelody sets up the websocket hub. New sessions get every cached
// last estimate; after that, engine outputs of all devices are broadcast
// as they are produced.
func (s *WebDaemon) initMelody() {
	s.melodyInstance = melody.New()

	s.melodyInstance.HandleConnect(func(sess *melody.Session) {
		s.logger.Info("Websocket connected", "remote", sess.Request.RemoteAddr)
		for _, device := range s.lastKnown.Devices() {
			est, ok := s.lastKnown.Get(device)
			if !ok {
				continue
			}
			b, err := json.Marshal(broadcast{
				Action: websocketActionEstimate,
				Data:   events.Estimate{Device: device, Estimate: est},
			})
			if err != nil {
				continue
			}
			_ = sess.Write(b)
		}
	})

	// Clients have nothing to say yet. Log and drop.
	s.melodyInstance.HandleMessage(func(sess *melody.Session, msg []byte) {
		s.logger.Debug("Websocket message", "remote", sess.Request.RemoteAddr, "msg", string(msg))
	})
	s.melodyInstance.HandleDisconnect(func(sess *melody.Session) {
		s.logger.Info("Websocket disconnected", "remote", sess.Request.RemoteAddr)
	})
	s.melodyInstance.HandleError(func(sess *melody.Session, e error) {
		s.logger.Warn("Websocket error", "error", e, "remote", sess.Request.RemoteAddr)
	})

	estimates := make(chan events.Estimate, 64)
	envs := make(chan events.EnvironmentChange, 16)
	floors := make(chan events.FloorChange, 16)
	errs := make(chan events.ProviderError, 16)
	estSub := events.EstimateFeed.Subscribe(estimates)
	envSub := events.EnvironmentFeed.Subscribe(envs)
	floorSub := events.FloorFeed.Subscribe(floors)
	errSub := events.ProviderErrorFeed.Subscribe(errs)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer estSub.Unsubscribe()
		defer envSub.Unsubscribe()
		defer floorSub.Unsubscribe()
		defer errSub.Unsubscribe()
		for {
			var msg broadcast
			select {
			case <-s.quit:
				return
			case v := <-estimates:
				msg = broadcast{Action: websocketActionEstimate, Data: v}
			case v := <-envs:
				msg = broadcast{Action: websocketActionEnvironment, Data: v}
			case v := <-floors:
				msg = broadcast{Action: websocketActionFloor, Data: v}
			case v := <-errs:
				msg = broadcast{Action: websocketActionError, Data: v}
			}
			b, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("Failed to marshal broadcast", "error", err)
				continue
			}
			if s.melodyInstance.Len() == 0 {
				continue
			}
			if err := s.melodyInstance.Broadcast(b); err != nil {
				s.logger.Warn("Failed to broadcast", "action", msg.Action, "error", err)
			}
		}
	}()
}
