package simulator

import (
	"context"

	"github.com/go-zeromq/zmq4"
	"github.com/pkg/errors"

	"go.viam.com/imufreefall/logging"
)

// DefaultEndpoint is where the simulator listens unless configured otherwise.
const DefaultEndpoint = "tcp://127.0.0.1:5555"

// Server answers requests arriving on a ZeroMQ REP socket. A REP socket serves its peers in
// turn, so all clients share one Protocol.
type Server struct {
	endpoint string
	protocol *Protocol
	logger   logging.Logger
}

// NewServer returns a server for protocol. Nothing is bound until Serve.
func NewServer(endpoint string, protocol *Protocol, logger logging.Logger) *Server {
	return &Server{endpoint: endpoint, protocol: protocol, logger: logger}
}

// Serve binds the endpoint and answers requests until ctx is done. It returns nil after a
// cancellation.
func (s *Server) Serve(ctx context.Context) error {
	socket := zmq4.NewRep(ctx)
	defer func() {
		if err := socket.Close(); err != nil {
			s.logger.Debugf("closing socket: %s", err)
		}
	}()

	if err := socket.Listen(s.endpoint); err != nil {
		return errors.Wrapf(err, "listening on %s", s.endpoint)
	}
	s.logger.Infof("simulator listening on %s", s.endpoint)

	for {
		request, err := socket.Recv()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("simulator stopped")
				return nil
			}
			return errors.Wrap(err, "receiving request")
		}

		reply := s.protocol.Process(string(request.Bytes()))
		if err := socket.Send(zmq4.NewMsgString(reply)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "sending reply")
		}
	}
}
