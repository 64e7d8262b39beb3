package simulated

import (
	"context"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/imufreefall/logging"
)

// DefaultRequestTimeout bounds a single request/reply exchange.
const DefaultRequestTimeout = time.Second

// ErrTimeout is returned when the peer did not answer within the request timeout.
var ErrTimeout = errors.New("no reply within request timeout")

// A Messenger carries one request and its reply at a time.
type Messenger interface {
	Exchange(ctx context.Context, request string) (string, error)
	Close() error
}

// zmqMessenger talks to the simulator through a ZeroMQ REQ socket. A REQ socket that lost its
// reply is stuck, so after a timeout or cancellation the socket is thrown away and dialled
// again.
type zmqMessenger struct {
	endpoint string
	timeout  time.Duration
	logger   logging.Logger

	mu     sync.Mutex
	socket zmq4.Socket
	cancel context.CancelFunc
}

// DialMessenger connects a REQ socket to endpoint. A non-positive timeout selects
// DefaultRequestTimeout.
func DialMessenger(endpoint string, timeout time.Duration, logger logging.Logger) (Messenger, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	m := &zmqMessenger{endpoint: endpoint, timeout: timeout, logger: logger}
	if err := m.dial(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *zmqMessenger) dial() error {
	ctx, cancel := context.WithCancel(context.Background())
	socket := zmq4.NewReq(ctx, zmq4.WithDialerRetry(100*time.Millisecond), zmq4.WithDialerMaxRetries(10))
	if err := socket.Dial(m.endpoint); err != nil {
		cancel()
		return errors.Wrapf(err, "dialing %s", m.endpoint)
	}
	m.socket = socket
	m.cancel = cancel
	m.logger.Debugf("connected to %s", m.endpoint)
	return nil
}

func (m *zmqMessenger) closeSocket() error {
	if m.socket == nil {
		return nil
	}
	err := m.socket.Close()
	m.cancel()
	m.socket = nil
	m.cancel = nil
	return err
}

type reply struct {
	msg string
	err error
}

// Exchange sends request and waits for the reply, the request timeout or ctx, whichever comes
// first.
func (m *zmqMessenger) Exchange(ctx context.Context, request string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.socket == nil {
		// Dialing retries for a while, which a cancelled caller should not wait for.
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := m.dial(); err != nil {
			return "", err
		}
	}

	socket := m.socket
	replies := make(chan reply, 1)
	goutils.PanicCapturingGo(func() {
		if err := socket.Send(zmq4.NewMsgString(request)); err != nil {
			replies <- reply{err: errors.Wrap(err, "sending request")}
			return
		}
		msg, err := socket.Recv()
		if err != nil {
			replies <- reply{err: errors.Wrap(err, "receiving reply")}
			return
		}
		replies <- reply{msg: string(msg.Bytes())}
	})

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	var err error
	select {
	case r := <-replies:
		if r.err == nil {
			return r.msg, nil
		}
		err = r.err
	case <-timer.C:
		err = errors.Wrapf(ErrTimeout, "request %q", request)
	case <-ctx.Done():
		err = ctx.Err()
	}

	// Closing the socket unblocks the goroutine above.
	m.logger.Debugf("resetting connection to %s: %s", m.endpoint, err)
	if closeErr := m.closeSocket(); closeErr != nil {
		m.logger.Debugf("closing socket: %s", closeErr)
	}
	return "", err
}

func (m *zmqMessenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeSocket()
}
