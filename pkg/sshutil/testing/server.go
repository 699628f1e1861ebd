package testing

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// ForwardRequest records a direct-tcpip channel request seen by a Server.
type ForwardRequest struct {
	Host       string
	Port       int
	OriginHost string
	OriginPort int
}

// Server is an in-process SSH server for tests. It can play a jump host
// (forwarding direct-tcpip channels to routed listeners) and a target
// (answering exec requests with canned responses) at the same time.
type Server struct {
	listener net.Listener
	hostKey  ssh.Signer
	config   *ssh.ServerConfig

	mu        sync.Mutex
	routes    map[string]string
	commands  map[string]CommandResponse
	execDelay time.Duration
	forwards  []ForwardRequest
	conns     map[net.Conn]struct{}
	closed    chan struct{}
}

// NewServer starts a server on 127.0.0.1 that accepts user with the given key.
// It presents hostKeys, or a fresh ed25519 key when none are given.
func NewServer(user string, authorized ssh.PublicKey, hostKeys ...ssh.Signer) (*Server, error) {
	if len(hostKeys) == 0 {
		hostKey, err := GenerateSigner()
		if err != nil {
			return nil, err
		}
		hostKeys = []ssh.Signer{hostKey}
	}

	s := &Server{
		hostKey:  hostKeys[0],
		routes:   make(map[string]string),
		commands: make(map[string]CommandResponse),
		conns:    make(map[net.Conn]struct{}),
		closed:   make(chan struct{}),
	}
	s.config = &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if meta.User() == user && bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown key for %s", meta.User())
		},
	}
	for _, k := range hostKeys {
		s.config.AddHostKey(k)
	}

	var err error
	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	go s.serve()
	return s, nil
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// HostKey returns the server's first public host key.
func (s *Server) HostKey() ssh.PublicKey {
	return s.hostKey.PublicKey()
}

// Route makes direct-tcpip requests for host:port connect to addr.
func (s *Server) Route(host string, port int, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[net.JoinHostPort(host, strconv.Itoa(port))] = addr
}

// SetCommandResponse registers the response to an exact exec command.
func (s *Server) SetCommandResponse(cmd string, resp CommandResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[cmd] = resp
}

// SetExecDelay delays every exec response by d.
func (s *Server) SetExecDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execDelay = d
}

// Forwards returns the direct-tcpip requests received so far.
func (s *Server) Forwards() []ForwardRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ForwardRequest(nil), s.forwards...)
}

// Close stops the listener and drops every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.closed)
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	return s.listener.Close()
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		c.Close()
		return false
	default:
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		if !s.track(conn) {
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(nc net.Conn) {
	defer s.untrack(nc)
	defer nc.Close()

	sconn, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		switch newCh.ChannelType() {
		case "direct-tcpip":
			go s.forward(newCh)
		case "session":
			go s.session(newCh)
		default:
			newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
		}
	}
}

func (s *Server) forward(newCh ssh.NewChannel) {
	var msg struct {
		Host       string
		Port       uint32
		OriginHost string
		OriginPort uint32
	}
	if err := ssh.Unmarshal(newCh.ExtraData(), &msg); err != nil {
		newCh.Reject(ssh.ConnectionFailed, "bad payload")
		return
	}

	s.mu.Lock()
	s.forwards = append(s.forwards, ForwardRequest{
		Host:       msg.Host,
		Port:       int(msg.Port),
		OriginHost: msg.OriginHost,
		OriginPort: int(msg.OriginPort),
	})
	addr, ok := s.routes[net.JoinHostPort(msg.Host, strconv.Itoa(int(msg.Port)))]
	s.mu.Unlock()

	if !ok {
		newCh.Reject(ssh.ConnectionFailed, "no route to "+msg.Host)
		return
	}
	upstream, err := net.Dial("tcp", addr)
	if err != nil {
		newCh.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	if !s.track(upstream) {
		newCh.Reject(ssh.ConnectionFailed, "server closing")
		return
	}
	defer s.untrack(upstream)

	ch, reqs, err := newCh.Accept()
	if err != nil {
		upstream.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	go func() {
		_, _ = io.Copy(ch, upstream)
		ch.Close()
	}()
	_, _ = io.Copy(upstream, ch)
	upstream.Close()
}

func (s *Server) session(newCh ssh.NewChannel) {
	ch, reqs, err := newCh.Accept()
	if err != nil {
		return
	}
	defer ch.Close()

	for req := range reqs {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil)
			return
		}
		req.Reply(true, nil)

		s.mu.Lock()
		resp, ok := s.commands[payload.Command]
		delay := s.execDelay
		s.mu.Unlock()
		if !ok {
			resp = CommandResponse{Stderr: []byte("command not found\n"), ExitCode: 127}
		}

		if delay > 0 || resp.Hang {
			var wait <-chan time.Time
			if !resp.Hang {
				wait = time.After(delay)
			}
			select {
			case <-wait:
			case <-s.closed:
				return
			}
		}

		_, _ = ch.Write(resp.Stdout)
		_, _ = ch.Stderr().Write(resp.Stderr)
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(resp.ExitCode)}))
		return
	}
}

// Blackhole accepts TCP connections and never writes to them. It stands in
// for a target that hangs during the SSH handshake.
type Blackhole struct {
	listener net.Listener
	mu       sync.Mutex
	conns    []net.Conn
}

// NewBlackhole starts a Blackhole on 127.0.0.1.
func NewBlackhole() (*Blackhole, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	b := &Blackhole{listener: l}
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			b.mu.Lock()
			b.conns = append(b.conns, c)
			b.mu.Unlock()
		}
	}()
	return b, nil
}

// Addr returns the listening address.
func (b *Blackhole) Addr() string {
	return b.listener.Addr().String()
}

// Close stops listening and drops held connections.
func (b *Blackhole) Close() error {
	b.mu.Lock()
	for _, c := range b.conns {
		c.Close()
	}
	b.mu.Unlock()
	return b.listener.Close()
}
