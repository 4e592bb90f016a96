package testsupport

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/redcon"
)

// RESPServer is a minimal RESP2 server speaking the commands the cache
// stores issue: GET, SET (EX/PX), EXPIRE, PEXPIRE, DEL and MULTI/EXEC.
// Handshake commands such as HELLO are answered with an error so clients
// fall back to RESP2.
type RESPServer struct {
	server *redcon.Server
	addr   string

	mu    sync.Mutex
	data  map[string]respEntry
	cmds  []string
	fails map[string]string
}

type respEntry struct {
	value  []byte
	expiry time.Time
}

type respConnState struct {
	inMulti bool
	queued  [][][]byte
}

// StartRESPServer listens on a random local port and stops the server when
// the test ends.
func StartRESPServer(t *testing.T) *RESPServer {
	t.Helper()

	s := &RESPServer{data: map[string]respEntry{}, fails: map[string]string{}}
	s.server = redcon.NewServerNetwork("tcp", "127.0.0.1:0",
		s.handle,
		func(conn redcon.Conn) bool {
			conn.SetContext(&respConnState{})
			return true
		},
		func(conn redcon.Conn, err error) {},
	)

	signal := make(chan error, 1)
	go func() {
		_ = s.server.ListenServeAndSignal(signal)
	}()
	if err := <-signal; err != nil {
		t.Fatalf("failed to start resp server: %v", err)
	}
	s.addr = s.server.Addr().String()

	t.Cleanup(func() {
		_ = s.server.Close()
	})
	return s
}

// Addr returns the host:port the server listens on.
func (s *RESPServer) Addr() string {
	return s.addr
}

// Commands returns the upper cased command names received so far.
func (s *RESPServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cmds...)
}

// FailCommand makes every later execution of the named command reply with
// msg as an error, including inside MULTI/EXEC.
func (s *RESPServer) FailCommand(name, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[strings.ToUpper(name)] = msg
}

// TTL returns the remaining lifetime of key, or zero when it has none.
func (s *RESPServer) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || e.expiry.IsZero() {
		return 0
	}
	return time.Until(e.expiry)
}

func (s *RESPServer) handle(conn redcon.Conn, cmd redcon.Command) {
	name := strings.ToUpper(string(cmd.Args[0]))

	s.mu.Lock()
	s.cmds = append(s.cmds, name)
	s.mu.Unlock()

	state, _ := conn.Context().(*respConnState)
	if state == nil {
		state = &respConnState{}
		conn.SetContext(state)
	}

	switch name {
	case "MULTI":
		if state.inMulti {
			conn.WriteError("ERR MULTI calls can not be nested")
			return
		}
		state.inMulti = true
		state.queued = nil
		conn.WriteString("OK")
		return
	case "DISCARD":
		state.inMulti = false
		state.queued = nil
		conn.WriteString("OK")
		return
	case "EXEC":
		if !state.inMulti {
			conn.WriteError("ERR EXEC without MULTI")
			return
		}
		queued := state.queued
		state.inMulti = false
		state.queued = nil
		conn.WriteArray(len(queued))
		for _, args := range queued {
			s.exec(conn, strings.ToUpper(string(args[0])), args)
		}
		return
	}

	if state.inMulti {
		args := make([][]byte, len(cmd.Args))
		for i, a := range cmd.Args {
			args[i] = append([]byte(nil), a...)
		}
		state.queued = append(state.queued, args)
		conn.WriteString("QUEUED")
		return
	}

	s.exec(conn, name, cmd.Args)
}

func (s *RESPServer) exec(conn redcon.Conn, name string, args [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg, ok := s.fails[name]; ok {
		conn.WriteError(msg)
		return
	}

	switch name {
	case "PING":
		conn.WriteString("PONG")
	case "CLIENT", "SELECT":
		conn.WriteString("OK")
	case "GET":
		if len(args) != 2 {
			conn.WriteError("ERR wrong number of arguments for 'get' command")
			return
		}
		e, ok := s.live(string(args[1]))
		if !ok {
			conn.WriteNull()
			return
		}
		conn.WriteBulk(e.value)
	case "SET":
		if len(args) < 3 {
			conn.WriteError("ERR wrong number of arguments for 'set' command")
			return
		}
		e := respEntry{value: append([]byte(nil), args[2]...)}
		for i := 3; i+1 < len(args); i += 2 {
			n, err := strconv.ParseInt(string(args[i+1]), 10, 64)
			if err != nil || n <= 0 {
				conn.WriteError("ERR invalid expire time in 'set' command")
				return
			}
			switch strings.ToUpper(string(args[i])) {
			case "EX":
				e.expiry = time.Now().Add(time.Duration(n) * time.Second)
			case "PX":
				e.expiry = time.Now().Add(time.Duration(n) * time.Millisecond)
			default:
				conn.WriteError("ERR syntax error")
				return
			}
		}
		s.data[string(args[1])] = e
		conn.WriteString("OK")
	case "EXPIRE", "PEXPIRE":
		if len(args) != 3 {
			conn.WriteError("ERR wrong number of arguments for 'expire' command")
			return
		}
		n, err := strconv.ParseInt(string(args[2]), 10, 64)
		if err != nil {
			conn.WriteError("ERR value is not an integer or out of range")
			return
		}
		key := string(args[1])
		e, ok := s.live(key)
		if !ok {
			conn.WriteInt(0)
			return
		}
		unit := time.Second
		if name == "PEXPIRE" {
			unit = time.Millisecond
		}
		if n <= 0 {
			delete(s.data, key)
		} else {
			e.expiry = time.Now().Add(time.Duration(n) * unit)
			s.data[key] = e
		}
		conn.WriteInt(1)
	case "DEL":
		deleted := 0
		for _, k := range args[1:] {
			if _, ok := s.live(string(k)); ok {
				delete(s.data, string(k))
				deleted++
			}
		}
		conn.WriteInt(deleted)
	default:
		conn.WriteError("ERR unknown command '" + strings.ToLower(name) + "'")
	}
}

func (s *RESPServer) live(key string) (respEntry, bool) {
	e, ok := s.data[key]
	if !ok {
		return respEntry{}, false
	}
	if !e.expiry.IsZero() && !time.Now().Before(e.expiry) {
		delete(s.data, key)
		return respEntry{}, false
	}
	return e, true
}
