package hardware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Govee LAN API ports: commands go to 4003 on the light, status replies
// come back to 4002 on the sender.
const (
	GoveeCommandPort = 4003
	GoveeStatusPort  = 4002

	goveeTimeout = time.Second
)

// Govee controls a Govee light through its LAN UDP API.
type Govee struct {
	// Addr is the light's host:port.
	Addr string
	// StatusAddr is the local address Ping listens on for the reply.
	StatusAddr string
	Timeout    time.Duration
}

// NewGovee returns a transport for the light at host. port 0 means 4003.
func NewGovee(host string, port int) *Govee {
	if port == 0 {
		port = GoveeCommandPort
	}
	return &Govee{
		Addr:       net.JoinHostPort(host, fmt.Sprint(port)),
		StatusAddr: fmt.Sprintf(":%d", GoveeStatusPort),
		Timeout:    goveeTimeout,
	}
}

type goveeMessage struct {
	Msg goveeCommand `json:"msg"`
}

type goveeCommand struct {
	Cmd  string `json:"cmd"`
	Data any    `json:"data"`
}

type goveeColor struct {
	Color  Color `json:"color"`
	Kelvin int   `json:"colorTemInKelvin"`
}

// Power sends the turn command.
func (g *Govee) Power(ctx context.Context, on bool) error {
	value := 0
	if on {
		value = 1
	}
	return g.send(ctx, goveeCommand{Cmd: "turn", Data: map[string]int{"value": value}})
}

// Color sends the colorwc command.
func (g *Govee) Color(ctx context.Context, c Color) error {
	return g.send(ctx, goveeCommand{Cmd: "colorwc", Data: goveeColor{Color: c}})
}

// Ping sends devStatus and waits for any reply on StatusAddr.
func (g *Govee) Ping(ctx context.Context) error {
	target, err := net.ResolveUDPAddr("udp", g.Addr)
	if err != nil {
		return fmt.Errorf("%w: resolving %s: %v", ErrLightUnreachable, g.Addr, err)
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", g.StatusAddr)
	if err != nil {
		return fmt.Errorf("listening for light status on %s: %w", g.StatusAddr, err)
	}
	defer pc.Close()

	payload, err := json.Marshal(goveeMessage{Msg: goveeCommand{Cmd: "devStatus", Data: struct{}{}}})
	if err != nil {
		return err
	}

	deadline := g.deadline(ctx)
	if err := pc.SetDeadline(deadline); err != nil {
		return err
	}
	if _, err := pc.WriteTo(payload, target); err != nil {
		return fmt.Errorf("%w: %v", ErrLightUnreachable, err)
	}

	buf := make([]byte, 1024)
	if _, _, err := pc.ReadFrom(buf); err != nil {
		return fmt.Errorf("%w: no status reply from %s: %v", ErrLightUnreachable, g.Addr, err)
	}
	return nil
}

func (g *Govee) send(ctx context.Context, cmd goveeCommand) error {
	payload, err := json.Marshal(goveeMessage{Msg: cmd})
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", g.Addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLightUnreachable, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(g.deadline(ctx)); err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLightUnreachable, cmd.Cmd, err)
	}
	return nil
}

func (g *Govee) deadline(ctx context.Context) time.Time {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = goveeTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}
