// Package rpc provides Unix socket IPC between the sflowd agent and its
// control verbs.
package rpc

import (
	"errors"
	"fmt"
	"net"
	netrpc "net/rpc"
	"os"

	"github.com/rs/zerolog"

	"sflowd/internal/sflow"
)

// Agent is the control surface of the sFlow orchestrator.
type Agent interface {
	Enable(opts *sflow.Options) (bool, error)
	Disable() (bool, error)
	SetSamplingRate(port sflow.PortID, ingress, egress uint32) error
	PortRates(port sflow.PortID) ([]sflow.PortRate, error)
	SetCollector(address, port string) error
	SetAgentAddress(address string, family sflow.Family, set bool) error
	Status() sflow.Status
}

// PortNamer maps port ids to interface names.
type PortNamer interface {
	PortName(id sflow.PortID) string
}

// Service is the RPC service exposed by the agent.
type Service struct {
	agent Agent
	ports PortNamer
	opts  *sflow.Options
	log   zerolog.Logger
}

// NewService returns a Service. EnableAgent starts the agent with opts, the
// configured options; nil reuses whatever the agent has stored. The sampling
// rate of opts is not used: the agent keeps the last global rate set over RPC
// and otherwise falls back to its default rate. ports may be nil.
func NewService(agent Agent, ports PortNamer, opts *sflow.Options, log zerolog.Logger) *Service {
	if opts != nil {
		opts = opts.Clone()
		opts.SamplingRate = 0
	}
	return &Service{agent: agent, ports: ports, opts: opts, log: log}
}

// EnableAgentArgs is the request for EnableAgent.
type EnableAgentArgs struct {
	Enable bool
}

// EnableAgentReply is the response for EnableAgent.
type EnableAgentReply struct {
	// Changed is false when the agent was already in the requested state.
	Changed bool
}

// SetRateArgs is the request for SetRate.
type SetRateArgs struct {
	Port    sflow.PortID
	Ingress uint32
	Egress  uint32
}

// SetRateReply is the response for SetRate.
type SetRateReply struct{}

// ShowRateArgs is the request for ShowRate.
type ShowRateArgs struct {
	Port sflow.PortID
}

// RateRow is one line of the rate report.
type RateRow struct {
	Port    sflow.PortID
	Name    string
	Ingress uint32
	Egress  uint32
}

// ShowRateReply is the response for ShowRate. Rows read before a failure are
// returned along with Error.
type ShowRateReply struct {
	Rows  []RateRow
	Error string
}

// SetCollectorArgs is the request for SetCollector.
type SetCollectorArgs struct {
	Address string
	Port    string
}

// SetCollectorReply is the response for SetCollector.
type SetCollectorReply struct{}

// AgentInterfaceArgs is the request for AgentInterface.
type AgentInterfaceArgs struct {
	Add     bool
	Address string
}

// AgentInterfaceReply is the response for AgentInterface.
type AgentInterfaceReply struct{}

// StatusArgs is the request for Status.
type StatusArgs struct{}

// StatusReply is the response for Status.
type StatusReply struct {
	Status sflow.Status
}

// EnableAgent starts or stops the sFlow agent.
func (s *Service) EnableAgent(args *EnableAgentArgs, reply *EnableAgentReply) error {
	if !args.Enable {
		stopped, err := s.agent.Disable()
		if err != nil {
			return fmt.Errorf("disabling agent: %w", err)
		}
		reply.Changed = stopped
		return nil
	}

	var opts *sflow.Options
	if s.opts != nil {
		opts = s.opts.Clone()
	}
	changed, err := s.agent.Enable(opts)
	if err != nil {
		return fmt.Errorf("enabling agent: %w", err)
	}
	reply.Changed = changed
	return nil
}

// SetRate programs the sampling rate of a port or of every port.
func (s *Service) SetRate(args *SetRateArgs, reply *SetRateReply) error {
	return s.agent.SetSamplingRate(args.Port, args.Ingress, args.Egress)
}

// ShowRate reports programmed sampling rates.
func (s *Service) ShowRate(args *ShowRateArgs, reply *ShowRateReply) error {
	rates, err := s.agent.PortRates(args.Port)
	for _, r := range rates {
		row := RateRow{Port: r.Port, Ingress: r.Ingress, Egress: r.Egress}
		if s.ports != nil {
			row.Name = s.ports.PortName(r.Port)
		}
		reply.Rows = append(reply.Rows, row)
	}
	if err != nil {
		reply.Error = err.Error()
	}
	return nil
}

// SetCollector points the receiver at a collector.
func (s *Service) SetCollector(args *SetCollectorArgs, reply *SetCollectorReply) error {
	return s.agent.SetCollector(args.Address, args.Port)
}

// AgentInterface sets or resets the agent address.
func (s *Service) AgentInterface(args *AgentInterfaceArgs, reply *AgentInterfaceReply) error {
	return s.agent.SetAgentAddress(args.Address, sflow.FamilyOf(args.Address), args.Add)
}

// Status returns a snapshot of the agent.
func (s *Service) Status(args *StatusArgs, reply *StatusReply) error {
	reply.Status = s.agent.Status()
	return nil
}

// StartServer starts the Unix socket RPC server. Closing the returned
// listener stops it.
func StartServer(socketPath string, service *Service, log zerolog.Logger) (net.Listener, error) {
	server := netrpc.NewServer()
	if err := server.Register(service); err != nil {
		return nil, fmt.Errorf("registering RPC service: %w", err)
	}

	// Remove existing socket file if present
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}

	if err := os.Chmod(socketPath, 0660); err != nil {
		log.Warn().Err(err).Msg("Failed to set socket permissions")
	}

	log.Info().Str("socket", socketPath).Msg("RPC server started")

	go func() {
		for {
			conn, err := listener.Accept()
			if errors.Is(err, net.ErrClosed) {
				log.Debug().Msg("RPC server stopped")
				return
			}
			if err != nil {
				log.Error().Err(err).Msg("RPC accept error")
				continue
			}
			go server.ServeConn(conn)
		}
	}()

	return listener, nil
}

// Client is a client for the sflowd RPC service.
type Client struct {
	client *netrpc.Client
}

// NewClient dials the Unix socket and returns an RPC client.
func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to RPC socket %s: %w", socketPath, err)
	}
	return &Client{client: netrpc.NewClient(conn)}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnableAgent starts or stops the agent and reports whether anything changed.
func (c *Client) EnableAgent(enable bool) (bool, error) {
	reply := &EnableAgentReply{}
	if err := c.client.Call("Service.EnableAgent", &EnableAgentArgs{Enable: enable}, reply); err != nil {
		return false, err
	}
	return reply.Changed, nil
}

// SetRate programs a sampling rate.
func (c *Client) SetRate(port sflow.PortID, ingress, egress uint32) error {
	args := &SetRateArgs{Port: port, Ingress: ingress, Egress: egress}
	return c.client.Call("Service.SetRate", args, &SetRateReply{})
}

// ShowRate fetches programmed rates. On a partial failure the rows read so
// far are returned with the error.
func (c *Client) ShowRate(port sflow.PortID) ([]RateRow, error) {
	reply := &ShowRateReply{}
	if err := c.client.Call("Service.ShowRate", &ShowRateArgs{Port: port}, reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return reply.Rows, errors.New(reply.Error)
	}
	return reply.Rows, nil
}

// SetCollector points the agent at a collector. An empty port selects the
// default.
func (c *Client) SetCollector(address, port string) error {
	args := &SetCollectorArgs{Address: address, Port: port}
	return c.client.Call("Service.SetCollector", args, &SetCollectorReply{})
}

// AgentInterface sets the agent address, or resets it when add is false.
func (c *Client) AgentInterface(add bool, address string) error {
	args := &AgentInterfaceArgs{Add: add, Address: address}
	return c.client.Call("Service.AgentInterface", args, &AgentInterfaceReply{})
}

// Status fetches the agent status.
func (c *Client) Status() (sflow.Status, error) {
	reply := &StatusReply{}
	if err := c.client.Call("Service.Status", &StatusArgs{}, reply); err != nil {
		return sflow.Status{}, err
	}
	return reply.Status, nil
}
