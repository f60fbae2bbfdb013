package sflow

import "fmt"

// PortRate is one row of the sampling rate report.
type PortRate struct {
	Port    PortID
	Ingress uint32
	Egress  uint32
}

// SetSamplingRate programs the hardware sampling rate of one port, or of
// every port when port is GlobalPort, then mirrors the ingress rate onto the
// sampler. The egress rate has no sampler-side counterpart.
//
// A global rate set before Enable is remembered and applied by Enable.
func (o *Orchestrator) SetSamplingRate(port PortID, ingress, egress uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.log.Debug().
		Uint32("port", uint32(port)).
		Uint32("ingress", ingress).
		Uint32("egress", egress).
		Msg("Setting sampling rate")

	if err := o.setHardwareRate(port, ingress, egress); err != nil {
		return err
	}

	if port == GlobalPort {
		if o.opts == nil {
			o.opts = o.defaults.Options()
		}
		o.opts.SamplingRate = ingress
	}

	if o.agent == nil {
		return nil
	}
	if o.sampler == nil {
		o.log.Error().Uint32("port", uint32(port)).Msg("There is no sampler for port")
		return nil
	}
	o.sampler.SetSamplingRate(ingress)
	return nil
}

// setHardwareRate pushes rates to the adapter. For GlobalPort the first
// failing port aborts the remaining ports.
func (o *Orchestrator) setHardwareRate(port PortID, ingress, egress uint32) error {
	ports, err := o.hw.EnumeratePorts()
	if err != nil {
		return &AdapterError{Op: "retrieving port config", Err: err}
	}

	scope := "port"
	targets := []PortID{port}
	if port == GlobalPort {
		scope = "global"
		targets = ports
	}

	for _, p := range targets {
		if err := o.hw.SetPortSamplingRate(p, ingress, egress); err != nil {
			o.log.Error().Err(err).Uint32("port", uint32(p)).Msg("Failed to set sampling rate on port")
			return &AdapterError{Op: "setting sampling rate", Port: p, Err: err}
		}
	}

	if o.metrics != nil {
		o.metrics.RateUpdates.WithLabelValues(scope).Inc()
	}
	return nil
}

// GetSamplingRate reads the rates programmed on a port from the hardware.
func (o *Orchestrator) GetSamplingRate(port PortID) (ingress, egress uint32, err error) {
	ingress, egress, err = o.hw.PortSamplingRate(port)
	if err != nil {
		return 0, 0, &AdapterError{Op: "getting sample rate", Port: port, Err: err}
	}
	return ingress, egress, nil
}

// PortRates reports the rates of one port, or of every port in order when
// port is GlobalPort. On an adapter error the rows read so far are returned
// along with the error.
func (o *Orchestrator) PortRates(port PortID) ([]PortRate, error) {
	ports := []PortID{port}
	if port == GlobalPort {
		var err error
		ports, err = o.hw.EnumeratePorts()
		if err != nil {
			return nil, &AdapterError{Op: "retrieving port config", Err: err}
		}
	}

	rows := make([]PortRate, 0, len(ports))
	for _, p := range ports {
		ingress, egress, err := o.GetSamplingRate(p)
		if err != nil {
			o.log.Error().Err(err).Uint32("port", uint32(p)).Msg("Failed while getting sample rate")
			return rows, fmt.Errorf("reading rates: %w", err)
		}
		rows = append(rows, PortRate{Port: p, Ingress: ingress, Egress: egress})
	}
	return rows, nil
}
