package sfl

import "fmt"

// Sampler describes how a data source is sampled and where its samples go.
type Sampler struct {
	agent      *Agent
	ds         DataSource
	rate       uint32
	maxHeader  uint32
	receiver   uint32
	seq        uint32
	samplePool uint32
}

func (s *Sampler) DataSource() DataSource       { return s.ds }
func (s *Sampler) SetSamplingRate(rate uint32)  { s.rate = rate }
func (s *Sampler) SamplingRate() uint32         { return s.rate }
func (s *Sampler) SetMaxHeaderSize(size uint32) { s.maxHeader = size }
func (s *Sampler) MaxHeaderSize() uint32        { return s.maxHeader }
func (s *Sampler) SetReceiver(index uint32)     { s.receiver = index }
func (s *Sampler) ReceiverIndex() uint32        { return s.receiver }
func (s *Sampler) SequenceNumber() uint32       { return s.seq }

// WriteFlowSample stamps fs with the sampler's sequence number, source id,
// rate and sample pool and queues it on the bound receiver. Sampling happens
// in hardware, so each written sample stands for rate packets of the pool.
func (s *Sampler) WriteFlowSample(fs *FlowSample) error {
	if s.agent.released {
		return ErrReleased
	}
	r := s.agent.Receiver(s.receiver)
	if r == nil {
		err := fmt.Errorf("sampler %d: %w", s.ds.Index, ErrNoReceiver)
		s.agent.hooks.Error(err)
		return err
	}

	s.seq++
	s.samplePool += s.rate
	fs.SequenceNumber = s.seq
	fs.SourceID = s.ds.ID()
	if fs.SamplingRate == 0 {
		fs.SamplingRate = s.rate
	}
	if fs.SamplePool == 0 {
		fs.SamplePool = s.samplePool
	}

	if err := r.write(fs); err != nil {
		s.agent.hooks.Error(err)
		return err
	}
	return nil
}
