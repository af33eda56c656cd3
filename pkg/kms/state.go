package kms

// AtomicState is a transactional, copy-on-write overlay over the live
// object graph. Capture populates it from a set of Assignments; a
// successful Commit swaps each touched object's live state pointer to the
// corresponding state held here. Discarding an AtomicState (simply letting
// it go out of scope) is how a failed or test-only commit rolls back: the
// live objects were never touched.
type AtomicState struct {
	dev *Device

	crtcStates      map[*Crtc]*CrtcState
	planeStates     map[*Plane]*PlaneState
	connectorStates map[*Connector]*ConnectorState
}

func newAtomicState(dev *Device) *AtomicState {
	return &AtomicState{
		dev:             dev,
		crtcStates:      make(map[*Crtc]*CrtcState),
		planeStates:     make(map[*Plane]*PlaneState),
		connectorStates: make(map[*Connector]*ConnectorState),
	}
}

// Crtc returns this state's copy of crtc's state, cloning from the live
// state on first touch.
func (s *AtomicState) Crtc(c *Crtc) *CrtcState {
	if st, ok := s.crtcStates[c]; ok {
		return st
	}
	st := c.DrmState().Clone(c)
	s.crtcStates[c] = st
	return st
}

// Plane returns this state's copy of plane's state, cloning on first
// touch.
func (s *AtomicState) Plane(p *Plane) *PlaneState {
	if st, ok := s.planeStates[p]; ok {
		return st
	}
	st := p.DrmState().Clone(p)
	s.planeStates[p] = st
	return st
}

// Connector returns this state's copy of connector's state, cloning on
// first touch.
func (s *AtomicState) Connector(c *Connector) *ConnectorState {
	if st, ok := s.connectorStates[c]; ok {
		return st
	}
	st := c.DrmState().Clone(c)
	s.connectorStates[c] = st
	return st
}

// TouchedCrtcs reports every Crtc this state has cloned state for, i.e.
// every Crtc an in-flight commit actually touches.
func (s *AtomicState) TouchedCrtcs() []*Crtc {
	out := make([]*Crtc, 0, len(s.crtcStates))
	for c := range s.crtcStates {
		out = append(out, c)
	}
	return out
}

// apply swaps every touched object's live state to this state's copy.
// Called by Device.Commit, with the Device's commit lock held, once the
// driver reports the commit completed without error.
func (s *AtomicState) apply() {
	for c, st := range s.crtcStates {
		c.SetDrmState(st)
	}
	for p, st := range s.planeStates {
		p.SetDrmState(st)
	}
	for c, st := range s.connectorStates {
		c.SetDrmState(st)
	}
}
