package session

import "github.com/putto11262002/sabaipics-core/ptp"

// Delegate is the set of notification callbacks a Session fires (spec §6, §9: "the
// delegate is held ... as an optional callback record; sending a callback after the
// delegate is gone is a no-op"). Go has no weak references and needs none here: a
// zero-value Delegate (every field nil) already satisfies the no-op requirement,
// since every fire* helper below checks for nil before calling.
type Delegate struct {
	OnConnect          func()
	OnDetectPhoto      func(handle uint32, filename, captureTime string, size uint32)
	OnCompleteDownload func(handle uint32, data []byte)
	OnSkipRaw          func(filename string)
	OnFail             func(err error)
	OnDisconnect       func()
}

// SetDelegate replaces the callback record, for callers that receive a Session
// already prepared by a Scanner (spec §4.4 stage 5) and only now know which
// delegate should observe it.
func (s *Session) SetDelegate(d Delegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate = d
}

func (s *Session) fireConnect() {
	if f := s.delegate.OnConnect; f != nil {
		f()
	}
}

func (s *Session) fireDetectPhoto(handle uint32, info ptp.ObjectInfo) {
	if f := s.delegate.OnDetectPhoto; f != nil {
		f(handle, info.Filename, info.CaptureDate, info.ObjectCompressedSize)
	}
}

func (s *Session) fireCompleteDownload(handle uint32, data []byte) {
	if f := s.delegate.OnCompleteDownload; f != nil {
		f(handle, data)
	}
}

func (s *Session) fireSkipRaw(filename string) {
	if f := s.delegate.OnSkipRaw; f != nil {
		f(filename)
	}
}

func (s *Session) fireFail(err error) {
	if f := s.delegate.OnFail; f != nil {
		f(err)
	}
}

func (s *Session) fireDisconnect() {
	if f := s.delegate.OnDisconnect; f != nil {
		f()
	}
}
