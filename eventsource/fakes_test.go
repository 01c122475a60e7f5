package eventsource

import (
	"context"
	"sync"
	"time"

	"github.com/putto11262002/sabaipics-core/ip"
	"github.com/putto11262002/sabaipics-core/ptp"
	"github.com/putto11262002/sabaipics-core/ptperr"
)

// issueResult scripts one response to a fakeIssuer.Issue call.
type issueResult struct {
	resp ptp.OperationResponse
	data []byte
	err  error
}

// fakeIssuer replays a scripted sequence of Issue results, repeating the last one
// once the script is exhausted.
type fakeIssuer struct {
	mu      sync.Mutex
	results []issueResult
	calls   []ptp.OperationCode
}

func (f *fakeIssuer) Issue(ctx context.Context, req ptp.OperationRequest, dp ip.DataPhase) (ptp.OperationResponse, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.OperationCode)
	if len(f.results) == 0 {
		return ptp.OperationResponse{ResponseCode: ptp.RC_OK}, nil, nil
	}
	idx := len(f.calls) - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	r := f.results[idx]
	return r.resp, r.data, r.err
}

func (f *fakeIssuer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// photoCall records one DownloadPhoto/DownloadPhotoAs invocation.
type photoCall struct {
	downloadHandle uint32
	reportHandle   uint32
}

// fakePhotoOps records download calls and serves scripted GetObjectInfo results.
type fakePhotoOps struct {
	mu        sync.Mutex
	downloads []photoCall
	infos     []ptp.ObjectInfo
	infoErrs  []error
	infoCalls int
}

func (f *fakePhotoOps) DownloadPhoto(ctx context.Context, handle uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, photoCall{downloadHandle: handle, reportHandle: handle})
	return nil
}

func (f *fakePhotoOps) DownloadPhotoAs(ctx context.Context, downloadHandle, reportHandle uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, photoCall{downloadHandle: downloadHandle, reportHandle: reportHandle})
	return nil
}

func (f *fakePhotoOps) DownloadPhotoAsInfo(ctx context.Context, downloadHandle, reportHandle uint32, info ptp.ObjectInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, photoCall{downloadHandle: downloadHandle, reportHandle: reportHandle})
	return nil
}

func (f *fakePhotoOps) GetObjectInfo(ctx context.Context, handle uint32) (ptp.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.infoCalls
	f.infoCalls++
	if idx >= len(f.infos) {
		idx = len(f.infos) - 1
	}
	if idx < 0 {
		return ptp.ObjectInfo{}, nil
	}
	var err error
	if idx < len(f.infoErrs) {
		err = f.infoErrs[idx]
	}
	return f.infos[idx], err
}

func (f *fakePhotoOps) downloadCalls() []photoCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]photoCall, len(f.downloads))
	copy(out, f.downloads)
	return out
}

// fakeReader replays a scripted sequence of events, then blocks until ctx is
// cancelled, mimicking the long-poll event channel.
type fakeReader struct {
	mu     sync.Mutex
	events []ip.PacketIn
	idx    int
}

func (f *fakeReader) ReadEvent(ctx context.Context, timeout time.Duration) (ip.PacketIn, error) {
	f.mu.Lock()
	if f.idx < len(f.events) {
		e := f.events[f.idx]
		f.idx++
		f.mu.Unlock()
		return e, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ptperr.Wrap(ptperr.KindCancelled, "recv cancelled", ctx.Err())
}

func eventPacket(code ptp.EventCode, param1 uint32) ip.PacketIn {
	return &ip.EventPacket{Event: ptp.Event{EventCode: code, Parameter1: param1}}
}
