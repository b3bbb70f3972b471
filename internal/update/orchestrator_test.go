package update

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zigmesh/tuya-core/internal/firmware"
)

type fakeSubscription struct {
	events chan TransferEvent

	mu     sync.Mutex
	closed bool
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{events: make(chan TransferEvent, 16)}
}

func (s *fakeSubscription) Events() <-chan TransferEvent { return s.events }

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeTransport struct {
	mu       sync.Mutex
	infos    map[string]*OTAInfo
	infoErr  error
	beginErr error
	subs     map[string]*fakeSubscription
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		infos: make(map[string]*OTAInfo),
		subs:  make(map[string]*fakeSubscription),
	}
}

func (t *fakeTransport) ReadOTAInfo(_ context.Context, deviceID string) (*OTAInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.infoErr != nil {
		return nil, t.infoErr
	}
	info, ok := t.infos[deviceID]
	if !ok {
		return nil, errors.New("device has no OTA cluster")
	}
	out := *info
	return &out, nil
}

func (t *fakeTransport) BeginTransfer(_ context.Context, deviceID string, _ []byte) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.beginErr != nil {
		return nil, t.beginErr
	}
	sub := newFakeSubscription()
	t.subs[deviceID] = sub
	return sub, nil
}

func (t *fakeTransport) subscription(deviceID string) *fakeSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs[deviceID]
}

type fakeSource struct {
	img         *firmware.Image
	latest      *firmware.Image
	payload     []byte
	downloadErr error
}

func (s *fakeSource) FindImage(_ context.Context, manufacturerCode, imageType int, currentVersion uint32) (*firmware.Image, bool) {
	if s.img == nil || s.img.ManufacturerCode != manufacturerCode || s.img.ImageType != imageType {
		return nil, false
	}
	if s.img.FileVersion <= currentVersion {
		return nil, false
	}
	out := *s.img
	return &out, true
}

func (s *fakeSource) LatestImage(_ context.Context, manufacturerCode, imageType int) (*firmware.Image, bool) {
	candidate := s.latest
	if candidate == nil {
		candidate = s.img
	}
	if candidate == nil || candidate.ManufacturerCode != manufacturerCode || candidate.ImageType != imageType {
		return nil, false
	}
	out := *candidate
	return &out, true
}

func (s *fakeSource) DownloadImage(_ context.Context, _ *firmware.Image) ([]byte, error) {
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	return s.payload, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	notices []string
}

func (p *fakePublisher) PublishProgress(string, float64) error { return nil }

func (p *fakePublisher) PublishState(UpdateState) error { return nil }

func (p *fakePublisher) Notify(_ string, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, message)
	return nil
}

func (p *fakePublisher) notifications() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notices...)
}

func testOTAImage(version uint32) *firmware.Image {
	return &firmware.Image{
		ManufacturerCode: 4098,
		ImageType:        100,
		FileVersion:      version,
		Size:             24576,
		URL:              "https://example.com/fw.ota",
		Changelog:        "Fixes battery reporting",
	}
}

func newTestOrchestrator(source ImageSource, transport DeviceTransport) *Orchestrator {
	return NewOrchestrator(OrchestratorOptions{
		Source:    source,
		Transport: transport,
	})
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestCheckUpdate(t *testing.T) {
	tests := []struct {
		name          string
		info          *OTAInfo
		infoErr       error
		img           *firmware.Image
		wantAvailable bool
		wantReason    string
	}{
		{
			name:          "update available",
			info:          &OTAInfo{ManufacturerCode: 4098, ImageType: 100, FileVersion: 10},
			img:           testOTAImage(12),
			wantAvailable: true,
		},
		{
			name:       "no OTA info",
			infoErr:    errors.New("read timeout"),
			img:        testOTAImage(12),
			wantReason: ReasonNoOTAInfo,
		},
		{
			name:       "already up to date",
			info:       &OTAInfo{ManufacturerCode: 4098, ImageType: 100, FileVersion: 12},
			img:        testOTAImage(12),
			wantReason: ReasonAlreadyCurrent,
		},
		{
			name:       "no image for hardware",
			info:       &OTAInfo{ManufacturerCode: 9999, ImageType: 1, FileVersion: 10},
			img:        testOTAImage(12),
			wantReason: ReasonNoUpdateFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			transport.infoErr = tt.infoErr
			if tt.info != nil {
				transport.infos["dev-01"] = tt.info
			}

			o := newTestOrchestrator(&fakeSource{img: tt.img}, transport)

			result, err := o.CheckUpdate(context.Background(), "dev-01")
			if err != nil {
				t.Fatalf("CheckUpdate() error = %v", err)
			}
			if result.Available != tt.wantAvailable {
				t.Errorf("Available = %v, want %v", result.Available, tt.wantAvailable)
			}
			if result.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", result.Reason, tt.wantReason)
			}
			if tt.wantAvailable {
				if result.AvailableVersion != tt.img.FileVersion {
					t.Errorf("AvailableVersion = %d, want %d", result.AvailableVersion, tt.img.FileVersion)
				}
				if result.Size != tt.img.Size || result.URL != tt.img.URL || result.Changelog != tt.img.Changelog {
					t.Errorf("image details = {%d %q %q}, want {%d %q %q}",
						result.Size, result.URL, result.Changelog,
						tt.img.Size, tt.img.URL, tt.img.Changelog)
				}
			}
		})
	}
}

func TestPerformUpdate_FullLifecycle(t *testing.T) {
	transport := newFakeTransport()
	transport.infos["dev-01"] = &OTAInfo{ManufacturerCode: 4098, ImageType: 100, FileVersion: 10}
	source := &fakeSource{img: testOTAImage(12), payload: []byte{0x01, 0x02}}

	o := newTestOrchestrator(source, transport)

	events, cancelSub := o.Subscribe()
	defer cancelSub()

	state, err := o.PerformUpdate(context.Background(), "dev-01")
	if err != nil {
		t.Fatalf("PerformUpdate() error = %v", err)
	}
	if state.Status != StatusStarting {
		t.Errorf("initial status = %q, want %q", state.Status, StatusStarting)
	}
	if state.FromVersion != 10 || state.ToVersion != 12 {
		t.Errorf("versions = %d -> %d, want 10 -> 12", state.FromVersion, state.ToVersion)
	}
	if state.ID == "" {
		t.Error("update ID is empty")
	}

	sub := transport.subscription("dev-01")
	sub.events <- TransferEvent{Type: TransferProgress, Progress: 25}
	sub.events <- TransferEvent{Type: TransferProgress, Progress: 50}

	waitFor(t, func() bool {
		active := o.ActiveUpdates()
		return len(active) == 1 && active[0].Status == StatusUpdating && active[0].Progress == 50
	}, "progress to reach 50")

	// The broadcaster must carry progress events too.
	gotProgress := false
	for !gotProgress {
		select {
		case ev := <-events:
			if ev.Status == StatusUpdating && ev.Progress > 0 {
				gotProgress = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no progress event on broadcaster")
		}
	}

	sub.events <- TransferEvent{Type: TransferComplete}

	waitFor(t, func() bool { return len(o.ActiveUpdates()) == 0 }, "update to finish")
	waitFor(t, sub.isClosed, "subscription close")

	history := o.UpdateHistory(0)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	final := history[0]
	if final.Status != StatusComplete {
		t.Errorf("final status = %q, want %q", final.Status, StatusComplete)
	}
	if final.Progress != 100 {
		t.Errorf("final progress = %v, want 100", final.Progress)
	}
	if final.FinishedAt.IsZero() {
		t.Error("FinishedAt is zero on a finished update")
	}
}

func TestPerformUpdate_RejectsConcurrentSameDevice(t *testing.T) {
	transport := newFakeTransport()
	transport.infos["dev-01"] = &OTAInfo{ManufacturerCode: 4098, ImageType: 100, FileVersion: 10}
	transport.infos["dev-02"] = &OTAInfo{ManufacturerCode: 4098, ImageType: 100, FileVersion: 10}
	source := &fakeSource{img: testOTAImage(12), payload: []byte{0x01}}

	o := newTestOrchestrator(source, transport)

	ctx := context.Background()
	if _, err := o.PerformUpdate(ctx, "dev-01"); err != nil {
		t.Fatalf("first PerformUpdate() error = %v", err)
	}

	if _, err := o.PerformUpdate(ctx, "dev-01"); !errors.Is(err, ErrUpdateInProgress) {
		t.Errorf("same-device PerformUpdate() error = %v, want ErrUpdateInProgress", err)
	}

	// A different device is unaffected.
	if _, err := o.PerformUpdate(ctx, "dev-02"); err != nil {
		t.Errorf("second-device PerformUpdate() error = %v", err)
	}
	if got := len(o.ActiveUpdates()); got != 2 {
		t.Errorf("active updates = %d, want 2", got)
	}

	for _, id := range []string{"dev-01", "dev-02"} {
		transport.subscription(id).events <- TransferEvent{Type: TransferComplete}
	}
	waitFor(t, func() bool { return len(o.ActiveUpdates()) == 0 }, "updates to finish")
}

func TestPerformUpdate_NoUpdateAvailable(t *testing.T) {
	transport := newFakeTransport()
	transport.infos["dev-01"] = &OTAInfo{ManufacturerCode: 4098, ImageType: 100, FileVersion: 12}
	source := &fakeSource{img: testOTAImage(12)}

	o := newTestOrchestrator(source, transport)

	_, err := o.PerformUpdate(context.Background(), "dev-01")
	if !errors.Is(err, ErrNoUpdateAvailable) {
		t.Fatalf("PerformUpdate() error = %v, want ErrNoUpdateAvailable", err)
	}
	if got := len(o.ActiveUpdates()); got != 0 {
		t.Errorf("active updates = %d, want 0 (slot released)", got)
	}
	if got := len(o.UpdateHistory(0)); got != 0 {
		t.Errorf("history length = %d, want 0 (no transfer attempted)", got)
	}
}

func TestPerformUpdate_DownloadFailureReleasesSlot(t *testing.T) {
	transport := newFakeTransport()
	transport.infos["dev-01"] = &OTAInfo{ManufacturerCode: 4098, ImageType: 100, FileVersion: 10}
	source := &fakeSource{img: testOTAImage(12), downloadErr: firmware.ErrDownloadFailed}
	pub := &fakePublisher{}

	o := NewOrchestrator(OrchestratorOptions{
		Source:    source,
		Transport: transport,
		Publisher: pub,
	})

	ctx := context.Background()
	if _, err := o.PerformUpdate(ctx, "dev-01"); !errors.Is(err, firmware.ErrDownloadFailed) {
		t.Fatalf("PerformUpdate() error = %v, want ErrDownloadFailed", err)
	}

	// The user hears about the failure even though no transfer started.
	notices := pub.notifications()
	if len(notices) != 1 || !strings.Contains(notices[0], "Firmware update failed") {
		t.Errorf("notifications = %q, want one failure notice", notices)
	}

	// The failed attempt must not block a retry.
	source.downloadErr = nil
	source.payload = []byte{0x01}
	if _, err := o.PerformUpdate(ctx, "dev-01"); err != nil {
		t.Errorf("retry PerformUpdate() error = %v", err)
	}
}

func TestPerformUpdate_TransferError(t *testing.T) {
	transport := newFakeTransport()
	transport.infos["dev-01"] = &OTAInfo{ManufacturerCode: 4098, ImageType: 100, FileVersion: 10}
	source := &fakeSource{img: testOTAImage(12), payload: []byte{0x01}}

	o := newTestOrchestrator(source, transport)

	if _, err := o.PerformUpdate(context.Background(), "dev-01"); err != nil {
		t.Fatalf("PerformUpdate() error = %v", err)
	}

	sub := transport.subscription("dev-01")
	sub.events <- TransferEvent{Type: TransferError, Err: errors.New("device went offline")}

	waitFor(t, func() bool { return len(o.UpdateHistory(0)) == 1 }, "error to be recorded")

	final := o.UpdateHistory(0)[0]
	if final.Status != StatusError {
		t.Errorf("final status = %q, want %q", final.Status, StatusError)
	}
	if final.Error != "device went offline" {
		t.Errorf("final error = %q", final.Error)
	}
}

func TestCancelUpdate(t *testing.T) {
	transport := newFakeTransport()
	transport.infos["dev-01"] = &OTAInfo{ManufacturerCode: 4098, ImageType: 100, FileVersion: 10}
	source := &fakeSource{img: testOTAImage(12), payload: []byte{0x01}}

	o := newTestOrchestrator(source, transport)

	ctx := context.Background()
	if _, err := o.PerformUpdate(ctx, "dev-01"); err != nil {
		t.Fatalf("PerformUpdate() error = %v", err)
	}

	state, err := o.CancelUpdate(ctx, "dev-01")
	if err != nil {
		t.Fatalf("CancelUpdate() error = %v", err)
	}
	if state.Status != StatusCancelled {
		t.Errorf("status = %q, want %q", state.Status, StatusCancelled)
	}
	if state.FinishedAt.IsZero() {
		t.Error("FinishedAt is zero on a cancelled update")
	}
	if got := len(o.ActiveUpdates()); got != 0 {
		t.Errorf("active updates = %d, want 0", got)
	}

	// Cancellation is bookkeeping only: the device may keep sending
	// events, and they must not resurrect or re-close the record.
	sub := transport.subscription("dev-01")
	sub.events <- TransferEvent{Type: TransferProgress, Progress: 80}
	sub.events <- TransferEvent{Type: TransferComplete}

	waitFor(t, sub.isClosed, "subscription close")

	history := o.UpdateHistory(0)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1 (single terminal transition)", len(history))
	}
	if history[0].Status != StatusCancelled {
		t.Errorf("history status = %q, want %q", history[0].Status, StatusCancelled)
	}

	if _, err := o.CancelUpdate(ctx, "dev-01"); !errors.Is(err, ErrNotUpdating) {
		t.Errorf("second CancelUpdate() error = %v, want ErrNotUpdating", err)
	}
}

func TestPerformUpdate_TransferStartFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.infos["dev-01"] = &OTAInfo{ManufacturerCode: 4098, ImageType: 100, FileVersion: 10}
	transport.beginErr = errors.New("radio busy")
	source := &fakeSource{img: testOTAImage(12), payload: []byte{0x01}}

	o := newTestOrchestrator(source, transport)

	_, err := o.PerformUpdate(context.Background(), "dev-01")
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("PerformUpdate() error = %v, want ErrTransferFailed", err)
	}

	history := o.UpdateHistory(0)
	if len(history) != 1 || history[0].Status != StatusError {
		t.Errorf("history = %+v, want one error record", history)
	}
}
