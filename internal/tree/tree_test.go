package tree

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nerrad567/fieldsim/internal/profile"
	"github.com/nerrad567/fieldsim/internal/resource"
)

// mockCreator backs creations with a resource.Tree and counts calls.
type mockCreator struct {
	tree  *resource.Tree
	calls atomic.Int32

	mu     sync.Mutex
	failOn map[string]error // keyed by spec path
}

func newMockCreator() *mockCreator {
	return &mockCreator{tree: resource.NewTree("onem2m"), failOn: make(map[string]error)}
}

func (m *mockCreator) CreateResource(_ context.Context, spec resource.Spec) (resource.Node, error) {
	m.calls.Add(1)
	m.mu.Lock()
	err := m.failOn[spec.Path()]
	m.mu.Unlock()
	if err != nil {
		return resource.Node{}, err
	}
	node, _, err := m.tree.Create(spec)
	return node, err
}

func (m *mockCreator) fail(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[path] = err
}

func (m *mockCreator) clear(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failOn, path)
}

func tempProfile() profile.Profile {
	return profile.Builtin()[0]
}

func newReadyManager(t *testing.T, creator Creator) *Manager {
	t.Helper()
	m := New(creator, Options{CSEBase: "onem2m", AppName: "TestIPE", Retention: DefaultRetention})
	if _, err := m.EnsureRoot(context.Background()); err != nil {
		t.Fatalf("EnsureRoot() error = %v", err)
	}
	return m
}

// ============================================================
// EnsureRoot
// ============================================================

func TestEnsureRoot(t *testing.T) {
	creator := newMockCreator()
	m := New(creator, Options{CSEBase: "/onem2m/", AppName: "TestIPE"})

	devices, err := m.EnsureRoot(context.Background())
	if err != nil {
		t.Fatalf("EnsureRoot() error = %v", err)
	}
	if devices.Path != "onem2m/TestIPE/devices" {
		t.Errorf("devices path = %q", devices.Path)
	}
	if !devices.HasLabel(LabelDevices) || devices.MaxInstances != resource.Unbounded {
		t.Errorf("devices node = %+v", devices)
	}
	if got := m.ApplicationPath(); got != "onem2m/TestIPE" {
		t.Errorf("ApplicationPath() = %q", got)
	}
	app, ok := creator.tree.Get("onem2m/TestIPE")
	if !ok || app.Kind != resource.KindApplication {
		t.Errorf("application node = %+v, ok=%v", app, ok)
	}

	before := creator.calls.Load()
	if _, err := m.EnsureRoot(context.Background()); err != nil {
		t.Fatalf("second EnsureRoot() error = %v", err)
	}
	if creator.calls.Load() != before {
		t.Error("second EnsureRoot() issued creations")
	}
}

func TestRegister(t *testing.T) {
	creator := newMockCreator()
	m := New(creator, Options{CSEBase: "onem2m", AppName: "TestGUI"})

	app, err := m.Register(context.Background())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if app.Path != "onem2m/TestGUI" || app.Kind != resource.KindApplication {
		t.Errorf("Register() = %+v", app)
	}
	if _, ok := creator.tree.Get("onem2m/TestGUI/devices"); ok {
		t.Error("Register() created the devices root")
	}

	before := creator.calls.Load()
	again, err := m.Register(context.Background())
	if err != nil || again.ID != app.ID {
		t.Errorf("second Register() = %+v, %v", again, err)
	}
	if creator.calls.Load() != before {
		t.Error("second Register() issued a creation")
	}
}

func TestEnsureRoot_MissingBase(t *testing.T) {
	m := New(newMockCreator(), Options{CSEBase: "other", AppName: "TestIPE"})

	_, err := m.EnsureRoot(context.Background())
	if !errors.Is(err, resource.ErrCreation) {
		t.Fatalf("EnsureRoot() error = %v, want ErrCreation", err)
	}
	if m.ApplicationPath() != "" {
		t.Error("ApplicationPath() set after failed registration")
	}
}

func TestEnsureRoot_RetriesDevicesOnly(t *testing.T) {
	creator := newMockCreator()
	creator.fail("onem2m/TestIPE/devices", errors.New("broker busy"))
	m := New(creator, Options{CSEBase: "onem2m", AppName: "TestIPE"})

	if _, err := m.EnsureRoot(context.Background()); err == nil {
		t.Fatal("EnsureRoot() expected error")
	}
	creator.clear("onem2m/TestIPE/devices")
	before := creator.calls.Load()
	if _, err := m.EnsureRoot(context.Background()); err != nil {
		t.Fatalf("EnsureRoot() retry error = %v", err)
	}
	if got := creator.calls.Load() - before; got != 1 {
		t.Errorf("retry issued %d creations, want 1", got)
	}
}

// ============================================================
// EnsureDeviceSubtree
// ============================================================

func TestEnsureDeviceSubtree_Layout(t *testing.T) {
	m := newReadyManager(t, newMockCreator())
	p := tempProfile()

	c, err := m.EnsureDeviceSubtree(context.Background(), "Temp", p)
	if err != nil {
		t.Fatalf("EnsureDeviceSubtree() error = %v", err)
	}
	if c.Path() != "onem2m/TestIPE/devices/Temp/measurements" {
		t.Errorf("Path() = %q", c.Path())
	}
	if c.OwnerID != "Temp" || c.Owner.Path != "onem2m/TestIPE/devices/Temp" {
		t.Errorf("owner = %q %q", c.OwnerID, c.Owner.Path)
	}
	if !slices.Equal(c.Owner.Labels, []string{LabelSensor}) || c.Owner.MaxInstances != resource.Unbounded {
		t.Errorf("sensor node = %+v", c.Owner)
	}
	wantLabels := []string{LabelMeasurements, p.ContainerLabel()}
	if !slices.Equal(c.Node.Labels, wantLabels) {
		t.Errorf("measurement labels = %v, want %v", c.Node.Labels, wantLabels)
	}
	if c.Node.MaxInstances != DefaultRetention {
		t.Errorf("MaxInstances = %d, want %d", c.Node.MaxInstances, DefaultRetention)
	}
	if c.Profile.Name != p.Name {
		t.Errorf("Profile = %q", c.Profile.Name)
	}
}

func TestEnsureDeviceSubtree_ReturnsSamePointer(t *testing.T) {
	creator := newMockCreator()
	m := newReadyManager(t, creator)

	first, err := m.EnsureDeviceSubtree(context.Background(), "Temp", tempProfile())
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}
	before := creator.calls.Load()
	second, err := m.EnsureDeviceSubtree(context.Background(), "Temp", tempProfile())
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if first != second {
		t.Error("second call returned a different *Container")
	}
	if creator.calls.Load() != before {
		t.Error("second call re-issued creation")
	}
	if got, ok := m.Lookup("Temp"); !ok || got != first {
		t.Error("Lookup() did not return the cached container")
	}
}

func TestEnsureDeviceSubtree_ConcurrentFirstCalls(t *testing.T) {
	creator := newMockCreator()
	m := newReadyManager(t, creator)
	before := creator.calls.Load()

	const workers = 16
	results := make([]*Container, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := m.EnsureDeviceSubtree(context.Background(), "Temp", tempProfile())
			if err != nil {
				t.Errorf("EnsureDeviceSubtree() error = %v", err)
				return
			}
			results[i] = c
		}()
	}
	wg.Wait()

	for i, c := range results {
		if c != results[0] {
			t.Fatalf("result %d differs from result 0", i)
		}
	}
	if got := creator.calls.Load() - before; got != 2 {
		t.Errorf("creations = %d, want 2 (sensor + measurements)", got)
	}
}

func TestEnsureDeviceSubtree_CachesCreationError(t *testing.T) {
	creator := newMockCreator()
	m := newReadyManager(t, creator)
	creator.fail("onem2m/TestIPE/devices/H2S", &resource.CreationError{
		Parent: "onem2m/TestIPE/devices",
		Name:   "H2S",
		Err:    resource.ErrKindConflict,
	})

	_, err := m.EnsureDeviceSubtree(context.Background(), "H2S", tempProfile())
	if !errors.Is(err, resource.ErrCreation) {
		t.Fatalf("error = %v, want ErrCreation", err)
	}

	creator.clear("onem2m/TestIPE/devices/H2S")
	before := creator.calls.Load()
	_, err2 := m.EnsureDeviceSubtree(context.Background(), "H2S", tempProfile())
	if err2 != err {
		t.Errorf("second error = %v, want cached %v", err2, err)
	}
	if creator.calls.Load() != before {
		t.Error("failed sensor was retried")
	}

	// Other sensors are unaffected.
	if _, err := m.EnsureDeviceSubtree(context.Background(), "Temp", tempProfile()); err != nil {
		t.Errorf("other sensor error = %v", err)
	}
}

func TestEnsureDeviceSubtree_TransientErrorNotCached(t *testing.T) {
	creator := newMockCreator()
	m := newReadyManager(t, creator)
	creator.fail("onem2m/TestIPE/devices/Temp", resource.ErrClosed)

	if _, err := m.EnsureDeviceSubtree(context.Background(), "Temp", tempProfile()); !errors.Is(err, resource.ErrClosed) {
		t.Fatalf("error = %v, want ErrClosed", err)
	}
	creator.clear("onem2m/TestIPE/devices/Temp")
	if _, err := m.EnsureDeviceSubtree(context.Background(), "Temp", tempProfile()); err != nil {
		t.Errorf("retry error = %v", err)
	}
}

func TestEnsureDeviceSubtree_BeforeRoot(t *testing.T) {
	m := New(newMockCreator(), Options{CSEBase: "onem2m", AppName: "TestIPE"})

	_, err := m.EnsureDeviceSubtree(context.Background(), "Temp", tempProfile())
	if !errors.Is(err, ErrRootNotReady) {
		t.Errorf("error = %v, want ErrRootNotReady", err)
	}
}

func TestEnsureDeviceSubtree_CancelledContext(t *testing.T) {
	m := newReadyManager(t, newMockCreator())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.EnsureDeviceSubtree(ctx, "Temp", tempProfile()); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if _, err := m.EnsureDeviceSubtree(context.Background(), "Temp", tempProfile()); err != nil {
		t.Errorf("after cancel error = %v", err)
	}
}

func TestRetentionOption(t *testing.T) {
	tests := []struct {
		name      string
		retention int
		want      int
	}{
		{"zero is unbounded", 0, resource.Unbounded},
		{"shipped default", DefaultRetention, DefaultRetention},
		{"explicit", 10, 10},
		{"negative is unbounded", -1, resource.Unbounded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(newMockCreator(), Options{CSEBase: "onem2m", AppName: "a", Retention: tt.retention})
			if got := m.Retention(); got != tt.want {
				t.Errorf("Retention() = %d, want %d", got, tt.want)
			}
		})
	}
}

// ============================================================
// EnsureActuatorSubtree
// ============================================================

func TestEnsureActuatorSubtree(t *testing.T) {
	creator := newMockCreator()
	m := newReadyManager(t, creator)

	c, err := m.EnsureActuatorSubtree(context.Background(), "Fan", []string{"fan", " fan", ""})
	if err != nil {
		t.Fatalf("EnsureActuatorSubtree() error = %v", err)
	}
	if c.Path() != "onem2m/TestIPE/devices/Fan/commands" {
		t.Errorf("Path() = %q", c.Path())
	}
	if !slices.Equal(c.Owner.Labels, []string{LabelActuator}) {
		t.Errorf("actuator labels = %v", c.Owner.Labels)
	}
	if !slices.Equal(c.Node.Labels, []string{LabelCommands, "fan"}) {
		t.Errorf("commands labels = %v", c.Node.Labels)
	}
	if !slices.Equal(c.Capabilities, []string{"fan"}) {
		t.Errorf("Capabilities = %v", c.Capabilities)
	}

	again, _ := m.EnsureActuatorSubtree(context.Background(), "Fan", []string{"fan"})
	if again != c {
		t.Error("second call returned a different *Container")
	}
	if got, ok := m.LookupActuator("Fan"); !ok || got != c {
		t.Error("LookupActuator() did not return the cached container")
	}
	if _, ok := m.Lookup("Fan"); ok {
		t.Error("actuator visible through sensor Lookup()")
	}
}
