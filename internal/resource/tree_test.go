package resource

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

const testBase = "onem2m"

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	tree := NewTree(testBase)
	if _, _, err := tree.Create(Spec{ParentPath: testBase, Name: "app", Kind: KindApplication}); err != nil {
		t.Fatalf("creating app: %v", err)
	}
	return tree
}

func TestTree_CreateIsIdempotent(t *testing.T) {
	tree := newTestTree(t)
	spec := Spec{ParentPath: "onem2m/app", Name: "devices", Labels: []string{"devices"}}

	first, created, err := tree.Create(spec)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !created {
		t.Error("first Create() reported created = false")
	}

	second, created, err := tree.Create(spec)
	if err != nil {
		t.Fatalf("second Create() error = %v", err)
	}
	if created {
		t.Error("second Create() reported created = true")
	}
	if first.ID != second.ID || first.Path != second.Path {
		t.Errorf("second Create() = %+v, want %+v", second, first)
	}
	if first.Path != "onem2m/app/devices" {
		t.Errorf("Path = %q", first.Path)
	}
}

func TestTree_CreateMissingParent(t *testing.T) {
	tree := newTestTree(t)

	_, _, err := tree.Create(Spec{ParentPath: "onem2m/app/nope", Name: "measurements"})
	if !errors.Is(err, ErrCreation) {
		t.Fatalf("Create() error = %v, want ErrCreation", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Create() error = %v, want ErrNotFound cause", err)
	}

	var ce *CreationError
	if !errors.As(err, &ce) || ce.Name != "measurements" {
		t.Errorf("errors.As(*CreationError) failed: %v", err)
	}
}

func TestTree_CreateKindConflict(t *testing.T) {
	tree := newTestTree(t)

	_, _, err := tree.Create(Spec{ParentPath: testBase, Name: "app", Kind: KindContainer})
	if !errors.Is(err, ErrKindConflict) {
		t.Fatalf("Create() error = %v, want ErrKindConflict", err)
	}
}

func TestTree_CreateInvalidName(t *testing.T) {
	tree := newTestTree(t)
	for _, name := range []string{"", "a/b", "dev+", "#"} {
		if _, _, err := tree.Create(Spec{ParentPath: "onem2m/app", Name: name}); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Create(%q) error = %v, want ErrInvalidPath", name, err)
		}
	}
}

func TestTree_AppendRespectsRetention(t *testing.T) {
	tree := newTestTree(t)
	node, _, err := tree.Create(Spec{ParentPath: "onem2m/app", Name: "measurements", MaxInstances: 3})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i := 1; i <= 4; i++ {
		if _, err := tree.Append(node.Path, []byte(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	contents, err := tree.Contents(node.Path)
	if err != nil {
		t.Fatalf("Contents() error = %v", err)
	}
	if len(contents) != 3 {
		t.Fatalf("len(Contents()) = %d, want 3", len(contents))
	}
	if string(contents[0].Payload) != `{"n":2}` {
		t.Errorf("oldest retained = %s, want {\"n\":2}", contents[0].Payload)
	}
}

func TestTree_AppendUnknownContainer(t *testing.T) {
	tree := newTestTree(t)
	if _, err := tree.Append("onem2m/app/missing", []byte(`{}`)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Append() error = %v, want ErrNotFound", err)
	}
	// Applications hold no content.
	if _, err := tree.Append("onem2m/app", []byte(`{}`)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Append() to application error = %v, want ErrNotFound", err)
	}
}

func TestTree_Find(t *testing.T) {
	tree := newTestTree(t)
	mustCreate := func(parent, name string, labels ...string) {
		t.Helper()
		if _, _, err := tree.Create(Spec{ParentPath: parent, Name: name, Labels: labels, MaxInstances: 3}); err != nil {
			t.Fatalf("Create(%s/%s) error = %v", parent, name, err)
		}
	}
	mustCreate("onem2m/app", "devices", "devices")
	mustCreate("onem2m/app/devices", "Temp", "sensor")
	mustCreate("onem2m/app/devices/Temp", "measurements", "measurements", "temperature")
	mustCreate("onem2m/app/devices", "Humi", "sensor")
	mustCreate("onem2m/app/devices/Humi", "measurements", "measurements", "humidity")
	mustCreate("onem2m/app/devices", "Fan-01", "actuator")
	mustCreate("onem2m/app/devices/Fan-01", "commands", "commands", "fan")

	tests := []struct {
		name   string
		root   string
		labels []string
		want   []string
	}{
		{"all measurements", testBase, []string{"measurements"}, []string{
			"onem2m/app/devices/Humi/measurements",
			"onem2m/app/devices/Temp/measurements",
		}},
		{"all labels required", testBase, []string{"measurements", "temperature"}, []string{
			"onem2m/app/devices/Temp/measurements",
		}},
		{"commands", testBase, []string{"commands"}, []string{
			"onem2m/app/devices/Fan-01/commands",
		}},
		{"root scopes results", "onem2m/app/devices/Humi", []string{"measurements"}, []string{
			"onem2m/app/devices/Humi/measurements",
		}},
		{"no match", testBase, []string{"pressure"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tree.Find(tt.root, tt.labels)
			if len(got) != len(tt.want) {
				t.Fatalf("Find() returned %d nodes, want %d: %v", len(got), len(tt.want), got)
			}
			for i, n := range got {
				if n.Path != tt.want[i] {
					t.Errorf("Find()[%d] = %s, want %s", i, n.Path, tt.want[i])
				}
			}
		})
	}
}

func TestTree_PutKeepsContent(t *testing.T) {
	tree := NewTree(testBase)
	node := Node{Path: "onem2m/x/measurements", Name: "measurements", Kind: KindContainer, MaxInstances: 3}
	tree.Put(node)
	if _, err := tree.Append(node.Path, []byte(`1`)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	node.Labels = []string{"measurements"}
	tree.Put(node)

	contents, _ := tree.Contents(node.Path)
	if len(contents) != 1 {
		t.Errorf("len(Contents()) = %d after re-Put, want 1", len(contents))
	}
	got, _ := tree.Get(node.Path)
	if !got.HasLabel("measurements") {
		t.Error("re-Put did not update labels")
	}
}

func TestTree_Remove(t *testing.T) {
	tree := newTestTree(t)
	spec := Spec{ParentPath: "onem2m/app", Name: "devices"}
	if _, _, err := tree.Create(spec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if !tree.Remove("/onem2m/app/devices/") {
		t.Fatal("Remove() = false for existing node")
	}
	if _, ok := tree.Get("onem2m/app/devices"); ok {
		t.Error("node still present after Remove()")
	}
	if tree.Remove("onem2m/app/devices") {
		t.Error("second Remove() = true")
	}
	if _, created, _ := tree.Create(spec); !created {
		t.Error("Create() after Remove() did not create")
	}
}

func TestTree_ConcurrentCreate(t *testing.T) {
	tree := newTestTree(t)
	spec := Spec{ParentPath: "onem2m/app", Name: "devices"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := tree.Create(spec)
			if err != nil {
				t.Errorf("Create() error = %v", err)
				return
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if createdCount != 1 {
		t.Errorf("node created %d times, want 1", createdCount)
	}
}
