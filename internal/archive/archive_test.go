package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/fieldsim/internal/infrastructure/config"
	"github.com/nerrad567/fieldsim/internal/infrastructure/database"
	"github.com/nerrad567/fieldsim/internal/resource"
	"github.com/nerrad567/fieldsim/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "archive.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func sample(sensor string, value float64, at time.Time) resource.Sample {
	return resource.Sample{
		SensorID:      sensor,
		Profile:       "aqm_temperature",
		Type:          "temperature",
		Value:         value,
		Unit:          "degreeC",
		ContainerPath: "onem2m/TestIPE/devices/" + sensor + "/measurements",
		At:            at,
	}
}

func TestRecordAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for i, v := range []float64{21, 22.5, 45} {
		if err := repo.Record(ctx, sample("Temp", v, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := repo.Record(ctx, sample("Humi", 40, base)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := repo.List(ctx, SampleFilter{SensorID: "Temp", Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0].Value != 45 || got[1].Value != 22.5 {
		t.Errorf("List() = %+v, want newest two Temp samples", got)
	}
	if !got[0].At.Equal(base.Add(2*time.Second)) || got[0].ContainerPath != "onem2m/TestIPE/devices/Temp/measurements" {
		t.Errorf("round-tripped sample = %+v", got[0])
	}

	all, err := repo.List(ctx, SampleFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("List(all) = %d samples, want 4", len(all))
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 4 {
		t.Errorf("Count() = %d, %v", n, err)
	}
}

func TestList_Empty(t *testing.T) {
	got, err := newTestRepo(t).List(context.Background(), SampleFilter{Type: "humidity"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List() = %#v, want empty non-nil slice", got)
	}
}

func TestRecord_DefaultsTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	before := time.Now().UTC().Add(-time.Second)

	if err := repo.Record(ctx, sample("Temp", 20, time.Time{})); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	got, _ := repo.List(ctx, SampleFilter{})
	if len(got) != 1 || got[0].At.Before(before) {
		t.Errorf("sample timestamp = %v, want about now", got[0].At)
	}
}

func TestCommands(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for i, v := range []string{resource.PowerOn, resource.PowerOff} {
		err := repo.RecordCommand(ctx, CommandRecord{
			ActuatorID:    "Fan",
			ContainerPath: "onem2m/TestIPE/devices/Fan/commands",
			Command:       resource.NewCommand(resource.DirectivePower, v),
			ReceivedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordCommand() error = %v", err)
		}
	}

	got, err := repo.ListCommands(ctx, "Fan", 0)
	if err != nil {
		t.Fatalf("ListCommands() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListCommands() = %d records, want 2", len(got))
	}
	if got[0].Command.String() != "Power=OFF" || got[1].Command.String() != "Power=ON" {
		t.Errorf("commands = %v, %v", got[0].Command, got[1].Command)
	}
	if other, _ := repo.ListCommands(ctx, "Air_Con", 10); len(other) != 0 {
		t.Errorf("Air_Con commands = %d, want 0", len(other))
	}
}

func TestRecordCommand_Invalid(t *testing.T) {
	if err := newTestRepo(t).RecordCommand(context.Background(), CommandRecord{ActuatorID: "Fan"}); err == nil {
		t.Error("RecordCommand() with empty command expected error")
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, defaultLimit},
		{-5, defaultLimit},
		{10, 10},
		{5000, maxLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
