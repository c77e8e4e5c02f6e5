package persistence

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDeviceStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "device.json")
	store := NewDeviceStateStore(path)

	in := &DeviceState{
		Protection: ProtectionSettings{
			LVPCutoffVolts:  11.5,
			OCPLimitAmps:    18.0,
			OUTVCutoffVolts: 10.0,
			OUTVBypass:      true,
		},
		Profile: "heavy-duty",
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out == nil {
		t.Fatal("Load() returned nil for saved state")
	}
	if out.Version != StateVersion {
		t.Errorf("Version = %d, want %d", out.Version, StateVersion)
	}
	if out.Protection != in.Protection {
		t.Errorf("Protection = %+v, want %+v", out.Protection, in.Protection)
	}
	if out.Profile != "heavy-duty" {
		t.Errorf("Profile = %q, want heavy-duty", out.Profile)
	}
	if out.SavedAt.IsZero() {
		t.Error("SavedAt was not stamped")
	}
}

func TestDeviceStateMissingFile(t *testing.T) {
	store := NewDeviceStateStore(filepath.Join(t.TempDir(), "absent.json"))

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state != nil {
		t.Errorf("Load() = %+v, want nil for missing file", state)
	}
}

func TestDeviceStateClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	store := NewDeviceStateStore(path)

	if err := store.Save(&DeviceState{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if state, _ := store.Load(); state != nil {
		t.Error("state survived Clear()")
	}

	// Clearing an already-missing file is fine.
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

func TestKnownDeviceUpsertAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known.json")

	store := NewKnownDeviceStore(path)
	if err := store.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	err := store.Upsert(KnownDevice{
		ID:                 "trailer-01",
		Name:               "Shop trailer",
		Addr:               "192.168.1.40:7733",
		LastSignalStrength: -61,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// A later sighting without a name keeps the remembered one.
	err = store.Upsert(KnownDevice{ID: "trailer-01", Addr: "192.168.1.77:7733"})
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	reloaded := NewKnownDeviceStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload error = %v", err)
	}

	dev, ok := reloaded.Get("trailer-01")
	if !ok {
		t.Fatal("device missing after reload")
	}
	if dev.Name != "Shop trailer" {
		t.Errorf("Name = %q, want remembered name", dev.Name)
	}
	if dev.Addr != "192.168.1.77:7733" {
		t.Errorf("Addr = %q, want updated address", dev.Addr)
	}
	if dev.LastSignalStrength != -61 {
		t.Errorf("LastSignalStrength = %d, want -61", dev.LastSignalStrength)
	}
	if dev.LastSeenAt.IsZero() {
		t.Error("LastSeenAt was not stamped")
	}
}

func TestKnownDeviceAllOrdering(t *testing.T) {
	store := NewKnownDeviceStore(filepath.Join(t.TempDir(), "known.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	base := time.Now()
	store.Upsert(KnownDevice{ID: "old", LastSeenAt: base.Add(-time.Hour)})
	store.Upsert(KnownDevice{ID: "new", LastSeenAt: base})

	all := store.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d devices, want 2", len(all))
	}
	if all[0].ID != "new" || all[1].ID != "old" {
		t.Errorf("order = [%s %s], want most recent first", all[0].ID, all[1].ID)
	}
}

func TestKnownDeviceRemove(t *testing.T) {
	store := NewKnownDeviceStore(filepath.Join(t.TempDir(), "known.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	store.Upsert(KnownDevice{ID: "gone"})
	if err := store.Remove("gone"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := store.Get("gone"); ok {
		t.Error("device still present after Remove()")
	}
	if err := store.Remove("never-there"); err != nil {
		t.Errorf("Remove() of unknown id error = %v", err)
	}
}
