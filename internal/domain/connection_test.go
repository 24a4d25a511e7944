package domain

import "testing"

func TestActiveProjectGID(t *testing.T) {
	conn := &AsanaConnection{
		ProjectGIDs:   map[string]string{"Launch": "P1", "Ops": "P2", "Admin": "P3"},
		ActiveProject: "Ops",
	}

	name, gid, ok := conn.ActiveProjectGID()
	if !ok || name != "Ops" || gid != "P2" {
		t.Errorf("ActiveProjectGID = %q/%q/%v, want the selected project", name, gid, ok)
	}

	// The selection can vanish after a reconnect rebuilds the project map.
	// The fallback must be stable across calls, not map-iteration order.
	conn.ActiveProject = "Retired"
	for i := 0; i < 10; i++ {
		name, gid, ok = conn.ActiveProjectGID()
		if !ok || name != "Admin" || gid != "P3" {
			t.Fatalf("ActiveProjectGID = %q/%q/%v, want first project by name", name, gid, ok)
		}
	}

	conn.ProjectGIDs = nil
	if _, _, ok := conn.ActiveProjectGID(); ok {
		t.Error("ActiveProjectGID reported ok with no projects")
	}
}
