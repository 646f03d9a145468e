package appstate

import (
	"errors"
	"testing"
	"time"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

func TestLoadCreatesStateFile(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, Options{})
	if err != nil {
		t.Fatalf("create manager failed: %v", err)
	}
	if err := m.SetContext("admin-1", model.AcademicContext{School: "SCOPE"}); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("SetContext before Load err=%v, want ErrNotLoaded", err)
	}
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !fileExists(m.Path()) {
		t.Fatalf("expected %s to be created", m.Path())
	}
}

func TestSaveNowPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir, Options{SaveDelay: time.Hour})
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := model.AcademicContext{School: "SCOPE", Programme: "BCE", Year: "2024-25", Semester: "FALL"}
	if err := m.SetContext("admin-1", want); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}
	if err := m.SetContext("admin-2", model.AcademicContext{School: "SENSE"}); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}
	if err := m.SaveNow(); err != nil {
		t.Fatalf("SaveNow failed: %v", err)
	}

	reloaded, _ := NewManager(dir, Options{})
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got, ok, err := reloaded.Context("admin-1")
	if err != nil || !ok || got != want {
		t.Fatalf("Context=%+v ok=%v err=%v", got, ok, err)
	}
	if reloaded.LastAdminID() != "admin-2" {
		t.Fatalf("last admin=%q", reloaded.LastAdminID())
	}
	if admins := reloaded.Admins(); len(admins) != 2 || admins[0] != "admin-1" {
		t.Fatalf("admins=%v", admins)
	}
}

func TestScheduleSaveDebounces(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir, Options{SaveDelay: 20 * time.Millisecond})
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, school := range []string{"SCOPE", "SENSE", "SELECT"} {
		if err := m.SetContext("admin-1", model.AcademicContext{School: school}); err != nil {
			t.Fatalf("SetContext failed: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var st stateFile
		if err := readJSON(m.Path(), &st); err == nil && st.Admins["admin-1"].Context.School == "SELECT" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("autosave did not persist the last context")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClearContext(t *testing.T) {
	m, _ := NewManager(t.TempDir(), Options{SaveDelay: time.Hour})
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	_ = m.SetContext("admin-1", model.AcademicContext{School: "SCOPE"})
	if err := m.ClearContext("admin-1"); err != nil {
		t.Fatalf("ClearContext failed: %v", err)
	}
	if _, ok, _ := m.Context("admin-1"); ok {
		t.Fatalf("context should be cleared")
	}
	if m.LastAdminID() != "" {
		t.Fatalf("last admin=%q", m.LastAdminID())
	}
}

func TestNewManagerRequiresDir(t *testing.T) {
	if _, err := NewManager("", Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
