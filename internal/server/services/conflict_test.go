package services

import (
	"context"
	"errors"
	"testing"

	"github.com/theworldofobi/mini-dropbox/internal/common"
	"github.com/theworldofobi/mini-dropbox/internal/server/keylock"
	"github.com/theworldofobi/mini-dropbox/internal/server/models"
)

func TestProposeUpdate_CleanProgressionAccepted(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := newFakeManager()
	m.f.file = &models.FileRecord{ID: "f1", CurrentVersion: 3, ContentRef: "k3"}
	m.f.version = 3
	s := NewConflictService(db, m, NewLedger(db, m), keylock.New())

	outcome, err := s.ProposeUpdate(context.Background(), "f1", 3, "k4", 10)
	if err != nil {
		t.Fatalf("ProposeUpdate error: %v", err)
	}
	if !outcome.Accepted || outcome.NewVersion != 4 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(m.h.appended) != 1 || m.h.appended[0].Version != 4 {
		t.Fatalf("unexpected history: %+v", m.h.appended)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestProposeUpdate_StaleBaseConflictsWithoutMutation(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := newFakeManager()
	m.f.file = &models.FileRecord{ID: "f1", CurrentVersion: 5, ContentRef: "k5"}
	m.f.version = 5
	s := NewConflictService(db, m, NewLedger(db, m), keylock.New())

	outcome, err := s.ProposeUpdate(context.Background(), "f1", 3, "k6", 10)
	if err != nil {
		t.Fatalf("ProposeUpdate error: %v", err)
	}
	if outcome.Accepted {
		t.Fatalf("stale base accepted: %+v", outcome)
	}
	if outcome.ServerVersion != 5 || outcome.ServerContentRef != "k5" {
		t.Fatalf("conflict payload missing server state: %+v", outcome)
	}
	if m.f.version != 5 || len(m.h.appended) != 0 {
		t.Fatalf("conflict mutated state: version=%d history=%+v", m.f.version, m.h.appended)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestProposeUpdate_FutureBaseIsInvalidState(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	m := newFakeManager()
	m.f.file = &models.FileRecord{ID: "f1", CurrentVersion: 2}
	s := NewConflictService(db, m, NewLedger(db, m), keylock.New())

	_, err := s.ProposeUpdate(context.Background(), "f1", 7, "k", 1)
	if !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}
	if len(m.h.appended) != 0 {
		t.Fatalf("invalid state mutated history: %+v", m.h.appended)
	}
}

func TestProposeUpdate_UnknownFile(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	s := NewConflictService(db, newFakeManager(), NewLedger(db, newFakeManager()), keylock.New())
	if _, err := s.ProposeUpdate(context.Background(), "missing", 0, "k", 1); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestProposeUpdate_MissingContentRef(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := NewConflictService(db, newFakeManager(), NewLedger(db, newFakeManager()), keylock.New())
	if _, err := s.ProposeUpdate(context.Background(), "f1", 0, "", 1); !errors.Is(err, common.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestProposeUpdate_LoserOfRaceGetsConflict(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeManager()
	m.f.file = &models.FileRecord{ID: "f1", CurrentVersion: 3, ContentRef: "k3"}
	m.f.version = 3
	s := NewConflictService(db, m, NewLedger(db, m), keylock.New())

	mock.ExpectBegin()
	mock.ExpectCommit()
	first, err := s.ProposeUpdate(context.Background(), "f1", 3, "kA", 1)
	if err != nil || !first.Accepted || first.NewVersion != 4 {
		t.Fatalf("first proposal: %+v, %v", first, err)
	}

	// same base version again: the winner already bumped to 4
	mock.ExpectBegin()
	mock.ExpectCommit()
	second, err := s.ProposeUpdate(context.Background(), "f1", 3, "kB", 1)
	if err != nil {
		t.Fatalf("second proposal error: %v", err)
	}
	if second.Accepted {
		t.Fatalf("both proposals accepted from the same base")
	}
	if second.ServerVersion != 4 || second.ServerContentRef != "kA" {
		t.Fatalf("loser did not see winner's state: %+v", second)
	}
}

func TestConflictLifecycle_ProposeConflictResolveLocal(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeManager()
	m.f.file = &models.FileRecord{ID: "f1", CurrentVersion: 3, ContentRef: "kA"}
	m.f.version = 3
	s := NewConflictService(db, m, NewLedger(db, m), keylock.New())

	// client A moves the file from 3 to 4
	mock.ExpectBegin()
	mock.ExpectCommit()
	a, err := s.ProposeUpdate(context.Background(), "f1", 3, "kA2", 1)
	if err != nil || !a.Accepted || a.NewVersion != 4 {
		t.Fatalf("A's proposal: %+v, %v", a, err)
	}

	// client B still holds base 3 and gets a conflict
	mock.ExpectBegin()
	mock.ExpectCommit()
	b, err := s.ProposeUpdate(context.Background(), "f1", 3, "kB", 1)
	if err != nil || b.Accepted || b.ServerVersion != 4 {
		t.Fatalf("B's proposal: %+v, %v", b, err)
	}

	// B forces its content; the result is strictly past the server's version
	mock.ExpectBegin()
	mock.ExpectCommit()
	v, err := s.ResolveConflict(context.Background(), "f1", ResolutionLocal, "kB", 1)
	if err != nil || v != 5 {
		t.Fatalf("B's resolution = %d, %v", v, err)
	}
	if m.f.lastContentRef != "kB" {
		t.Fatalf("B's content not authoritative: %q", m.f.lastContentRef)
	}
}

func TestResolveConflict_RemoteKeepsServerState(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := newFakeManager()
	m.f.file = &models.FileRecord{ID: "f1", CurrentVersion: 6}
	s := NewConflictService(db, m, NewLedger(db, m), keylock.New())

	v, err := s.ResolveConflict(context.Background(), "f1", ResolutionRemote, "", 0)
	if err != nil || v != 6 {
		t.Fatalf("ResolveConflict remote = %d, %v", v, err)
	}
	if len(m.h.appended) != 0 {
		t.Fatalf("remote resolution mutated state: %+v", m.h.appended)
	}
}

func TestResolveConflict_LocalForcesNewVersion(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := newFakeManager()
	m.f.file = &models.FileRecord{ID: "f1", CurrentVersion: 6}
	m.f.version = 6
	s := NewConflictService(db, m, NewLedger(db, m), keylock.New())

	v, err := s.ResolveConflict(context.Background(), "f1", ResolutionLocal, "k-local", 20)
	if err != nil {
		t.Fatalf("ResolveConflict local error: %v", err)
	}
	if v != 7 {
		t.Fatalf("forced version = %d, want 7", v)
	}
	if m.f.lastContentRef != "k-local" {
		t.Fatalf("content ref not applied: %q", m.f.lastContentRef)
	}
}

func TestResolveConflict_LocalRequiresContentRef(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := NewConflictService(db, newFakeManager(), NewLedger(db, newFakeManager()), keylock.New())
	if _, err := s.ResolveConflict(context.Background(), "f1", ResolutionLocal, "", 0); !errors.Is(err, common.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestResolveConflict_UnknownResolution(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := NewConflictService(db, newFakeManager(), NewLedger(db, newFakeManager()), keylock.New())
	if _, err := s.ResolveConflict(context.Background(), "f1", "merge", "k", 0); !errors.Is(err, common.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}
