package missions

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())

	cp := &Checkpoint{
		UserID:         "u1",
		MissionID:      "m1",
		CurrentStep:    3,
		CompletedSteps: []int{0, 1, 2},
		Status:         StatusInProgress,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := store.Put(ctx, cp); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "u1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentStep != 3 || len(got.CompletedSteps) != 3 {
		t.Errorf("checkpoint lost fields: %+v", got)
	}

	if _, err := store.Get(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing checkpoint error = %v, want ErrNotFound", err)
	}
}

func TestFileStoreKeysWithSeparatorDoNotCollide(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())

	put := func(userID, missionID string, step int) {
		t.Helper()
		err := store.Put(ctx, &Checkpoint{
			UserID:      userID,
			MissionID:   missionID,
			CurrentStep: step,
			Status:      StatusInProgress,
			UpdatedAt:   time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// Both keys collapse to "a__b__c" without escaping.
	put("a__b", "c", 1)
	put("a", "b__c", 2)

	first, err := store.Get(ctx, "a__b", "c")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Get(ctx, "a", "b__c")
	if err != nil {
		t.Fatal(err)
	}
	if first.CurrentStep != 1 || first.UserID != "a__b" {
		t.Errorf("first checkpoint overwritten: %+v", first)
	}
	if second.CurrentStep != 2 || second.UserID != "a" {
		t.Errorf("second checkpoint overwritten: %+v", second)
	}
}

func TestFileStoreLatestInProgressStaysWithinUser(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())

	old := time.Now().Add(-time.Hour)
	if err := store.Put(ctx, &Checkpoint{
		UserID: "a", MissionID: "m1", Status: StatusInProgress, UpdatedAt: old,
	}); err != nil {
		t.Fatal(err)
	}
	// A different user whose directory shares the "a__" prefix.
	if err := store.Put(ctx, &Checkpoint{
		UserID: "a__b", MissionID: "m2", Status: StatusInProgress, UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	cp, err := store.LatestInProgress(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if cp.UserID != "a" || cp.MissionID != "m1" {
		t.Errorf("latest crossed users: %+v", cp)
	}

	if _, err := store.LatestInProgress(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user error = %v, want ErrNotFound", err)
	}
}
