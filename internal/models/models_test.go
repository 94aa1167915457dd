package models

import (
	"errors"
	"testing"
)

func TestItemKind(t *testing.T) {
	tests := []struct {
		mediaType string
		want      ItemKind
		container bool
	}{
		{"Audio", KindTrack, false},
		{"MusicAlbum", KindAlbum, true},
		{"MusicArtist", KindArtist, true},
		{"Playlist", KindPlaylist, true},
		{"CollectionFolder", KindFolder, true},
		{"Movie", KindOther, false},
	}

	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			got := ParseItemKind(tt.mediaType)
			if got != tt.want {
				t.Errorf("ParseItemKind(%q) = %v, want %v", tt.mediaType, got, tt.want)
			}
			if got.IsContainer() != tt.container {
				t.Errorf("IsContainer() = %v, want %v", got.IsContainer(), tt.container)
			}
		})
	}

	t.Run("MediaType round trips", func(t *testing.T) {
		for _, k := range []ItemKind{KindTrack, KindAlbum, KindArtist, KindPlaylist, KindFolder} {
			if ParseItemKind(k.MediaType()) != k {
				t.Errorf("kind %v did not round trip through %q", k, k.MediaType())
			}
		}
	})
}

func TestSyncRun(t *testing.T) {
	t.Run("Counts", func(t *testing.T) {
		run := NewSyncRun(1, "cli")
		run.AddOutcome(SyncOutcome{Owner: "a", State: SyncDone})
		run.AddOutcome(SyncOutcome{Owner: "b", State: SyncSkipped})
		run.AddOutcome(SyncOutcome{Owner: "c", State: SyncFailed, Err: errors.New("boom")})
		run.AddOutcome(SyncOutcome{Owner: "d", State: SyncDone})

		done, skipped, failed := run.Counts()
		if done != 2 || skipped != 1 || failed != 1 {
			t.Errorf("Counts() = %d, %d, %d", done, skipped, failed)
		}
	})

	t.Run("Finish", func(t *testing.T) {
		run := NewSyncRun(1, "cli")
		run.Finish(RunCancelled, errors.New("context canceled"))
		if run.Status() != RunCancelled {
			t.Errorf("expected cancelled status, got %s", run.Status())
		}
		if run.CompletedAt() == nil {
			t.Error("expected completion time")
		}
		if run.ErrorMessage() != "context canceled" {
			t.Errorf("unexpected error message %q", run.ErrorMessage())
		}
	})

	t.Run("Validate", func(t *testing.T) {
		run := NewSyncRun(1, "cli")
		if err := run.Validate(); err == nil {
			t.Error("expected error for missing id")
		}
		run.SetID("run-1")
		if err := run.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		run.SetStatus("exploded")
		if err := run.Validate(); err == nil {
			t.Error("expected error for invalid status")
		}
	})
}
