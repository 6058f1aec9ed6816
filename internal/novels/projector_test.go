package novels

import "testing"

func entryWith(key, title, author string, createdAt int64) Entry {
	return Entry{
		Key: key,
		Record: Record{
			AuthorName: author,
			Title:      title,
			Chapters:   []Chapter{{Content: "body"}},
			CreatedAt:  createdAt,
		},
	}
}

func TestProjectorSortsByCreatedAtDescending(t *testing.T) {
	projector := NewProjector()
	projector.Apply([]Entry{
		entryWith("a", "Oldest", "U1", 100),
		entryWith("b", "Newest", "U1", 300),
		entryWith("c", "Middle", "U1", 200),
	}, Viewer{})

	records := projector.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"b", "c", "a"} {
		if records[i].Key != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, records[i].Key)
		}
	}
}

func TestProjectorTiesKeepStoreOrder(t *testing.T) {
	projector := NewProjector()
	projector.Apply([]Entry{
		entryWith("first", "A", "U1", 100),
		entryWith("second", "B", "U1", 100),
		entryWith("third", "C", "U1", 100),
	}, Viewer{})

	records := projector.Records()
	for i, want := range []string{"first", "second", "third"} {
		if records[i].Key != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, records[i].Key)
		}
	}
}

func TestProjectorEmptyCollection(t *testing.T) {
	projector := NewProjector()
	projector.Apply(nil, Viewer{})

	if records := projector.Records(); len(records) != 0 {
		t.Fatalf("expected empty projection, got %d records", len(records))
	}
	if matches := projector.Filter("anything"); len(matches) != 0 {
		t.Fatalf("expected no matches on empty projection, got %d", len(matches))
	}
}

func TestProjectorReplacesSetAtomically(t *testing.T) {
	projector := NewProjector()
	projector.Apply([]Entry{entryWith("a", "First", "U1", 100)}, Viewer{})
	projector.Apply([]Entry{entryWith("b", "Second", "U1", 200)}, Viewer{})

	records := projector.Records()
	if len(records) != 1 || records[0].Key != "b" {
		t.Fatalf("expected projection to be replaced wholesale, got %#v", records)
	}
	if _, ok := projector.Lookup("a"); ok {
		t.Fatalf("record from previous snapshot must not survive")
	}
}

func TestProjectorFilterMatchesTitleAndAuthor(t *testing.T) {
	projector := NewProjector()
	projector.Apply([]Entry{
		entryWith("a", "Winter Tales", "Amara", 300),
		entryWith("b", "Summer Drift", "Bram Winters", 200),
		entryWith("c", "Spring Rain", "Chen", 100),
	}, Viewer{})

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "title-case-insensitive", query: "wInTeR", want: []string{"a", "b"}},
		{name: "author-substring", query: "chen", want: []string{"c"}},
		{name: "blank-returns-all", query: "   ", want: []string{"a", "b", "c"}},
		{name: "no-match", query: "autumn", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := projector.Filter(tt.query)
			if len(matches) != len(tt.want) {
				t.Fatalf("expected %d matches, got %d", len(tt.want), len(matches))
			}
			for i, want := range tt.want {
				if matches[i].Key != want {
					t.Fatalf("position %d: expected %q, got %q", i, want, matches[i].Key)
				}
			}
		})
	}

	if len(projector.Records()) != 3 {
		t.Fatalf("filtering must not mutate the projected set")
	}
}

func TestProjectorViewerRelativeProjection(t *testing.T) {
	entries := []Entry{{
		Key: "a",
		Record: Record{
			Title:     "Liked by one",
			Chapters:  []Chapter{{Content: "body"}},
			CreatedAt: 100,
			Likes:     map[string]bool{"u2": true},
		},
	}}

	projector := NewProjector()
	projector.Apply(entries, Viewer{ID: "u2"})
	view, ok := projector.Lookup("a")
	if !ok || !view.LikedByViewer {
		t.Fatalf("expected u2 to see the record as liked")
	}

	projector.Apply(entries, Viewer{ID: "u1"})
	view, ok = projector.Lookup("a")
	if !ok || view.LikedByViewer {
		t.Fatalf("expected u1 to see the record as not liked")
	}
	if view.LikeCount != 1 {
		t.Fatalf("expected like count 1, got %d", view.LikeCount)
	}
}
