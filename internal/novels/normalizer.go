package novels

// Normalize derives the viewer-relative view record for one stored record.
// Pure: no I/O, the input record is not mutated.
func Normalize(key string, record Record, viewer Viewer) ViewRecord {
	view := ViewRecord{
		Record: record,
		Key:    key,
	}

	if len(record.Chapters) == 0 && record.LegacyContent != "" {
		view.Chapters = []Chapter{{Content: record.LegacyContent}}
	}

	view.LikeCount = len(record.Likes)
	if !viewer.Anonymous() {
		_, liked := record.Likes[viewer.ID]
		view.LikedByViewer = liked
	}

	return view
}
