package domain

import "errors"

var (
	ErrContentNotFound    = errors.New("content not found")
	ErrUnknownContentType = errors.New("unknown content type")
	ErrUnknownAction      = errors.New("unknown schedule action")
)

type ContentType string

const (
	ContentNews        ContentType = "news"
	ContentProgram     ContentType = "program"
	ContentPublication ContentType = "publication"
)

func (c ContentType) Valid() bool {
	_, ok := targetStatuses[c]
	return ok
}

// ContentStatus is the status column of a content item. Each content type uses
// its own subset.
type ContentStatus string

const (
	ContentPublished ContentStatus = "PUBLISHED"
	ContentDraft     ContentStatus = "DRAFT"
	ContentArchived  ContentStatus = "ARCHIVED"

	ProgramActive    ContentStatus = "ACTIVE"
	ProgramPlanning  ContentStatus = "PLANNING"
	ProgramCancelled ContentStatus = "CANCELLED"
)

// targetStatuses maps (content type, action) to the status the content item ends
// up in. Program archive lands on CANCELLED: programs have no archived status.
var targetStatuses = map[ContentType]map[Action]ContentStatus{
	ContentNews: {
		ActionPublish:   ContentPublished,
		ActionUnpublish: ContentDraft,
		ActionArchive:   ContentArchived,
	},
	ContentProgram: {
		ActionPublish:   ProgramActive,
		ActionUnpublish: ProgramPlanning,
		ActionArchive:   ProgramCancelled,
	},
	ContentPublication: {
		ActionPublish:   ContentPublished,
		ActionUnpublish: ContentDraft,
		ActionArchive:   ContentArchived,
	},
}

// TargetStatus returns the content status an action produces for a content type.
func TargetStatus(contentType ContentType, action Action) (ContentStatus, error) {
	actions, ok := targetStatuses[contentType]
	if !ok {
		return "", ErrUnknownContentType
	}
	status, ok := actions[action]
	if !ok {
		return "", ErrUnknownAction
	}
	return status, nil
}

// ContentTypes returns the recognised content types.
func ContentTypes() []ContentType {
	return []ContentType{ContentNews, ContentProgram, ContentPublication}
}
